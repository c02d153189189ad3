// Package engine validates player verbs against the state document and
// computes the patch operations that describe their effect.
package engine

import (
	"encoding/json"
	"strconv"

	"github.com/cbodonnell/gametable/pkg/document"
	"github.com/cbodonnell/gametable/pkg/patch"
)

// Verb kinds understood by the engine.
const (
	VerbKindPlace = "place"
)

// Verb is a named player action resolved against a game's verb schema:
// the wire name, the kind of effect, the target zone, and the raw arguments.
type Verb struct {
	Name string
	Kind string
	Zone string
	Args map[string]interface{}
}

// ApplyVerb validates the verb and, if legal, mutates the document and
// returns the ordered diff reconstructing exactly that mutation. Every
// rejection path (wrong turn, malformed or out-of-range arguments, occupied
// target, concluded round) returns the empty diff and leaves the document
// untouched. It never returns an error: illegality is the empty diff.
func ApplyVerb(doc *document.Document, actor string, verb Verb) patch.Diff {
	if doc.Result != "" {
		return nil
	}
	if actor != doc.Turn {
		return nil
	}

	switch verb.Kind {
	case VerbKindPlace:
		return applyPlace(doc, actor, verb)
	default:
		return nil
	}
}

func applyPlace(doc *document.Document, actor string, verb Verb) patch.Diff {
	zone, ok := doc.Zones[verb.Zone]
	if !ok || zone.Grid == nil {
		return nil
	}

	row, ok := intArg(verb.Args, "row")
	if !ok {
		return nil
	}
	col, ok := intArg(verb.Args, "col")
	if !ok {
		return nil
	}
	if row < 0 || row >= len(zone.Grid) {
		return nil
	}
	if col < 0 || col >= len(zone.Grid[row]) {
		return nil
	}
	if zone.Grid[row][col] != nil {
		return nil
	}

	mark, ok := doc.PlayerMark(actor)
	if !ok {
		return nil
	}

	zone.Grid[row][col] = &mark
	next := doc.NextPlayer(actor)
	doc.Turn = next

	return patch.Diff{
		{
			Op:    patch.OpReplace,
			Path:  patch.Pointer("zones", verb.Zone, strconv.Itoa(row), strconv.Itoa(col)),
			Value: mark,
		},
		{
			Op:    patch.OpReplace,
			Path:  patch.Pointer("turn"),
			Value: next,
		},
	}
}

// intArg extracts an integer argument. JSON-decoded numbers arrive as
// float64; only whole values are accepted.
func intArg(args map[string]interface{}, name string) (int, bool) {
	raw, ok := args[name]
	if !ok {
		return 0, false
	}
	switch v := raw.(type) {
	case float64:
		n := int(v)
		if float64(n) != v {
			return 0, false
		}
		return n, true
	case int:
		return v, true
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, false
		}
		return int(n), true
	default:
		return 0, false
	}
}
