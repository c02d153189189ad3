// Package patch implements the ordered patch-operation format broadcast to
// clients after every accepted verb. Operations use JSON pointer paths and
// are applied strictly left-to-right.
package patch

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/cbodonnell/gametable/pkg/document"
)

// Patch operations
const (
	OpReplace = "replace"
	OpAdd     = "add"
	OpRemove  = "remove"
)

// Op is a single patch operation against a state document.
type Op struct {
	Op    string      `json:"op"`
	Path  string      `json:"path"`
	Value interface{} `json:"value,omitempty"`
}

// Diff is an ordered sequence of patch operations. An empty diff means the
// verb had no effect.
type Diff []Op

func (d Diff) Empty() bool {
	return len(d) == 0
}

// Pointer builds a JSON pointer from unescaped path tokens.
func Pointer(tokens ...string) string {
	var sb strings.Builder
	for _, token := range tokens {
		sb.WriteByte('/')
		token = strings.ReplaceAll(token, "~", "~0")
		token = strings.ReplaceAll(token, "/", "~1")
		sb.WriteString(token)
	}
	return sb.String()
}

func parsePointer(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	if !strings.HasPrefix(path, "/") {
		return nil, fmt.Errorf("invalid pointer %q: must start with /", path)
	}
	tokens := strings.Split(path[1:], "/")
	for i, token := range tokens {
		token = strings.ReplaceAll(token, "~1", "/")
		token = strings.ReplaceAll(token, "~0", "~")
		tokens[i] = token
	}
	return tokens, nil
}

// Apply replays the diff against a document in order. The document is
// modified in place; on error it may be partially patched, so callers that
// need all-or-nothing semantics should apply to a clone.
func Apply(doc *document.Document, diff Diff) error {
	if diff.Empty() {
		return nil
	}

	// Patching operates on the generic JSON tree so paths written by rule
	// modules can target extension fields the typed struct does not know.
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode document: %v", err)
	}
	var tree interface{}
	if err := json.Unmarshal(raw, &tree); err != nil {
		return fmt.Errorf("failed to decode document: %v", err)
	}

	for i, op := range diff {
		tree, err = applyOp(tree, op)
		if err != nil {
			return fmt.Errorf("op %d (%s %s): %v", i, op.Op, op.Path, err)
		}
	}

	patched, err := json.Marshal(tree)
	if err != nil {
		return fmt.Errorf("failed to encode patched document: %v", err)
	}
	var out document.Document
	if err := json.Unmarshal(patched, &out); err != nil {
		return fmt.Errorf("failed to decode patched document: %v", err)
	}
	*doc = out
	return nil
}

func applyOp(tree interface{}, op Op) (interface{}, error) {
	tokens, err := parsePointer(op.Path)
	if err != nil {
		return nil, err
	}
	switch op.Op {
	case OpReplace, OpAdd, OpRemove:
	default:
		return nil, fmt.Errorf("unknown op %q", op.Op)
	}

	if len(tokens) == 0 {
		if op.Op == OpRemove {
			return nil, fmt.Errorf("cannot remove the document root")
		}
		return op.Value, nil
	}

	parent, err := walk(tree, tokens[:len(tokens)-1])
	if err != nil {
		return nil, err
	}
	if err := mutate(parent, tokens[len(tokens)-1], op); err != nil {
		return nil, err
	}
	return tree, nil
}

func walk(node interface{}, tokens []string) (interface{}, error) {
	for _, token := range tokens {
		switch v := node.(type) {
		case map[string]interface{}:
			child, ok := v[token]
			if !ok {
				return nil, fmt.Errorf("missing key %q", token)
			}
			node = child
		case []interface{}:
			idx, err := strconv.Atoi(token)
			if err != nil || idx < 0 || idx >= len(v) {
				return nil, fmt.Errorf("invalid array index %q", token)
			}
			node = v[idx]
		default:
			return nil, fmt.Errorf("cannot descend into %T at %q", node, token)
		}
	}
	return node, nil
}

func mutate(parent interface{}, token string, op Op) error {
	switch v := parent.(type) {
	case map[string]interface{}:
		switch op.Op {
		case OpRemove:
			if _, ok := v[token]; !ok {
				return fmt.Errorf("missing key %q", token)
			}
			delete(v, token)
		case OpReplace:
			if _, ok := v[token]; !ok {
				return fmt.Errorf("missing key %q", token)
			}
			v[token] = op.Value
		case OpAdd:
			v[token] = op.Value
		}
	case []interface{}:
		// Mutating array elements in place keeps the parent reference
		// valid; element insertion/removal is not needed by the engine,
		// which always replaces fixed-size grid cells.
		idx, err := strconv.Atoi(token)
		if err != nil || idx < 0 || idx >= len(v) {
			return fmt.Errorf("invalid array index %q", token)
		}
		switch op.Op {
		case OpReplace, OpAdd:
			v[idx] = op.Value
		case OpRemove:
			v[idx] = nil
		}
	default:
		return fmt.Errorf("cannot mutate %T", parent)
	}
	return nil
}
