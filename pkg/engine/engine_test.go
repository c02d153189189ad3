package engine

import (
	"testing"

	"github.com/cbodonnell/gametable/pkg/document"
	"github.com/cbodonnell/gametable/pkg/patch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDocument() *document.Document {
	return &document.Document{
		Zones: map[string]document.Zone{
			"board": {Grid: document.NewGrid(3, 3)},
		},
		Players: []document.Player{
			{ID: "p1", Mark: "mark_x"},
			{ID: "p2", Mark: "mark_o"},
		},
		Turn: "p1",
	}
}

func placeVerb(row, col float64) Verb {
	return Verb{
		Name: "place",
		Kind: VerbKindPlace,
		Zone: "board",
		Args: map[string]interface{}{"row": row, "col": col},
	}
}

func TestApplyVerb(t *testing.T) {
	tests := []struct {
		name  string
		setup func(doc *document.Document)
		actor string
		verb  Verb
		want  patch.Diff
	}{
		{
			name:  "legal place",
			actor: "p1",
			verb:  placeVerb(0, 2),
			want: patch.Diff{
				{Op: patch.OpReplace, Path: "/zones/board/0/2", Value: "mark_x"},
				{Op: patch.OpReplace, Path: "/turn", Value: "p2"},
			},
		},
		{
			name:  "out of turn",
			actor: "p2",
			verb:  placeVerb(0, 0),
		},
		{
			name:  "unknown actor",
			actor: "p3",
			verb:  placeVerb(0, 0),
		},
		{
			name:  "occupied cell",
			actor: "p1",
			verb:  placeVerb(1, 1),
			setup: func(doc *document.Document) {
				mark := "mark_o"
				doc.Zones["board"].Grid[1][1] = &mark
			},
		},
		{
			name:  "row out of range",
			actor: "p1",
			verb:  placeVerb(3, 0),
		},
		{
			name:  "negative col",
			actor: "p1",
			verb:  placeVerb(0, -1),
		},
		{
			name:  "fractional coordinate",
			actor: "p1",
			verb:  placeVerb(0.5, 0),
		},
		{
			name:  "missing argument",
			actor: "p1",
			verb: Verb{
				Name: "place",
				Kind: VerbKindPlace,
				Zone: "board",
				Args: map[string]interface{}{"row": float64(0)},
			},
		},
		{
			name:  "non-numeric argument",
			actor: "p1",
			verb: Verb{
				Name: "place",
				Kind: VerbKindPlace,
				Zone: "board",
				Args: map[string]interface{}{"row": "0", "col": "0"},
			},
		},
		{
			name:  "unknown zone",
			actor: "p1",
			verb: Verb{
				Name: "place",
				Kind: VerbKindPlace,
				Zone: "table",
				Args: map[string]interface{}{"row": float64(0), "col": float64(0)},
			},
		},
		{
			name:  "unknown verb kind",
			actor: "p1",
			verb: Verb{
				Name: "chat",
				Kind: "chat",
			},
		},
		{
			name:  "concluded round",
			actor: "p1",
			verb:  placeVerb(0, 0),
			setup: func(doc *document.Document) {
				doc.Result = "p2"
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := testDocument()
			if tt.setup != nil {
				tt.setup(doc)
			}
			before := doc.Clone()

			diff := ApplyVerb(doc, tt.actor, tt.verb)

			if len(tt.want) == 0 {
				assert.True(t, diff.Empty())
				assert.Equal(t, before, doc, "rejected verb must leave the document untouched")
				return
			}
			assert.Equal(t, tt.want, diff)
		})
	}
}

// A legal verb's diff, replayed against the pre-move document, must yield
// exactly the post-move document.
func TestApplyVerbDiffReplay(t *testing.T) {
	doc := testDocument()
	before := doc.Clone()

	diff := ApplyVerb(doc, "p1", placeVerb(2, 0))
	require.False(t, diff.Empty())

	require.NoError(t, patch.Apply(before, diff))
	assert.Equal(t, doc, before)
}

func TestApplyVerbAlternatesTurns(t *testing.T) {
	doc := testDocument()

	require.False(t, ApplyVerb(doc, "p1", placeVerb(0, 0)).Empty())
	assert.Equal(t, "p2", doc.Turn)

	require.False(t, ApplyVerb(doc, "p2", placeVerb(1, 0)).Empty())
	assert.Equal(t, "p1", doc.Turn)

	// p2 is no longer on turn
	assert.True(t, ApplyVerb(doc, "p2", placeVerb(2, 0)).Empty())
}
