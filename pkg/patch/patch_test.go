package patch

import (
	"testing"

	"github.com/cbodonnell/gametable/pkg/document"
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

func TestPointer(t *testing.T) {
	tests := []struct {
		name   string
		tokens []string
		want   string
	}{
		{
			name:   "simple",
			tokens: []string{"turn"},
			want:   "/turn",
		},
		{
			name:   "nested",
			tokens: []string{"zones", "board", "0", "2"},
			want:   "/zones/board/0/2",
		},
		{
			name:   "escapes slash and tilde",
			tokens: []string{"zones", "a/b~c"},
			want:   "/zones/a~1b~0c",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Pointer(tt.tokens...))
		})
	}
}

func TestApply(t *testing.T) {
	tests := []struct {
		name    string
		diff    Diff
		wantErr bool
		check   func(t *testing.T, doc *document.Document)
	}{
		{
			name: "replace grid cell and turn",
			diff: Diff{
				{Op: OpReplace, Path: "/zones/board/1/2", Value: "mark_x"},
				{Op: OpReplace, Path: "/turn", Value: "p2"},
			},
			check: func(t *testing.T, doc *document.Document) {
				require.NotNil(t, doc.Zones["board"].Grid[1][2])
				assert.Equal(t, "mark_x", *doc.Zones["board"].Grid[1][2])
				assert.Equal(t, "p2", doc.Turn)
			},
		},
		{
			name: "add result field",
			diff: Diff{
				{Op: OpAdd, Path: "/result", Value: "p1"},
			},
			check: func(t *testing.T, doc *document.Document) {
				assert.Equal(t, "p1", doc.Result)
			},
		},
		{
			name: "ops apply left to right",
			diff: Diff{
				{Op: OpReplace, Path: "/turn", Value: "p2"},
				{Op: OpReplace, Path: "/turn", Value: "p1"},
			},
			check: func(t *testing.T, doc *document.Document) {
				assert.Equal(t, "p1", doc.Turn)
			},
		},
		{
			name: "remove clears array element",
			diff: Diff{
				{Op: OpReplace, Path: "/zones/board/0/0", Value: "mark_o"},
				{Op: OpRemove, Path: "/zones/board/0/0"},
			},
			check: func(t *testing.T, doc *document.Document) {
				assert.Nil(t, doc.Zones["board"].Grid[0][0])
			},
		},
		{
			name: "replace missing key fails",
			diff: Diff{
				{Op: OpReplace, Path: "/zones/missing", Value: "x"},
			},
			wantErr: true,
		},
		{
			name: "out of range index fails",
			diff: Diff{
				{Op: OpReplace, Path: "/zones/board/3/0", Value: "x"},
			},
			wantErr: true,
		},
		{
			name: "unknown op fails",
			diff: Diff{
				{Op: "move", Path: "/turn", Value: "p2"},
			},
			wantErr: true,
		},
		{
			name: "pointer without leading slash fails",
			diff: Diff{
				{Op: OpReplace, Path: "turn", Value: "p2"},
			},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := testDocument()
			err := Apply(doc, tt.diff)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, doc)
		})
	}
}

func TestApplyEmptyDiffIsNoOp(t *testing.T) {
	doc := testDocument()
	require.NoError(t, Apply(doc, Diff{}))
	assert.Equal(t, testDocument(), doc)
}
