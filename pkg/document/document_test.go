package document

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDocument() *Document {
	return &Document{
		Zones: map[string]Zone{
			"board": {Grid: NewGrid(3, 3)},
		},
		Players: []Player{
			{ID: "p1", Mark: "mark_x"},
			{ID: "p2", Mark: "mark_o"},
		},
		Turn: "p1",
	}
}

func TestDocumentMarshalShape(t *testing.T) {
	doc := testDocument()
	mark := "mark_x"
	doc.Zones["board"].Grid[0][0] = &mark

	data, err := json.Marshal(doc)
	require.NoError(t, err)

	want := `{"zones":{"board":[["mark_x",null,null],[null,null,null],[null,null,null]]},"players":[{"id":"p1","mark":"mark_x"},{"id":"p2","mark":"mark_o"}],"turn":"p1"}`
	assert.JSONEq(t, want, string(data))
}

func TestDocumentRoundTrip(t *testing.T) {
	doc := testDocument()
	mark := "mark_o"
	doc.Zones["board"].Grid[2][1] = &mark
	doc.Zones["discard"] = Zone{Marks: []string{"card_a", "card_b"}}
	doc.Result = "p2"

	data, err := json.Marshal(doc)
	require.NoError(t, err)

	decoded := &Document{}
	require.NoError(t, json.Unmarshal(data, decoded))
	assert.Equal(t, doc, decoded)
}

func TestZoneUnmarshalEmptyList(t *testing.T) {
	var zone Zone
	require.NoError(t, json.Unmarshal([]byte(`[]`), &zone))
	assert.Nil(t, zone.Grid)
	assert.Empty(t, zone.Marks)
}

func TestClone(t *testing.T) {
	doc := testDocument()
	mark := "mark_x"
	doc.Zones["board"].Grid[1][1] = &mark

	clone := doc.Clone()
	require.Equal(t, doc, clone)

	other := "mark_o"
	clone.Zones["board"].Grid[1][1] = &other
	clone.Turn = "p2"

	assert.Equal(t, "mark_x", *doc.Zones["board"].Grid[1][1])
	assert.Equal(t, "p1", doc.Turn)
}

func TestCountMarks(t *testing.T) {
	doc := testDocument()
	assert.Equal(t, 0, doc.CountMarks("board"))
	assert.Equal(t, 0, doc.CountMarks("missing"))

	mark := "mark_x"
	doc.Zones["board"].Grid[0][0] = &mark
	doc.Zones["board"].Grid[2][2] = &mark
	assert.Equal(t, 2, doc.CountMarks("board"))

	doc.Zones["discard"] = Zone{Marks: []string{"card_a"}}
	assert.Equal(t, 1, doc.CountMarks("discard"))
}

func TestPlayerMarkAndOwner(t *testing.T) {
	doc := testDocument()

	mark, ok := doc.PlayerMark("p2")
	require.True(t, ok)
	assert.Equal(t, "mark_o", mark)

	_, ok = doc.PlayerMark("p3")
	assert.False(t, ok)

	owner, ok := doc.MarkOwner("mark_x")
	require.True(t, ok)
	assert.Equal(t, "p1", owner)

	_, ok = doc.MarkOwner("mark_z")
	assert.False(t, ok)
}

func TestNextPlayer(t *testing.T) {
	doc := testDocument()
	assert.Equal(t, "p2", doc.NextPlayer("p1"))
	assert.Equal(t, "p1", doc.NextPlayer("p2"))
	assert.Equal(t, "p1", doc.NextPlayer("unknown"))

	doc.AdvanceTurn()
	assert.Equal(t, "p2", doc.Turn)
	doc.AdvanceTurn()
	assert.Equal(t, "p1", doc.Turn)
}
