// Package document defines the authoritative state document for a single
// game session: named zones of marks, the player roster, and the turn pointer.
package document

import (
	"encoding/json"
	"fmt"
)

// Player binds a stable player id to a mark token.
type Player struct {
	ID   string `json:"id"`
	Mark string `json:"mark"`
}

// Grid is a fixed-size 2D array of optional marks. A nil cell is empty.
type Grid [][]*string

// Zone is an addressable container of marks. A zone is either grid-shaped
// (Grid non-nil) or an ordered list of marks (stacks, hands).
type Zone struct {
	Grid  Grid
	Marks []string
}

// MarshalJSON encodes a grid zone as a 2D array and a list zone as a flat
// array of marks, matching the wire shape clients consume.
func (z Zone) MarshalJSON() ([]byte, error) {
	if z.Grid != nil {
		return json.Marshal(z.Grid)
	}
	if z.Marks == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(z.Marks)
}

func (z *Zone) UnmarshalJSON(data []byte) error {
	var elems []json.RawMessage
	if err := json.Unmarshal(data, &elems); err != nil {
		return fmt.Errorf("zone must be an array: %v", err)
	}
	if len(elems) > 0 && len(elems[0]) > 0 && elems[0][0] == '[' {
		var grid Grid
		if err := json.Unmarshal(data, &grid); err != nil {
			return fmt.Errorf("failed to decode grid zone: %v", err)
		}
		z.Grid = grid
		z.Marks = nil
		return nil
	}
	var marks []string
	if err := json.Unmarshal(data, &marks); err != nil {
		return fmt.Errorf("failed to decode list zone: %v", err)
	}
	z.Marks = marks
	z.Grid = nil
	return nil
}

// Document is one game's mutable state. It is exclusively owned by a single
// session; all reads and writes happen under that session's state lock.
type Document struct {
	Zones   map[string]Zone `json:"zones"`
	Players []Player        `json:"players"`
	Turn    string          `json:"turn"`
	Result  string          `json:"result,omitempty"`
}

// NewGrid returns an empty rows x cols grid.
func NewGrid(rows, cols int) Grid {
	grid := make(Grid, rows)
	for i := range grid {
		grid[i] = make([]*string, cols)
	}
	return grid
}

// Clone returns a deep copy of the document. The copy shares no mutable
// memory with the original.
func (d *Document) Clone() *Document {
	clone := &Document{
		Zones:   make(map[string]Zone, len(d.Zones)),
		Players: make([]Player, len(d.Players)),
		Turn:    d.Turn,
		Result:  d.Result,
	}
	copy(clone.Players, d.Players)
	for name, zone := range d.Zones {
		clone.Zones[name] = zone.clone()
	}
	return clone
}

func (z Zone) clone() Zone {
	clone := Zone{}
	if z.Grid != nil {
		clone.Grid = make(Grid, len(z.Grid))
		for i, row := range z.Grid {
			clone.Grid[i] = make([]*string, len(row))
			for j, cell := range row {
				if cell != nil {
					mark := *cell
					clone.Grid[i][j] = &mark
				}
			}
		}
	}
	if z.Marks != nil {
		clone.Marks = make([]string, len(z.Marks))
		copy(clone.Marks, z.Marks)
	}
	return clone
}

// CountMarks returns the number of non-empty marks in the named zone.
// A missing zone counts as zero.
func (d *Document) CountMarks(zone string) int {
	z, ok := d.Zones[zone]
	if !ok {
		return 0
	}
	if z.Grid != nil {
		count := 0
		for _, row := range z.Grid {
			for _, cell := range row {
				if cell != nil {
					count++
				}
			}
		}
		return count
	}
	return len(z.Marks)
}

// PlayerMark returns the mark bound to a player id.
func (d *Document) PlayerMark(playerID string) (string, bool) {
	for _, p := range d.Players {
		if p.ID == playerID {
			return p.Mark, true
		}
	}
	return "", false
}

// MarkOwner returns the player id that owns a mark token.
func (d *Document) MarkOwner(mark string) (string, bool) {
	for _, p := range d.Players {
		if p.Mark == mark {
			return p.ID, true
		}
	}
	return "", false
}

// NextPlayer returns the player after the given one in roster order,
// wrapping around. An unknown id maps to the first player.
func (d *Document) NextPlayer(playerID string) string {
	if len(d.Players) == 0 {
		return playerID
	}
	for i, p := range d.Players {
		if p.ID == playerID {
			return d.Players[(i+1)%len(d.Players)].ID
		}
	}
	return d.Players[0].ID
}

// AdvanceTurn rotates the turn pointer to the next roster player.
func (d *Document) AdvanceTurn() {
	d.Turn = d.NextPlayer(d.Turn)
}
