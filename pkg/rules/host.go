package rules

import (
	"github.com/cbodonnell/gametable/pkg/document"
)

// DrawOutcome is the sentinel outcome token a module passes to round_end
// when the round concluded without a winner.
const DrawOutcome = "draw"

// Host is the capability surface a rule module may call. It is the only
// channel through which module code observes or mutates session state.
type Host interface {
	// Emit delivers an opaque message from the module to the host. It is an
	// observability hook and never affects behavior.
	Emit(value []byte)
	// ZoneLen returns the number of non-empty marks in the named zone.
	// A missing zone yields zero.
	ZoneLen(zoneID string) int
	// OwnerOf resolves a mark/entity to its owning player id. The returned
	// slice aliases a scratch buffer that is only valid until the next Host
	// call; callers that retain it must copy it first.
	OwnerOf(entityID string) ([]byte, bool)
	// Grid returns a deep copy of a grid-shaped zone. The copy is owned by
	// the caller. A missing or non-grid zone yields an empty grid.
	Grid(zoneID string) document.Grid
	// AdvanceTurn rotates the turn pointer to the next roster player.
	AdvanceTurn()
	// RoundEnd records the round outcome: a player id, or DrawOutcome.
	// Terminal for the round; later calls are ignored.
	RoundEnd(outcome string)
}

// DocumentHost implements Host over a state document. It must only be used
// while the session's state lock is held.
type DocumentHost struct {
	doc     *document.Document
	rotated bool
	ended   bool
	outcome string
	scratch []byte
	emitted [][]byte
}

// NewDocumentHost binds a host to a document. rotated reports whether the
// turn pointer was already rotated by the verb application that triggered
// the hook; in that case AdvanceTurn keeps the round going without rotating
// a second time.
func NewDocumentHost(doc *document.Document, rotated bool) *DocumentHost {
	return &DocumentHost{
		doc:     doc,
		rotated: rotated,
	}
}

func (h *DocumentHost) Emit(value []byte) {
	h.emitted = append(h.emitted, value)
}

// Emitted returns the messages the module emitted during the invocation.
func (h *DocumentHost) Emitted() [][]byte {
	return h.emitted
}

func (h *DocumentHost) ZoneLen(zoneID string) int {
	return h.doc.CountMarks(zoneID)
}

func (h *DocumentHost) OwnerOf(entityID string) ([]byte, bool) {
	owner, ok := h.doc.MarkOwner(entityID)
	if !ok {
		return nil, false
	}
	// Single scratch buffer reused across calls; the result is only valid
	// until the next Host call.
	h.scratch = append(h.scratch[:0], owner...)
	return h.scratch, true
}

func (h *DocumentHost) Grid(zoneID string) document.Grid {
	zone, ok := h.doc.Zones[zoneID]
	if !ok || zone.Grid == nil {
		return document.Grid{}
	}
	grid := make(document.Grid, len(zone.Grid))
	for i, row := range zone.Grid {
		grid[i] = make([]*string, len(row))
		for j, cell := range row {
			if cell != nil {
				mark := *cell
				grid[i][j] = &mark
			}
		}
	}
	return grid
}

func (h *DocumentHost) AdvanceTurn() {
	if h.ended {
		return
	}
	if !h.rotated {
		h.doc.AdvanceTurn()
		h.rotated = true
	}
}

func (h *DocumentHost) RoundEnd(outcome string) {
	if h.ended {
		return
	}
	h.ended = true
	h.outcome = outcome
	h.doc.Result = outcome
}

// Outcome returns the outcome recorded by RoundEnd, if any.
func (h *DocumentHost) Outcome() (string, bool) {
	return h.outcome, h.ended
}
