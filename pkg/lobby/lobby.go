package lobby

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/cbodonnell/gametable/pkg/bundle"
	"github.com/cbodonnell/gametable/pkg/document"
	"github.com/cbodonnell/gametable/pkg/engine"
	"github.com/cbodonnell/gametable/pkg/log"
	"github.com/cbodonnell/gametable/pkg/messages"
	"github.com/cbodonnell/gametable/pkg/patch"
	"github.com/cbodonnell/gametable/pkg/rules"
)

const recordTimeout = 5 * time.Second

// RoundRecorder persists finished round outcomes. Implementations must be
// safe for concurrent use.
type RoundRecorder interface {
	RecordRoundResult(ctx context.Context, lobbyID string, gameID string, outcome string) error
}

// seat is one roster slot declared by the manifest. id is the manifest's
// seat id and never changes; player is the joined id currently bound to
// the seat, empty while unclaimed.
type seat struct {
	id     string
	player string
}

// Lobby hosts a single game session: a roster of players, the shared
// state document, and a broadcast stream of events derived from it.
//
// The roster and the state document are guarded by independent locks, so
// joins and leaves never contend with verb processing. Seat binding
// acquires stateMu while holding rosterMu; no path takes them in the
// reverse order.
type Lobby struct {
	id       string
	bundle   *bundle.Bundle
	recorder RoundRecorder

	stateMu  sync.Mutex
	doc      *document.Document
	eventSeq int64

	rosterMu sync.Mutex
	seats    []seat
	started  bool
	startedC chan struct{}

	broadcaster *Broadcaster
}

type NewLobbyOptions struct {
	ID       string
	Bundle   *bundle.Bundle
	Recorder RoundRecorder
}

func NewLobby(opts NewLobbyOptions) *Lobby {
	seats := make([]seat, 0, len(opts.Bundle.Manifest.Players))
	for _, player := range opts.Bundle.Manifest.Players {
		seats = append(seats, seat{id: player.ID})
	}
	return &Lobby{
		id:          opts.ID,
		bundle:      opts.Bundle,
		recorder:    opts.Recorder,
		doc:         opts.Bundle.InitialState(),
		seats:       seats,
		startedC:    make(chan struct{}),
		broadcaster: NewBroadcaster(),
	}
}

func (l *Lobby) ID() string {
	return l.id
}

func (l *Lobby) GameID() string {
	return l.bundle.GameID()
}

func (l *Lobby) Bundle() *bundle.Bundle {
	return l.bundle
}

func (l *Lobby) Capacity() int {
	return l.bundle.Capacity()
}

func (l *Lobby) Broadcaster() *Broadcaster {
	return l.broadcaster
}

// Join binds playerID to the first free manifest seat, taking over the
// seat's id in the state document so turn checks and outcomes name the
// joined player. Joining again with the same id is a no-op, so a
// reconnecting player keeps its seat. When every seat is bound the lobby
// transitions to started, exactly once.
func (l *Lobby) Join(playerID string) error {
	l.rosterMu.Lock()
	defer l.rosterMu.Unlock()
	for _, s := range l.seats {
		if s.player == playerID {
			log.Debug("Player %s rejoined lobby %s", playerID, l.id)
			return nil
		}
	}
	idx := -1
	for i, s := range l.seats {
		if s.player == "" {
			idx = i
			break
		}
	}
	if idx == -1 {
		return &ErrLobbyFull{LobbyID: l.id}
	}
	l.seats[idx].player = playerID
	l.bindSeat(idx, playerID)
	log.Info("Player %s joined lobby %s (%d/%d)", playerID, l.id, l.boundSeats(), len(l.seats))
	if l.boundSeats() == len(l.seats) && !l.started {
		l.started = true
		close(l.startedC)
		log.Info("Lobby %s started", l.id)
	}
	return nil
}

// Leave frees playerID's seat, restoring the manifest's seat id in the
// document so another player can claim it. A started lobby stays started.
func (l *Lobby) Leave(playerID string) error {
	l.rosterMu.Lock()
	defer l.rosterMu.Unlock()
	for i := range l.seats {
		if l.seats[i].player == playerID {
			l.seats[i].player = ""
			l.bindSeat(i, l.seats[i].id)
			log.Info("Player %s left lobby %s", playerID, l.id)
			return nil
		}
	}
	return &ErrNotInLobby{PlayerID: playerID}
}

// bindSeat rewrites the i-th document player's id, carrying the turn
// pointer along if it named the seat's previous occupant. Called with
// rosterMu held.
func (l *Lobby) bindSeat(i int, playerID string) {
	l.stateMu.Lock()
	defer l.stateMu.Unlock()
	if i >= len(l.doc.Players) {
		return
	}
	prev := l.doc.Players[i].ID
	l.doc.Players[i].ID = playerID
	if l.doc.Turn == prev {
		l.doc.Turn = playerID
	}
}

func (l *Lobby) boundSeats() int {
	count := 0
	for _, s := range l.seats {
		if s.player != "" {
			count++
		}
	}
	return count
}

func (l *Lobby) Started() bool {
	l.rosterMu.Lock()
	defer l.rosterMu.Unlock()
	return l.started
}

// StartedSignal returns a channel that is closed when the lobby
// transitions from waiting to started.
func (l *Lobby) StartedSignal() <-chan struct{} {
	return l.startedC
}

// Players returns the joined player ids in seat order.
func (l *Lobby) Players() []string {
	l.rosterMu.Lock()
	defer l.rosterMu.Unlock()
	players := make([]string, 0, len(l.seats))
	for _, s := range l.seats {
		if s.player != "" {
			players = append(players, s.player)
		}
	}
	return players
}

// Snapshot returns a deep copy of the current state document.
func (l *Lobby) Snapshot() *document.Document {
	l.stateMu.Lock()
	defer l.stateMu.Unlock()
	return l.doc.Clone()
}

// SubmitVerb runs a player's verb against the state document. An illegal
// or unknown verb yields an empty diff and a nil error; only submitting
// before the lobby has started is reported as an error. On a legal verb
// the resulting diff is broadcast to all subscribers before returning.
func (l *Lobby) SubmitVerb(playerID string, name string, args map[string]interface{}) (patch.Diff, error) {
	if !l.Started() {
		return nil, &ErrGameNotStarted{}
	}
	spec, ok := l.bundle.Verb(name)
	if !ok {
		log.Debug("Player %s submitted unknown verb %s in lobby %s", playerID, name, l.id)
		return nil, nil
	}
	verb := engine.Verb{
		Name: name,
		Kind: spec.Kind,
		Zone: spec.Zone,
		Args: args,
	}

	l.stateMu.Lock()
	prev := l.doc.Clone()
	diff := engine.ApplyVerb(l.doc, playerID, verb)
	var outcome string
	if !diff.Empty() {
		diff, outcome = l.runHooks(prev, playerID, verb, diff)
	}
	if !diff.Empty() {
		l.eventSeq++
		event := messages.NewEvent(l.eventSeq, name, diff)
		payload, err := json.Marshal(event)
		if err != nil {
			log.Error("Failed to marshal event for lobby %s: %v", l.id, err)
		} else {
			// Published under the state lock so subscribers observe
			// diffs in the order they were produced.
			l.broadcaster.Publish(payload)
		}
	}
	l.stateMu.Unlock()

	if outcome != "" {
		log.Info("Round over in lobby %s: %s", l.id, outcome)
		l.recordOutcome(outcome)
	}
	return diff, nil
}

// runHooks invokes the bundle's declared hooks against the freshly
// mutated document. A hook fault rolls the document back to prev and
// voids the verb. When a hook ends the round, the result is appended to
// the diff and returned as the outcome.
func (l *Lobby) runHooks(prev *document.Document, playerID string, verb engine.Verb, diff patch.Diff) (patch.Diff, string) {
	for _, hook := range l.bundle.Manifest.Hooks {
		host := rules.NewDocumentHost(l.doc, true)
		payload, err := json.Marshal(map[string]interface{}{
			"verb":   verb.Name,
			"player": playerID,
			"args":   verb.Args,
		})
		if err != nil {
			log.Error("Failed to marshal hook command for lobby %s: %v", l.id, err)
			continue
		}
		if err := l.bundle.Module.Invoke(hook, host, payload); err != nil {
			log.Error("Rule module %s fault in %s: %v", l.bundle.GameID(), hook, err)
			*l.doc = *prev
			return patch.Diff{}, ""
		}
		for _, emitted := range host.Emitted() {
			log.Debug("Rule module %s emitted: %s", l.bundle.GameID(), string(emitted))
		}
		if out, ok := host.Outcome(); ok {
			diff = append(diff, patch.Op{
				Op:    patch.OpAdd,
				Path:  patch.Pointer("result"),
				Value: out,
			})
			return diff, out
		}
	}
	return diff, ""
}

func (l *Lobby) recordOutcome(outcome string) {
	if l.recorder == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		defer cancel()
		if err := l.recorder.RecordRoundResult(ctx, l.id, l.bundle.GameID(), outcome); err != nil {
			log.Error("Failed to record round result for lobby %s: %v", l.id, err)
		}
	}()
}
