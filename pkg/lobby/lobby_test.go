package lobby

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/cbodonnell/gametable/pkg/bundle"
	"github.com/cbodonnell/gametable/pkg/messages"
	"github.com/cbodonnell/gametable/pkg/rules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedResult struct {
	LobbyID string
	GameID  string
	Outcome string
}

type fakeRecorder struct {
	ch chan recordedResult
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{
		ch: make(chan recordedResult, 8),
	}
}

func (r *fakeRecorder) RecordRoundResult(ctx context.Context, lobbyID string, gameID string, outcome string) error {
	r.ch <- recordedResult{LobbyID: lobbyID, GameID: gameID, Outcome: outcome}
	return nil
}

func (r *fakeRecorder) wait(t *testing.T) recordedResult {
	t.Helper()
	select {
	case result := <-r.ch:
		return result
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a recorded result")
		return recordedResult{}
	}
}

func newTestLobby(t *testing.T, recorder RoundRecorder) *Lobby {
	t.Helper()
	registry, err := bundle.Builtin()
	require.NoError(t, err)
	b, err := registry.Latest("tic-tac-toe")
	require.NoError(t, err)
	return NewLobby(NewLobbyOptions{
		ID:       "lobby-1",
		Bundle:   b,
		Recorder: recorder,
	})
}

type move struct {
	player string
	row    int
	col    int
}

func submit(t *testing.T, l *Lobby, m move) {
	t.Helper()
	diff, err := l.SubmitVerb(m.player, "place", map[string]interface{}{"row": m.row, "col": m.col})
	require.NoError(t, err)
	require.False(t, diff.Empty(), "move by %s at %d,%d was rejected", m.player, m.row, m.col)
}

func TestLobbyJoin(t *testing.T) {
	l := newTestLobby(t, nil)

	assert.False(t, l.Started())
	select {
	case <-l.StartedSignal():
		t.Fatal("started signal fired before the lobby filled")
	default:
	}

	require.NoError(t, l.Join("p1"))
	require.NoError(t, l.Join("p1")) // rejoining keeps the seat
	assert.Equal(t, []string{"p1"}, l.Players())
	assert.False(t, l.Started())

	require.NoError(t, l.Join("p2"))
	assert.True(t, l.Started())
	select {
	case <-l.StartedSignal():
	default:
		t.Fatal("started signal did not fire when the lobby filled")
	}

	err := l.Join("p3")
	require.Error(t, err)
	assert.True(t, IsLobbyFull(err))
	assert.Equal(t, []string{"p1", "p2"}, l.Players())
}

func TestLobbyLeave(t *testing.T) {
	l := newTestLobby(t, nil)
	require.NoError(t, l.Join("p1"))

	err := l.Leave("p2")
	require.Error(t, err)
	assert.True(t, IsNotInLobby(err))

	require.NoError(t, l.Leave("p1"))
	assert.Empty(t, l.Players())
}

func TestJoinBindsManifestSeats(t *testing.T) {
	l := newTestLobby(t, nil)
	require.NoError(t, l.Join("alice"))
	require.NoError(t, l.Join("guest_9f3a2b1c"))
	require.True(t, l.Started())

	doc := l.Snapshot()
	require.Len(t, doc.Players, 2)
	assert.Equal(t, "alice", doc.Players[0].ID)
	assert.Equal(t, "mark_x", doc.Players[0].Mark)
	assert.Equal(t, "guest_9f3a2b1c", doc.Players[1].ID)
	assert.Equal(t, "mark_o", doc.Players[1].Mark)
	assert.Equal(t, "alice", doc.Turn)

	// both joined ids can move; the turn alternates between them
	submit(t, l, move{"alice", 0, 0})
	assert.Equal(t, "guest_9f3a2b1c", l.Snapshot().Turn)
	submit(t, l, move{"guest_9f3a2b1c", 1, 1})
	assert.Equal(t, "alice", l.Snapshot().Turn)
}

func TestLeaveRestoresSeat(t *testing.T) {
	l := newTestLobby(t, nil)
	require.NoError(t, l.Join("alice"))
	require.NoError(t, l.Leave("alice"))

	doc := l.Snapshot()
	assert.Equal(t, "p1", doc.Players[0].ID)
	assert.Equal(t, "p1", doc.Turn)

	require.NoError(t, l.Join("bob"))
	doc = l.Snapshot()
	assert.Equal(t, "bob", doc.Players[0].ID)
	assert.Equal(t, "bob", doc.Turn)
}

func TestWinWithArbitraryPlayerIDs(t *testing.T) {
	recorder := newFakeRecorder()
	l := newTestLobby(t, recorder)
	require.NoError(t, l.Join("alice"))
	require.NoError(t, l.Join("bob"))

	moves := []move{
		{"alice", 0, 0},
		{"bob", 1, 0},
		{"alice", 0, 1},
		{"bob", 1, 1},
		{"alice", 0, 2}, // completes the top row
	}
	for _, m := range moves {
		submit(t, l, m)
	}

	assert.Equal(t, "alice", l.Snapshot().Result)
	result := recorder.wait(t)
	assert.Equal(t, "alice", result.Outcome)
}

func TestSubmitVerbBeforeStart(t *testing.T) {
	l := newTestLobby(t, nil)
	require.NoError(t, l.Join("p1"))

	_, err := l.SubmitVerb("p1", "place", map[string]interface{}{"row": 0, "col": 0})
	require.Error(t, err)
	assert.True(t, IsGameNotStarted(err))
}

func TestSubmitVerbUnknownAndIllegal(t *testing.T) {
	l := newTestLobby(t, nil)
	require.NoError(t, l.Join("p1"))
	require.NoError(t, l.Join("p2"))
	sub := l.Broadcaster().Subscribe()
	defer l.Broadcaster().Unsubscribe(sub)

	// unknown verb: empty diff, no error
	diff, err := l.SubmitVerb("p1", "castle", nil)
	require.NoError(t, err)
	assert.True(t, diff.Empty())

	// out of turn: empty diff, no error
	diff, err = l.SubmitVerb("p2", "place", map[string]interface{}{"row": 0, "col": 0})
	require.NoError(t, err)
	assert.True(t, diff.Empty())

	// neither published an event
	select {
	case payload := <-sub.C():
		t.Fatalf("unexpected broadcast: %s", payload)
	default:
	}
}

func TestSubmitVerbBroadcastsOrderedEvents(t *testing.T) {
	l := newTestLobby(t, nil)
	require.NoError(t, l.Join("p1"))
	require.NoError(t, l.Join("p2"))
	sub := l.Broadcaster().Subscribe()
	defer l.Broadcaster().Unsubscribe(sub)

	moves := []move{
		{"p1", 0, 0},
		{"p2", 1, 0},
		{"p1", 0, 1},
	}
	for _, m := range moves {
		submit(t, l, m)
	}

	for i := range moves {
		payload := <-sub.C()
		event := &messages.Event{}
		require.NoError(t, json.Unmarshal(payload, event))
		assert.Equal(t, messages.MessageTypeEvent, event.Type)
		assert.Equal(t, int64(i+1), event.T)
		assert.Equal(t, "place", event.Verb)
		require.Len(t, event.Diff, 2)
	}
}

func TestWin(t *testing.T) {
	recorder := newFakeRecorder()
	l := newTestLobby(t, recorder)
	require.NoError(t, l.Join("p1"))
	require.NoError(t, l.Join("p2"))
	sub := l.Broadcaster().Subscribe()
	defer l.Broadcaster().Unsubscribe(sub)

	moves := []move{
		{"p1", 0, 0},
		{"p2", 1, 0},
		{"p1", 0, 1},
		{"p2", 1, 1},
		{"p1", 0, 2}, // completes the top row
	}
	for _, m := range moves {
		submit(t, l, m)
	}

	doc := l.Snapshot()
	assert.Equal(t, "p1", doc.Result)

	// the final event carries the result op
	var last *messages.Event
	for i := 0; i < len(moves); i++ {
		payload := <-sub.C()
		last = &messages.Event{}
		require.NoError(t, json.Unmarshal(payload, last))
	}
	require.Len(t, last.Diff, 3)
	assert.Equal(t, "/result", last.Diff[2].Path)
	assert.Equal(t, "p1", last.Diff[2].Value)

	result := recorder.wait(t)
	assert.Equal(t, "lobby-1", result.LobbyID)
	assert.Equal(t, "tic-tac-toe", result.GameID)
	assert.Equal(t, "p1", result.Outcome)

	// the round is over, further verbs are rejected
	diff, err := l.SubmitVerb("p2", "place", map[string]interface{}{"row": 2, "col": 2})
	require.NoError(t, err)
	assert.True(t, diff.Empty())
}

func TestDraw(t *testing.T) {
	recorder := newFakeRecorder()
	l := newTestLobby(t, recorder)
	require.NoError(t, l.Join("p1"))
	require.NoError(t, l.Join("p2"))

	moves := []move{
		{"p1", 0, 0},
		{"p2", 0, 1},
		{"p1", 0, 2},
		{"p2", 1, 1},
		{"p1", 1, 0},
		{"p2", 1, 2},
		{"p1", 2, 1},
		{"p2", 2, 0},
		{"p1", 2, 2},
	}
	for _, m := range moves {
		submit(t, l, m)
	}

	doc := l.Snapshot()
	assert.Equal(t, rules.DrawOutcome, doc.Result)

	result := recorder.wait(t)
	assert.Equal(t, rules.DrawOutcome, result.Outcome)
}

func TestSnapshotIsACopy(t *testing.T) {
	l := newTestLobby(t, nil)
	require.NoError(t, l.Join("p1"))
	require.NoError(t, l.Join("p2"))

	snapshot := l.Snapshot()
	mark := "mark_o"
	snapshot.Zones["board"].Grid[0][0] = &mark

	fresh := l.Snapshot()
	assert.Nil(t, fresh.Zones["board"].Grid[0][0])
}

func TestBroadcasterDropsWhenMailboxFull(t *testing.T) {
	b := NewBroadcaster()
	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	for i := 0; i < SubscriberMailboxSize+10; i++ {
		b.Publish([]byte("frame"))
	}

	// the publisher never blocked; the mailbox holds at most its capacity
	assert.Len(t, sub.C(), SubscriberMailboxSize)
}

func TestBroadcasterUnsubscribeClosesChannel(t *testing.T) {
	b := NewBroadcaster()
	sub := b.Subscribe()
	require.Equal(t, 1, b.Len())

	b.Unsubscribe(sub)
	b.Unsubscribe(sub) // second call is a no-op

	_, ok := <-sub.C()
	assert.False(t, ok)
	assert.Equal(t, 0, b.Len())
}

func TestManager(t *testing.T) {
	registry, err := bundle.Builtin()
	require.NoError(t, err)
	m := NewManager(NewManagerOptions{Registry: registry})

	_, err = m.CreateLobby("chess")
	require.Error(t, err)
	assert.True(t, bundle.IsUnknownGame(err))

	l, err := m.CreateLobby("tic-tac-toe")
	require.NoError(t, err)
	require.NotEmpty(t, l.ID())

	got, ok := m.GetLobby(l.ID())
	require.True(t, ok)
	assert.Equal(t, l, got)

	require.NoError(t, l.Join("p1"))
	infos := m.ListLobbies()
	require.Len(t, infos, 1)
	assert.Equal(t, l.ID(), infos[0].ID)
	assert.Equal(t, "tic-tac-toe", infos[0].GameID)
	assert.Equal(t, []string{"p1"}, infos[0].Players)
	assert.False(t, infos[0].Started)

	m.RemoveLobby(l.ID())
	_, ok = m.GetLobby(l.ID())
	assert.False(t, ok)
}
