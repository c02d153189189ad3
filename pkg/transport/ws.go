// Package transport runs the per-connection websocket loops for a lobby:
// forwarding broadcast frames, keepalive probing, and reading client
// commands.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cbodonnell/gametable/pkg/lobby"
	"github.com/cbodonnell/gametable/pkg/log"
	"github.com/cbodonnell/gametable/pkg/messages"
	"nhooyr.io/websocket"
)

const (
	// writeTimeout bounds every outbound frame so one stuck connection
	// cannot wedge its writer.
	writeTimeout = 5 * time.Second
	// pingInterval is how often the keepalive loop probes the peer.
	pingInterval = 15 * time.Second
	// maxPingFailures is the number of consecutive failed probes before
	// the connection is considered dead.
	maxPingFailures = 3
)

// connWriter serializes writes to a websocket connection. The forward and
// keepalive loops share one connection, and frames must not interleave.
type connWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *connWriter) writeRaw(ctx context.Context, payload []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return w.conn.Write(ctx, websocket.MessageText, payload)
}

func (w *connWriter) writeJSON(ctx context.Context, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %v", err)
	}
	return w.writeRaw(ctx, payload)
}

// Serve runs the connection loops for one player on one lobby until the
// peer disconnects, the keepalive gives up, or ctx is canceled. The
// caller is responsible for having joined the player to the lobby and for
// closing the websocket afterwards.
func Serve(ctx context.Context, conn *websocket.Conn, lob *lobby.Lobby, playerID string) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := &connWriter{conn: conn}

	// Subscribe before the first snapshot so no event published in
	// between is missed. Events landing in that window are forwarded even
	// though the snapshot already reflects them; replaying them is
	// harmless because every op carries an absolute value.
	sub := lob.Broadcaster().Subscribe()
	defer lob.Broadcaster().Unsubscribe(sub)

	attached := lob.Started()
	if attached {
		if err := sendAttach(ctx, w, lob); err != nil {
			log.Error("Failed to send welcome to player %s: %v", playerID, err)
			return
		}
	} else {
		if err := w.writeJSON(ctx, messages.NewInfo("Waiting for another player to join...")); err != nil {
			log.Error("Failed to send info to player %s: %v", playerID, err)
			return
		}
	}

	wg := &sync.WaitGroup{}
	wg.Add(2)
	go func() {
		defer wg.Done()
		defer cancel()
		forwardLoop(ctx, w, lob, sub, playerID, attached)
	}()
	go func() {
		defer wg.Done()
		defer cancel()
		keepaliveLoop(ctx, w, conn, playerID)
	}()

	readLoop(ctx, w, conn, lob, playerID)
	cancel()
	wg.Wait()
}

func sendAttach(ctx context.Context, w *connWriter, lob *lobby.Lobby) error {
	snapshot, err := json.Marshal(lob.Snapshot())
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %v", err)
	}
	if err := w.writeJSON(ctx, messages.NewWelcome(lob.Bundle().Meta(), snapshot)); err != nil {
		return fmt.Errorf("failed to write welcome: %v", err)
	}
	if err := w.writeJSON(ctx, messages.NewLegalMoves(lob.Bundle().LegalVerbs())); err != nil {
		return fmt.Errorf("failed to write legal moves: %v", err)
	}
	return nil
}

// forwardLoop delivers broadcast frames to this connection. If the lobby
// has not started yet it first waits for the started signal and sends the
// welcome pair.
func forwardLoop(ctx context.Context, w *connWriter, lob *lobby.Lobby, sub *lobby.Subscriber, playerID string, attached bool) {
	if !attached {
		select {
		case <-ctx.Done():
			return
		case <-lob.StartedSignal():
			if err := sendAttach(ctx, w, lob); err != nil {
				log.Error("Failed to send welcome to player %s: %v", playerID, err)
				return
			}
		}
	}
	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-sub.C():
			if !ok {
				return
			}
			if err := w.writeRaw(ctx, payload); err != nil {
				log.Debug("Failed to forward frame to player %s: %v", playerID, err)
				return
			}
		}
	}
}

// keepaliveLoop probes the peer on a fixed interval and gives up after
// maxPingFailures consecutive failures.
func keepaliveLoop(ctx context.Context, w *connWriter, conn *websocket.Conn, playerID string) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := ping(ctx, w, conn); err != nil {
				failures++
				log.Debug("Ping to player %s failed (%d/%d): %v", playerID, failures, maxPingFailures, err)
				if failures >= maxPingFailures {
					log.Warn("Player %s missed %d pings, closing connection", playerID, maxPingFailures)
					return
				}
				continue
			}
			failures = 0
		}
	}
}

func ping(ctx context.Context, w *connWriter, conn *websocket.Conn) error {
	pingCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := conn.Ping(pingCtx); err != nil {
		return err
	}
	return w.writeJSON(ctx, messages.NewPing(time.Now().UnixMilli()))
}

// readLoop consumes inbound frames until the connection fails or ctx is
// canceled. Malformed frames are logged and skipped; only transport
// errors end the loop.
func readLoop(ctx context.Context, w *connWriter, conn *websocket.Conn, lob *lobby.Lobby, playerID string) {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			log.Debug("Read from player %s ended: %v", playerID, err)
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		cmd, err := messages.DecodeClientCommand(data)
		if err != nil {
			log.Debug("Malformed frame from player %s: %v", playerID, err)
			continue
		}
		switch cmd.Type {
		case messages.MessageTypePong:
			// Liveness is judged by write failures, not pong latency.
		case messages.MessageTypeSnapshot:
			if err := sendAttach(ctx, w, lob); err != nil {
				log.Error("Failed to resync player %s: %v", playerID, err)
				return
			}
		default:
			if cmd.Verb == "" {
				continue
			}
			if _, err := lob.SubmitVerb(playerID, cmd.Verb, cmd.Args); err != nil {
				if writeErr := w.writeJSON(ctx, messages.NewError(err.Error())); writeErr != nil {
					log.Debug("Failed to write error to player %s: %v", playerID, writeErr)
					return
				}
			}
		}
	}
}
