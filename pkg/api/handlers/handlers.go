package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cbodonnell/gametable/pkg/bundle"
	"github.com/cbodonnell/gametable/pkg/lobby"
	"github.com/cbodonnell/gametable/pkg/log"
	"github.com/cbodonnell/gametable/pkg/messages"
	"github.com/cbodonnell/gametable/pkg/repositories"
	"github.com/cbodonnell/gametable/pkg/transport"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"nhooyr.io/websocket"
)

const defaultResultsLimit = 50

func HandleListGames(registry *bundle.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(registry.List()); err != nil {
			log.Error("failed to encode games: %v", err)
			http.Error(w, "Failed to encode games", http.StatusInternalServerError)
			return
		}
	}
}

type createLobbyRequest struct {
	GameID string `json:"gameId"`
}

func HandleCreateLobby(manager *lobby.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := &createLobbyRequest{}
		if err := json.NewDecoder(r.Body).Decode(req); err != nil {
			http.Error(w, "Failed to decode request body", http.StatusBadRequest)
			return
		}
		if req.GameID == "" {
			http.Error(w, "gameId is required", http.StatusBadRequest)
			return
		}

		l, err := manager.CreateLobby(req.GameID)
		if err != nil {
			if bundle.IsUnknownGame(err) {
				http.Error(w, fmt.Sprintf("Unknown game %s", req.GameID), http.StatusBadRequest)
				return
			}
			log.Error("failed to create lobby: %v", err)
			http.Error(w, "Failed to create lobby", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		if err := json.NewEncoder(w).Encode(lobby.LobbyInfo{
			ID:      l.ID(),
			GameID:  l.GameID(),
			Players: l.Players(),
			Started: l.Started(),
		}); err != nil {
			log.Error("failed to encode lobby: %v", err)
		}
	}
}

func HandleListLobbies(manager *lobby.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(manager.ListLobbies()); err != nil {
			log.Error("failed to encode lobbies: %v", err)
			http.Error(w, "Failed to encode lobbies", http.StatusInternalServerError)
			return
		}
	}
}

func HandleListResults(repository repositories.Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := defaultResultsLimit
		if v := r.URL.Query().Get("limit"); v != "" {
			parsed, err := strconv.Atoi(v)
			if err != nil || parsed < 1 {
				http.Error(w, "Invalid limit", http.StatusBadRequest)
				return
			}
			limit = parsed
		}

		results, err := repository.ListRoundResults(r.Context(), limit)
		if err != nil {
			log.Error("failed to list round results: %v", err)
			http.Error(w, "Failed to list round results", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(results); err != nil {
			log.Error("failed to encode round results: %v", err)
			http.Error(w, "Failed to encode round results", http.StatusInternalServerError)
			return
		}
	}
}

// HandleLobbyWebSocket upgrades the request and runs the connection loops
// for one player. A full lobby is reported with an error frame before the
// connection is closed, so the client sees why it was turned away.
func HandleLobbyWebSocket(manager *lobby.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lobbyID := mux.Vars(r)["lobbyID"]
		l, ok := manager.GetLobby(lobbyID)
		if !ok {
			http.Error(w, "Lobby not found", http.StatusNotFound)
			return
		}

		playerID := r.URL.Query().Get("player_id")
		if playerID == "" {
			playerID = guestID()
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: []string{"*"},
		})
		if err != nil {
			log.Error("failed to accept websocket connection: %v", err)
			return
		}
		defer conn.CloseNow()

		if err := l.Join(playerID); err != nil {
			writeErrorFrame(r, conn, err.Error())
			conn.Close(websocket.StatusPolicyViolation, "lobby is full")
			return
		}

		transport.Serve(r.Context(), conn, l, playerID)
		conn.Close(websocket.StatusNormalClosure, "")
	}
}

func guestID() string {
	return "guest_" + strings.Split(uuid.NewString(), "-")[0]
}

func writeErrorFrame(r *http.Request, conn *websocket.Conn, message string) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	payload, err := json.Marshal(messages.NewError(message))
	if err != nil {
		log.Error("failed to marshal error frame: %v", err)
		return
	}
	if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
		log.Debug("failed to write error frame: %v", err)
	}
}
