package lobby

import (
	"sort"
	"sync"

	"github.com/cbodonnell/gametable/pkg/bundle"
	"github.com/cbodonnell/gametable/pkg/log"
	"github.com/google/uuid"
)

// LobbyInfo is the listing view of a lobby.
type LobbyInfo struct {
	ID      string   `json:"id"`
	GameID  string   `json:"gameId"`
	Players []string `json:"players"`
	Started bool     `json:"started"`
}

// Manager owns the set of live lobbies.
type Manager struct {
	registry *bundle.Registry
	recorder RoundRecorder

	lobbiesMutex sync.RWMutex
	lobbies      map[string]*Lobby
}

type NewManagerOptions struct {
	Registry *bundle.Registry
	Recorder RoundRecorder
}

func NewManager(opts NewManagerOptions) *Manager {
	return &Manager{
		registry: opts.Registry,
		recorder: opts.Recorder,
		lobbies:  make(map[string]*Lobby),
	}
}

// CreateLobby creates a lobby running the latest bundle for gameID.
func (m *Manager) CreateLobby(gameID string) (*Lobby, error) {
	b, err := m.registry.Latest(gameID)
	if err != nil {
		return nil, err
	}
	l := NewLobby(NewLobbyOptions{
		ID:       uuid.NewString(),
		Bundle:   b,
		Recorder: m.recorder,
	})
	m.lobbiesMutex.Lock()
	defer m.lobbiesMutex.Unlock()
	m.lobbies[l.ID()] = l
	log.Info("Created lobby %s for game %s", l.ID(), gameID)
	return l, nil
}

func (m *Manager) GetLobby(id string) (*Lobby, bool) {
	m.lobbiesMutex.RLock()
	defer m.lobbiesMutex.RUnlock()
	l, ok := m.lobbies[id]
	return l, ok
}

func (m *Manager) RemoveLobby(id string) {
	m.lobbiesMutex.Lock()
	defer m.lobbiesMutex.Unlock()
	delete(m.lobbies, id)
}

func (m *Manager) ListLobbies() []LobbyInfo {
	m.lobbiesMutex.RLock()
	defer m.lobbiesMutex.RUnlock()
	infos := make([]LobbyInfo, 0, len(m.lobbies))
	for _, l := range m.lobbies {
		infos = append(infos, LobbyInfo{
			ID:      l.ID(),
			GameID:  l.GameID(),
			Players: l.Players(),
			Started: l.Started(),
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].ID < infos[j].ID
	})
	return infos
}
