package lobby

import "fmt"

// ErrLobbyFull is returned when a new player id is rejected because the
// roster is at capacity.
type ErrLobbyFull struct {
	LobbyID string
}

func (e *ErrLobbyFull) Error() string {
	return fmt.Sprintf("lobby %s is full", e.LobbyID)
}

func IsLobbyFull(err error) bool {
	_, ok := err.(*ErrLobbyFull)
	return ok
}

// ErrGameNotStarted is returned for verbs submitted while the lobby is
// still waiting for players.
type ErrGameNotStarted struct {
}

func (e *ErrGameNotStarted) Error() string {
	return "game has not started yet"
}

func IsGameNotStarted(err error) bool {
	_, ok := err.(*ErrGameNotStarted)
	return ok
}

// ErrNotInLobby is returned when leaving a lobby the player never joined.
type ErrNotInLobby struct {
	PlayerID string
}

func (e *ErrNotInLobby) Error() string {
	return fmt.Sprintf("player %s is not in the lobby", e.PlayerID)
}

func IsNotInLobby(err error) bool {
	_, ok := err.(*ErrNotInLobby)
	return ok
}
