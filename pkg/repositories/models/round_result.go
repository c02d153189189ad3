package models

type RoundResult struct {
	ID         int64  `json:"id"`
	LobbyID    string `json:"lobby_id"`
	GameID     string `json:"game_id"`
	Outcome    string `json:"outcome"`
	FinishedAt int64  `json:"finished_at"`
}
