package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cbodonnell/gametable/pkg/repositories/models"
	_ "github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS round_results (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	lobby_id TEXT NOT NULL,
	game_id TEXT NOT NULL,
	outcome TEXT NOT NULL,
	finished_at INTEGER NOT NULL
);
`

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(ctx context.Context, path string) (Repository, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		return nil, fmt.Errorf("failed to apply schema: %v", err)
	}

	return &SQLiteRepository{
		db: db,
	}, nil
}

func (r *SQLiteRepository) Close(ctx context.Context) error {
	return r.db.Close()
}

func (r *SQLiteRepository) RecordRoundResult(ctx context.Context, lobbyID string, gameID string, outcome string) error {
	q := `
	INSERT INTO round_results (lobby_id, game_id, outcome, finished_at) VALUES (?, ?, ?, ?);
	`
	if _, err := r.db.ExecContext(ctx, q, lobbyID, gameID, outcome, time.Now().UnixMilli()); err != nil {
		return fmt.Errorf("failed to insert round result: %v", err)
	}
	return nil
}

func (r *SQLiteRepository) ListRoundResults(ctx context.Context, limit int) ([]models.RoundResult, error) {
	q := `
	SELECT id, lobby_id, game_id, outcome, finished_at FROM round_results ORDER BY id DESC LIMIT ?;
	`
	rows, err := r.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query round results: %v", err)
	}
	defer rows.Close()

	results := make([]models.RoundResult, 0)
	for rows.Next() {
		var result models.RoundResult
		if err := rows.Scan(&result.ID, &result.LobbyID, &result.GameID, &result.Outcome, &result.FinishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan round result: %v", err)
		}
		results = append(results, result)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate round results: %v", err)
	}

	return results, nil
}
