package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/cbodonnell/gametable/pkg/log"
	"github.com/cbodonnell/gametable/pkg/repositories/models"
	"github.com/jackc/pgx/v5"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS round_results (
	id BIGSERIAL PRIMARY KEY,
	lobby_id TEXT NOT NULL,
	game_id TEXT NOT NULL,
	outcome TEXT NOT NULL,
	finished_at BIGINT NOT NULL
);
`

type PostgresRepository struct {
	conn *pgx.Conn
}

// NewPostgresRepository connects to the database at connStr and ensures
// the schema exists. The caller is responsible for calling Close() on the
// repository.
func NewPostgresRepository(ctx context.Context, connStr string) (Repository, error) {
	conn, err := pgx.Connect(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %v", err)
	}

	var username string
	var database string
	if err := conn.QueryRow(ctx, "SELECT current_user, current_database()").Scan(&username, &database); err != nil {
		return nil, fmt.Errorf("failed to query database: %v", err)
	}
	log.Info("Connected to %s as %s", database, username)

	if _, err := conn.Exec(ctx, postgresSchema); err != nil {
		return nil, fmt.Errorf("failed to apply schema: %v", err)
	}

	return &PostgresRepository{
		conn: conn,
	}, nil
}

func (r *PostgresRepository) Close(ctx context.Context) error {
	return r.conn.Close(ctx)
}

func (r *PostgresRepository) RecordRoundResult(ctx context.Context, lobbyID string, gameID string, outcome string) error {
	q := `
	INSERT INTO round_results (lobby_id, game_id, outcome, finished_at) VALUES ($1, $2, $3, $4);
	`
	if _, err := r.conn.Exec(ctx, q, lobbyID, gameID, outcome, time.Now().UnixMilli()); err != nil {
		return fmt.Errorf("failed to insert round result: %v", err)
	}
	return nil
}

func (r *PostgresRepository) ListRoundResults(ctx context.Context, limit int) ([]models.RoundResult, error) {
	q := `
	SELECT id, lobby_id, game_id, outcome, finished_at FROM round_results ORDER BY id DESC LIMIT $1;
	`
	rows, err := r.conn.Query(ctx, q, limit)
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
