package repositories

import (
	"context"

	"github.com/cbodonnell/gametable/pkg/repositories/models"
)

type Repository interface {
	Close(ctx context.Context) error
	RecordRoundResult(ctx context.Context, lobbyID string, gameID string, outcome string) error
	ListRoundResults(ctx context.Context, limit int) ([]models.RoundResult, error)
}
