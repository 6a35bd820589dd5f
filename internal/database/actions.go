package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vicr123/entertaining-server/internal/models"
)

// InsertBoardActions writes a batch in one transaction. Replayed records are skipped.
func InsertBoardActions(ctx context.Context, pool *pgxpool.Pool, actions []models.BoardAction) error {
	if len(actions) == 0 {
		return nil
	}

	q := `
		INSERT INTO board_actions (game_id, action_index, actor_user_id, action_type, tile, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (game_id, action_index) DO NOTHING
	`
	return pgx.BeginTxFunc(ctx, pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, a := range actions {
			batch.Queue(q, a.GameID, a.ActionIndex, a.ActorUserID, a.ActionType, a.Tile, time.UnixMilli(a.Timestamp))
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to insert board actions: %w", err)
		}
		return nil
	})
}

// CountBoardActions returns how many actions have been stored for a game.
func CountBoardActions(ctx context.Context, pool *pgxpool.Pool, gameID string) (int, error) {
	var n int
	err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM board_actions WHERE game_id = $1`, gameID).Scan(&n)
	return n, err
}
