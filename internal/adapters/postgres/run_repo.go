package postgres

import (
	"context"

	"github.com/aitzol/tilescout/internal/core/domain"
)

// RunRepo implements ports.RunRepository.
type RunRepo struct {
	db *DB
}

func NewRunRepo(db *DB) *RunRepo {
	return &RunRepo{db: db}
}

func (r *RunRepo) Record(ctx context.Context, run *domain.Run) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO runs (id, kind, collection_id, tile_count, failed_count, detections, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, run.ID, string(run.Kind), run.CollectionID, run.TileCount, run.FailedCount, run.Detections, run.CreatedAt)
	return err
}

func (r *RunRepo) List(ctx context.Context, kind domain.RunKind, limit, offset int) ([]domain.Run, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, kind, COALESCE(collection_id, ''), tile_count, failed_count, detections, created_at
		FROM runs
		WHERE ($1 = '' OR kind = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, string(kind), limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []domain.Run
	for rows.Next() {
		var run domain.Run
		var kindVal string
		if err := rows.Scan(&run.ID, &kindVal, &run.CollectionID, &run.TileCount,
			&run.FailedCount, &run.Detections, &run.CreatedAt); err != nil {
			return nil, err
		}
		run.Kind = domain.RunKind(kindVal)
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
