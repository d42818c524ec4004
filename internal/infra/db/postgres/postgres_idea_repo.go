// File: internal/infra/db/postgres/postgres_idea_repo.go
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"venture-idea-analyzer/internal/domain/model"
	"venture-idea-analyzer/internal/domain/ports/repository"
)

var _ repository.IdeaRepository = (*IdeaRepo)(nil)

type IdeaRepo struct {
	pool *pgxpool.Pool
}

func NewIdeaRepo(pool *pgxpool.Pool) *IdeaRepo {
	return &IdeaRepo{pool: pool}
}

func (r *IdeaRepo) Save(ctx context.Context, tx repository.Tx, idea *model.Idea) error {
	if idea.CreatedAt.IsZero() {
		idea.CreatedAt = time.Now()
	}
	meta, err := json.Marshal(idea.Metadata)
	if err != nil {
		return fmt.Errorf("encode idea metadata: %w", err)
	}

	const q = `
INSERT INTO ideas (id, content, metadata, created_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO UPDATE SET
  content = EXCLUDED.content,
  metadata = EXCLUDED.metadata;`

	if _, err := execSQL(ctx, r.pool, tx, q, idea.ID, idea.Content, meta, idea.CreatedAt); err != nil {
		return fmt.Errorf("save idea: %w", err)
	}
	return nil
}

func (r *IdeaRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Idea, error) {
	const q = `SELECT id, content, metadata, created_at FROM ideas WHERE id = $1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}

	var idea model.Idea
	var meta []byte
	if err := row.Scan(&idea.ID, &idea.Content, &meta, &idea.CreatedAt); err != nil {
		return nil, translateScan(err)
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &idea.Metadata); err != nil {
			return nil, fmt.Errorf("decode idea metadata: %w", err)
		}
	}
	return &idea, nil
}
