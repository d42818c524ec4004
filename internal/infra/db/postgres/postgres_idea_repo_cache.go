// File: internal/infra/db/postgres/postgres_idea_repo_cache.go
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"venture-idea-analyzer/internal/domain/model"
	"venture-idea-analyzer/internal/domain/ports/repository"
	red "venture-idea-analyzer/internal/infra/redis"
)

var _ repository.IdeaRepository = (*CachedIdeaRepo)(nil)

// CachedIdeaRepo is a read-through cache over the idea repository.
// Idea content is immutable after submission, so staleness is not a
// concern; the TTL only bounds memory.
type CachedIdeaRepo struct {
	inner repository.IdeaRepository
	cache red.RedisClient
	ttl   time.Duration
}

func NewCachedIdeaRepo(inner repository.IdeaRepository, cache red.RedisClient, ttl time.Duration) *CachedIdeaRepo {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &CachedIdeaRepo{inner: inner, cache: cache, ttl: ttl}
}

func ideaCacheKey(id string) string { return fmt.Sprintf("idea:%s", id) }

func (r *CachedIdeaRepo) Save(ctx context.Context, tx repository.Tx, idea *model.Idea) error {
	if err := r.inner.Save(ctx, tx, idea); err != nil {
		return err
	}
	if raw, err := json.Marshal(idea); err == nil {
		_ = r.cache.Set(ctx, ideaCacheKey(idea.ID), raw, r.ttl)
	}
	return nil
}

func (r *CachedIdeaRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Idea, error) {
	// Cache reads only apply on the non-transactional path; a tx caller
	// wants repeatable reads from the database.
	if tx == nil {
		if raw, err := r.cache.Get(ctx, ideaCacheKey(id)); err == nil && raw != "" {
			var idea model.Idea
			if jerr := json.Unmarshal([]byte(raw), &idea); jerr == nil {
				return &idea, nil
			}
		}
	}

	idea, err := r.inner.FindByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if raw, merr := json.Marshal(idea); merr == nil {
		_ = r.cache.Set(ctx, ideaCacheKey(id), raw, r.ttl)
	}
	return idea, nil
}
