package repository

import (
	"context"

	"venture-idea-analyzer/internal/domain/model"
)

type IdeaRepository interface {
	Save(ctx context.Context, tx Tx, idea *model.Idea) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Idea, error)
}
