//go:build integration

package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"venture-idea-analyzer/internal/domain"
	"venture-idea-analyzer/internal/domain/model"
)

func TestIdeaRepo_SaveAndFind(t *testing.T) {
	cleanup(t)
	ctx := context.Background()
	repo := NewIdeaRepo(testPool)

	idea := &model.Idea{
		ID:       uuid.NewString(),
		Content:  "an app that matches dog walkers with owners",
		Metadata: map[string]string{"source": "web", "locale": "en"},
	}
	if err := repo.Save(ctx, nil, idea); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := repo.FindByID(ctx, nil, idea.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.Content != idea.Content {
		t.Errorf("content = %q", got.Content)
	}
	if got.Metadata["source"] != "web" || got.Metadata["locale"] != "en" {
		t.Errorf("metadata = %+v", got.Metadata)
	}
	if got.CreatedAt.IsZero() {
		t.Error("created_at not persisted")
	}

	if _, err := repo.FindByID(ctx, nil, uuid.NewString()); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("unknown id err = %v, want ErrNotFound", err)
	}
}
