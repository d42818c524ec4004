package model

import "time"

// Idea is the raw submitted input an analysis job is created from.
type Idea struct {
	ID        string
	Content   string
	Metadata  map[string]string
	CreatedAt time.Time
}
