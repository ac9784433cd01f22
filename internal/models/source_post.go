package models

import (
	"time"

	"github.com/google/uuid"
)

// SourcePost is an imported tweet. It is immutable once created; the
// pipeline only flips Processed/Relevant after classification and never
// deletes it.
type SourcePost struct {
	ID           uuid.UUID `json:"id"`
	SourceURL    string    `json:"source_url"`
	SourceID     string    `json:"source_id"`
	Text         string    `json:"text"`
	AuthorHandle string    `json:"author_handle"`
	AuthorName   string    `json:"author_name"`
	PostedAt     time.Time `json:"posted_at"`
	Processed    bool      `json:"processed"`
	Relevant     *bool     `json:"relevant"`
	CreatedAt    time.Time `json:"created_at"`
}
