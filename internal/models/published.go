package models

import (
	"time"

	"github.com/google/uuid"
)

// PublishedStatus tracks the lifecycle of a published content item. Approval
// always creates records as draft; going live is an editorial action outside
// the pipeline.
type PublishedStatus string

const (
	PublishedStatusDraft PublishedStatus = "draft"
	PublishedStatusLive  PublishedStatus = "live"
)

// PublishedRecord is the canonical content item, created exactly once inside
// the approve transaction.
type PublishedRecord struct {
	ID        uuid.UUID       `json:"id"`
	Title     string          `json:"title"`
	Slug      string          `json:"slug"`
	Category  Category        `json:"category"`
	BankID    *uuid.UUID      `json:"bank_id"`
	ExpiresAt *time.Time      `json:"expires_at"`
	Body      string          `json:"body"`
	Status    PublishedStatus `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}
