package models

import "github.com/google/uuid"

// Bank is a canonical organization registry entry. The pipeline only reads
// these; CRUD lives elsewhere.
type Bank struct {
	ID      uuid.UUID `json:"id"`
	Name    string    `json:"name"`
	Slug    string    `json:"slug"`
	Aliases []string  `json:"aliases"`
}
