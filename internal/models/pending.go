package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// PendingRecord is the work-in-progress classification result awaiting human
// review. Exactly one exists per successfully classified SourcePost;
// reprocessing overwrites it in place.
type PendingRecord struct {
	ID                uuid.UUID       `json:"id"`
	SourcePostID      uuid.UUID       `json:"source_post_id"`
	Category          Category        `json:"category"`
	Fields            json.RawMessage `json:"fields"`
	FieldConfidence   map[string]int  `json:"field_confidence"`
	OverallConfidence int             `json:"overall_confidence"`
	Status            Status          `json:"status"`
	ReviewerNotes     string          `json:"reviewer_notes"`
	BankID            *uuid.UUID      `json:"bank_id"`
	BankName          string          `json:"bank_name"`
	PublishedRecordID *uuid.UUID      `json:"published_record_id"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// DecodeFields parses the stored field bag into its typed per-category
// variant.
func (p *PendingRecord) DecodeFields() (FieldSet, error) {
	return DecodeFields(p.Category, p.Fields)
}

// AppendNote adds a line to the reviewer notes, preserving earlier history.
func (p *PendingRecord) AppendNote(note string) {
	if note == "" {
		return
	}
	if p.ReviewerNotes != "" {
		p.ReviewerNotes += "\n"
	}
	p.ReviewerNotes += note
}
