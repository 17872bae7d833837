package models

import (
	"time"

	"github.com/google/uuid"
)

// Collection groups documents for cross-paper analysis
type Collection struct {
	ID          uuid.UUID   `json:"id"`
	SessionID   string      `json:"session_id"`
	Name        string      `json:"name"`
	DocumentIDs []uuid.UUID `json:"document_ids"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}
