package models

import (
	"time"

	"github.com/google/uuid"
)

// DocumentStatus represents the processing status of a document
type DocumentStatus string

const (
	DocumentUnprocessed DocumentStatus = "unprocessed"
	DocumentProcessed   DocumentStatus = "processed"
	DocumentRejected    DocumentStatus = "rejected"
)

// Document represents an uploaded research paper and its extracted text
type Document struct {
	ID              uuid.UUID      `json:"id"`
	SessionID       string         `json:"session_id"`
	Filename        string         `json:"filename"`
	StoragePath     *string        `json:"storage_path,omitempty"`
	ContentHash     string         `json:"content_hash"`
	RawText         string         `json:"-"`
	Status          DocumentStatus `json:"status"`
	RejectionReason *string        `json:"rejection_reason,omitempty"`
	Title           *string        `json:"title,omitempty"`
	Authors         StringList     `json:"authors"`
	Year            *int           `json:"year,omitempty"`
	Venue           *string        `json:"venue,omitempty"`
	Sections        []Section      `json:"sections,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// DisplayTitle returns the extracted title, falling back to the filename
func (d *Document) DisplayTitle() string {
	if d.Title != nil && *d.Title != "" {
		return *d.Title
	}
	return d.Filename
}

// Section is a named span of a document's text. Immutable once created.
type Section struct {
	ID         uuid.UUID `json:"id"`
	DocumentID uuid.UUID `json:"document_id"`
	Name       string    `json:"name"`
	OrderIndex int       `json:"order_index"`
	Text       string    `json:"text"`
}

// PaperInfo holds bibliographic fields extracted from the first pages
type PaperInfo struct {
	Title   string   `json:"title"`
	Authors []string `json:"authors"`
	Year    *int     `json:"year,omitempty"`
	Venue   string   `json:"venue"`
}
