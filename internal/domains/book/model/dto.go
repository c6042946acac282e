package model

import (
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/google/uuid"
)

// ========================================
// IMPORT REQUESTS
// ========================================

// ImportISBNsRequest is the body of POST /admin/imports/isbns
type ImportISBNsRequest struct {
	ISBNs   []string `json:"isbns"`
	Async   bool     `json:"async"`
	ActorID string   `json:"actor_id,omitempty"`
}

func (r ImportISBNsRequest) Validate(maxISBNs int) error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.ISBNs,
			validation.Required.Error("isbns is required"),
			validation.Length(1, maxISBNs),
			validation.Each(validation.Required, validation.Length(1, 32)),
		),
		validation.Field(&r.ActorID, is.UUID.Error("actor_id must be a UUID")),
	)
}

// EntityImportRequest imports books scoped to one author or publisher.
// When ISBNs is empty the provider is asked for the entity's books.
type EntityImportRequest struct {
	EntityType EntityKind `json:"entity_type"`
	EntityName string     `json:"entity_name"`
	ISBNs      []string   `json:"isbns,omitempty"`
	Async      bool       `json:"async"`
	ActorID    string     `json:"actor_id,omitempty"`
}

// Validate checks the trimmed name, so a blank name is rejected
func (r EntityImportRequest) Validate(maxISBNs int) error {
	r.EntityName = strings.TrimSpace(r.EntityName)
	return validation.ValidateStruct(&r,
		validation.Field(&r.EntityType,
			validation.Required.Error("entity_type is required"),
			validation.In(EntityAuthor, EntityPublisher).Error("entity_type must be author or publisher"),
		),
		validation.Field(&r.EntityName,
			validation.Required.Error("entity_name is required"),
			validation.Length(1, 255),
		),
		validation.Field(&r.ISBNs,
			validation.Length(0, maxISBNs),
			validation.Each(validation.Required, validation.Length(1, 32)),
		),
		validation.Field(&r.ActorID, is.UUID.Error("actor_id must be a UUID")),
	)
}

// ParseActorID returns nil for an empty or malformed id
func ParseActorID(raw string) *uuid.UUID {
	if raw == "" {
		return nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil
	}
	return &id
}

// ImportJobResponse is returned when a run is queued
type ImportJobResponse struct {
	JobID  uuid.UUID `json:"job_id"`
	Status JobStatus `json:"status"`
	Total  int       `json:"total"`
}

// EntityISBNsResponse lists identifiers discovered for an entity
type EntityISBNsResponse struct {
	EntityType EntityKind `json:"entity_type"`
	EntityName string     `json:"entity_name"`
	ISBNs      []string   `json:"isbns"`
}

// ImportRunResponse is returned by a synchronous run
type ImportRunResponse struct {
	JobID  *uuid.UUID    `json:"job_id,omitempty"`
	Status JobStatus     `json:"status"`
	Result *ImportResult `json:"result"`
}
