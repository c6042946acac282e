package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// ========================================
// ITEM STATE MACHINE
// ========================================

// ItemState is the position of one identifier in an import run
type ItemState string

const (
	StatePending           ItemState = "pending"
	StateDuplicateChecked  ItemState = "duplicate_checked"
	StateSkipped           ItemState = "skipped"
	StateMetadataFetched   ItemState = "metadata_fetched"
	StateFailed            ItemState = "failed"
	StateEntitiesResolving ItemState = "entities_resolving"
	StateEntitiesResolved  ItemState = "entities_resolved"
	StateMediaUploaded     ItemState = "media_uploaded"
	StateNoMediaNeeded     ItemState = "no_media_needed"
	StatePersisted         ItemState = "persisted"
	StateLinked            ItemState = "linked"
	StateDone              ItemState = "done"
	StateError             ItemState = "error"
)

// IsTerminal reports whether no further transitions happen from s
func (s ItemState) IsTerminal() bool {
	switch s {
	case StateSkipped, StateFailed, StateDone, StateError:
		return true
	}
	return false
}

// ItemOutcome is the final state of one input identifier. For failed items
// Stage is the state the item was in when it failed.
type ItemOutcome struct {
	ISBN   string     `json:"isbn"`
	State  ItemState  `json:"state"`
	Stage  ItemState  `json:"stage,omitempty"`
	BookID *uuid.UUID `json:"book_id,omitempty"`
	Error  string     `json:"error,omitempty"`
}

// ========================================
// IMPORT RESULT
// ========================================

// ImportResult is the per-run aggregate. Every input identifier lands in
// exactly one of Added, Duplicates or Errors.
type ImportResult struct {
	Added        int           `json:"added"`
	Duplicates   int           `json:"duplicates"`
	Errors       int           `json:"errors"`
	ErrorDetails []string      `json:"error_details"`
	Logs         []string      `json:"logs,omitempty"`
	Items        []ItemOutcome `json:"items,omitempty"`
	FailedISBNs  []string      `json:"failed_isbns,omitempty"`
	Aborted      bool          `json:"aborted,omitempty"`

	// Names the resolver had to create during this run, by kind
	CreatedEntities map[EntityKind][]CreatedEntity `json:"created_entities,omitempty"`
}

type CreatedEntity struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

func NewImportResult() *ImportResult {
	return &ImportResult{ErrorDetails: []string{}}
}

// Total is the number of identifiers accounted for so far
func (r *ImportResult) Total() int {
	return r.Added + r.Duplicates + r.Errors
}

func (r *ImportResult) RecordAdded(isbn string, bookID uuid.UUID) {
	r.Added++
	id := bookID
	r.Items = append(r.Items, ItemOutcome{ISBN: isbn, State: StateDone, BookID: &id})
}

func (r *ImportResult) RecordDuplicate(isbn string) {
	r.Duplicates++
	r.Items = append(r.Items, ItemOutcome{ISBN: isbn, State: StateSkipped})
}

// RecordFailed counts an identifier that never produced a usable record:
// invalid input, no metadata, or metadata that failed validation
func (r *ImportResult) RecordFailed(isbn string, stage ItemState, err error) {
	r.recordFailure(isbn, StateFailed, stage, err)
}

// RecordError counts an item that broke after its metadata was accepted
func (r *ImportResult) RecordError(isbn string, stage ItemState, err error) {
	r.recordFailure(isbn, StateError, stage, err)
}

func (r *ImportResult) recordFailure(isbn string, state, stage ItemState, err error) {
	r.Errors++
	msg := err.Error()
	if stage != "" && stage != StatePending {
		msg = fmt.Sprintf("%s (at %s)", msg, stage)
	}
	if isbn != "" {
		msg = fmt.Sprintf("%s: %s", isbn, msg)
	}
	r.ErrorDetails = append(r.ErrorDetails, msg)
	r.Items = append(r.Items, ItemOutcome{ISBN: isbn, State: state, Stage: stage, Error: err.Error()})
	if isbn != "" {
		r.FailedISBNs = append(r.FailedISBNs, isbn)
	}
}

// FailAll counts every isbn as failed under a single shared message
func (r *ImportResult) FailAll(isbns []string, state, stage ItemState, err error) {
	if len(isbns) == 0 {
		return
	}
	r.ErrorDetails = append(r.ErrorDetails, err.Error())
	for _, isbn := range isbns {
		r.Errors++
		r.Items = append(r.Items, ItemOutcome{ISBN: isbn, State: state, Stage: stage, Error: err.Error()})
		r.FailedISBNs = append(r.FailedISBNs, isbn)
	}
}

// AddErrorDetail records a message without counting an item
func (r *ImportResult) AddErrorDetail(format string, args ...interface{}) {
	r.ErrorDetails = append(r.ErrorDetails, fmt.Sprintf(format, args...))
}

func (r *ImportResult) Logf(format string, args ...interface{}) {
	r.Logs = append(r.Logs, fmt.Sprintf(format, args...))
}

func (r *ImportResult) RecordCreated(kind EntityKind, id uuid.UUID, name string) {
	if r.CreatedEntities == nil {
		r.CreatedEntities = make(map[EntityKind][]CreatedEntity)
	}
	r.CreatedEntities[kind] = append(r.CreatedEntities[kind], CreatedEntity{ID: id, Name: name})
}

// Status derives the job status a finished run maps to
func (r *ImportResult) Status() JobStatus {
	switch {
	case r.Aborted:
		return JobStatusFailed
	case r.Errors > 0 && r.Added+r.Duplicates == 0:
		return JobStatusFailed
	case r.Errors > 0:
		return JobStatusPartial
	default:
		return JobStatusCompleted
	}
}

// ========================================
// DUPLICATE SPLIT
// ========================================

// DuplicateSplit partitions an input list. Duplicates keeps one entry per
// duplicate occurrence, so repeats inside the input are counted each time.
type DuplicateSplit struct {
	Duplicates []string `json:"duplicates"`
	New        []string `json:"new"`
}

// ========================================
// IMPORT JOB (DB)
// ========================================

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusPartial    JobStatus = "partial"
	JobStatusFailed     JobStatus = "failed"
)

// ImportKind says how the identifiers of a job were obtained
type ImportKind string

const (
	ImportKindISBNs     ImportKind = "isbns"
	ImportKindAuthor    ImportKind = "author"
	ImportKindPublisher ImportKind = "publisher"
)

// ImportJob tracks one run for async polling and failure retries
type ImportJob struct {
	ID         uuid.UUID      `json:"id" db:"id"`
	ActorID    *uuid.UUID     `json:"actor_id,omitempty" db:"actor_id"`
	Kind       ImportKind     `json:"kind" db:"kind"`
	EntityName *string        `json:"entity_name,omitempty" db:"entity_name"`
	ISBNs      pq.StringArray `json:"isbns" db:"isbns"`

	Status       JobStatus      `json:"status" db:"status"`
	Added        int            `json:"added" db:"added"`
	Duplicates   int            `json:"duplicates" db:"duplicates"`
	Errors       int            `json:"errors" db:"errors"`
	ErrorDetails []string       `json:"error_details,omitempty" db:"error_details"` // JSONB
	FailedISBNs  pq.StringArray `json:"failed_isbns,omitempty" db:"failed_isbns"`
	RetryOf      *uuid.UUID     `json:"retry_of,omitempty" db:"retry_of"`
	Retried      bool           `json:"retried" db:"retried"`

	StartedAt   *time.Time `json:"started_at,omitempty" db:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// ========================================
// TASK PAYLOADS
// ========================================

type ImportISBNsPayload struct {
	JobID   uuid.UUID  `json:"job_id"`
	ISBNs   []string   `json:"isbns"`
	ActorID *uuid.UUID `json:"actor_id,omitempty"`
}

type ImportEntityPayload struct {
	JobID      uuid.UUID  `json:"job_id"`
	EntityType EntityKind `json:"entity_type"`
	EntityName string     `json:"entity_name"`
	ISBNs      []string   `json:"isbns,omitempty"`
	ActorID    *uuid.UUID `json:"actor_id,omitempty"`
}

type DeleteCoverPayload struct {
	ProviderID string `json:"provider_id"`
	Reason     string `json:"reason,omitempty"`
}

type RetryFailedImportsPayload struct {
	Limit int `json:"limit"`
}
