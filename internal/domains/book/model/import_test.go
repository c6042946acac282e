package model

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImportResult_Accounting(t *testing.T) {
	r := NewImportResult()
	r.RecordAdded("9780140449136", uuid.New())
	r.RecordDuplicate("9780140449136")
	r.RecordFailed("9999999999999", StateDuplicateChecked, ErrMetadataNotFound)
	r.AddErrorDetail("cover skipped for %s", "9780140449136")

	assert.Equal(t, 3, r.Total())
	assert.Equal(t, []string{"9999999999999"}, r.FailedISBNs)
	assert.Len(t, r.ErrorDetails, 2)
	assert.Equal(t, "9999999999999: metadata not found (at duplicate_checked)", r.ErrorDetails[0])
	assert.Equal(t, StateFailed, r.Items[2].State)
	assert.Equal(t, StateDuplicateChecked, r.Items[2].Stage)
	assert.Len(t, r.Items, 3)
	assert.Equal(t, JobStatusPartial, r.Status())
}

func TestImportResult_FailAll(t *testing.T) {
	r := NewImportResult()
	r.RecordDuplicate("9780140449136")
	r.FailAll([]string{"0140449132", "9781400079988"}, StateError, StatePending, ErrDuplicateCheckFailed)

	assert.Equal(t, 2, r.Errors)
	assert.Equal(t, 3, r.Total())
	assert.Equal(t, []string{"duplicate check failed"}, r.ErrorDetails)
	assert.Equal(t, []string{"0140449132", "9781400079988"}, r.FailedISBNs)

	r.FailAll(nil, StateError, StatePending, ErrDuplicateCheckFailed)
	assert.Len(t, r.ErrorDetails, 1)
}

func TestImportResult_RecordErrorKeepsStage(t *testing.T) {
	r := NewImportResult()
	r.RecordError("9780140449136", StateNoMediaNeeded, ErrPersistence)

	require.Len(t, r.Items, 1)
	assert.Equal(t, StateError, r.Items[0].State)
	assert.Equal(t, StateNoMediaNeeded, r.Items[0].Stage)
	assert.Equal(t, "9780140449136: persistence failed (at no_media_needed)", r.ErrorDetails[0])

	r.RecordFailed("bogus", StatePending, ErrInvalidISBN)
	assert.Equal(t, StateFailed, r.Items[1].State)
	assert.Equal(t, "bogus: invalid ISBN format", r.ErrorDetails[1])
}

func TestImportResult_Status(t *testing.T) {
	r := NewImportResult()
	assert.Equal(t, JobStatusCompleted, r.Status())

	r.RecordError("x", StatePersisted, errors.New("boom"))
	assert.Equal(t, JobStatusFailed, r.Status())

	r = NewImportResult()
	r.RecordDuplicate("a")
	r.Aborted = true
	assert.Equal(t, JobStatusFailed, r.Status())
}

func TestItemState_IsTerminal(t *testing.T) {
	assert.True(t, StateDone.IsTerminal())
	assert.True(t, StateSkipped.IsTerminal())
	assert.False(t, StatePersisted.IsTerminal())
}

func TestImportRequests_Validate(t *testing.T) {
	assert.NoError(t, ImportISBNsRequest{ISBNs: []string{"9780140449136"}}.Validate(10))
	assert.Error(t, ImportISBNsRequest{}.Validate(10))
	assert.Error(t, ImportISBNsRequest{ISBNs: []string{"1", "2", "3"}}.Validate(2))
	assert.Error(t, ImportISBNsRequest{ISBNs: []string{"1"}, ActorID: "nope"}.Validate(10))

	assert.NoError(t, EntityImportRequest{EntityType: EntityAuthor, EntityName: "Homer"}.Validate(10))
	assert.Error(t, EntityImportRequest{EntityType: EntitySubject, EntityName: "Poetry"}.Validate(10))
	assert.Error(t, EntityImportRequest{EntityType: EntityPublisher}.Validate(10))
	assert.Error(t, EntityImportRequest{EntityType: EntityPublisher, EntityName: "   "}.Validate(10))
}
