package job

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookcatalog-backend/internal/domains/book/model"
	bookService "bookcatalog-backend/internal/domains/book/service"
	"bookcatalog-backend/internal/shared"
)

type fakeRunner struct {
	jobID  uuid.UUID
	req    bookService.RunRequest
	result *model.ImportResult
	err    error
}

func (f *fakeRunner) RunJob(_ context.Context, jobID uuid.UUID, req bookService.RunRequest) (*model.ImportResult, error) {
	f.jobID = jobID
	f.req = req
	return f.result, f.err
}

func newTask(t *testing.T, typ string, payload interface{}) *asynq.Task {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return asynq.NewTask(typ, data)
}

func TestImportISBNsHandler(t *testing.T) {
	runner := &fakeRunner{result: model.NewImportResult()}
	jobID := uuid.New()

	err := NewImportISBNsHandler(runner).ProcessTask(context.Background(), newTask(t, shared.TypeImportISBNs, model.ImportISBNsPayload{
		JobID: jobID,
		ISBNs: []string{"9780140449136"},
	}))

	require.NoError(t, err)
	assert.Equal(t, jobID, runner.jobID)
	assert.Equal(t, model.ImportKindISBNs, runner.req.Kind)
	assert.Equal(t, []string{"9780140449136"}, runner.req.ISBNs)
}

func TestImportISBNsHandler_BadPayload(t *testing.T) {
	err := NewImportISBNsHandler(&fakeRunner{}).ProcessTask(context.Background(), asynq.NewTask(shared.TypeImportISBNs, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestImportISBNsHandler_RunErrors(t *testing.T) {
	// recorded on the job: no retry
	runner := &fakeRunner{result: model.NewImportResult(), err: model.ErrEmptyImport}
	err := NewImportISBNsHandler(runner).ProcessTask(context.Background(), newTask(t, shared.TypeImportISBNs, model.ImportISBNsPayload{JobID: uuid.New()}))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	// job bookkeeping failed before the run: retry
	runner = &fakeRunner{err: errors.New("db down")}
	err = NewImportISBNsHandler(runner).ProcessTask(context.Background(), newTask(t, shared.TypeImportISBNs, model.ImportISBNsPayload{JobID: uuid.New()}))
	require.Error(t, err)
	assert.False(t, errors.Is(err, asynq.SkipRetry))
}

func TestImportEntityHandler(t *testing.T) {
	runner := &fakeRunner{result: model.NewImportResult()}

	err := NewImportEntityHandler(runner).ProcessTask(context.Background(), newTask(t, shared.TypeImportEntity, model.ImportEntityPayload{
		JobID:      uuid.New(),
		EntityType: model.EntityAuthor,
		EntityName: "Homer",
	}))

	require.NoError(t, err)
	assert.Equal(t, model.ImportKindAuthor, runner.req.Kind)
	assert.Equal(t, "Homer", runner.req.EntityName)

	err = NewImportEntityHandler(runner).ProcessTask(context.Background(), newTask(t, shared.TypeImportEntity, model.ImportEntityPayload{
		JobID:      uuid.New(),
		EntityType: model.EntitySubject,
		EntityName: "Epic",
	}))
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.ErrorIs(t, err, model.ErrInvalidEntityKind)
}

type fakeDeleter struct {
	keys []string
	err  error
}

func (f *fakeDeleter) Delete(_ context.Context, key string) error {
	f.keys = append(f.keys, key)
	return f.err
}

func TestDeleteCoverHandler(t *testing.T) {
	store := &fakeDeleter{}
	h := NewDeleteCoverHandler(store)

	err := h.ProcessTask(context.Background(), newTask(t, shared.TypeDeleteCover, model.DeleteCoverPayload{ProviderID: "bookcovers/a.jpg"}))
	require.NoError(t, err)
	assert.Equal(t, []string{"bookcovers/a.jpg"}, store.keys)

	err = h.ProcessTask(context.Background(), newTask(t, shared.TypeDeleteCover, model.DeleteCoverPayload{}))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	store.err = errors.New("timeout")
	err = h.ProcessTask(context.Background(), newTask(t, shared.TypeDeleteCover, model.DeleteCoverPayload{ProviderID: "bookcovers/b.jpg"}))
	require.Error(t, err)
	assert.False(t, errors.Is(err, asynq.SkipRetry))
}

type fakeRetrier struct {
	limit int
}

func (f *fakeRetrier) RetryFailed(_ context.Context, limit int) (int, error) {
	f.limit = limit
	return 2, nil
}

func TestRetryFailedImportsHandler(t *testing.T) {
	retrier := &fakeRetrier{}
	h := NewRetryFailedImportsHandler(retrier, 50)

	require.NoError(t, h.ProcessTask(context.Background(), asynq.NewTask(shared.TypeRetryFailedImports, nil)))
	assert.Equal(t, 50, retrier.limit)

	require.NoError(t, h.ProcessTask(context.Background(), newTask(t, shared.TypeRetryFailedImports, model.RetryFailedImportsPayload{Limit: 5})))
	assert.Equal(t, 5, retrier.limit)
}
