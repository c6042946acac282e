package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookcatalog-backend/internal/config"
	"bookcatalog-backend/internal/domains/activity/model"
)

// fakeRepo keeps rows in memory and answers window lookups from them
type fakeRepo struct {
	rows        []model.Activity
	failBatches map[int]bool
	lookupErr   error
	calls       int
	lookupSince []time.Time
}

func (f *fakeRepo) FindRecentKeys(_ context.Context, since time.Time, keys []model.ActivityKey) (map[model.ActivityKey]bool, error) {
	f.lookupSince = append(f.lookupSince, since)
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	wanted := make(map[model.ActivityKey]bool, len(keys))
	for _, k := range keys {
		wanted[k] = true
	}
	found := make(map[model.ActivityKey]bool)
	for _, r := range f.rows {
		k := model.ActivityKey{UserID: r.UserID, ActivityType: r.ActivityType, EntityType: r.EntityType, EntityID: r.EntityID}
		if wanted[k] && !r.CreatedAt.Before(since) {
			found[k] = true
		}
	}
	return found, nil
}

func (f *fakeRepo) InsertBatch(_ context.Context, activities []model.Activity) error {
	call := f.calls
	f.calls++
	if f.failBatches[call] {
		return errors.New("connection reset")
	}
	f.rows = append(f.rows, activities...)
	return nil
}

type clock struct{ t time.Time }

func (c *clock) Now() time.Time { return c.t }

func bookAdded(actor, book uuid.UUID) model.ActivityData {
	return model.ActivityData{
		UserID:       actor,
		ActivityType: model.ActivityBookAdded,
		EntityType:   model.EntityBook,
		EntityID:     book,
	}
}

func newService(repo *fakeRepo, c *clock, batchSize int) *ActivityService {
	return NewActivityService(repo, config.ActivityConfig{Window: 24 * time.Hour, BatchSize: batchSize}, WithClock(c.Now))
}

func TestEmit_WindowSuppression(t *testing.T) {
	repo := &fakeRepo{}
	c := &clock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	svc := newService(repo, c, 100)

	actor, book := uuid.New(), uuid.New()

	res, err := svc.Emit(context.Background(), []model.ActivityData{bookAdded(actor, book)})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Inserted)
	assert.Equal(t, 0, res.Duplicates)

	// 23h later: still inside the window
	c.t = c.t.Add(23 * time.Hour)
	res, err = svc.Emit(context.Background(), []model.ActivityData{bookAdded(actor, book)})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Inserted)
	assert.Equal(t, 1, res.Duplicates)

	// 25h after the first insert: window has passed
	c.t = c.t.Add(2 * time.Hour)
	res, err = svc.Emit(context.Background(), []model.ActivityData{bookAdded(actor, book)})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Inserted)
	assert.Equal(t, 0, res.Duplicates)

	assert.Len(t, repo.rows, 2)
	assert.Equal(t, c.t.Add(-24*time.Hour), repo.lookupSince[2])
}

func TestEmit_DuplicatesWithinCall(t *testing.T) {
	repo := &fakeRepo{}
	svc := newService(repo, &clock{t: time.Now()}, 100)

	actor, book := uuid.New(), uuid.New()
	res, err := svc.Emit(context.Background(), []model.ActivityData{
		bookAdded(actor, book),
		bookAdded(actor, book),
		bookAdded(uuid.New(), book),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Inserted)
	assert.Equal(t, 1, res.Duplicates)
}

func TestEmit_Validation(t *testing.T) {
	repo := &fakeRepo{}
	svc := newService(repo, &clock{t: time.Now()}, 100)

	bad := bookAdded(uuid.New(), uuid.New())
	bad.ActivityType = "book_burned"
	noActor := bookAdded(uuid.Nil, uuid.New())

	res, err := svc.Emit(context.Background(), []model.ActivityData{bad, noActor, bookAdded(uuid.New(), uuid.New())})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Invalid)
	assert.Equal(t, 1, res.Inserted)
	assert.Len(t, res.Errors, 2)
}

func TestEmit_BatchFailureIsolation(t *testing.T) {
	repo := &fakeRepo{failBatches: map[int]bool{1: true}}
	svc := newService(repo, &clock{t: time.Now()}, 2)

	actor := uuid.New()
	var candidates []model.ActivityData
	for i := 0; i < 5; i++ {
		candidates = append(candidates, bookAdded(actor, uuid.New()))
	}

	res, err := svc.Emit(context.Background(), candidates)
	require.NoError(t, err)
	assert.Equal(t, 3, repo.calls)
	assert.Equal(t, 3, res.Inserted)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "batch 1")

	for _, row := range repo.rows {
		assert.Equal(t, res.BatchID, row.BatchID)
	}
}

func TestEmit_LookupFailure(t *testing.T) {
	repo := &fakeRepo{lookupErr: fmt.Errorf("timeout")}
	svc := newService(repo, &clock{t: time.Now()}, 100)

	res, err := svc.Emit(context.Background(), []model.ActivityData{bookAdded(uuid.New(), uuid.New())})
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrActivityLookup))
	assert.Equal(t, 0, res.Inserted)
	assert.Equal(t, 0, repo.calls)
}

func TestNewBatchID(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	id := NewBatchID(now)
	assert.Regexp(t, regexp.MustCompile(`^batch_1700000000123_[0-9a-f]{8}$`), id)
	assert.NotEqual(t, id, NewBatchID(now))
}
