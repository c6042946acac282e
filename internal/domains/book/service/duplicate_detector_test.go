package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookcatalog-backend/internal/domains/book/model"
)

func TestDetect_Partition(t *testing.T) {
	store := newFakeStore()
	store.seed("9780140449136") // also answers to 0140449132
	repo := &fakeDuplicateRepo{store: store}
	d := NewDuplicateDetector(repo)

	split, err := d.Detect(context.Background(), []string{
		"0140449132",    // ISBN-10 form of a stored book
		"9781400079988", // new
		"9781400079988", // repeat
		"1400079985",    // ISBN-10 form of the new one above
		"9999999999999", // new, no ISBN-10 form
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"0140449132", "9781400079988", "1400079985"}, split.Duplicates)
	assert.Equal(t, []string{"9781400079988", "9999999999999"}, split.New)
	assert.Equal(t, 1, repo.calls)
}

func TestDetect_BadCheckDigitsAreNotCounterparts(t *testing.T) {
	repo := &fakeDuplicateRepo{store: newFakeStore()}
	d := NewDuplicateDetector(repo)

	// Same first twelve digits, neither check digit is valid
	split, err := d.Detect(context.Background(), []string{"9781000000001", "9781000000002"})
	require.NoError(t, err)

	assert.Empty(t, split.Duplicates)
	assert.Equal(t, []string{"9781000000001", "9781000000002"}, split.New)
}

func TestDetect_Empty(t *testing.T) {
	repo := &fakeDuplicateRepo{store: newFakeStore()}
	split, err := NewDuplicateDetector(repo).Detect(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, split.New)
	assert.Equal(t, 0, repo.calls)
}

func TestDetect_Failure(t *testing.T) {
	repo := &fakeDuplicateRepo{store: newFakeStore(), err: errors.New("too many connections")}
	split, err := NewDuplicateDetector(repo).Detect(context.Background(), []string{"9780140449136"})

	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrDuplicateCheckFailed)
	assert.Empty(t, split.New)
}
