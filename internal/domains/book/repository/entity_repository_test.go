package repository

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookcatalog-backend/internal/domains/book/model"
)

func TestTableFor(t *testing.T) {
	for kind, want := range map[model.EntityKind]string{
		model.EntityAuthor:    "authors",
		model.EntityPublisher: "publishers",
		model.EntitySubject:   "subjects",
	} {
		got, err := tableFor(kind)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := tableFor(model.EntityKind("books; DROP TABLE books"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrInvalidEntityKind))
}

func TestNilIfEmpty(t *testing.T) {
	assert.Nil(t, nilIfEmpty(nil))
	assert.Nil(t, nilIfEmpty([]string{}))
	assert.Equal(t, []string{"813.54"}, nilIfEmpty([]string{"813.54"}))
}
