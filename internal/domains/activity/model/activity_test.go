package model

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestActivityData_Validate(t *testing.T) {
	valid := ActivityData{
		UserID:       uuid.New(),
		ActivityType: ActivityBookAdded,
		EntityType:   EntityBook,
		EntityID:     uuid.New(),
	}
	assert.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(a *ActivityData)
	}{
		{"unknown type", func(a *ActivityData) { a.ActivityType = "book_burned" }},
		{"missing type", func(a *ActivityData) { a.ActivityType = "" }},
		{"missing actor", func(a *ActivityData) { a.UserID = uuid.Nil }},
		{"missing entity type", func(a *ActivityData) { a.EntityType = "" }},
		{"missing entity id", func(a *ActivityData) { a.EntityID = uuid.Nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := valid
			tt.mutate(&a)
			err := a.Validate()
			assert.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidActivity))
		})
	}
}

func TestActivityData_Key(t *testing.T) {
	a := ActivityData{UserID: uuid.New(), ActivityType: ActivityAuthorCreated, EntityType: EntityAuthor, EntityID: uuid.New()}
	b := a
	b.Data = map[string]interface{}{"name": "x"}
	assert.Equal(t, a.Key(), b.Key())

	b.EntityID = uuid.New()
	assert.NotEqual(t, a.Key(), b.Key())
}
