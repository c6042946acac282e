package model

import (
	"errors"
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
)

// ActivityType is the kind of event shown on a timeline
type ActivityType string

const (
	ActivityProfileUpdated ActivityType = "profile_updated"
	ActivityUserJoined     ActivityType = "user_joined"

	ActivityBookAdded       ActivityType = "book_added"
	ActivityBookUpdated     ActivityType = "book_updated"
	ActivityBookReviewed    ActivityType = "book_reviewed"
	ActivityBookRated       ActivityType = "book_rated"
	ActivityReadingProgress ActivityType = "reading_progress"

	ActivityAuthorCreated    ActivityType = "author_created"
	ActivityAuthorUpdated    ActivityType = "author_updated"
	ActivityPublisherCreated ActivityType = "publisher_created"
	ActivityPublisherUpdated ActivityType = "publisher_updated"

	ActivityGroupCreated ActivityType = "group_created"
	ActivityGroupJoined  ActivityType = "group_joined"
	ActivityGroupLeft    ActivityType = "group_left"

	ActivityAlbumCreated ActivityType = "album_created"
	ActivityAlbumUpdated ActivityType = "album_updated"
	ActivityPhotoAdded   ActivityType = "photo_added"

	ActivityEventCreated ActivityType = "event_created"
	ActivityEventJoined  ActivityType = "event_joined"
	ActivityEventLeft    ActivityType = "event_left"
)

var validTypes = []interface{}{
	ActivityProfileUpdated, ActivityUserJoined,
	ActivityBookAdded, ActivityBookUpdated, ActivityBookReviewed, ActivityBookRated, ActivityReadingProgress,
	ActivityAuthorCreated, ActivityAuthorUpdated, ActivityPublisherCreated, ActivityPublisherUpdated,
	ActivityGroupCreated, ActivityGroupJoined, ActivityGroupLeft,
	ActivityAlbumCreated, ActivityAlbumUpdated, ActivityPhotoAdded,
	ActivityEventCreated, ActivityEventJoined, ActivityEventLeft,
}

// Entity types activities point at
const (
	EntityBook      = "book"
	EntityAuthor    = "author"
	EntityPublisher = "publisher"
)

var (
	ErrInvalidActivity = errors.New("invalid activity")
	ErrActivityLookup  = errors.New("activity lookup failed")
)

// Activity is a stored timeline row
type Activity struct {
	ID           uuid.UUID              `json:"id" db:"id"`
	UserID       uuid.UUID              `json:"user_id" db:"user_id"`
	ActivityType ActivityType           `json:"activity_type" db:"activity_type"`
	EntityType   string                 `json:"entity_type" db:"entity_type"`
	EntityID     uuid.UUID              `json:"entity_id" db:"entity_id"`
	Data         map[string]interface{} `json:"data,omitempty" db:"data"`
	Metadata     map[string]interface{} `json:"metadata,omitempty" db:"metadata"`
	BatchID      string                 `json:"batch_id" db:"batch_id"`
	CreatedAt    time.Time              `json:"created_at" db:"created_at"`
}

// ActivityData is a candidate passed to the deduplicator
type ActivityData struct {
	UserID       uuid.UUID              `json:"user_id"`
	ActivityType ActivityType           `json:"activity_type"`
	EntityType   string                 `json:"entity_type"`
	EntityID     uuid.UUID              `json:"entity_id"`
	Data         map[string]interface{} `json:"data,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// Key identifies an activity for duplicate suppression
func (a ActivityData) Key() ActivityKey {
	return ActivityKey{
		UserID:       a.UserID,
		ActivityType: a.ActivityType,
		EntityType:   a.EntityType,
		EntityID:     a.EntityID,
	}
}

func (a ActivityData) Validate() error {
	err := validation.ValidateStruct(&a,
		validation.Field(&a.ActivityType, validation.Required, validation.In(validTypes...)),
		validation.Field(&a.UserID, validation.By(notNilUUID)),
		validation.Field(&a.EntityType, validation.Required),
		validation.Field(&a.EntityID, validation.By(notNilUUID)),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidActivity, err)
	}
	return nil
}

func notNilUUID(value interface{}) error {
	id, _ := value.(uuid.UUID)
	if id == uuid.Nil {
		return errors.New("cannot be blank")
	}
	return nil
}

// ActivityKey is (actor, type, entity type, entity id)
type ActivityKey struct {
	UserID       uuid.UUID
	ActivityType ActivityType
	EntityType   string
	EntityID     uuid.UUID
}

// EmitResult summarises one Emit call
type EmitResult struct {
	Inserted   int      `json:"inserted"`
	Duplicates int      `json:"duplicates"`
	Invalid    int      `json:"invalid"`
	Errors     []string `json:"errors"`
	BatchID    string   `json:"batch_id"`
}
