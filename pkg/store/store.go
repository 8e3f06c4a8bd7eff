package store

import (
	"context"

	"github.com/pkg/errors"
)

// ErrNotFound is returned by FindByID and Update when no record exists for the id.
var ErrNotFound = errors.New("record not found")

// Record is the persisted shape of a conversation message. Optional fields are
// pointers so that "unset" survives a round-trip through the store.
type Record struct {
	ID         string  `json:"id" yaml:"id"`
	Role       string  `json:"role" yaml:"role"`
	Content    *string `json:"content,omitempty" yaml:"content,omitempty"`
	ParentID   *string `json:"parentID,omitempty" yaml:"parentID,omitempty"`
	Status     *string `json:"status,omitempty" yaml:"status,omitempty"`
	ExternalID *string `json:"externalID,omitempty" yaml:"externalID,omitempty"`
}

// Update is a partial record update. Nil fields are left untouched.
type Update struct {
	Content    *string `json:"content,omitempty"`
	ParentID   *string `json:"parentID,omitempty"`
	Status     *string `json:"status,omitempty"`
	ExternalID *string `json:"externalID,omitempty"`
}

// IsZero reports whether the update carries no field at all.
func (u Update) IsZero() bool {
	return u.Content == nil && u.ParentID == nil && u.Status == nil && u.ExternalID == nil
}

// Apply copies the non-nil fields of the update onto the record.
func (u Update) Apply(rec *Record) {
	if u.Content != nil {
		rec.Content = u.Content
	}
	if u.ParentID != nil {
		rec.ParentID = u.ParentID
	}
	if u.Status != nil {
		rec.Status = u.Status
	}
	if u.ExternalID != nil {
		rec.ExternalID = u.ExternalID
	}
}

// RecordStore is durable keyed storage for message records. Implementations must
// provide read-your-writes consistency per key within a single process and
// last-write-wins semantics for concurrent updates to the same key.
type RecordStore interface {
	// Create inserts a new record. The caller assigns the id.
	Create(ctx context.Context, rec Record) (Record, error)
	// FindByID returns the stored record or ErrNotFound.
	FindByID(ctx context.Context, id string) (Record, error)
	// Update applies a partial update and returns the resulting record,
	// or ErrNotFound if the id does not exist.
	Update(ctx context.Context, id string, upd Update) (Record, error)
}
