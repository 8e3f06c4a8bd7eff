package store

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const recordKeyPrefix = "msg:"

// PebbleStore persists records in a pebble database, one JSON-encoded value per
// message id. Updates are read-modify-write under a store-wide mutex, which is
// enough for the single-process, per-key last-write-wins contract of RecordStore.
type PebbleStore struct {
	mu sync.Mutex
	db *pebble.DB
}

var _ RecordStore = (*PebbleStore)(nil)

// OpenPebbleStore opens (or creates) a pebble database at the given path.
func OpenPebbleStore(path string) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open pebble db at %s", path)
	}
	log.Debug().Str("path", path).Msg("opened pebble record store")
	return &PebbleStore{db: db}, nil
}

// NewPebbleMemStore creates a pebble store backed by an in-memory filesystem.
// Used by tests and the demo when no path is configured.
func NewPebbleMemStore() (*PebbleStore, error) {
	db, err := pebble.Open("", &pebble.Options{FS: vfs.NewMem()})
	if err != nil {
		return nil, errors.Wrap(err, "failed to open in-memory pebble db")
	}
	return &PebbleStore{db: db}, nil
}

func (s *PebbleStore) Close() error {
	return s.db.Close()
}

func recordKey(id string) []byte {
	return []byte(recordKeyPrefix + id)
}

func (s *PebbleStore) get(id string) (Record, error) {
	value, closer, err := s.db.Get(recordKey(id))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return Record{}, errors.Wrap(ErrNotFound, id)
		}
		return Record{}, errors.Wrapf(err, "failed to read record %s", id)
	}
	defer func() { _ = closer.Close() }()

	var rec Record
	if err := json.Unmarshal(value, &rec); err != nil {
		return Record{}, errors.Wrapf(err, "failed to decode record %s", id)
	}
	return rec, nil
}

func (s *PebbleStore) set(rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrapf(err, "failed to encode record %s", rec.ID)
	}
	if err := s.db.Set(recordKey(rec.ID), data, pebble.Sync); err != nil {
		return errors.Wrapf(err, "failed to write record %s", rec.ID)
	}
	return nil
}

func (s *PebbleStore) Create(ctx context.Context, rec Record) (Record, error) {
	if rec.ID == "" {
		return Record{}, errors.New("record id is empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.get(rec.ID); err == nil {
		return Record{}, errors.Errorf("record %s already exists", rec.ID)
	} else if !errors.Is(err, ErrNotFound) {
		return Record{}, err
	}
	if err := s.set(rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

func (s *PebbleStore) FindByID(ctx context.Context, id string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(id)
}

func (s *PebbleStore) Update(ctx context.Context, id string, upd Update) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.get(id)
	if err != nil {
		return Record{}, err
	}
	upd.Apply(&rec)
	if err := s.set(rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}
