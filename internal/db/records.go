package db

import (
	"sync"

	apperrors "github.com/medadhere/backend/internal/errors"
	"github.com/medadhere/backend/internal/logging"
	"github.com/medadhere/backend/internal/models"
)

// RecordStore provides typed access to the three record collections.
// All accessors share one mutex so read-modify-write cycles don't interleave.
type RecordStore struct {
	kv KeyValueStore
	mu sync.Mutex
}

// NewRecordStore wraps a KeyValueStore.
func NewRecordStore(kv KeyValueStore) *RecordStore {
	return &RecordStore{kv: kv}
}

// KV exposes the underlying store.
func (s *RecordStore) KV() KeyValueStore {
	return s.kv
}

// Load returns every record of kind. A malformed document is logged and
// treated as an empty collection.
func (s *RecordStore) Load(kind models.Kind) ([]models.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(kind)
}

// Save replaces the collection for kind.
func (s *RecordStore) Save(kind models.Kind, records []models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(kind, records)
}

// Update loads kind, applies fn and saves the result atomically with
// respect to other RecordStore callers.
func (s *RecordStore) Update(kind models.Kind, fn func([]models.Record) ([]models.Record, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load(kind)
	if err != nil {
		return err
	}
	out, err := fn(records)
	if err != nil {
		return err
	}
	return s.save(kind, out)
}

// Get returns the record with local id.
func (s *RecordStore) Get(kind models.Kind, id string) (models.Record, bool, error) {
	records, err := s.Load(kind)
	if err != nil {
		return models.Record{}, false, err
	}
	for _, r := range records {
		if r.ID == id {
			return r, true, nil
		}
	}
	return models.Record{}, false, nil
}

// SetCloudID records the remote identifier for a local record.
func (s *RecordStore) SetCloudID(kind models.Kind, id, cloudID string) error {
	return s.Update(kind, func(records []models.Record) ([]models.Record, error) {
		for i := range records {
			if records[i].ID == id {
				records[i].CloudID = cloudID
				return records, nil
			}
		}
		return nil, apperrors.New(apperrors.ErrRecordNotFound, "record "+id+" not found in "+string(kind))
	})
}

func (s *RecordStore) load(kind models.Kind) ([]models.Record, error) {
	var records []models.Record
	_, err := GetJSON(s.kv, kind.StorageKey(), &records)
	if apperrors.Is(err, apperrors.ErrCorruptedData) {
		logging.Warn("Discarding malformed local collection", map[string]interface{}{
			"key":   kind.StorageKey(),
			"error": err.Error(),
		})
		return []models.Record{}, nil
	}
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []models.Record{}
	}
	return records, nil
}

func (s *RecordStore) save(kind models.Kind, records []models.Record) error {
	if records == nil {
		records = []models.Record{}
	}
	return SetJSON(s.kv, kind.StorageKey(), records)
}
