package reporting

import (
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"
)

var reportsBucket = []byte("reports")

// BoltIndex is an optional side-index mapping a reported error's type
// name to the report file paths written for it, so a caller can answer
// "which report files exist for this error type" in O(1) instead of
// scanning the output directory. It never replaces the report files
// themselves, which remain the source of truth.
type BoltIndex struct {
	db *bbolt.DB
}

// NewBoltIndex opens (creating if necessary) a bbolt database at path.
func NewBoltIndex(path string) (*BoltIndex, error) {
	db, err := bbolt.Open(path, 0o644, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReportWrite, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(reportsBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %v", ErrReportWrite, err)
	}
	return &BoltIndex{db: db}, nil
}

// Record appends path to the list of report files known for errorType.
func (b *BoltIndex) Record(errorType, path string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(reportsBucket)
		paths, err := decodePaths(bucket.Get([]byte(errorType)))
		if err != nil {
			paths = nil
		}
		paths = append(paths, path)
		data, err := json.Marshal(paths)
		if err != nil {
			return err
		}
		return bucket.Put([]byte(errorType), data)
	})
}

// Lookup returns every report file path recorded for errorType.
func (b *BoltIndex) Lookup(errorType string) ([]string, error) {
	var paths []string
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(reportsBucket)
		var err error
		paths, err = decodePaths(bucket.Get([]byte(errorType)))
		return err
	})
	return paths, err
}

func decodePaths(data []byte) ([]string, error) {
	if data == nil {
		return nil, nil
	}
	var paths []string
	if err := json.Unmarshal(data, &paths); err != nil {
		return nil, err
	}
	return paths, nil
}

// Close releases the underlying bbolt database.
func (b *BoltIndex) Close() error {
	return b.db.Close()
}
