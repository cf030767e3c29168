package scan

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"go.etcd.io/bbolt"

	"github.com/zombor/scanlens/internal/extract"
)

const (
	scansBucketName      = "scans"
	categoriesBucketName = "categories"
	imagesBucketName     = "images"
)

// ErrScanNotFound is returned for unknown record IDs
var ErrScanNotFound = errors.New("scan not found")

// Record is a persisted scan
type Record struct {
	ID         string          `json:"id"`
	Category   string          `json:"category"`
	Kind       Kind            `json:"kind"`
	RawContent string          `json:"raw_content"`
	Payload    extract.Payload `json:"-"`
	Confidence float64         `json:"confidence"`
	CreatedAt  time.Time       `json:"created_at"`
}

type recordJSON struct {
	ID         string          `json:"id"`
	Category   string          `json:"category"`
	Kind       Kind            `json:"kind"`
	RawContent string          `json:"raw_content"`
	Payload    json.RawMessage `json:"payload"`
	Confidence float64         `json:"confidence"`
	CreatedAt  time.Time       `json:"created_at"`
}

func (r Record) MarshalJSON() ([]byte, error) {
	payload, err := extract.MarshalPayload(r.Payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(recordJSON{
		ID:         r.ID,
		Category:   r.Category,
		Kind:       r.Kind,
		RawContent: r.RawContent,
		Payload:    payload,
		Confidence: r.Confidence,
		CreatedAt:  r.CreatedAt,
	})
}

func (r *Record) UnmarshalJSON(data []byte) error {
	var v recordJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	payload, err := extract.UnmarshalPayload(v.Payload)
	if err != nil {
		return err
	}
	*r = Record{
		ID:         v.ID,
		Category:   v.Category,
		Kind:       v.Kind,
		RawContent: v.RawContent,
		Payload:    payload,
		Confidence: v.Confidence,
		CreatedAt:  v.CreatedAt,
	}
	return nil
}

// ImageRef points at an archived upload
type ImageRef struct {
	Path        string `json:"path"`
	ContentType string `json:"content_type"`
}

// DB is the persistence the Service needs on top of Store
type DB interface {
	Store

	// GetScan retrieves a record by ID
	GetScan(id string) (*Record, error)

	// ListScans returns every record, or only those in category when set
	ListScans(category string) ([]*Record, error)

	// DeleteScan removes a record and its image reference
	DeleteScan(id string) error

	// SaveImageRef remembers where a record's upload was archived
	SaveImageRef(id string, ref ImageRef) error

	// GetImageRef returns the archived upload of a record
	GetImageRef(id string) (*ImageRef, error)

	// Close closes the database connection
	Close() error
}

// BoltDB implements DB using BoltDB
type BoltDB struct {
	db  *bbolt.DB
	now func() time.Time
}

// NewBoltDB creates a new BoltDB instance
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{scansBucketName, categoriesBucketName, imagesBucketName} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db, now: time.Now}, nil
}

// CreateScan stores a scan under the next sequence number and indexes it by
// category
func (b *BoltDB) CreateScan(ctx context.Context, kind Kind, raw string, payload extract.Payload, confidence float64) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var id string
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(scansBucketName))
		seq, err := bucket.NextSequence()
		if err != nil {
			return fmt.Errorf("allocating id: %w", err)
		}
		id = strconv.FormatUint(seq, 10)

		record := &Record{
			ID:         id,
			Category:   Category(kind),
			Kind:       kind,
			RawContent: raw,
			Payload:    payload,
			Confidence: confidence,
			CreatedAt:  b.now(),
		}
		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshaling scan: %w", err)
		}
		if err := bucket.Put([]byte(id), data); err != nil {
			return err
		}

		index, err := tx.Bucket([]byte(categoriesBucketName)).CreateBucketIfNotExists([]byte(record.Category))
		if err != nil {
			return fmt.Errorf("creating category index: %w", err)
		}
		return index.Put([]byte(id), nil)
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// GetScan retrieves a record by ID
func (b *BoltDB) GetScan(id string) (*Record, error) {
	var record *Record
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(scansBucketName)).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrScanNotFound, id)
		}
		return json.Unmarshal(data, &record)
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// ListScans returns records in id order
func (b *BoltDB) ListScans(category string) ([]*Record, error) {
	records := make([]*Record, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		scans := tx.Bucket([]byte(scansBucketName))
		appendRecord := func(data []byte) error {
			var record Record
			if err := json.Unmarshal(data, &record); err != nil {
				return fmt.Errorf("unmarshaling scan: %w", err)
			}
			records = append(records, &record)
			return nil
		}

		if category == "" {
			return scans.ForEach(func(k, v []byte) error {
				return appendRecord(v)
			})
		}

		index := tx.Bucket([]byte(categoriesBucketName)).Bucket([]byte(category))
		if index == nil {
			return nil
		}
		return index.ForEach(func(k, _ []byte) error {
			if data := scans.Get(k); data != nil {
				return appendRecord(data)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sortRecords(records)
	return records, nil
}

// DeleteScan removes a record, its index entry and its image reference
func (b *BoltDB) DeleteScan(id string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		scans := tx.Bucket([]byte(scansBucketName))
		data := scans.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrScanNotFound, id)
		}
		var record Record
		if err := json.Unmarshal(data, &record); err != nil {
			return fmt.Errorf("unmarshaling scan: %w", err)
		}

		if index := tx.Bucket([]byte(categoriesBucketName)).Bucket([]byte(record.Category)); index != nil {
			if err := index.Delete([]byte(id)); err != nil {
				return err
			}
		}
		if err := tx.Bucket([]byte(imagesBucketName)).Delete([]byte(id)); err != nil {
			return err
		}
		return scans.Delete([]byte(id))
	})
}

// SaveImageRef remembers where a record's upload was archived
func (b *BoltDB) SaveImageRef(id string, ref ImageRef) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(ref)
		if err != nil {
			return fmt.Errorf("marshaling image ref: %w", err)
		}
		return tx.Bucket([]byte(imagesBucketName)).Put([]byte(id), data)
	})
}

// GetImageRef returns the archived upload of a record
func (b *BoltDB) GetImageRef(id string) (*ImageRef, error) {
	var ref *ImageRef
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(imagesBucketName)).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("image not found: %s", id)
		}
		return json.Unmarshal(data, &ref)
	})
	if err != nil {
		return nil, err
	}
	return ref, nil
}

// Close closes the database connection
func (b *BoltDB) Close() error {
	return b.db.Close()
}

// sortRecords orders records by numeric id; bolt iterates keys bytewise
func sortRecords(records []*Record) {
	slices.SortFunc(records, func(a, b *Record) int {
		ai, _ := strconv.ParseUint(a.ID, 10, 64)
		bi, _ := strconv.ParseUint(b.ID, 10, 64)
		return cmp.Compare(ai, bi)
	})
}
