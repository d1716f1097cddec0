// Package history keeps a log of build attempts in a BoltDB file shared by all projects.
//
// Records live in a single bucket keyed by the project root followed by a NUL byte and a
// big-endian sequence number, so a prefix scan returns one project's builds in the order they
// were recorded.
package history

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"time"

	"go.etcd.io/bbolt"
)

const (
	// DefaultFileName is the database file name inside the user cache directory
	DefaultFileName = "history.db"

	// bucketName is the BoltDB bucket holding build records
	bucketName = "builds"
)

// Store manages build records using BoltDB
type Store struct {
	db   *bbolt.DB
	path string
}

// DefaultPath returns <user cache dir>/cpplab/history.db
func DefaultPath() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user cache directory: %w", err)
	}

	return filepath.Join(dir, "cpplab", DefaultFileName), nil
}

// Open opens or creates the history database at path
// If path is empty, uses DefaultPath
func Open(path string) (*Store, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}

		path = p
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create history bucket: %w", err)
	}

	return &Store{
		db:   db,
		path: path,
	}, nil
}

// Path returns the database file location
func (s *Store) Path() string {
	return s.path
}

// Close closes the history database
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}

	return nil
}

func prefix(root string) []byte {
	return append([]byte(root), 0)
}

// Add appends a record under its project root
func (s *Store) Add(rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode history record: %w", err)
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))

		seq, err := b.NextSequence()
		if err != nil {
			return err
		}

		key := binary.BigEndian.AppendUint64(prefix(rec.Root), seq)
		return b.Put(key, data)
	})
	if err != nil {
		return fmt.Errorf("failed to store history record: %w", err)
	}

	return nil
}

// List returns up to limit records, newest first. An empty root lists every project.
// A limit of zero or less returns everything.
func (s *Store) List(root string, limit int) ([]Record, error) {
	var records []Record

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(bucketName)).Cursor()

		decode := func(v []byte) error {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("failed to decode history record: %w", err)
			}

			records = append(records, rec)
			return nil
		}

		if root == "" {
			for k, v := c.First(); k != nil; k, v = c.Next() {
				if err := decode(v); err != nil {
					return err
				}
			}

			return nil
		}

		p := prefix(root)
		for k, v := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, v = c.Next() {
			if err := decode(v); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	if root == "" {
		// Keys sort by root first, so order across projects comes from the timestamps
		sort.SliceStable(records, func(i, j int) bool {
			return records[i].Timestamp.After(records[j].Timestamp)
		})
	} else {
		slices.Reverse(records)
	}

	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}

	return records, nil
}

// Clear removes the records of one project, or every record when root is empty
func (s *Store) Clear(root string) error {
	if root == "" {
		return s.db.Update(func(tx *bbolt.Tx) error {
			if err := tx.DeleteBucket([]byte(bucketName)); err != nil {
				return err
			}

			_, err := tx.CreateBucket([]byte(bucketName))
			return err
		})
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		p := prefix(root)

		var keys [][]byte
		c := b.Cursor()
		for k, _ := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, _ = c.Next() {
			keys = append(keys, append([]byte(nil), k...))
		}

		for _, k := range keys {
			if err := b.Delete(k); err != nil {
				return err
			}
		}

		return nil
	})
}

// Count returns the number of stored records
func (s *Store) Count() (int, error) {
	var count int

	err := s.db.View(func(tx *bbolt.Tx) error {
		count = tx.Bucket([]byte(bucketName)).Stats().KeyN
		return nil
	})
	if err != nil {
		return 0, err
	}

	return count, nil
}
