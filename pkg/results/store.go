// Package results keeps a history of benchmark runs in Pebble.
package results

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/klauspost/compress/zstd"
)

// PrefixRun namespaces run records.
const PrefixRun = "run:"

// StrategyRecord is the stored outcome of one strategy.
type StrategyRecord struct {
	Name       string `json:"name"`
	DurationNS int64  `json:"duration_ns"`
	Observed   int    `json:"observed"`
}

// Duration returns the recorded wall-clock time.
func (s StrategyRecord) Duration() time.Duration {
	return time.Duration(s.DurationNS)
}

// Record is one completed benchmark run.
type Record struct {
	Started      int64            `json:"ts"` // Nanoseconds
	Dir          string           `json:"dir"`
	Target       int              `json:"target"`
	FilesCreated int64            `json:"files_created"`
	Backend      string           `json:"backend"`
	Strategies   []StrategyRecord `json:"strategies"`
}

// StartedAt returns the run start as a time.
func (r Record) StartedAt() time.Time {
	return time.Unix(0, r.Started)
}

// Store appends and lists run records. Values are zstd-compressed JSON.
type Store struct {
	db  *pebble.DB
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// Open opens (or creates) the store in dir.
func Open(dir string, readOnly bool) (*Store, error) {
	db, err := pebble.Open(dir, &pebble.Options{ReadOnly: readOnly})
	if err != nil {
		return nil, fmt.Errorf("open pebble: %w", err)
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init zstd encoder: %w", err)
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		db.Close()
		return nil, fmt.Errorf("init zstd decoder: %w", err)
	}

	return &Store{db: db, enc: enc, dec: dec}, nil
}

// Close releases the store.
func (s *Store) Close() error {
	s.dec.Close()
	if err := s.enc.Close(); err != nil {
		s.db.Close()
		return err
	}
	return s.db.Close()
}

// Save appends rec, keyed by its start time.
func (s *Store) Save(rec Record) error {
	if rec.Started == 0 {
		rec.Started = time.Now().UnixNano()
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal run record: %w", err)
	}

	key := []byte(fmt.Sprintf("%s%020d", PrefixRun, rec.Started))
	if err := s.db.Set(key, s.enc.EncodeAll(payload, nil), pebble.Sync); err != nil {
		return fmt.Errorf("write run record: %w", err)
	}
	return nil
}

// List returns up to limit records, newest first. A limit <= 0 returns all.
func (s *Store) List(limit int) ([]Record, error) {
	iter, err := newPrefixIter(s.db, PrefixRun)
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []Record
	for iter.Last(); iter.Valid(); iter.Prev() {
		raw, err := s.dec.DecodeAll(iter.Value(), nil)
		if err != nil {
			return nil, fmt.Errorf("decompress %s: %w", iter.Key(), err)
		}

		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("decode %s: %w", iter.Key(), err)
		}
		out = append(out, rec)

		if limit > 0 && len(out) >= limit {
			break
		}
	}

	if err := iter.Error(); err != nil {
		return nil, err
	}
	return out, nil
}

func newPrefixIter(db *pebble.DB, prefix string) (*pebble.Iterator, error) {
	upper := append([]byte(prefix), 0xff)
	return db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(prefix),
		UpperBound: upper,
	})
}
