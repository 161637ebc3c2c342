package enumerate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/saworbit/dirbench/pkg/observe"
)

// DirSource lists a directory over and over, yielding every entry of every
// listing. It never deduplicates: an entry seen in two listings is yielded twice.
type DirSource struct {
	dir   string
	batch int

	f       *os.File
	pending []fs.DirEntry
	passes  int
}

// NewDirSource returns a source listing dir with batch entries per read.
// A batch of 0 reads each listing in a single call.
func NewDirSource(dir string, batch int) *DirSource {
	if batch < 0 {
		batch = 0
	}
	return &DirSource{dir: dir, batch: batch}
}

// Passes reports how many listings have been started.
func (s *DirSource) Passes() int { return s.passes }

// Next returns the next entry, starting a new listing when the current one is
// used up. An empty directory is re-listed until something appears.
func (s *DirSource) Next(ctx context.Context) (observe.Observation, error) {
	for len(s.pending) == 0 {
		if err := ctx.Err(); err != nil {
			return observe.Observation{}, err
		}
		if err := s.fill(); err != nil {
			return observe.Observation{}, err
		}
	}

	entry := s.pending[0]
	s.pending = s.pending[1:]
	return observe.Observation{Name: entry.Name(), Path: filepath.Join(s.dir, entry.Name())}, nil
}

func (s *DirSource) fill() error {
	if s.f == nil {
		f, err := os.Open(s.dir)
		if err != nil {
			return fmt.Errorf("list %s: %w", s.dir, err)
		}
		s.f = f
		s.passes++
	}

	entries, err := s.f.ReadDir(s.batch)
	s.pending = entries

	// A batched read signals the end of a listing with io.EOF; an unbatched
	// read returns the whole listing at once.
	if errors.Is(err, io.EOF) || (err == nil && s.batch == 0) {
		return s.endListing()
	}
	if err != nil {
		_ = s.endListing()
		return fmt.Errorf("list %s: %w", s.dir, err)
	}
	return nil
}

func (s *DirSource) endListing() error {
	f := s.f
	s.f = nil
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", s.dir, err)
	}
	return nil
}

// Close releases the open listing, if any.
func (s *DirSource) Close() error {
	if s.f == nil {
		return nil
	}
	return s.endListing()
}
