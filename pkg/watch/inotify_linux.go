//go:build linux

package watch

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"unsafe"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/saworbit/dirbench/pkg/observe"
)

var _ observe.Source = (*InotifySource)(nil)

// InotifySource reads raw inotify records with blocking read(2) calls.
// One read may decode to zero, one or many events.
type InotifySource struct {
	dir    string
	fd     int
	buf    []byte
	logger *zap.Logger

	decoded   []observe.Observation
	pending   []observe.Observation
	reads     int
	overflows int
}

// NewInotifySource subscribes to IN_CLOSE_WRITE on dir.
func NewInotifySource(dir string, bufSize int) (*InotifySource, error) {
	fd, err := unix.InotifyInit1(unix.IN_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("cannot init inotify: %w", err)
	}

	if _, err := unix.InotifyAddWatch(fd, dir, unix.IN_CLOSE_WRITE); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("cannot watch %s: %w", dir, err)
	}

	return &InotifySource{
		dir:    filepath.Clean(dir),
		fd:     fd,
		buf:    make([]byte, bufSize),
		logger: zap.NewNop(),
	}, nil
}

// Reads reports how many blocking reads have completed.
func (s *InotifySource) Reads() int { return s.reads }

// Overflows reports how many queue overflow notices the kernel has sent.
func (s *InotifySource) Overflows() int { return s.overflows }

// SetLogger routes overflow warnings to logger.
func (s *InotifySource) SetLogger(logger *zap.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Next returns the next decoded event, blocking on the inotify descriptor
// when the previous batch is used up.
func (s *InotifySource) Next(ctx context.Context) (observe.Observation, error) {
	for len(s.pending) == 0 {
		if err := ctx.Err(); err != nil {
			return observe.Observation{}, err
		}

		n, err := s.read()
		if err != nil {
			return observe.Observation{}, err
		}
		if err := s.decode(n); err != nil {
			return observe.Observation{}, err
		}
	}

	obs := s.pending[0]
	s.pending = s.pending[1:]
	return obs, nil
}

// read blocks until events are available. Automatically retry on EINTR.
func (s *InotifySource) read() (int, error) {
	for {
		n, err := unix.Read(s.fd, s.buf)
		if err == unix.EINTR {
			continue
		} else if err != nil {
			return 0, fmt.Errorf("read inotify events: %w", err)
		}
		s.reads++
		return n, nil
	}
}

// decode fills pending from the first n bytes of buf.
func (s *InotifySource) decode(n int) error {
	decoded, overflows, err := decodeEvents(s.dir, s.buf[:n], s.decoded[:0])
	s.decoded = decoded
	if overflows > 0 {
		s.overflows += overflows
		s.logger.Warn("event queue overflow", zap.String("dir", s.dir), zap.Int("total", s.overflows))
	}
	if err != nil {
		return err
	}
	s.pending = s.decoded
	return nil
}

// Close removes the subscription.
func (s *InotifySource) Close() error {
	if s.fd < 0 {
		return nil
	}
	err := unix.Close(s.fd)
	s.fd = -1
	return err
}

// decodeEvents appends one observation per inotify record in b and counts
// IN_Q_OVERFLOW notices. Records without a name, overflow notices included,
// decode with an empty Name.
func decodeEvents(dir string, b []byte, out []observe.Observation) ([]observe.Observation, int, error) {
	var overflows int
	for len(b) > 0 {
		if len(b) < unix.SizeofInotifyEvent {
			return out, overflows, fmt.Errorf("inotify short record: n=%d", len(b))
		}

		event := (*unix.InotifyEvent)(unsafe.Pointer(&b[0]))
		end := unix.SizeofInotifyEvent + int(event.Len)
		if end > len(b) {
			return out, overflows, fmt.Errorf("inotify record overruns read: len=%d, remaining=%d", event.Len, len(b)-unix.SizeofInotifyEvent)
		}
		if event.Mask&unix.IN_Q_OVERFLOW != 0 {
			overflows++
		}

		// The name is padded with NUL bytes up to event.Len.
		raw := b[unix.SizeofInotifyEvent:end]
		if i := bytes.IndexByte(raw, 0); i >= 0 {
			raw = raw[:i]
		}
		b = b[end:]

		if len(raw) == 0 {
			out = append(out, observe.Observation{Path: dir})
			continue
		}
		name := string(raw)
		out = append(out, observe.Observation{Name: name, Path: filepath.Join(dir, name)})
	}
	return out, overflows, nil
}
