package pipeline

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// Stream is an append-only output file of encoded records. It has a single
// writer for the duration of a run.
type Stream struct {
	path    string
	f       *os.File
	size    int64
	records int
}

// Mark is a position in a Stream that can be rolled back to.
type Mark struct {
	size    int64
	records int
}

// CreateStream creates or truncates the stream file at path.
func CreateStream(path string) (*Stream, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create stream: %w", err)
	}
	return &Stream{path: path, f: f}, nil
}

// Path is the stream's file path.
func (s *Stream) Path() string { return s.path }

// Append writes one encoded record.
func (s *Stream) Append(msg []byte) error {
	if s.f == nil {
		return errors.New("append to closed stream")
	}
	n, err := s.f.Write(msg)
	s.size += int64(n)
	if err != nil {
		return fmt.Errorf("append to %s: %w", s.path, err)
	}
	s.records++
	return nil
}

// Mark returns the current position.
func (s *Stream) Mark() Mark {
	return Mark{size: s.size, records: s.records}
}

// Rollback truncates the stream back to m, discarding later records.
func (s *Stream) Rollback(m Mark) error {
	if s.f == nil {
		return errors.New("rollback of closed stream")
	}
	if err := s.f.Truncate(m.size); err != nil {
		return fmt.Errorf("rollback %s: %w", s.path, err)
	}
	if _, err := s.f.Seek(m.size, io.SeekStart); err != nil {
		return fmt.Errorf("rollback %s: %w", s.path, err)
	}
	s.size, s.records = m.size, m.records
	return nil
}

// Records is the number of records appended and not rolled back.
func (s *Stream) Records() int { return s.records }

// Size is the stream's length in bytes.
func (s *Stream) Size() int64 { return s.size }

// Close syncs and closes the file. Closing twice is a no-op.
func (s *Stream) Close() error {
	if s.f == nil {
		return nil
	}
	f := s.f
	s.f = nil
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync %s: %w", s.path, err)
	}
	return f.Close()
}
