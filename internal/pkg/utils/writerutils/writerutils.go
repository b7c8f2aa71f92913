package writerutils

import (
	"errors"
	"io"
	"os"
)

// SafeFile is a file writer which flushes the file to the disk when it is closed.
type SafeFile struct {
	f       *os.File
	written int64
}

func NewSafeFileWriter(f *os.File) *SafeFile {
	return &SafeFile{f: f}
}

func (s *SafeFile) Write(p []byte) (n int, err error) {
	n, err = s.f.Write(p)
	s.written += int64(n)
	return n, err
}

// Written returns the number of bytes written so far.
func (s *SafeFile) Written() int64 {
	return s.written
}

// Name returns the name of the underlying file.
func (s *SafeFile) Name() string {
	return s.f.Name()
}

func (s *SafeFile) Close() error {
	return errors.Join(
		s.f.Sync(),
		s.f.Close(),
	)
}

var _ io.WriteCloser = (*SafeFile)(nil)
