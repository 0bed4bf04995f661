package mmap

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/hupe1980/vecrec/internal/conv"
)

// Mapping is a read-only view of a whole persisted artifact file.
type Mapping struct {
	data    []byte
	release func([]byte) error
	closed  atomic.Bool
}

// Open maps the file at path and applies the access hint to the whole
// range. Empty files yield an empty Mapping without touching the kernel.
func Open(path string, pattern AccessPattern) (*Mapping, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if fi.Size() < 0 {
		return nil, ErrInvalidSize
	}
	size, err := conv.Uint64ToInt(uint64(fi.Size()))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSize, err)
	}
	if size == 0 {
		return &Mapping{}, nil
	}

	data, release, err := osMap(f, size)
	if err != nil {
		return nil, err
	}

	m := &Mapping{data: data, release: release}
	if err := osAdvise(data, pattern); err != nil {
		_ = m.Close()
		return nil, err
	}
	return m, nil
}

func (m *Mapping) live() ([]byte, error) {
	if m.closed.Load() {
		return nil, ErrClosed
	}
	return m.data, nil
}

// Bytes returns the mapped artifact, or nil once closed. The slice must not
// be retained past Close.
func (m *Mapping) Bytes() []byte {
	data, _ := m.live()
	return data
}

// Size is the artifact length in bytes.
func (m *Mapping) Size() int { return len(m.data) }

// ReadAt copies from the artifact at off. Short reads at the end report
// io.EOF.
func (m *Mapping) ReadAt(p []byte, off int64) (int, error) {
	data, err := m.live()
	if err != nil {
		return 0, err
	}
	if off < 0 {
		return 0, ErrInvalidOffset
	}
	if off >= int64(len(data)) {
		return 0, io.EOF
	}

	n := copy(p, data[off:])
	if n < len(p) {
		err = io.EOF
	}
	return n, err
}

// Close releases the mapping. Later calls are no-ops.
func (m *Mapping) Close() error {
	if m.closed.Swap(true) || m.release == nil {
		return nil
	}
	return m.release(m.data)
}
