package mmap

import "errors"

// AccessPattern provides hints to the kernel about how the data will be accessed.
type AccessPattern int

const (
	// AccessDefault is the default access pattern (no specific advice).
	AccessDefault AccessPattern = iota
	// AccessSequential expects data to be read front to back once.
	AccessSequential
)

var (
	ErrClosed        = errors.New("mmap: mapping closed")
	ErrInvalidSize   = errors.New("mmap: invalid size")
	ErrInvalidOffset = errors.New("mmap: invalid offset")
)
