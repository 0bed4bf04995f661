package persistence

import "errors"

const (
	// MagicNumber identifies vecrec binary artifacts (ASCII: "VREC").
	MagicNumber = 0x43455256
	// Version is the envelope format version.
	Version = 0x00010000
)

// Kind identifies which artifact an envelope carries.
type Kind uint8

const (
	KindFeatureStore Kind = 1
	KindKDTree       Kind = 2
	KindHNSW         Kind = 3
)

func (k Kind) String() string {
	switch k {
	case KindFeatureStore:
		return "featurestore"
	case KindKDTree:
		return "kdtree"
	case KindHNSW:
		return "hnsw"
	default:
		return "unknown"
	}
}

var (
	ErrInvalidMagic   = errors.New("invalid magic number")
	ErrInvalidVersion = errors.New("unsupported version")
	ErrInvalidKind    = errors.New("unexpected artifact kind")
	ErrTruncated      = errors.New("truncated data")
)

// FileHeader is the 40-byte header at the start of every artifact.
//
// Checksum covers the uncompressed payload. StoredSize is the number of
// payload bytes following the header.
type FileHeader struct {
	Magic       uint32
	Version     uint32
	Kind        Kind
	Compression Compression
	Padding     [2]byte
	Checksum    uint32
	PayloadSize uint64
	StoredSize  uint64
	Reserved    [8]byte
}
