package persistence

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"

	"github.com/hupe1980/vecrec/blobstore"
	"github.com/hupe1980/vecrec/index"
)

// headerSize is the encoded size of FileHeader.
var headerSize = binary.Size(FileHeader{})

// maxExpansion bounds the claimed payload size relative to the stored size
// so a corrupt header cannot force a huge allocation.
const maxExpansion = 256

// Encode serializes an artifact: write fills the payload, which is then
// checksummed, optionally compressed and prefixed with a FileHeader.
func Encode(kind Kind, c Compression, write func(w *BinaryWriter) error) ([]byte, error) {
	bw := NewBinaryWriter()
	if err := write(bw); err != nil {
		return nil, err
	}
	if err := bw.Err(); err != nil {
		return nil, err
	}

	payload := bw.Bytes()
	stored, applied, err := compress(payload, c)
	if err != nil {
		return nil, err
	}

	header := FileHeader{
		Magic:       MagicNumber,
		Version:     Version,
		Kind:        kind,
		Compression: applied,
		Checksum:    CalculateChecksum(payload),
		PayloadSize: uint64(len(payload)),
		StoredSize:  uint64(len(stored)),
	}

	var out bytes.Buffer
	out.Grow(headerSize + len(stored))
	if err := binary.Write(&out, binary.LittleEndian, &header); err != nil {
		return nil, err
	}
	out.Write(stored)

	return out.Bytes(), nil
}

// Decode validates an encoded artifact and hands its payload to read.
//
// Every validation failure (and every error returned by read) is reported as
// *index.ErrCorruptPersistedState.
func Decode(data []byte, kind Kind, read func(r *SliceReader) error) error {
	artifact := kind.String()

	if len(data) < headerSize {
		return index.NewCorruptError(artifact, "missing header", ErrTruncated)
	}

	var h FileHeader
	if err := binary.Read(bytes.NewReader(data[:headerSize]), binary.LittleEndian, &h); err != nil {
		return index.NewCorruptError(artifact, "unreadable header", err)
	}
	if h.Magic != MagicNumber {
		return index.NewCorruptError(artifact, "bad header", fmt.Errorf("%w: got 0x%08x", ErrInvalidMagic, h.Magic))
	}
	if h.Version != Version {
		return index.NewCorruptError(artifact, "bad header", fmt.Errorf("%w: got 0x%08x", ErrInvalidVersion, h.Version))
	}
	if h.Kind != kind {
		return index.NewCorruptError(artifact, "bad header", fmt.Errorf("%w: got %s", ErrInvalidKind, h.Kind))
	}

	stored := data[headerSize:]
	if uint64(len(stored)) != h.StoredSize {
		return index.NewCorruptError(artifact, fmt.Sprintf("stored size %d, header says %d", len(stored), h.StoredSize), ErrTruncated)
	}
	if h.PayloadSize > h.StoredSize*maxExpansion+1024 {
		return index.NewCorruptError(artifact, fmt.Sprintf("implausible payload size %d", h.PayloadSize), nil)
	}

	payload, err := decompress(stored, h.Compression, h.PayloadSize)
	if err != nil {
		return index.NewCorruptError(artifact, "decompression failed", err)
	}
	if uint64(len(payload)) != h.PayloadSize {
		return index.NewCorruptError(artifact, fmt.Sprintf("payload size %d, header says %d", len(payload), h.PayloadSize), ErrTruncated)
	}
	if sum := CalculateChecksum(payload); sum != h.Checksum {
		return index.NewCorruptError(artifact, "checksum", &ChecksumMismatchError{Expected: h.Checksum, Actual: sum})
	}

	r := NewSliceReader(payload)
	if err := read(r); err != nil {
		if index.IsCorrupt(err) {
			return err
		}
		return index.NewCorruptError(artifact, "invalid payload", err)
	}
	if r.Remaining() != 0 {
		return index.NewCorruptError(artifact, fmt.Sprintf("%d trailing bytes", r.Remaining()), nil)
	}

	return nil
}

// Pacer throttles persistence IO. *resource.Controller implements it.
type Pacer interface {
	AcquireIO(ctx context.Context, bytes int) error
}

// Options configures Save and Load.
type Options struct {
	// Pacer, if set, is charged for every stored or fetched byte before the
	// blob store is touched (Save) or the payload is decoded (Load).
	Pacer Pacer
}

// WithPacer throttles Save and Load through p.
func WithPacer(p Pacer) func(o *Options) {
	return func(o *Options) {
		o.Pacer = p
	}
}

func applyOptions(optFns []func(o *Options)) Options {
	var opts Options
	for _, fn := range optFns {
		fn(&opts)
	}
	return opts
}

// Save encodes an artifact and atomically replaces name in store. It returns
// the number of bytes stored.
func Save(ctx context.Context, store blobstore.BlobStore, name string, kind Kind, c Compression, write func(w *BinaryWriter) error, optFns ...func(o *Options)) (int, error) {
	opts := applyOptions(optFns)

	data, err := Encode(kind, c, write)
	if err != nil {
		return 0, fmt.Errorf("persistence: encode %s: %w", kind, err)
	}
	if opts.Pacer != nil {
		if err := opts.Pacer.AcquireIO(ctx, len(data)); err != nil {
			return 0, err
		}
	}
	if err := store.Put(ctx, name, data); err != nil {
		return 0, fmt.Errorf("persistence: put %s: %w", name, err)
	}
	return len(data), nil
}

// Load reads name from store and decodes it.
//
// A missing blob is reported as blobstore.ErrNotFound and store or pacing
// failures are returned as is, so callers can tell "never persisted" and
// "unreachable" from "persisted but unusable" (index.IsCorrupt).
func Load(ctx context.Context, store blobstore.BlobStore, name string, kind Kind, read func(r *SliceReader) error, optFns ...func(o *Options)) error {
	opts := applyOptions(optFns)

	data, err := blobstore.ReadAll(ctx, store, name)
	if err != nil {
		return err
	}
	if opts.Pacer != nil {
		if err := opts.Pacer.AcquireIO(ctx, len(data)); err != nil {
			return err
		}
	}
	return Decode(data, kind, read)
}
