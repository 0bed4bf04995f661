package persistence

import (
	"errors"
	"fmt"
	"unsafe"
)

// ErrUnalignedAccess is returned when attempting unaligned memory access.
var ErrUnalignedAccess = errors.New("unaligned memory access detected")

// nativeLittleEndian gates the zero-copy slice paths; on big-endian hosts the
// writer and reader fall back to per-element encoding.
var nativeLittleEndian = isLittleEndian()

func isLittleEndian() bool {
	var test uint16 = 0x0001
	firstByte := *(*byte)(unsafe.Pointer(&test))
	return firstByte == 1
}

func validateAlignment[T float32 | uint32](s []T) error {
	if len(s) == 0 {
		return nil
	}
	ptr := uintptr(unsafe.Pointer(&s[0]))
	if ptr%4 != 0 {
		return fmt.Errorf("%w: slice at address 0x%x", ErrUnalignedAccess, ptr)
	}
	return nil
}

func asBytes[T float32 | uint32](s []T) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*4)
}
