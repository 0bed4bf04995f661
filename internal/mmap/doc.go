// Package mmap provides read-only memory-mapped file access for the local
// blob store.
package mmap
