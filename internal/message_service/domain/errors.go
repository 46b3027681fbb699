package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates that a message does not exist.
	ErrNotFound = errors.New("message not found")
	// ErrBlobNotFound indicates that a blob does not exist in the blob store.
	ErrBlobNotFound = errors.New("blob not found")
	// ErrSelfRead indicates an attempt by a sender to mark their own message as read.
	ErrSelfRead = errors.New("sender cannot mark own message as read")
)

// ValidationError is returned when a draft message is rejected before any write.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid message: %s %s", e.Field, e.Reason)
}

// StoreError wraps a failed message store operation.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("message store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// BlobError wraps a failed blob store operation.
type BlobError struct {
	Op  string
	Ref string
	Err error
}

func (e *BlobError) Error() string {
	if e.Ref == "" {
		return fmt.Sprintf("blob store %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("blob store %s %s: %v", e.Op, e.Ref, e.Err)
}

func (e *BlobError) Unwrap() error { return e.Err }
