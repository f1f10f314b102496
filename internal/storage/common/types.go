// Package common holds types shared across the storage and indexing core:
// page identifiers, record identifiers, and the closed set of result codes
// the buffer pool, record manager, B+Tree index, and transaction hook use
// to report outcomes to their callers.
package common

import (
	"errors"
	"fmt"
)

// PageNum identifies a page within a file. Page 0 is the file header page.
type PageNum uint32

// InvalidPageNum marks a null page reference (e.g. no left sibling).
const InvalidPageNum PageNum = 0

// SlotNum identifies a record slot within a page.
type SlotNum uint32

// RID (Record ID) is the address of a single record: a page number plus a
// slot index within that page. RIDs order lexicographically by (Page, Slot),
// which the B+Tree relies on to break ties between duplicate keys.
type RID struct {
	Page PageNum
	Slot SlotNum
}

// MinRID and MaxRID bound the RID space; used as sentinels when a range
// scan needs a key's smallest or largest possible tie-break value.
var (
	MinRID = RID{Page: 0, Slot: 0}
	MaxRID = RID{Page: ^PageNum(0), Slot: ^SlotNum(0)}
)

// Compare returns -1, 0, or 1 as r sorts before, equal to, or after other.
func (r RID) Compare(other RID) int {
	switch {
	case r.Page < other.Page:
		return -1
	case r.Page > other.Page:
		return 1
	case r.Slot < other.Slot:
		return -1
	case r.Slot > other.Slot:
		return 1
	default:
		return 0
	}
}

func (r RID) String() string {
	return fmt.Sprintf("(%d,%d)", r.Page, r.Slot)
}

// ResultCode is the closed set of outcomes storage operations report. Tests
// assert on specific codes, so these are a typed enum rather than ad-hoc
// sentinel errors.
type ResultCode uint8

const (
	SUCCESS ResultCode = iota
	RECORD_DUPLICATE_KEY
	RECORD_NOT_EXIST
	RECORD_NO_CAPACITY
	RECORD_INVALID_RID
	BUFFERPOOL_NOBUF
	BUFFERPOOL_INVALID_PAGE_NUM
	BUFFERPOOL_OPEN_TWICE
	IOERR_READ
	IOERR_WRITE
	IOERR_SEEK
	IOERR_SYNC
	IOERR_CRC_MISMATCH
	INDEX_KEY_NOT_FOUND
	INDEX_INVALID_KEY
	INTERNAL
)

var resultCodeNames = map[ResultCode]string{
	SUCCESS:                     "SUCCESS",
	RECORD_DUPLICATE_KEY:        "RECORD_DUPLICATE_KEY",
	RECORD_NOT_EXIST:            "RECORD_NOT_EXIST",
	RECORD_NO_CAPACITY:          "RECORD_NO_CAPACITY",
	RECORD_INVALID_RID:          "RECORD_INVALID_RID",
	BUFFERPOOL_NOBUF:            "BUFFERPOOL_NOBUF",
	BUFFERPOOL_INVALID_PAGE_NUM: "BUFFERPOOL_INVALID_PAGE_NUM",
	BUFFERPOOL_OPEN_TWICE:       "BUFFERPOOL_OPEN_TWICE",
	IOERR_READ:                  "IOERR_READ",
	IOERR_WRITE:                 "IOERR_WRITE",
	IOERR_SEEK:                  "IOERR_SEEK",
	IOERR_SYNC:                  "IOERR_SYNC",
	IOERR_CRC_MISMATCH:          "IOERR_CRC_MISMATCH",
	INDEX_KEY_NOT_FOUND:         "INDEX_KEY_NOT_FOUND",
	INDEX_INVALID_KEY:           "INDEX_INVALID_KEY",
	INTERNAL:                    "INTERNAL",
}

func (c ResultCode) String() string {
	if s, ok := resultCodeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("ResultCode(%d)", uint8(c))
}

// StorageError pairs a ResultCode with an optional wrapped cause, the way
// errors surface from every operation in this package tree.
type StorageError struct {
	Code ResultCode
	Op   string
	Err  error
}

func (e *StorageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Code)
}

func (e *StorageError) Unwrap() error { return e.Err }

// NewError constructs a StorageError for op failing with code, optionally
// wrapping an underlying cause.
func NewError(op string, code ResultCode, err error) *StorageError {
	return &StorageError{Code: code, Op: op, Err: err}
}

// CodeOf extracts the ResultCode carried by err, or INTERNAL if err is not
// (or does not wrap) a *StorageError.
func CodeOf(err error) ResultCode {
	if err == nil {
		return SUCCESS
	}
	var se *StorageError
	if errors.As(err, &se) {
		return se.Code
	}
	return INTERNAL
}
