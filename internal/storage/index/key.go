// Package index implements the persistent B+Tree: an ordered map from
// composite key (user_key ∥ RID) to RID, supporting point and range
// lookup, insert-with-split, and delete-with-merge/redistribute (§4.4).
package index

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/flowbase/reldb-storage/internal/storage/common"
)

// AttrType is the closed set of user-key types the comparator understands.
// Table-level types (ints/floats/chars/booleans/dates, §6) map onto these
// three: booleans and dates compare as INT, chars as CHAR, floats as FLOAT.
type AttrType uint8

const (
	AttrInt AttrType = iota
	AttrFloat
	AttrChar
)

// floatEpsilon is the tolerance used when comparing FLOAT user keys (§4.4).
const floatEpsilon = 1e-6

// ridSize is the encoded width of a RID suffix: 4 bytes page_num + 4 bytes
// slot_num.
const ridSize = 8

// EncodeRID serializes a RID to its fixed 8-byte wire form.
func EncodeRID(r common.RID) []byte {
	buf := make([]byte, ridSize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(r.Page))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(r.Slot))
	return buf
}

// DecodeRID parses a RID from its fixed 8-byte wire form.
func DecodeRID(buf []byte) common.RID {
	return common.RID{
		Page: common.PageNum(binary.LittleEndian.Uint32(buf[0:4])),
		Slot: common.SlotNum(binary.LittleEndian.Uint32(buf[4:8])),
	}
}

// MakeKey concatenates a user key with its tie-breaking RID to form the
// composite key the tree actually stores and compares (§3: "Composite
// key").
func MakeKey(userKey []byte, r common.RID) []byte {
	out := make([]byte, len(userKey)+ridSize)
	copy(out, userKey)
	copy(out[len(userKey):], EncodeRID(r))
	return out
}

// Comparator compares composite keys of a fixed attribute type and length.
type Comparator struct {
	Type       AttrType
	AttrLength int
}

// KeyLength is the total width of a composite key: the user-key prefix
// plus the RID suffix.
func (c Comparator) KeyLength() int { return c.AttrLength + ridSize }

// Compare returns -1, 0, or 1 comparing composite keys a and b: first the
// user-key prefix by attribute type, then — on equality — the RID suffix
// lexicographically (§4.4).
func (c Comparator) Compare(a, b []byte) int {
	ua, ub := a[:c.AttrLength], b[:c.AttrLength]
	if cmp := c.compareUserKey(ua, ub); cmp != 0 {
		return cmp
	}
	ra, rb := DecodeRID(a[c.AttrLength:]), DecodeRID(b[c.AttrLength:])
	return ra.Compare(rb)
}

// compareUserKey compares just the user-key prefix, ignoring the RID
// suffix. Used by range-scan bound logic where ties on the user key alone
// matter (e.g. deciding inclusivity at a boundary).
func (c Comparator) compareUserKey(ua, ub []byte) int {
	switch c.Type {
	case AttrInt:
		ia := int32(binary.LittleEndian.Uint32(ua))
		ib := int32(binary.LittleEndian.Uint32(ub))
		switch {
		case ia < ib:
			return -1
		case ia > ib:
			return 1
		default:
			return 0
		}
	case AttrFloat:
		fa := math.Float64frombits(binary.LittleEndian.Uint64(ua))
		fb := math.Float64frombits(binary.LittleEndian.Uint64(ub))
		if math.Abs(fa-fb) <= floatEpsilon {
			return 0
		}
		if fa < fb {
			return -1
		}
		return 1
	case AttrChar:
		return bytes.Compare(ua, ub)
	default:
		return bytes.Compare(ua, ub)
	}
}

// EncodeInt encodes an int32 user key into a buffer of the comparator's
// attribute length (little-endian, zero-padded).
func EncodeInt(v int32, attrLength int) []byte {
	buf := make([]byte, attrLength)
	binary.LittleEndian.PutUint32(buf, uint32(v))
	return buf
}

// EncodeFloat encodes a float64 user key into a buffer of the comparator's
// attribute length.
func EncodeFloat(v float64, attrLength int) []byte {
	buf := make([]byte, attrLength)
	binary.LittleEndian.PutUint64(buf, math.Float64bits(v))
	return buf
}

// EncodeChar encodes a CHAR user key into a buffer of exactly attrLength
// bytes, truncating or zero-padding as needed.
func EncodeChar(s string, attrLength int) []byte {
	buf := make([]byte, attrLength)
	copy(buf, s)
	return buf
}

// EncodeCharBound encodes a CHAR scan bound that may be longer than
// attrLength. Every stored key is exactly attrLength bytes wide, so an
// over-length bound is truncated; if the dropped suffix held any non-zero
// byte, the bound no longer exactly represents the caller's intent and is
// conservatively widened rather than silently narrowed (§4.4, §9 — the
// source's fix_user_key is not re-derived bit-for-bit because its 0xFF
// carry edge case is specific to a comparison scheme this module does not
// share; here every comparison is over fixed attrLength-wide keys, so the
// only correction needed is at this single construction point).
//
// For a lower bound, widening means incrementing the truncated key so it
// sorts after every key sharing that attrLength-byte prefix (the caller
// asked for something strictly greater than the whole prefix class). For
// an upper bound, the truncated prefix already sorts after every key with
// that prefix, so no adjustment is needed.
func EncodeCharBound(s string, attrLength int, lowerBound bool) []byte {
	buf := EncodeChar(s, attrLength)
	if len(s) <= attrLength {
		return buf
	}
	remainder := s[attrLength:]
	droppedNonZero := false
	for i := 0; i < len(remainder); i++ {
		if remainder[i] != 0 {
			droppedNonZero = true
			break
		}
	}
	if droppedNonZero && lowerBound {
		incrementBytes(buf)
	}
	return buf
}

// incrementBytes adds 1 to buf treated as a big-endian-style byte string
// (trailing 0xFF bytes wrap to 0x00 and carry left). If every byte is
// already 0xFF the buffer is left unchanged, since no larger value fits at
// this width; a bound built from it still admits a key equal to all-0xFF.
func incrementBytes(buf []byte) {
	for i := len(buf) - 1; i >= 0; i-- {
		if buf[i] != 0xFF {
			buf[i]++
			for j := i + 1; j < len(buf); j++ {
				buf[j] = 0
			}
			return
		}
	}
}
