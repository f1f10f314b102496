package record

import "encoding/binary"

// HiddenFieldSize is the width of the "__trx" field every record carries
// as its first bytes (§3, §6): bit 31 = deleted, bits 30..0 = trx-id.
const HiddenFieldSize = 4

// TrxID extracts the owning transaction id (0 = committed) from a raw
// record's hidden field.
func TrxID(rec []byte) uint32 {
	return binary.LittleEndian.Uint32(rec[:HiddenFieldSize]) & 0x7FFFFFFF
}

// Deleted reports whether the record's hidden delete bit is set.
func Deleted(rec []byte) bool {
	return binary.LittleEndian.Uint32(rec[:HiddenFieldSize])&0x80000000 != 0
}

// SetHiddenField stamps a record's hidden field with a trx id and delete
// bit.
func SetHiddenField(rec []byte, trxID uint32, deleted bool) {
	v := trxID & 0x7FFFFFFF
	if deleted {
		v |= 0x80000000
	}
	binary.LittleEndian.PutUint32(rec[:HiddenFieldSize], v)
}

// UserData returns the user-defined fixed-width fields following the
// hidden field.
func UserData(rec []byte) []byte {
	return rec[HiddenFieldSize:]
}
