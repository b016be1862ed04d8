package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"time"
)

const (
	version    byte = 1
	kindRecord byte = 1

	// MaxValidatorLen bounds the validator token carried by a record.
	MaxValidatorLen = 0xFFFF
)

var (
	ErrCorrupt          = errors.New("syncache: corrupt durable record")
	ErrValidatorTooLong = errors.New("syncache: validator exceeds 65535 bytes")
	magic4              = [...]byte{'S', 'W', 'R', 'C'}
)

// Record is the durable mirror layout of one cache entry.
type Record struct {
	InsertedAt time.Time
	Validator  string
	Payload    []byte
}

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// Record:
//
//	magic(4) | ver(1) | kind(1=record) | insertedAt(i64 be, unix nanos)
//	vlen(u16 be) | validator(vlen) | plen(u32 be) | payload(plen)
func EncodeRecord(r Record) ([]byte, error) {
	if len(r.Validator) > MaxValidatorLen {
		return nil, ErrValidatorTooLong
	}

	var buf bytes.Buffer
	buf.Grow(4 + 1 + 1 + 8 + 2 + len(r.Validator) + 4 + len(r.Payload))

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(kindRecord)

	var u8 [8]byte
	var u4 [4]byte
	var u2 [2]byte

	binary.BigEndian.PutUint64(u8[:], uint64(r.InsertedAt.UnixNano()))
	buf.Write(u8[:])

	binary.BigEndian.PutUint16(u2[:], uint16(len(r.Validator)))
	buf.Write(u2[:])
	buf.WriteString(r.Validator)

	binary.BigEndian.PutUint32(u4[:], uint32(len(r.Payload)))
	buf.Write(u4[:])
	buf.Write(r.Payload)

	return buf.Bytes(), nil
}

// DecodeRecord parses b strictly: trailing bytes are treated as corruption.
// The returned payload aliases b.
func DecodeRecord(b []byte) (Record, error) {
	const hdr = 4 + 1 + 1 + 8 + 2
	if len(b) < hdr || !hasMagic(b) || b[4] != version || b[5] != kindRecord {
		return Record{}, ErrCorrupt
	}

	off := 6

	nanos := int64(binary.BigEndian.Uint64(b[off : off+8]))
	off += 8

	vlen := int(binary.BigEndian.Uint16(b[off : off+2]))
	off += 2
	if vlen > len(b)-off {
		return Record{}, ErrCorrupt
	}
	validator := string(b[off : off+vlen])
	off += vlen

	if off+4 > len(b) {
		return Record{}, ErrCorrupt
	}
	plen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if plen < 0 || plen != len(b)-off { // exact: no trailing bytes
		return Record{}, ErrCorrupt
	}

	return Record{
		InsertedAt: time.Unix(0, nanos),
		Validator:  validator,
		Payload:    b[off : off+plen],
	}, nil
}

// InsertedAt reads only the insertion timestamp of an encoded record.
// Used by the sweep to age records without decoding payloads.
func InsertedAt(b []byte) (time.Time, error) {
	const hdr = 4 + 1 + 1 + 8
	if len(b) < hdr || !hasMagic(b) || b[4] != version || b[5] != kindRecord {
		return time.Time{}, ErrCorrupt
	}
	return time.Unix(0, int64(binary.BigEndian.Uint64(b[6:14]))), nil
}
