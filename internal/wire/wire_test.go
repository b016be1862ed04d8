package wire

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"
	"time"
)

func mustEncode(t *testing.T, r Record) []byte {
	t.Helper()
	b, err := EncodeRecord(r)
	if err != nil {
		t.Fatalf("EncodeRecord error: %v", err)
	}
	return b
}

func mustDecode(t *testing.T, b []byte) Record {
	t.Helper()
	r, err := DecodeRecord(b)
	if err != nil {
		t.Fatalf("DecodeRecord error: %v", err)
	}
	return r
}

func TestRecordRoundTrip(t *testing.T) {
	at := time.Unix(1700000000, 123456789)
	cases := []Record{
		{InsertedAt: at},
		{InsertedAt: at, Payload: []byte("hello")},
		{InsertedAt: at, Validator: `W/"etag-1"`, Payload: []byte{0, 1, 2, 3}},
		{InsertedAt: time.Unix(0, 0), Validator: strings.Repeat("v", MaxValidatorLen)},
	}
	for _, tc := range cases {
		got := mustDecode(t, mustEncode(t, tc))
		if !got.InsertedAt.Equal(tc.InsertedAt) {
			t.Fatalf("insertedAt mismatch: got %v want %v", got.InsertedAt, tc.InsertedAt)
		}
		if got.Validator != tc.Validator {
			t.Fatalf("validator mismatch: got %q want %q", got.Validator, tc.Validator)
		}
		if !bytes.Equal(got.Payload, tc.Payload) {
			t.Fatalf("payload mismatch: got %x want %x", got.Payload, tc.Payload)
		}
	}
}

func TestRecordRejectsLongValidator(t *testing.T) {
	_, err := EncodeRecord(Record{Validator: strings.Repeat("v", MaxValidatorLen+1)})
	if err != ErrValidatorTooLong {
		t.Fatalf("expected ErrValidatorTooLong, got %v", err)
	}
}

func TestRecordRejectsTrailingBytes(t *testing.T) {
	enc := mustEncode(t, Record{InsertedAt: time.Now(), Payload: []byte("x")})
	enc = append(enc, 0xDE, 0xAD)
	if _, err := DecodeRecord(enc); err == nil {
		t.Fatalf("expected error on trailing bytes")
	}
}

func TestRecordCorruptHeadersAndLengths(t *testing.T) {
	enc := mustEncode(t, Record{InsertedAt: time.Now(), Validator: "v1", Payload: []byte("abc")})

	// bad magic
	badMagic := append([]byte(nil), enc...)
	badMagic[0] = 'X'
	if _, err := DecodeRecord(badMagic); err == nil {
		t.Fatalf("expected error on bad magic")
	}

	// wrong version
	badVer := append([]byte(nil), enc...)
	badVer[4] = version + 1
	if _, err := DecodeRecord(badVer); err == nil {
		t.Fatalf("expected error on bad version")
	}

	// wrong kind
	badKind := append([]byte(nil), enc...)
	badKind[5] = kindRecord + 1
	if _, err := DecodeRecord(badKind); err == nil {
		t.Fatalf("expected error on bad kind")
	}

	// validator length beyond buffer
	// vlen sits at 14..16 (4 magic +1 ver +1 kind +8 insertedAt)
	badVlen := append([]byte(nil), enc...)
	binary.BigEndian.PutUint16(badVlen[14:16], 0xFFF0)
	if _, err := DecodeRecord(badVlen); err == nil {
		t.Fatalf("expected error on validator length beyond buffer")
	}

	// payload length beyond buffer
	// plen sits after validator: 16 + len("v1")
	badPlen := append([]byte(nil), enc...)
	binary.BigEndian.PutUint32(badPlen[18:22], uint32(len("abc")+1))
	if _, err := DecodeRecord(badPlen); err == nil {
		t.Fatalf("expected error on plen beyond buffer")
	}

	// truncated buffer
	if _, err := DecodeRecord(enc[:len(enc)-1]); err == nil {
		t.Fatalf("expected error on truncated buffer")
	}
	if _, err := DecodeRecord(enc[:10]); err == nil {
		t.Fatalf("expected error on truncated header")
	}
}

func TestRecordZeroCopyPayload(t *testing.T) {
	enc := mustEncode(t, Record{InsertedAt: time.Now(), Payload: []byte("Z")})
	r := mustDecode(t, enc)
	// mutating the payload slice mutates the underlying buffer (zero-copy)
	r.Payload[0] = 'Q'
	if mustDecode(t, enc).Payload[0] != 'Q' {
		t.Fatalf("expected zero-copy slice into enc buffer")
	}
}

func TestInsertedAtReadsHeaderOnly(t *testing.T) {
	at := time.Unix(1234, 5678)
	enc := mustEncode(t, Record{InsertedAt: at, Payload: []byte("payload")})
	got, err := InsertedAt(enc)
	if err != nil {
		t.Fatalf("InsertedAt: %v", err)
	}
	if !got.Equal(at) {
		t.Fatalf("got %v want %v", got, at)
	}
	if _, err := InsertedAt([]byte("junk")); err == nil {
		t.Fatalf("expected error on junk")
	}
}
