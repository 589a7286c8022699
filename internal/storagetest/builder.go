// Package storagetest provides a golden-record byte builder and an
// in-memory behavioral model for testing the storage engine without
// duplicating its encode/decode logic in every test.
package storagetest

import (
	"encoding/binary"

	"github.com/calvinalkan/spacepost/internal/storage"
)

// RecordBuilder builds a single on-disk record byte-by-byte, matching the
// layout in spec §3. Start from [NewRecordBuilder] (the zero value has a
// 0x00 delimiter, not [storage.Delimiter]); use the With* methods to inject
// corruption for decode-error tests.
//
// Fields default to a valid record; calling a With* method overrides just
// that field, so a test only states what it's corrupting.
type RecordBuilder struct {
	delimiter     byte
	messageLength uint32
	payloadLength uint16
	text          string

	overrideMessageLength bool
	overridePayloadLength bool
	trailing              []byte
}

// NewRecordBuilder starts a builder for a valid record carrying text.
func NewRecordBuilder(text string) *RecordBuilder {
	return &RecordBuilder{
		delimiter: storage.Delimiter,
		text:      text,
	}
}

// WithDelimiter overrides the leading sanity byte.
func (b *RecordBuilder) WithDelimiter(d byte) *RecordBuilder {
	b.delimiter = d
	return b
}

// WithMessageLength overrides the message_length header field, decoupling
// it from len(payload) — for MESSAGE_SIZE_* corruption tests.
func (b *RecordBuilder) WithMessageLength(n uint32) *RecordBuilder {
	b.messageLength = n
	b.overrideMessageLength = true

	return b
}

// WithPayloadLength overrides the payload's own length prefix, decoupling
// it from len(text) — for MESSAGE_CONTENT_DESER_* corruption tests.
func (b *RecordBuilder) WithPayloadLength(n uint16) *RecordBuilder {
	b.payloadLength = n
	b.overridePayloadLength = true

	return b
}

// WithTrailingBytes appends extra bytes after the record, for FILE_END
// corruption tests.
func (b *RecordBuilder) WithTrailingBytes(extra ...byte) *RecordBuilder {
	b.trailing = append(b.trailing[:0], extra...)
	return b
}

// Bytes assembles the record as it would sit on disk.
func (b *RecordBuilder) Bytes() []byte {
	payloadLength := uint16(len(b.text))
	if b.overridePayloadLength {
		payloadLength = b.payloadLength
	}

	payload := make([]byte, 2+len(b.text))
	binary.BigEndian.PutUint16(payload, payloadLength)
	copy(payload[2:], b.text)

	messageLength := uint32(len(payload))
	if b.overrideMessageLength {
		messageLength = b.messageLength
	}

	out := make([]byte, 0, 1+4+len(payload)+len(b.trailing))
	out = append(out, b.delimiter)

	lenField := make([]byte, 4)
	binary.BigEndian.PutUint32(lenField, messageLength)
	out = append(out, lenField...)

	out = append(out, payload...)
	out = append(out, b.trailing...)

	return out
}
