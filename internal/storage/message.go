// Package storage implements the MessageStorage engine: the durable,
// append-only, one-file-per-record store of SpacePosts.
package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrTextTooLong is returned by [SpacePost.MarshalPayload] when the text
// exceeds what a uint16 payload-length prefix can express. The configured
// MaxTextLen is enforced separately by [RecordCodec.Encode], which reports
// it as a MESSAGE_SIZE_EXCEEDS_BUFFER [WriteError].
var ErrTextTooLong = errors.New("storage: spacepost text too long")

// SpacePost is the single message type this engine persists: a bounded
// text string. The Engine does not know about any richer shape — it only
// ever serializes and deserializes SpacePost values through the payload
// contract below.
type SpacePost struct {
	Text string
}

// payloadLengthSize is the width, in bytes, of the payload's own
// length-prefix field (offset 5 in the on-disk record, see spec §3).
const payloadLengthSize = 2

// MarshalPayload serializes p into the "payload" the record codec embeds
// after the message_length field: a 2-byte big-endian length prefix
// followed by the raw text bytes.
func (p SpacePost) MarshalPayload() ([]byte, error) {
	if len(p.Text) > math.MaxUint16 {
		return nil, fmt.Errorf("%w: %d bytes", ErrTextTooLong, len(p.Text))
	}

	buf := make([]byte, payloadLengthSize+len(p.Text))
	binary.BigEndian.PutUint16(buf, uint16(len(p.Text)))
	copy(buf[payloadLengthSize:], p.Text)

	return buf, nil
}

// errPayloadLengthMismatch distinguishes "the length prefix inside the payload
// doesn't match what's actually there" from other decode failures, so the
// codec can classify it per spec §4.2 step 5.
var errPayloadLengthMismatch = errors.New("storage: payload length prefix mismatch")

// UnmarshalPayload is the inverse of [SpacePost.MarshalPayload]. buf is the
// exact message_length-sized buffer the codec read from disk; any bytes
// left over after the declared payload length is consumed are rejected as
// a length mismatch (spec §4.2 step 5: "any trailing unconsumed bytes").
func UnmarshalPayload(buf []byte) (SpacePost, error) {
	if len(buf) < payloadLengthSize {
		return SpacePost{}, fmt.Errorf("%w: buffer shorter than length prefix", errPayloadLengthMismatch)
	}

	textLen := binary.BigEndian.Uint16(buf)
	want := payloadLengthSize + int(textLen)

	if want != len(buf) {
		return SpacePost{}, fmt.Errorf("%w: declared %d, have %d", errPayloadLengthMismatch, want, len(buf))
	}

	return SpacePost{Text: string(buf[payloadLengthSize:])}, nil
}
