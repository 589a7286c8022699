package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// RecordCodec encodes and decodes a single SpacePost record using the
// fixed binary layout from spec §3:
//
//	offset 0: DELIM byte (0xD9)
//	offset 1: message_length, u32 BE (= payload_length + 2)
//	offset 5: payload_length, u16 BE
//	offset 7: payload_length bytes of raw text
//
// RecordCodec has no I/O policy of its own: every branch returns a typed
// [WriteError]/[ReadError] rather than aborting, per spec §9's
// "early-return instead of throw/catch" redesign.
type RecordCodec struct {
	// bufferCapacity bounds message_length on both encode and decode (spec
	// §4.2 step 3, §6 MESSAGE_SIZE_EXCEEDS_BUFFER) so nothing Encode
	// accepts can ever be rejected by a Decode call against the same
	// configuration. It is sized to the largest serialized payload the
	// codec will ever accept: MaxTextLen plus the payload's own 2-byte
	// length prefix.
	bufferCapacity uint32
}

// NewRecordCodec returns a codec that accepts payloads serializing to at
// most maxTextLen+2 bytes.
func NewRecordCodec(maxTextLen uint32) *RecordCodec {
	return &RecordCodec{bufferCapacity: maxTextLen + payloadLengthSize}
}

// Encode writes one record for post to w, in order: delimiter,
// message_length, payload_length+text. Every write is individually
// classified per spec §4.2. A payload whose message_length exceeds the
// codec's bufferCapacity is rejected before anything is written, so a
// record that could never be read back by a codec of the same
// configuration is never stored in the first place.
//
// An assertion (not a returned error — spec §4.2, §7: "a programmer
// error, not a runtime error") enforces that the payload's serialized
// length matches what MarshalPayload's own length prefix announces;
// SpacePost.MarshalPayload always satisfies this by construction, so the
// assertion exists to catch a future payload type that doesn't.
func (c *RecordCodec) Encode(w io.Writer, post SpacePost) error {
	payload, err := post.MarshalPayload()
	if err != nil {
		// Not one of the wire-documented write stages: this is a
		// pre-flight validation failure (e.g. text too long), surfaced
		// at the MESSAGE_CONTENT_WRITE stage since that's the first
		// point the content would otherwise have been written.
		return &WriteError{Stage: WriteStageMessageContentWrite, Code: statusUnknown, Err: err}
	}

	messageLength := len(payload)
	if messageLength <= 0 || messageLength > 0xFFFFFFFF {
		panic(fmt.Sprintf("storage: codec assertion failed: message_length %d out of range", messageLength))
	}

	if announced := payloadLengthSize + int(binary.BigEndian.Uint16(payload)); announced != messageLength {
		panic(fmt.Sprintf("storage: codec assertion failed: payload prefix announces %d bytes, serialized %d", announced, messageLength))
	}

	if uint32(messageLength) > c.bufferCapacity {
		return &WriteError{Stage: WriteStageMessageSizeExceedsBuffer, Code: uint32(messageLength)}
	}

	if n, err := writeExact(w, []byte{Delimiter}); err != nil {
		return &WriteError{Stage: WriteStageDelimiterWrite, Code: ioStatusCode(err), Err: err}
	} else if n != 1 {
		return &WriteError{Stage: WriteStageDelimiterSize, Code: uint32(n)}
	}

	lenBuf := make([]byte, messageLengthSize)
	binary.BigEndian.PutUint32(lenBuf, uint32(messageLength))

	if n, err := writeExact(w, lenBuf); err != nil {
		return &WriteError{Stage: WriteStageMessageSizeWrite, Code: ioStatusCode(err), Err: err}
	} else if n != len(lenBuf) {
		return &WriteError{Stage: WriteStageMessageSizeSize, Code: uint32(n)}
	}

	if n, err := writeExact(w, payload); err != nil {
		return &WriteError{Stage: WriteStageMessageContentWrite, Code: ioStatusCode(err), Err: err}
	} else if n != len(payload) {
		return &WriteError{Stage: WriteStageMessageContentSize, Code: uint32(n)}
	}

	return nil
}

// writeExact hands p to a single Write call (no retry on a short write),
// returning however many bytes actually landed even on error or a short
// write — the caller classifies *_WRITE vs *_SIZE from that.
func writeExact(w io.Writer, p []byte) (int, error) {
	return w.Write(p)
}

// Decode reads and validates one record from r, following spec §4.2's six
// steps in order, returning the decoded SpacePost or a classified
// [ReadError].
func (c *RecordCodec) Decode(r io.Reader) (SpacePost, error) {
	// Step 1: delimiter.
	var delimBuf [1]byte

	n, err := io.ReadFull(r, delimBuf[:])
	if err != nil {
		return SpacePost{}, &ReadError{Stage: ReadStageDelimiterSize, Code: uint32(n), Err: err}
	}

	if delimBuf[0] != Delimiter {
		return SpacePost{}, &ReadError{Stage: ReadStageDelimiterContent, Code: uint32(delimBuf[0])}
	}

	// Step 2: message_length.
	lenBuf := make([]byte, messageLengthSize)

	n, err = io.ReadFull(r, lenBuf)
	if err != nil {
		return SpacePost{}, &ReadError{Stage: ReadStageMessageSizeSize, Code: uint32(n), Err: err}
	}

	messageLength := binary.BigEndian.Uint32(lenBuf)

	// Step 3: bounds check message_length.
	if messageLength > c.bufferCapacity {
		return SpacePost{}, &ReadError{Stage: ReadStageMessageSizeExceedsBuffer, Code: messageLength}
	}

	if messageLength == 0 {
		// Matches spec §9 open question 2: the zero-check is on
		// message_length, not payload_length.
		return SpacePost{}, &ReadError{Stage: ReadStageMessageSizeZero, Code: 0}
	}

	// Step 4: read message_length bytes into a buffer of exactly that size
	// (step 3 already bounded it by bufferCapacity).
	content := make([]byte, messageLength)

	n, err = io.ReadFull(r, content)
	if err != nil {
		return SpacePost{}, &ReadError{Stage: ReadStageMessageContentSize, Code: uint32(n), Err: err}
	}

	// Step 5: deserialize the payload from that buffer.
	post, err := UnmarshalPayload(content)
	if err != nil {
		if errors.Is(err, errPayloadLengthMismatch) {
			return SpacePost{}, &ReadError{Stage: ReadStageMessageContentDeserReadLength, Code: statusUnknown, Err: err}
		}

		return SpacePost{}, &ReadError{Stage: ReadStageMessageContentDeserExcecute, Code: statusUnknown, Err: err}
	}

	// Step 6: confirm there's nothing left in the file.
	var trailing [1]byte

	n, err = r.Read(trailing[:])
	if n != 0 || (err != nil && !errors.Is(err, io.EOF)) {
		return SpacePost{}, &ReadError{Stage: ReadStageFileEnd, Code: uint32(n), Err: err}
	}

	return post, nil
}
