package wire

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"
)

// maxFrameSize bounds a single incoming frame so a corrupt or hostile length
// prefix cannot force an unbounded allocation. WARC files are transferred
// whole, never chunked, so this must comfortably exceed the largest WARC
// this cluster expects to move in one file.
const maxFrameSize = 2 << 30 // 2 GiB

// Encode serializes msg into its wire form: gob-encoded payload, with no
// length prefix (the prefix is added by WriteFrame).
func Encode(msg Message) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(msg); err != nil {
		return nil, fmt.Errorf("wire: encode %s: %w", msg.Verb, err)
	}
	return buf.Bytes(), nil
}

// Decode deserializes a gob payload (as produced by Encode) into a Message.
func Decode(payload []byte) (Message, error) {
	var msg Message
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&msg); err != nil {
		return Message{}, fmt.Errorf("wire: decode: %w", err)
	}
	return msg, nil
}

// WriteFrame writes msg to w as an 8-byte little-endian length prefix
// followed by exactly that many bytes of gob-encoded payload.
func WriteFrame(w io.Writer, msg Message) error {
	payload, err := Encode(msg)
	if err != nil {
		return err
	}
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("wire: write length prefix: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("wire: write payload: %w", err)
	}
	return nil
}

// ReadFrame blocks until one full frame has arrived on r (or returns the
// underlying read error, including io.EOF on clean peer close).
func ReadFrame(r io.Reader) (Message, error) {
	var lenBuf [8]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return Message{}, err
	}
	n := binary.LittleEndian.Uint64(lenBuf[:])
	if n > maxFrameSize {
		return Message{}, fmt.Errorf("wire: frame of %d bytes exceeds max %d", n, maxFrameSize)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Message{}, fmt.Errorf("wire: read payload: %w", err)
	}
	return Decode(payload)
}

// File builds the special file-transfer form: verb, path string, file bytes
// tagged as Blob, then any remaining args — all one framed message. There is
// no chunked streaming: once submitted, the transfer occupies the link for
// its duration, which is acceptable because the socket is already in the
// draining state while a send is in flight.
func File(verb, path string, data []byte, rest ...Value) Message {
	args := append([]Value{Str(path), Blob(data)}, rest...)
	return New(verb, args...)
}
