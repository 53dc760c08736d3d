package ipc

import (
	"bytes"
	"errors"
	"testing"
)

func TestWriteReadFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte(`{"type":"request","id":"1","method":"process_input"}`)

	if err := WriteFrame(&buf, payload); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	got, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("round trip mismatch: got %q want %q", got, payload)
	}
}

func TestReadFrameExactlyMaxPayload(t *testing.T) {
	var buf bytes.Buffer
	payload := bytes.Repeat([]byte{'a'}, MaxPayloadBytes)

	if err := WriteFrame(&buf, payload); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	got, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame at max size: %v", err)
	}
	if len(got) != MaxPayloadBytes {
		t.Errorf("got %d bytes, want %d", len(got), MaxPayloadBytes)
	}
}

func TestWriteFrameRejectsOversizedPayload(t *testing.T) {
	var buf bytes.Buffer
	payload := bytes.Repeat([]byte{'a'}, MaxPayloadBytes+1)

	err := WriteFrame(&buf, payload)
	if !errors.Is(err, ErrOversizedFrame) {
		t.Errorf("expected ErrOversizedFrame, got %v", err)
	}
}

func TestReadFrameRejectsOversizedLengthPrefix(t *testing.T) {
	var buf bytes.Buffer
	writeLen(&buf, MaxPayloadBytes+1)
	buf.Write(bytes.Repeat([]byte{'a'}, 10))

	_, err := ReadFrame(&buf)
	if !errors.Is(err, ErrOversizedFrame) {
		t.Errorf("expected ErrOversizedFrame, got %v", err)
	}
}

func TestReadFrameRejectsZeroLength(t *testing.T) {
	var buf bytes.Buffer
	writeLen(&buf, 0)

	_, err := ReadFrame(&buf)
	if !errors.Is(err, ErrEmptyFrame) {
		t.Errorf("expected ErrEmptyFrame, got %v", err)
	}
}

func TestReadFrameCleanEOFBeforeLengthIsClosed(t *testing.T) {
	var buf bytes.Buffer // empty: zero-length read, treated as EOF not looped

	_, err := ReadFrame(&buf)
	if !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed on empty reader, got %v", err)
	}
}

func TestReadFramePartialLengthIsError(t *testing.T) {
	r := bytes.NewReader([]byte{0x01, 0x02}) // only 2 of 4 length bytes

	_, err := ReadFrame(r)
	if err == nil {
		t.Fatal("expected error on partial length prefix")
	}
	if errors.Is(err, ErrClosed) {
		t.Errorf("partial length prefix should not be reported as a clean close: %v", err)
	}
}

func TestReadFrameTruncatedBodyIsError(t *testing.T) {
	var buf bytes.Buffer
	writeLen(&buf, 10)
	buf.Write([]byte("short")) // only 5 of 10 declared bytes

	_, err := ReadFrame(&buf)
	if err == nil {
		t.Fatal("expected error on truncated body")
	}
}

func writeLen(buf *bytes.Buffer, n uint32) {
	var lenBuf [4]byte
	nativeOrder.PutUint32(lenBuf[:], n)
	buf.Write(lenBuf[:])
}
