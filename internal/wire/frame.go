package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

/*
Фрейм состоит из:

Стартовый байт (1 byte), всегда 42
Длина полезной нагрузки (2 bytes, big endian)
JSON (ровно столько байт, сколько указано в длине)
*/

// размеры в байтах
const (
	StartMarker byte = 42

	// StartMarker (1) + PayloadLen (2)
	HeaderSize = 1 + 2

	MaxPayloadSize = math.MaxUint16
)

// ReadFrame reads one frame and returns its payload.
func ReadFrame(r io.Reader) ([]byte, error) {
	header := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFrameHeaderIncomplete, err)
	}

	if header[0] != StartMarker {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidFrameStart, header[0])
	}

	payloadLen := binary.BigEndian.Uint16(header[1:])

	payload := make([]byte, payloadLen)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf(
			"%w: declared %d bytes: %w",
			ErrFramePayloadIncomplete,
			payloadLen,
			err,
		)
	}

	return payload, nil
}

// AppendFrame prepends the frame header to payload.
func AppendFrame(dst []byte, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrResponseTooLarge, len(payload))
	}

	dst = append(dst, StartMarker, 0, 0)
	binary.BigEndian.PutUint16(dst[len(dst)-2:], uint16(len(payload)))
	return append(dst, payload...), nil
}

// WriteFrame writes payload as a single frame.
func WriteFrame(w io.Writer, payload []byte) error {
	framed, err := AppendFrame(make([]byte, 0, HeaderSize+len(payload)), payload)
	if err != nil {
		return err
	}

	if _, err := io.Copy(w, bytes.NewReader(framed)); err != nil {
		return fmt.Errorf("io.Copy: %w", err)
	}

	return nil
}
