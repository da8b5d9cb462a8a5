package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Frame kinds carried by WSSession.
const (
	frameMessage byte = 0x01 // one-way payload
	frameRequest byte = 0x02 // payload expecting a reply
	frameReply   byte = 0x03 // reply to a request, same id
)

const (
	frameHeaderSize = 9       // | 1B kind | 8B big-endian id |
	maxFrameSize    = 1 << 20 // 1 MiB
)

type frame struct {
	kind    byte
	id      uint64
	payload []byte
}

// encodeFrame lays out | 1B kind | 8B big-endian id | payload... |
func encodeFrame(f frame) ([]byte, error) {
	if len(f.payload) > maxFrameSize-frameHeaderSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, len(f.payload), maxFrameSize-frameHeaderSize)
	}
	buf := make([]byte, frameHeaderSize+len(f.payload))
	buf[0] = f.kind
	binary.BigEndian.PutUint64(buf[1:frameHeaderSize], f.id)
	copy(buf[frameHeaderSize:], f.payload)
	return buf, nil
}

func decodeFrame(b []byte) (frame, error) {
	if len(b) < frameHeaderSize {
		return frame{}, errors.New("short frame")
	}
	if len(b) > maxFrameSize {
		return frame{}, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, len(b), maxFrameSize)
	}
	kind := b[0]
	switch kind {
	case frameMessage, frameRequest, frameReply:
	default:
		return frame{}, fmt.Errorf("unknown frame kind 0x%02x", kind)
	}
	return frame{
		kind:    kind,
		id:      binary.BigEndian.Uint64(b[1:frameHeaderSize]),
		payload: b[frameHeaderSize:],
	}, nil
}
