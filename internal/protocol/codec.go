package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
)

// MaxFrameSize bounds the body length accepted by ReadFrame.
const MaxFrameSize = 256 << 20

const lengthPrefixSize = 4

type flusher interface {
	Flush() error
}

// Encode serializes a message body (tag and fields, without the length prefix).
func Encode(msg Message) []byte {
	switch m := msg.(type) {
	case SetBytes:
		buf := make([]byte, 1+8+len(m.Data))
		buf[0] = tagSetBytes
		binary.BigEndian.PutUint64(buf[1:], uint64(m.Offset))
		copy(buf[9:], m.Data)
		return buf
	case ReadBytes:
		buf := make([]byte, 1+8+4)
		buf[0] = tagReadBytes
		binary.BigEndian.PutUint64(buf[1:], uint64(m.Offset))
		binary.BigEndian.PutUint32(buf[9:], uint32(m.Size))
		return buf
	case ReadBytesResult:
		buf := make([]byte, 1+len(m.Data))
		buf[0] = tagReadBytesResult
		copy(buf[1:], m.Data)
		return buf
	default:
		return []byte{msg.tag()}
	}
}

// Decode parses a message body produced by Encode.
func Decode(body []byte) (Message, error) {
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrCorruptFrame)
	}
	tag, fields := body[0], body[1:]
	switch tag {
	case tagSetBytes:
		if len(fields) < 8 {
			return nil, fmt.Errorf("%w: SetBytes body of %d bytes", ErrCorruptFrame, len(body))
		}
		data := make([]byte, len(fields)-8)
		copy(data, fields[8:])
		return SetBytes{Offset: int64(binary.BigEndian.Uint64(fields)), Data: data}, nil
	case tagReadBytes:
		if len(fields) != 12 {
			return nil, fmt.Errorf("%w: ReadBytes body of %d bytes", ErrCorruptFrame, len(body))
		}
		return ReadBytes{
			Offset: int64(binary.BigEndian.Uint64(fields)),
			Size:   int(binary.BigEndian.Uint32(fields[8:])),
		}, nil
	case tagReadBytesResult:
		data := make([]byte, len(fields))
		copy(data, fields)
		return ReadBytesResult{Data: data}, nil
	case tagFlush, tagClose, tagOk:
		if len(fields) != 0 {
			return nil, fmt.Errorf("%w: tag 0x%02x with %d trailing bytes", ErrCorruptFrame, tag, len(fields))
		}
		switch tag {
		case tagFlush:
			return Flush{}, nil
		case tagClose:
			return Close{}, nil
		}
		return Ok{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown tag 0x%02x", ErrCorruptFrame, tag)
	}
}

// WriteFrame writes msg as a single length-prefixed frame and flushes w if it
// buffers.
func WriteFrame(w io.Writer, msg Message) error {
	body := Encode(msg)
	frame := make([]byte, lengthPrefixSize+len(body))
	binary.BigEndian.PutUint32(frame, uint32(len(body)))
	copy(frame[lengthPrefixSize:], body)

	if _, err := w.Write(frame); err != nil {
		return err
	}
	if f, ok := w.(flusher); ok {
		return f.Flush()
	}
	return nil
}

// ReadFrame reads one frame. It returns ErrEndOfStream if the stream ends
// before any byte of the frame, and ErrTruncatedFrame if it ends inside one.
func ReadFrame(r io.Reader) (Message, error) {
	var prefix [lengthPrefixSize]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		switch err {
		case io.EOF:
			return nil, ErrEndOfStream
		case io.ErrUnexpectedEOF:
			return nil, fmt.Errorf("%w: length prefix", ErrTruncatedFrame)
		}
		return nil, err
	}

	length := binary.BigEndian.Uint32(prefix[:])
	if length > MaxFrameSize {
		return nil, fmt.Errorf("%w: length %d exceeds %d", ErrCorruptFrame, length, MaxFrameSize)
	}

	body := make([]byte, length)
	if n, err := io.ReadFull(r, body); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, fmt.Errorf("%w: got %d of %d body bytes", ErrTruncatedFrame, n, length)
		}
		return nil, err
	}
	return Decode(body)
}

// ReadRequest reads a frame that must carry a Request.
func ReadRequest(r io.Reader) (Request, error) {
	msg, err := ReadFrame(r)
	if err != nil {
		return nil, err
	}
	req, ok := msg.(Request)
	if !ok {
		return nil, fmt.Errorf("%w: expected request, got %v", ErrCorruptFrame, msg)
	}
	return req, nil
}

// ReadResponse reads a frame that must carry a Response.
func ReadResponse(r io.Reader) (Response, error) {
	msg, err := ReadFrame(r)
	if err != nil {
		return nil, err
	}
	resp, ok := msg.(Response)
	if !ok {
		return nil, fmt.Errorf("%w: expected response, got %v", ErrCorruptFrame, msg)
	}
	return resp, nil
}
