package protocol

import "fmt"

const (
	tagSetBytes        byte = 0x01
	tagReadBytes       byte = 0x02
	tagFlush           byte = 0x03
	tagClose           byte = 0x04
	tagOk              byte = 0x81
	tagReadBytesResult byte = 0x82
)

// Message is any frame payload. The set of implementations is closed.
type Message interface {
	tag() byte
}

// Request is a message sent by the controller.
type Request interface {
	Message
	isRequest()
}

// Response is a message sent by the worker.
type Response interface {
	Message
	isResponse()
}

// SetBytes writes Data at Offset.
type SetBytes struct {
	Offset int64
	Data   []byte
}

// ReadBytes requests Size bytes starting at Offset.
type ReadBytes struct {
	Offset int64
	Size   int
}

// Flush forces backend buffers to stable storage.
type Flush struct{}

// Close shuts the worker down cleanly.
type Close struct{}

// Ok acknowledges SetBytes, Flush and Close.
type Ok struct{}

// ReadBytesResult carries the bytes answering a ReadBytes request.
type ReadBytesResult struct {
	Data []byte
}

func (SetBytes) tag() byte        { return tagSetBytes }
func (ReadBytes) tag() byte       { return tagReadBytes }
func (Flush) tag() byte           { return tagFlush }
func (Close) tag() byte           { return tagClose }
func (Ok) tag() byte              { return tagOk }
func (ReadBytesResult) tag() byte { return tagReadBytesResult }

func (SetBytes) isRequest()  {}
func (ReadBytes) isRequest() {}
func (Flush) isRequest()     {}
func (Close) isRequest()     {}

func (Ok) isResponse()              {}
func (ReadBytesResult) isResponse() {}

func (m SetBytes) String() string {
	return fmt.Sprintf("SetBytes(offset=%d, len=%d)", m.Offset, len(m.Data))
}

func (m ReadBytes) String() string {
	return fmt.Sprintf("ReadBytes(offset=%d, size=%d)", m.Offset, m.Size)
}

func (Flush) String() string { return "Flush" }
func (Close) String() string { return "Close" }
func (Ok) String() string    { return "Ok" }

func (m ReadBytesResult) String() string {
	return fmt.Sprintf("ReadBytesResult(len=%d)", len(m.Data))
}
