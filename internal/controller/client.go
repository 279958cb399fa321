package controller

import (
	"bufio"
	"errors"
	"fmt"

	"github.com/bft-labs/crashprobe/internal/protocol"
)

const pipeBufferSize = 64 << 10

// errUnexpectedResponse marks a well-formed response of the wrong type.
var errUnexpectedResponse = errors.New("controller: unexpected response")

// client speaks the request/response protocol with one worker. Send and
// receive are separate so the killer can be started while a request is in
// flight.
type client struct {
	w *bufio.Writer
	r *bufio.Reader
}

func newClient(p Process) *client {
	return &client{
		w: bufio.NewWriterSize(p.Stdin(), pipeBufferSize),
		r: bufio.NewReaderSize(p.Stdout(), pipeBufferSize),
	}
}

func (c *client) send(req protocol.Request) error {
	if err := protocol.WriteFrame(c.w, req); err != nil {
		return fmt.Errorf("send %v: %w", req, err)
	}
	return nil
}

func (c *client) recv() (protocol.Response, error) {
	resp, err := protocol.ReadResponse(c.r)
	if err != nil {
		return nil, fmt.Errorf("receive: %w", err)
	}
	return resp, nil
}

func (c *client) recvOk() error {
	resp, err := c.recv()
	if err != nil {
		return err
	}
	if _, ok := resp.(protocol.Ok); !ok {
		return fmt.Errorf("%w: want Ok, got %v", errUnexpectedResponse, resp)
	}
	return nil
}

func (c *client) recvData(size int) ([]byte, error) {
	resp, err := c.recv()
	if err != nil {
		return nil, err
	}
	res, ok := resp.(protocol.ReadBytesResult)
	if !ok {
		return nil, fmt.Errorf("%w: want ReadBytesResult, got %v", errUnexpectedResponse, resp)
	}
	if len(res.Data) != size {
		return nil, fmt.Errorf("%w: asked for %d bytes, got %d", errUnexpectedResponse, size, len(res.Data))
	}
	return res.Data, nil
}

// call sends req and expects Ok.
func (c *client) call(req protocol.Request) error {
	if err := c.send(req); err != nil {
		return err
	}
	return c.recvOk()
}

// read fetches size bytes at offset.
func (c *client) read(offset int64, size int) ([]byte, error) {
	if err := c.send(protocol.ReadBytes{Offset: offset, Size: size}); err != nil {
		return nil, err
	}
	return c.recvData(size)
}
