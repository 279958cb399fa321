package storage

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// channelBackend performs positional reads and writes on the data file.
// Interrupted and short transfers are retried until the full range is done.
type channelBackend struct {
	f      *os.File
	fd     int
	cfg    Config
	closed bool
}

func openChannel(path string, cfg Config) (*channelBackend, error) {
	f, err := openSized(path, int64(cfg.MaxCapacity))
	if err != nil {
		return nil, err
	}
	return &channelBackend{f: f, fd: int(f.Fd()), cfg: cfg}, nil
}

func (c *channelBackend) SetBytes(data []byte, offset int64) error {
	if c.closed {
		return ErrClosed
	}
	if err := checkRange(offset, len(data), c.cfg.MaxCapacity); err != nil {
		return err
	}
	return pwriteFull(c.fd, data, offset)
}

func (c *channelBackend) GetBytes(offset int64, size int) ([]byte, error) {
	if c.closed {
		return nil, ErrClosed
	}
	if err := checkRange(offset, size, c.cfg.MaxCapacity); err != nil {
		return nil, err
	}
	out := make([]byte, size)
	if err := preadFull(c.fd, out, offset); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *channelBackend) Flush() error {
	if c.closed {
		return ErrClosed
	}
	return c.f.Sync()
}

func (c *channelBackend) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	return c.f.Close()
}

func (c *channelBackend) PageSize() int    { return c.cfg.PageSize }
func (c *channelBackend) MaxCapacity() int { return c.cfg.MaxCapacity }

func pwriteFull(fd int, data []byte, offset int64) error {
	for len(data) > 0 {
		n, err := unix.Pwrite(fd, data, offset)
		if err != nil {
			if retryable(err) {
				continue
			}
			return fmt.Errorf("pwrite at %d: %w", offset, err)
		}
		if n == 0 {
			return fmt.Errorf("pwrite at %d: no progress", offset)
		}
		data = data[n:]
		offset += int64(n)
	}
	return nil
}

func preadFull(fd int, buf []byte, offset int64) error {
	for len(buf) > 0 {
		n, err := unix.Pread(fd, buf, offset)
		if err != nil {
			if retryable(err) {
				continue
			}
			return fmt.Errorf("pread at %d: %w", offset, err)
		}
		if n == 0 {
			return fmt.Errorf("pread at %d: unexpected end of file", offset)
		}
		buf = buf[n:]
		offset += int64(n)
	}
	return nil
}

func retryable(err error) bool {
	return errors.Is(err, unix.EINTR) || errors.Is(err, unix.EAGAIN)
}
