package connection

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"
)

// Transport frames and deframes protocol messages over a duplex byte stream.
// Reconnection is a consumer concern; a transport ends exactly once.
type Transport interface {
	// Send enqueues one message frame atomically: frames from concurrent
	// senders never interleave. Safe for concurrent use.
	Send(msg json.RawMessage) error

	// Start begins delivering inbound frames to onMessage from a single
	// goroutine, strictly in arrival order. onClose fires exactly once when
	// the stream ends; err is nil on clean shutdown.
	Start(onMessage func(msg json.RawMessage), onClose func(err error))

	// Close tears down the underlying stream.
	Close() error
}

// maxFrameSize bounds a single frame. Screenshots and tracing payloads can be
// large, so the cap is generous; anything bigger indicates stream corruption.
const maxFrameSize = 1 << 28

// PipeTransport speaks the driver's native stdio framing: each message is a
// 4-byte little-endian length followed by that many bytes of JSON.
type PipeTransport struct {
	log    *zap.SugaredLogger
	reader io.Reader
	writer io.Writer

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    chan struct{}
}

type PipeOption func(t *PipeTransport)

func WithPipeLogger(l *zap.Logger) PipeOption {
	return func(t *PipeTransport) {
		t.log = l.Named("pipe_transport").Sugar()
	}
}

// NewPipeTransport wraps a duplex byte stream, typically the driver
// subprocess's stdout (r) and stdin (w). Call Start to begin reading.
func NewPipeTransport(r io.Reader, w io.Writer, opts ...PipeOption) *PipeTransport {
	t := &PipeTransport{
		log:    zap.NewNop().Sugar(),
		reader: r,
		writer: w,
		closed: make(chan struct{}),
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

func (t *PipeTransport) Send(msg json.RawMessage) error {
	if len(msg) > maxFrameSize {
		return fmt.Errorf("frame of %d bytes exceeds limit", len(msg))
	}
	var header [4]byte
	binary.LittleEndian.PutUint32(header[:], uint32(len(msg)))

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	select {
	case <-t.closed:
		return ErrTransportClosed
	default:
	}
	if _, err := t.writer.Write(header[:]); err != nil {
		return fmt.Errorf("writing frame header: %w", err)
	}
	if _, err := t.writer.Write(msg); err != nil {
		return fmt.Errorf("writing frame body: %w", err)
	}
	t.log.Debugw("sent frame", "Bytes", len(msg))
	return nil
}

func (t *PipeTransport) Start(onMessage func(json.RawMessage), onClose func(error)) {
	go t.readLoop(onMessage, onClose)
}

func (t *PipeTransport) readLoop(onMessage func(json.RawMessage), onClose func(error)) {
	for {
		var header [4]byte
		if _, err := io.ReadFull(t.reader, header[:]); err != nil {
			onClose(t.closeCause(err))
			return
		}
		n := binary.LittleEndian.Uint32(header[:])
		if n > maxFrameSize {
			onClose(fmt.Errorf("inbound frame of %d bytes exceeds limit", n))
			return
		}
		buf := make([]byte, n)
		if _, err := io.ReadFull(t.reader, buf); err != nil {
			onClose(fmt.Errorf("reading frame body: %w", err))
			return
		}
		t.log.Debugw("received frame", "Bytes", n)
		onMessage(buf)
	}
}

// closeCause maps an expected end-of-stream to a clean close. A local Close
// also surfaces as a read error on the pipe; that isn't a failure either.
func (t *PipeTransport) closeCause(err error) error {
	select {
	case <-t.closed:
		return nil
	default:
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
		return nil
	}
	return err
}

func (t *PipeTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.closed)
		if c, ok := t.writer.(io.Closer); ok {
			err = c.Close()
		}
		if c, ok := t.reader.(io.Closer); ok {
			if cerr := c.Close(); err == nil {
				err = cerr
			}
		}
	})
	return err
}
