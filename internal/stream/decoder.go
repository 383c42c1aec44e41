package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"

	"github.com/charmbracelet/log"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Wire format of a chat completion event stream.
const (
	FrameDelimiter = "\n\n"
	DataPrefix     = "data:"
	DoneSentinel   = "[DONE]"
)

const defaultReadSize = 4096

// Option configures a Decoder.
type Option func(*Decoder)

// WithReadSize sets how many bytes are requested from the body per read.
func WithReadSize(n int) Option {
	return func(d *Decoder) {
		if n > 0 {
			d.readSize = n
		}
	}
}

// WithLogger sets the logger used for skipped frames.
func WithLogger(logger *log.Logger) Option {
	return func(d *Decoder) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// Decoder turns a text/event-stream body into content deltas. A Decoder holds
// no per-stream state and may be shared by concurrent calls to Decode.
type Decoder struct {
	readSize int
	logger   *log.Logger
}

func NewDecoder(opts ...Option) *Decoder {
	d := &Decoder{
		readSize: defaultReadSize,
		logger:   log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Decode reads r until the terminal sentinel, end of data or a read failure
// and reports the outcome through cb. Exactly one of OnDone and OnError is
// invoked unless ctx is cancelled first, in which case no further callbacks
// fire and the context error is returned.
//
// The returned error is nil on completion and the error passed to OnError on
// failure.
func (d *Decoder) Decode(ctx context.Context, r io.Reader, cb Callbacks) error {
	s := &session{ctx: ctx, cb: cb}
	src := transform.NewReader(r, unicode.UTF8BOM.NewDecoder())
	buf := make([]byte, d.readSize)

	delim := []byte(FrameDelimiter)
	// pending holds the unterminated tail; bytes before scan are known to
	// contain no delimiter.
	var pending []byte
	scan := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := src.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			for {
				i := bytes.Index(pending[scan:], delim)
				if i < 0 {
					scan = max(0, len(pending)-len(delim)+1)
					break
				}
				end := scan + i
				frame := string(pending[:end])
				pending = pending[end+len(delim):]
				scan = 0
				if d.handleFrame(s, frame) {
					return s.result()
				}
			}
		}

		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			if len(pending) > 0 {
				d.logger.Debug("discarding unterminated frame", "bytes", len(pending))
			}
			s.done()
			return s.result()
		default:
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			s.fail(&TransportError{Err: err})
			return s.result()
		}
	}
}

// handleFrame dispatches one complete frame and reports whether the stream
// has reached a terminal state.
func (d *Decoder) handleFrame(s *session, frame string) bool {
	payload := framePayload(frame)
	if payload == "" {
		return false
	}
	if payload == DoneSentinel {
		s.done()
		return true
	}

	var resp ChatResponse
	if err := json.Unmarshal([]byte(payload), &resp); err != nil {
		d.logger.Debug("skipping malformed frame", "err", err)
		return false
	}
	if delta := resp.Content(); delta != "" {
		s.chunk(delta)
	}
	return s.ctx.Err() != nil
}

// framePayload concatenates the trimmed remainders of every data line.
func framePayload(frame string) string {
	var payload strings.Builder
	for _, line := range strings.Split(frame, "\n") {
		if line == "" {
			continue
		}
		if rest, ok := strings.CutPrefix(line, DataPrefix); ok {
			payload.WriteString(strings.TrimSpace(rest))
		}
	}
	return payload.String()
}

// session guards the callbacks of one Decode call.
type session struct {
	ctx      context.Context
	cb       Callbacks
	terminal bool
	err      error
}

func (s *session) open() bool {
	return !s.terminal && s.ctx.Err() == nil
}

func (s *session) chunk(delta string) {
	if !s.open() || s.cb.OnChunk == nil {
		return
	}
	s.cb.OnChunk(delta)
}

func (s *session) done() {
	if !s.open() {
		return
	}
	s.terminal = true
	if s.cb.OnDone != nil {
		s.cb.OnDone()
	}
}

func (s *session) fail(err error) {
	if !s.open() {
		return
	}
	s.terminal = true
	s.err = err
	if s.cb.OnError != nil {
		s.cb.OnError(err)
	}
}

func (s *session) result() error {
	if !s.terminal {
		if err := s.ctx.Err(); err != nil {
			return err
		}
	}
	return s.err
}
