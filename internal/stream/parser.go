package stream

import (
	"io"
)

// Process decodes body and publishes the result on Chunks. The body is closed
// and the channel is closed once decoding stops.
func (p *Parser) Process(body io.ReadCloser) {
	defer close(p.chunks)
	defer func() {
		if err := body.Close(); err != nil {
			p.logger.Warn("failed to close response body", "err", err)
		}
	}()

	_ = p.decoder.Decode(p.ctx, body, p.Callbacks())
}

// Forward runs start with callbacks that publish on Chunks and closes the
// channel when start returns. An error returned by start before any terminal
// chunk was published is delivered as a final error chunk.
func (p *Parser) Forward(start func(Callbacks) error) {
	defer close(p.chunks)

	err := start(p.Callbacks())
	if err == nil || p.ctx.Err() != nil {
		return
	}

	p.mu.Lock()
	sent := p.terminal
	p.mu.Unlock()
	if !sent {
		p.publish(Chunk{Error: err}, true)
	}
}

// Callbacks returns callbacks that publish each event as a Chunk.
func (p *Parser) Callbacks() Callbacks {
	return Callbacks{
		OnChunk: func(delta string) { p.publish(Chunk{Content: delta}, false) },
		OnDone:  func() { p.publish(Chunk{Done: true}, true) },
		OnError: func(err error) { p.publish(Chunk{Error: err}, true) },
	}
}

func (p *Parser) publish(chunk Chunk, terminal bool) {
	if terminal {
		p.mu.Lock()
		p.terminal = true
		p.mu.Unlock()
	}

	select {
	case p.chunks <- chunk:
	case <-p.ctx.Done():
	}
}
