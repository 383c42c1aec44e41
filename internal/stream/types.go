package stream

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/charmbracelet/log"
)

// Chunk represents a processed piece of content from the stream
type Chunk struct {
	Content string
	Done    bool
	Error   error
}

// Callbacks receive the output of a single stream. Nil members are no-ops.
type Callbacks struct {
	OnChunk func(delta string)
	OnDone  func()
	OnError func(err error)
}

// ChatResponse is the subset of a chat completion payload the decoder reads.
// Pointers distinguish an absent field from an empty one.
type ChatResponse struct {
	Choices []*Choice `json:"choices"`
}

// Choice holds the content fields of one completion choice.
type Choice struct {
	Delta   *MessageContent `json:"delta"`
	Message *MessageContent `json:"message"`
}

// MessageContent is a delta or message object.
type MessageContent struct {
	Content *string `json:"content"`
}

// UnmarshalJSON reads the payload field by field. A field of an unexpected
// type is treated as absent instead of failing the whole payload, so only
// invalid JSON is rejected.
func (r *ChatResponse) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(objectField(data, "choices"), &raw); err != nil {
		r.Choices = nil
		return nil
	}

	r.Choices = make([]*Choice, len(raw))
	for i, item := range raw {
		fields := objectFields(item)
		if fields == nil {
			continue
		}
		r.Choices[i] = &Choice{
			Delta:   messageContent(fields["delta"]),
			Message: messageContent(fields["message"]),
		}
	}
	return nil
}

func messageContent(data json.RawMessage) *MessageContent {
	fields := objectFields(data)
	if fields == nil {
		return nil
	}
	var content *string
	if raw, ok := fields["content"]; ok {
		if err := json.Unmarshal(raw, &content); err != nil {
			content = nil
		}
	}
	return &MessageContent{Content: content}
}

// objectFields returns the members of a JSON object, or nil for any other
// value.
func objectFields(data json.RawMessage) map[string]json.RawMessage {
	if len(data) == 0 {
		return nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil
	}
	return fields
}

func objectField(data []byte, key string) json.RawMessage {
	return objectFields(data)[key]
}

// Content returns the first choice's streaming delta, falling back to the
// complete message content.
func (r *ChatResponse) Content() string {
	if len(r.Choices) == 0 || r.Choices[0] == nil {
		return ""
	}
	choice := r.Choices[0]
	if choice.Delta != nil && choice.Delta.Content != nil {
		return *choice.Delta.Content
	}
	if choice.Message != nil && choice.Message.Content != nil {
		return *choice.Message.Content
	}
	return ""
}

// Parser publishes decoded stream output on a channel of chunks
type Parser struct {
	ctx     context.Context
	chunks  chan Chunk
	decoder *Decoder
	logger  *log.Logger

	mu       sync.Mutex
	terminal bool
}

func NewParser(ctx context.Context, opts ...Option) *Parser {
	d := NewDecoder(opts...)
	return &Parser{
		ctx:     ctx,
		chunks:  make(chan Chunk),
		decoder: d,
		logger:  d.logger,
	}
}

func (p *Parser) Chunks() <-chan Chunk {
	return p.chunks
}
