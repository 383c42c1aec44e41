package render

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/cli/go-gh/v2/pkg/markdown"

	"github.com/markis/gh-coverletter/internal/stream"
)

type TerminalRenderer struct {
	markdown  *glamour.TermRenderer
	plainText bool
	out       io.Writer
	buffer    strings.Builder
	written   int
}

func NewTerminalRenderer(usePlainText bool) *TerminalRenderer {
	return NewTerminalRendererTo(os.Stdout, usePlainText)
}

// NewTerminalRendererTo renders to w instead of stdout.
func NewTerminalRendererTo(w io.Writer, usePlainText bool) *TerminalRenderer {
	var md *glamour.TermRenderer
	if !usePlainText {
		md, _ = glamour.NewTermRenderer(
			markdown.WithWrap(120),
			glamour.WithAutoStyle(),
		)
	}

	return &TerminalRenderer{
		markdown:  md,
		plainText: usePlainText || md == nil,
		out:       w,
	}
}

// Render prints chunks until the channel closes. A stream that completes
// without content yields stream.ErrEmptyResult.
func (t *TerminalRenderer) Render(chunks <-chan stream.Chunk) error {
	for chunk := range chunks {
		if chunk.Error != nil {
			if err := t.flush(); err != nil {
				return err
			}
			return fmt.Errorf("stream error: %w", chunk.Error)
		}
		if chunk.Content == "" {
			continue
		}

		t.written += len(chunk.Content)
		t.buffer.WriteString(chunk.Content)
		content := t.buffer.String()

		if idx := findMarkdownBreakPoint(content); idx > 0 {
			if err := t.renderContent(content[:idx]); err != nil {
				return err
			}
			// Reset buffer with remaining content
			remaining := content[idx:]
			t.buffer.Reset()
			t.buffer.WriteString(remaining)
		}
	}

	if err := t.flush(); err != nil {
		return err
	}
	if t.written == 0 {
		return stream.ErrEmptyResult
	}

	fmt.Fprintln(t.out)
	return nil
}

// flush renders any buffered content.
func (t *TerminalRenderer) flush() error {
	remaining := t.buffer.String()
	t.buffer.Reset()
	if remaining == "" {
		return nil
	}
	return t.renderContent(remaining)
}

func (t *TerminalRenderer) renderContent(content string) error {
	if t.plainText {
		fmt.Fprint(t.out, content)
		return nil
	}

	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "#") {
		fmt.Fprintln(t.out)
	}

	mdContent, err := t.markdown.Render(content)
	if err != nil {
		return fmt.Errorf("failed to render markdown: %w", err)
	}

	fmt.Fprintln(t.out, strings.TrimSpace(mdContent))
	return nil
}

func findMarkdownBreakPoint(content string) int {
	const marker string = "\n\n"
	lastBreak := -1
	idx := strings.LastIndex(content, marker)
	if idx > lastBreak {
		lastBreak = idx + len(marker)
	}
	return lastBreak
}
