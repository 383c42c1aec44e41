// Package app runs the parsed command: it ties the vacancy, prompt,
// completions client and terminal renderer together.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/markis/gh-coverletter/internal/args"
	"github.com/markis/gh-coverletter/internal/client"
	"github.com/markis/gh-coverletter/internal/config"
	"github.com/markis/gh-coverletter/internal/prompt"
	"github.com/markis/gh-coverletter/internal/render"
	"github.com/markis/gh-coverletter/internal/stream"
	"github.com/markis/gh-coverletter/internal/vacancy"
)

const maxVariant = 99999

// App executes commands against a loaded configuration.
type App struct {
	Config *config.Config
	Logger *log.Logger
	Out    io.Writer

	// Variant picks the regeneration number sent with the prompt.
	Variant func() int
}

func New(cfg *config.Config, l *log.Logger) *App {
	return &App{
		Config:  cfg,
		Logger:  l,
		Out:     os.Stdout,
		Variant: func() int { return rand.IntN(maxVariant) },
	}
}

// Run dispatches on the parsed action.
func (a *App) Run(ctx context.Context, in args.Arguments) error {
	switch in.Action {
	case args.ActionListModels:
		return a.ListModels(ctx)
	case args.ActionConfigGet:
		value, err := a.Config.Get(in.ConfigKey)
		if err != nil {
			return err
		}
		fmt.Fprintln(a.Out, value)
		return nil
	case args.ActionConfigSet:
		if err := a.Config.Set(in.ConfigKey, in.ConfigValue); err != nil {
			return err
		}
		if err := a.Config.Save(); err != nil {
			return err
		}
		a.Logger.Info("setting saved", "key", in.ConfigKey, "path", a.Config.Path())
		return nil
	default:
		return a.Generate(ctx, in)
	}
}

// ListModels prints one model id per line.
func (a *App) ListModels(ctx context.Context) error {
	models, err := client.FromConfig(a.Config, a.Logger).Models(ctx)
	if err != nil {
		return fmt.Errorf("failed to list models: %w", err)
	}
	for _, m := range models {
		marker := "  "
		if m.ID == a.Config.Model {
			marker = "* "
		}
		fmt.Fprintln(a.Out, marker+m.ID)
	}
	return nil
}

// Generate streams a cover letter for the vacancy named by in.
func (a *App) Generate(ctx context.Context, in args.Arguments) error {
	job, err := a.loadJob(ctx, in)
	if err != nil {
		return err
	}

	base, err := a.baseLetter(in.BaseFile)
	if err != nil {
		return err
	}

	messages := prompt.Messages(base, job, a.Variant())
	if len(in.Instructions) > 0 {
		user := &messages[len(messages)-1]
		user.Content += "\n\n" + strings.Join(in.Instructions, "\n")
	}

	req := client.ChatRequest{
		Model:       firstNonEmpty(in.Model, a.Config.Model),
		Temperature: config.ClampTemperature(in.Temperature),
		MaxTokens:   in.MaxTokens,
		Messages:    messages,
	}
	if req.MaxTokens <= 0 {
		req.MaxTokens = a.Config.MaxTokens
	}

	c := client.FromConfig(a.Config, a.Logger)
	a.Logger.Info("generating cover letter", "vacancy", job.Title, "model", req.Model)

	// Stops the producer if rendering gives up before the stream ends.
	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	parser := stream.NewParser(streamCtx, stream.WithLogger(a.Logger))
	go parser.Forward(func(cb stream.Callbacks) error {
		return c.Generate(streamCtx, req, cb)
	})

	renderErr := render.NewTerminalRendererTo(a.Out, in.UsePlainText).Render(parser.Chunks())
	if err := ctx.Err(); err != nil {
		return err
	}
	if errors.Is(renderErr, stream.ErrEmptyResult) {
		a.Logger.Warn("the model returned an empty response")
		return renderErr
	}
	if renderErr != nil {
		return renderErr
	}

	a.Logger.Info("cover letter ready")
	return nil
}

func (a *App) loadJob(ctx context.Context, in args.Arguments) (prompt.Job, error) {
	switch {
	case in.Page != "":
		return vacancy.Parse(strings.NewReader(in.Page), "")
	case strings.HasPrefix(in.Source, "http://"), strings.HasPrefix(in.Source, "https://"):
		return vacancy.Fetch(ctx, in.Source)
	default:
		return vacancy.FromFile(in.Source)
	}
}

func (a *App) baseLetter(path string) (string, error) {
	if path == "" {
		return a.Config.BaseLetter, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read base letter: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
