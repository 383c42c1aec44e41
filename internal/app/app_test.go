package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markis/gh-coverletter/internal/args"
	"github.com/markis/gh-coverletter/internal/client"
	"github.com/markis/gh-coverletter/internal/config"
	"github.com/markis/gh-coverletter/internal/logger"
	"github.com/markis/gh-coverletter/internal/stream"
)

const vacancyPage = `<h1 data-qa="vacancy-title">Аналитик</h1>
<div data-qa="vacancy-description">Нужна внимательность.</div>`

func newTestApp(t *testing.T, apiURL string) (*App, *bytes.Buffer) {
	t.Helper()
	t.Setenv(config.APIKeyEnv, "")

	cfg := config.Default()
	cfg.BaseURL = apiURL
	cfg.APIKey = "key"

	var out bytes.Buffer
	a := New(cfg, logger.Discard())
	a.Out = &out
	a.Variant = func() int { return 7 }
	return a, &out
}

func writeVacancy(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vacancy.html")
	require.NoError(t, os.WriteFile(path, []byte(vacancyPage), 0o600))
	return path
}

func TestGenerate(t *testing.T) {
	var got client.ChatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(
			"data: {\"choices\":[{\"delta\":{\"content\":\"Здравствуйте! \"}}]}\n\n" +
				"data: {\"choices\":[{\"delta\":{\"content\":\"Меня заинтересовала ваша вакансия.\"}}]}\n\n" +
				"data: [DONE]\n\n"))
	}))
	defer server.Close()

	a, out := newTestApp(t, server.URL)
	err := a.Generate(context.Background(), args.Arguments{
		Source:       writeVacancy(t),
		Model:        "m",
		Temperature:  0.9,
		MaxTokens:    100,
		Instructions: []string{"Пиши кратко."},
		UsePlainText: true,
	})

	require.NoError(t, err)
	assert.Equal(t, "Здравствуйте! Меня заинтересовала ваша вакансия.\n", out.String())

	assert.Equal(t, "m", got.Model)
	assert.True(t, got.Stream)
	assert.InDelta(t, config.MaxTemperature, got.Temperature, 1e-9)
	assert.Equal(t, 100, got.MaxTokens)
	require.Len(t, got.Messages, 2)
	assert.Contains(t, got.Messages[1].Content, "ВАКАНСИЯ: Аналитик")
	assert.Contains(t, got.Messages[1].Content, "ЗАПРОШЕННЫЕ КАЧЕСТВА: внимательн")
	assert.Contains(t, got.Messages[1].Content, "Вариант №7.")
	assert.True(t, strings.HasSuffix(got.Messages[1].Content, "Пиши кратко."))
}

func TestGenerate_PipedPage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("data: {\"choices\":[{\"message\":{\"content\":\"ok\"}}]}\n\n"))
	}))
	defer server.Close()

	a, out := newTestApp(t, server.URL)
	err := a.Generate(context.Background(), args.Arguments{Page: vacancyPage, UsePlainText: true})

	require.NoError(t, err)
	assert.Equal(t, "ok\n", out.String())
}

func TestGenerate_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusInternalServerError)
	}))
	defer server.Close()

	a, out := newTestApp(t, server.URL)
	err := a.Generate(context.Background(), args.Arguments{Source: writeVacancy(t), UsePlainText: true})

	var connErr *stream.ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, http.StatusInternalServerError, connErr.StatusCode)
	assert.Empty(t, out.String())
}

func TestGenerate_EmptyResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("data: [DONE]\n\n"))
	}))
	defer server.Close()

	a, _ := newTestApp(t, server.URL)
	err := a.Generate(context.Background(), args.Arguments{Source: writeVacancy(t), UsePlainText: true})

	assert.ErrorIs(t, err, stream.ErrEmptyResult)
}

func TestGenerate_EmptySuccessBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "0")
	}))
	defer server.Close()

	a, _ := newTestApp(t, server.URL)
	err := a.Generate(context.Background(), args.Arguments{Source: writeVacancy(t), UsePlainText: true})

	assert.ErrorIs(t, err, stream.ErrEmptyResult)
}

func TestGenerate_MissingKey(t *testing.T) {
	a, _ := newTestApp(t, "http://127.0.0.1:0")
	a.Config.APIKey = ""

	err := a.Generate(context.Background(), args.Arguments{Source: writeVacancy(t), UsePlainText: true})

	assert.ErrorIs(t, err, client.ErrMissingAPIKey)
}

func TestGenerate_NotAVacancy(t *testing.T) {
	a, _ := newTestApp(t, "http://127.0.0.1:0")

	err := a.Generate(context.Background(), args.Arguments{Page: "<p>hello</p>", UsePlainText: true})

	assert.Error(t, err)
}

func TestRun_ListModels(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"id":"a"},{"id":"meta-llama/Llama-3.3-70B-Instruct"}]}`))
	}))
	defer server.Close()

	a, out := newTestApp(t, server.URL)
	require.NoError(t, a.Run(context.Background(), args.Arguments{Action: args.ActionListModels}))

	assert.Equal(t, "  a\n* meta-llama/Llama-3.3-70B-Instruct\n", out.String())
}

func TestRun_Config(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	cfg, err := config.LoadConfig(context.Background())
	require.NoError(t, err)

	var out bytes.Buffer
	a := New(cfg, logger.Discard())
	a.Out = &out

	require.NoError(t, a.Run(context.Background(), args.Arguments{
		Action: args.ActionConfigSet, ConfigKey: "max_tokens", ConfigValue: "900",
	}))
	require.NoError(t, a.Run(context.Background(), args.Arguments{
		Action: args.ActionConfigGet, ConfigKey: "max_tokens",
	}))
	assert.Equal(t, "900\n", out.String())

	reloaded, err := config.LoadConfig(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 900, reloaded.MaxTokens)

	err = a.Run(context.Background(), args.Arguments{Action: args.ActionConfigSet, ConfigKey: "bogus", ConfigValue: "1"})
	assert.ErrorIs(t, err, config.ErrUnknownKey)
}
