package client

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markis/gh-coverletter/internal/stream"
)

type events struct {
	chunks []string
	done   int
	errs   []error
}

func (e *events) callbacks() stream.Callbacks {
	return stream.Callbacks{
		OnChunk: func(s string) { e.chunks = append(e.chunks, s) },
		OnDone:  func() { e.done++ },
		OnError: func(err error) { e.errs = append(e.errs, err) },
	}
}

func sseFrame(content string) string {
	return fmt.Sprintf("data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", content)
}

func TestFetchStream_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		assert.Equal(t, "yes", r.Header.Get("X-Custom"))
		assert.NotEmpty(t, r.Header.Get("X-Request-Id"))

		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, part := range []string{sseFrame("A"), sseFrame("B"), "data: [DONE]\n\n", sseFrame("late")} {
			_, _ = w.Write([]byte(part))
			flusher.Flush()
		}
	}))
	defer server.Close()

	var ev events
	err := FetchStream(context.Background(), server.URL, Request{
		Header: http.Header{"X-Custom": {"yes"}},
		Body:   []byte(`{}`),
	}, ev.callbacks())

	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, ev.chunks)
	assert.Equal(t, 1, ev.done)
	assert.Empty(t, ev.errs)
}

func TestFetchStream_DefaultsToGet(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		_, _ = w.Write([]byte(sseFrame("x")))
	}))
	defer server.Close()

	var ev events
	require.NoError(t, FetchStream(context.Background(), server.URL, Request{}, ev.callbacks()))
	assert.Equal(t, []string{"x"}, ev.chunks)
	assert.Equal(t, 1, ev.done)
}

func TestFetchStream_ErrorStatus(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "server error", status: http.StatusInternalServerError, body: "boom"},
		{name: "unauthorized", status: http.StatusUnauthorized, body: `{"error":"bad key"}`},
		{name: "no content", status: http.StatusNoContent},
		{name: "reset content", status: http.StatusResetContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			var ev events
			err := FetchStream(context.Background(), server.URL, Request{}, ev.callbacks())

			var connErr *stream.ConnectionError
			require.ErrorAs(t, err, &connErr)
			assert.Equal(t, tt.status, connErr.StatusCode)
			assert.Equal(t, tt.body, connErr.Body)
			assert.Contains(t, connErr.Error(), fmt.Sprintf("HTTP %d", tt.status))
			require.Len(t, ev.errs, 1)
			assert.Equal(t, err, ev.errs[0])
			assert.Empty(t, ev.chunks)
			assert.Zero(t, ev.done)
		})
	}
}

func TestFetchStream_EmptySuccessBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "0")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	var ev events
	err := FetchStream(context.Background(), server.URL, Request{}, ev.callbacks())

	require.NoError(t, err)
	assert.Empty(t, ev.chunks)
	assert.Equal(t, 1, ev.done)
	assert.Empty(t, ev.errs)
}

func TestFetchStream_ConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	var ev events
	err := FetchStream(context.Background(), url, Request{}, ev.callbacks())

	var connErr *stream.ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Zero(t, connErr.StatusCode)
	assert.Len(t, ev.errs, 1)
	assert.Zero(t, ev.done)
}

func TestFetchStream_HeaderTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	var ev events
	err := FetchStream(context.Background(), server.URL, Request{}, ev.callbacks(), WithTimeout(50*time.Millisecond))

	var connErr *stream.ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Len(t, ev.errs, 1)
	assert.Zero(t, ev.done)
}

func TestFetchStream_TimeoutDoesNotBoundStreaming(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()

		time.Sleep(150 * time.Millisecond)
		_, _ = w.Write([]byte(sseFrame("slow") + "data: [DONE]\n\n"))
	}))
	defer server.Close()

	var ev events
	err := FetchStream(context.Background(), server.URL, Request{}, ev.callbacks(), WithTimeout(50*time.Millisecond))

	require.NoError(t, err)
	assert.Equal(t, []string{"slow"}, ev.chunks)
	assert.Equal(t, 1, ev.done)
}

func TestFetchStream_AbortMidStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(sseFrame("partial")))
		w.(http.Flusher).Flush()
		panic(http.ErrAbortHandler)
	}))
	defer server.Close()

	var ev events
	err := FetchStream(context.Background(), server.URL, Request{}, ev.callbacks())

	var transportErr *stream.TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, []string{"partial"}, ev.chunks)
	assert.Len(t, ev.errs, 1)
	assert.Zero(t, ev.done)
}

func TestFetchStream_CallerCancelIsSilent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(sseFrame("first")))
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var ev events
	cb := ev.callbacks()
	cb.OnChunk = func(s string) {
		ev.chunks = append(ev.chunks, s)
		cancel()
	}

	err := FetchStream(ctx, server.URL, Request{}, cb)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"first"}, ev.chunks)
	assert.Empty(t, ev.errs)
	assert.Zero(t, ev.done)
}

func TestFetchStream_MalformedFramesAbsorbed(t *testing.T) {
	body := strings.Join([]string{
		"data: <html>oops</html>\n\n",
		sseFrame("ok"),
		"data: {\"unexpected\":true}\n\n",
	}, "")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body))
	}))
	defer server.Close()

	var ev events
	require.NoError(t, FetchStream(context.Background(), server.URL, Request{}, ev.callbacks()))
	assert.Equal(t, []string{"ok"}, ev.chunks)
	assert.Equal(t, 1, ev.done)
	assert.Empty(t, ev.errs)
}
