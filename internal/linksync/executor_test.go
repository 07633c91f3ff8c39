package linksync

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPExecutor_Request(t *testing.T) {
	var got *http.Request
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	e := NewHTTPExecutor(srv.URL+"/", "aci-1", 3, "secret", nil)
	resp, err := e.Execute(context.Background(), &Request{
		Method: http.MethodPut,
		Path:   "/v1/devices/transfer_archive",
		Query:  url.Values{"timeout": {"5"}},
		Body:   []byte(`{"a":1}`),
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	user, pass, ok := got.BasicAuth()
	require.True(t, ok)
	assert.Equal(t, "aci-1.3", user)
	assert.Equal(t, "secret", pass)
	assert.Equal(t, "/v1/devices/transfer_archive", got.URL.Path)
	assert.Equal(t, "5", got.URL.Query().Get("timeout"))
	assert.Equal(t, "application/json", got.Header.Get("Content-Type"))
	assert.Equal(t, `{"a":1}`, string(gotBody))
}

func TestHTTPExecutor_StatusIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte("slow down"))
	}))
	defer srv.Close()

	resp, err := NewHTTPExecutor(srv.URL, "aci", 1, "pw", nil).
		Execute(context.Background(), &Request{Method: http.MethodGet, Path: "/x"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "slow down", string(resp.Body))
}

func TestHTTPExecutor_TimeoutIsTransportError(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	_, err := NewHTTPExecutor(srv.URL, "aci", 1, "pw", nil).
		Execute(context.Background(), &Request{Method: http.MethodGet, Path: "/slow", Timeout: 50 * time.Millisecond})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransport)
	assert.True(t, isNetwork(err))
}

func TestHTTPExecutor_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	_, err := NewHTTPExecutor(addr, "aci", 1, "pw", nil).
		Execute(context.Background(), &Request{Method: http.MethodGet, Path: "/"})
	assert.ErrorIs(t, err, ErrTransport)
}
