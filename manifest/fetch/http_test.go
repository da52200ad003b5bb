package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RyanBlaney/hls-manifest-engine/manifest/common"
)

func TestDefaultHTTPConfig(t *testing.T) {
	config := DefaultHTTPConfig()

	assert.Equal(t, "hls-manifest-engine/1.0", config.UserAgent)
	assert.Contains(t, config.AcceptHeader, "application/vnd.apple.mpegurl")
	assert.NotNil(t, config.CustomHeaders)

	headers := config.Headers()
	assert.Equal(t, config.UserAgent, headers["User-Agent"])
	assert.Equal(t, config.AcceptHeader, headers["Accept"])
}

func TestHTTPConfigCustomHeaders(t *testing.T) {
	config := DefaultHTTPConfig()
	config.CustomHeaders["X-Session"] = "abc123"

	headers := config.Headers()
	assert.Equal(t, "abc123", headers["X-Session"])
	assert.Equal(t, config.UserAgent, headers["User-Agent"])
}

func TestClientFetch(t *testing.T) {
	body := "#EXTM3U\n#EXT-X-VERSION:3\n"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "hls-manifest-engine/1.0", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
		w.Write([]byte(body))
	}))
	defer server.Close()

	client := NewClient(nil)
	result, err := client.Fetch(context.Background(), server.URL, nil)

	require.NoError(t, err)
	assert.Equal(t, server.URL, result.URI)
	assert.Equal(t, body, string(result.Body))
	assert.Equal(t, "application/vnd.apple.mpegurl", result.ContentType)
}

func TestClientFetchByteRange(t *testing.T) {
	var gotRange string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRange = r.Header.Get("Range")
		w.WriteHeader(http.StatusPartialContent)
		w.Write([]byte("partial"))
	}))
	defer server.Close()

	client := NewClient(nil)
	result, err := client.Fetch(context.Background(), server.URL, &common.ByteRange{Offset: 720, Length: 4096})

	require.NoError(t, err)
	assert.Equal(t, "bytes=720-4815", gotRange)
	assert.Equal(t, "partial", string(result.Body))
}

func TestClientFetchErrors(t *testing.T) {
	t.Run("http error status", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "gone", http.StatusNotFound)
		}))
		defer server.Close()

		client := NewClient(nil)
		result, err := client.Fetch(context.Background(), server.URL, nil)

		require.Error(t, err)
		assert.Nil(t, result)

		var manifestErr *common.ManifestError
		require.True(t, errors.As(err, &manifestErr))
		assert.Equal(t, common.CategoryNetwork, manifestErr.Category)
		assert.Equal(t, common.ErrCodeFetchFailed, manifestErr.Code)
		assert.Equal(t, 404, manifestErr.Fields["status_code"])
	})

	t.Run("unreachable server", func(t *testing.T) {
		client := NewClient(nil)
		_, err := client.Fetch(context.Background(), "http://127.0.0.1:1/playlist.m3u8", nil)

		require.Error(t, err)
		var manifestErr *common.ManifestError
		require.True(t, errors.As(err, &manifestErr))
		assert.Equal(t, common.CategoryNetwork, manifestErr.Category)
	})

	t.Run("cancelled context", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-r.Context().Done()
		}))
		defer server.Close()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		client := NewClient(nil)
		_, err := client.Fetch(ctx, server.URL, nil)
		require.Error(t, err)
	})
}
