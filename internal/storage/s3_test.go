package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestS3PhotoStore_Put(t *testing.T) {
	var method, path string
	var size int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method, path = r.Method, r.URL.Path
		body, _ := io.ReadAll(r.Body)
		size = len(body)
		w.Header().Set("ETag", `"abc"`)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store, err := NewS3PhotoStore(context.Background(), S3Config{
		Bucket:        "meals",
		Endpoint:      srv.URL,
		Region:        "us-east-1",
		AccessKey:     "key",
		SecretKey:     "secret",
		PublicBaseURL: "https://cdn.example.com/",
	})
	require.NoError(t, err)

	jpeg := []byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10, 'J', 'F', 'I', 'F'}
	url, err := store.Put(context.Background(), 42, jpeg)
	require.NoError(t, err)

	assert.Equal(t, http.MethodPut, method)
	assert.True(t, strings.HasPrefix(path, "/meals/photos/42/"), path)
	assert.True(t, strings.HasSuffix(path, ".jpg"), path)
	assert.Equal(t, len(jpeg), size)
	assert.True(t, strings.HasPrefix(url, "https://cdn.example.com/photos/42/"), url)
}

func TestS3Config(t *testing.T) {
	assert.False(t, S3Config{}.Enabled())
	_, err := NewS3PhotoStore(context.Background(), S3Config{})
	assert.Error(t, err)
}
