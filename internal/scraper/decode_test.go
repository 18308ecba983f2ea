// internal/scraper/decode_test.go
package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valpere/extractstudio/internal/errors"
)

func TestDecodeBody(t *testing.T) {
	tests := []struct {
		name        string
		body        []byte
		contentType string
		wantText    string
		wantEnc     string
		wantBinary  bool
	}{
		{
			name:        "declared latin1",
			body:        []byte("caf\xe9"),
			contentType: "text/plain; charset=ISO-8859-1",
			wantText:    "café",
			wantEnc:     "windows-1252",
		},
		{
			name:        "meta charset sniffed",
			body:        []byte(`<html><head><meta charset="windows-1251"></head><body>` + "\xcf\xf0\xe8\xe2\xe5\xf2" + `</body></html>`),
			contentType: "text/html",
			wantText:    `<html><head><meta charset="windows-1251"></head><body>Привет</body></html>`,
			wantEnc:     "windows-1251",
		},
		{
			name:     "utf8 without header",
			body:     []byte("plain ünïcode"),
			wantText: "plain ünïcode",
			wantEnc:  "utf-8",
		},
		{
			name:     "invalid bytes replaced",
			body:     []byte("bad \xff\xfe byte"),
			wantText: "bad � byte",
			wantEnc:  "utf-8",
		},
		{
			name:        "pdf kept binary",
			body:        []byte("%PDF-1.7 ..."),
			contentType: "application/pdf",
			wantBinary:  true,
		},
		{
			name:       "pdf sniffed",
			body:       []byte("%PDF-1.4 ..."),
			wantBinary: true,
		},
		{
			name:        "unknown charset falls back",
			body:        []byte("hello"),
			contentType: "text/plain; charset=x-made-up",
			wantText:    "hello",
			wantEnc:     "utf-8",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DecodeBody(tt.body, tt.contentType)
			assert.Equal(t, tt.wantBinary, got.Binary)
			if tt.wantBinary {
				assert.Empty(t, got.Text)
				return
			}
			assert.Equal(t, tt.wantText, got.Text)
			assert.Equal(t, tt.wantEnc, got.Encoding)
		})
	}
}

func TestMediaType(t *testing.T) {
	assert.Equal(t, "text/html", MediaType("Text/HTML; charset=UTF-8"))
	assert.Equal(t, "application/json", MediaType("application/json"))
	assert.Equal(t, "", MediaType(""))
	assert.True(t, IsBinaryMediaType("image/png"))
	assert.False(t, IsBinaryMediaType("text/plain"))
}

func TestHTTPClient_Get(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/redirect":
			http.Redirect(w, r, "/final", http.StatusFound)
		case "/final":
			w.Header().Set("Content-Type", "text/plain")
			w.Write([]byte("done"))
		case "/loop":
			http.Redirect(w, r, "/loop", http.StatusFound)
		default:
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer server.Close()

	client := NewHTTPClient(ClientConfig{MaxRedirects: 3})
	ctx := context.Background()

	resp, err := client.Get(ctx, server.URL+"/redirect", "")
	require.NoError(t, err)
	assert.Equal(t, server.URL+"/final", resp.FinalURL)
	assert.Equal(t, "done", string(resp.Body))

	_, err = client.Get(ctx, server.URL+"/down", "")
	require.Error(t, err)
	var fetchErr *errors.Error
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, http.StatusServiceUnavailable, fetchErr.StatusCode)

	_, err = client.Get(ctx, server.URL+"/loop", "")
	assert.True(t, errors.Is(err, errors.ErrFetch))

	_, err = client.Get(ctx, "::not a url", "")
	assert.True(t, errors.Is(err, errors.ErrFetch))
}
