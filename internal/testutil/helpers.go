package testutil

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

// HTTPTestServer creates a test HTTP server with custom handler
func HTTPTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

// MockHTTPResponse creates a mock HTTP handler that returns the given response
func MockHTTPResponse(statusCode int, contentType, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(statusCode)
		io.WriteString(w, body)
	}
}

// ReadBody drains and returns a request body as a string
func ReadBody(r *http.Request) string {
	b, _ := io.ReadAll(r.Body)
	return string(b)
}
