package common

import (
	"net/http"
	"time"
)

// DefaultHTTPTimeout bounds webhook posts and metrics scrapes. RPC traffic
// has its own, longer budget set by the monitor's Scanner.
const DefaultHTTPTimeout = 10 * time.Second

// NewHTTPClient creates an HTTP client with sensible defaults for the small
// number of endpoints the watchdog talks to.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout == 0 {
		timeout = DefaultHTTPTimeout
	}

	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}
