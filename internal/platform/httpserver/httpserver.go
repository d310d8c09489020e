// Package httpserver builds the process HTTP server. Per-route timeouts are
// the handler stack's job; only header reads and idle keep-alives are bounded
// here so a slow client cannot pin a connection before routing.
package httpserver

import (
	"net/http"
	"time"
)

const (
	readHeaderTimeout = 5 * time.Second
	idleTimeout       = 2 * time.Minute
)

// New builds the server for the filing API.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       idleTimeout,
	}
}
