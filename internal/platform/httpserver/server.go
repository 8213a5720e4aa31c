// Package httpserver builds the http.Server for the local API.
package httpserver

import (
	"net/http"
	"time"
)

// New returns a server with conservative header and idle timeouts. Write
// timeouts are left to per-route middleware because progress streams are
// long-lived.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}
