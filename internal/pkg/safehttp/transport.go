// Package safehttp provides the hardened transport used for all outbound
// broker traffic.
package safehttp

import (
	"net"
	"net/http"
	"time"
)

// NewTransport returns a transport with bounded dial and handshake times
// so a wedged broker connection surfaces as a network failure instead of
// holding a request slot indefinitely.
func NewTransport() *http.Transport {
	return &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: 0, // bounded by the per-call context
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   20,
		IdleConnTimeout:       90 * time.Second,
	}
}

// NewClient returns an HTTP client over NewTransport. The per-call
// timeout is enforced by the caller's context, not here.
func NewClient() *http.Client {
	return &http.Client{Transport: NewTransport()}
}
