package clientip

import (
	"net"
	"net/http"
	"strings"
)

// FromRequest returns the client IP for rate limiting and logging. Only
// r.RemoteAddr is consulted; proxy headers are client-controlled and traffic
// reaches the app directly in this deployment.
func FromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return strings.TrimSpace(host)
}
