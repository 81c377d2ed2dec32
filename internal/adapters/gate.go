package adapters

import (
	"net"
	"net/http"

	"github.com/ai-servis/core/internal/limits"
)

// Gate bundles the admission checks every adapter runs before taking
// on a new connection. Nil fields skip the corresponding check.
type Gate struct {
	Limiter *limits.ConnectionRateLimiter
	Guard   *limits.ResourceGuard
}

// Admit reports whether a connection from ip may proceed and, when
// rejected, why.
func (g *Gate) Admit(ip string) (bool, string) {
	if g == nil {
		return true, "OK"
	}
	if g.Guard != nil {
		if ok, reason := g.Guard.ShouldAccept(); !ok {
			return false, reason
		}
	}
	if g.Limiter != nil && !g.Limiter.Allow(ip) {
		return false, "rate limited"
	}
	return true, "OK"
}

func (g *Gate) opened() {
	if g != nil && g.Guard != nil {
		g.Guard.ConnectionOpened()
	}
}

func (g *Gate) closed() {
	if g != nil && g.Guard != nil {
		g.Guard.ConnectionClosed()
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func remoteIP(conn net.Conn) string {
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		return conn.RemoteAddr().String()
	}
	return host
}
