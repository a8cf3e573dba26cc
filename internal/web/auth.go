package web

import (
	"crypto/subtle"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/thornhill6305/zui/internal/logging"
)

// privateNetworks are reachable without allow_remote: RFC1918 ranges used
// on home LANs and the Tailscale CGNAT range.
var privateNetworks = []netip.Prefix{
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("100.64.0.0/10"),
}

func (s *Server) withNetworkFilter(next http.Handler) http.Handler {
	if s.cfg.AllowRemote {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !allowedRemote(r.RemoteAddr) {
			logging.Aggregate(logging.CompWeb, "remote_rejected", slog.String("remote", r.RemoteAddr))
			writeAPIError(w, http.StatusForbidden, "FORBIDDEN", "remote address not allowed")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func allowedRemote(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	if addr.IsLoopback() {
		return true
	}
	for _, p := range privateNetworks {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

func (s *Server) token() string {
	if s.cfg.TokenSource != nil {
		return s.cfg.TokenSource()
	}
	return s.cfg.Token
}

func (s *Server) authorizeRequest(r *http.Request) bool {
	token := s.token()
	if token == "" {
		return true
	}

	if queryToken := strings.TrimSpace(r.URL.Query().Get("token")); queryToken != "" && secureEqual(queryToken, token) {
		return true
	}

	headerToken := bearerToken(r.Header.Get("Authorization"))
	return headerToken != "" && secureEqual(headerToken, token)
}

func bearerToken(authHeader string) string {
	authHeader = strings.TrimSpace(authHeader)
	const bearerPrefix = "Bearer "
	if !strings.HasPrefix(authHeader, bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(authHeader, bearerPrefix))
}

func secureEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
