package router

import (
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/shandysiswandi/otpgate/internal/pkg/config"
)

// forwardedHeaders are consulted in order when the peer is a trusted proxy.
var forwardedHeaders = []string{"True-Client-IP", "X-Real-IP", "X-Forwarded-For"}

// middlewareIP rewrites RemoteAddr to the client address. Forwarding headers
// are honored only from peers inside app.server.trusted_proxies; an empty
// list trusts every peer.
func middlewareIP(cfg config.Config) Middleware {
	var trusted []netip.Prefix
	if cfg != nil {
		for _, cidr := range cfg.GetArray("app.server.trusted_proxies") {
			if p, err := netip.ParsePrefix(cidr); err == nil {
				trusted = append(trusted, p.Masked())
			} else if a, err := netip.ParseAddr(cidr); err == nil {
				trusted = append(trusted, netip.PrefixFrom(a, a.BitLen()))
			}
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			peer := peerAddr(r.RemoteAddr)
			ip := peer.String()
			if !peer.IsValid() {
				ip = ""
			}

			if isTrusted(trusted, peer) {
				if fwd := forwardedIP(r); fwd != "" {
					ip = fwd
				}
			}

			if ip != "" {
				r.RemoteAddr = ip
			}
			next.ServeHTTP(w, r)
		})
	}
}

func peerAddr(remote string) netip.Addr {
	host := remote
	if h, _, err := net.SplitHostPort(remote); err == nil {
		host = h
	}
	a, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}
	}
	return a.Unmap()
}

func isTrusted(trusted []netip.Prefix, peer netip.Addr) bool {
	if len(trusted) == 0 {
		return true
	}
	if !peer.IsValid() {
		return false
	}
	for _, p := range trusted {
		if p.Contains(peer) {
			return true
		}
	}
	return false
}

func forwardedIP(r *http.Request) string {
	for _, h := range forwardedHeaders {
		v := r.Header.Get(h)
		if v == "" {
			continue
		}
		first, _, _ := strings.Cut(v, ",")
		if a, err := netip.ParseAddr(strings.TrimSpace(first)); err == nil {
			return a.Unmap().String()
		}
	}
	return ""
}
