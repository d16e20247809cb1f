package ratelimit

import (
	"net"
	"net/http"
	"strings"

	"ratelimit-gateway/middleware/ratelimit/domain"
)

// DefaultKeyHeader é o header de identidade usado quando nenhum é configurado.
const DefaultKeyHeader = "User-Id"

// KeyFunc resolve a identidade de uma requisição.
type KeyFunc func(r *http.Request) domain.Identity

// DefaultKeyFunc resolve, em ordem: keyHeader, primeiro IP do X-Forwarded-For
// (só com trustXFF), host de RemoteAddr e, por fim, domain.AnonymousIdentity.
func DefaultKeyFunc(keyHeader string, trustXFF bool) KeyFunc {
	return func(r *http.Request) domain.Identity {
		if keyHeader != "" {
			if v := strings.TrimSpace(r.Header.Get(keyHeader)); v != "" {
				return domain.Identity(v)
			}
		}

		if trustXFF {
			// primeiro IP do X-Forwarded-For é o cliente original
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				first, _, _ := strings.Cut(xff, ",")
				if ip := strings.TrimSpace(first); ip != "" {
					return domain.Identity(ip)
				}
			}
		}

		addr := strings.TrimSpace(r.RemoteAddr)
		if host, _, err := net.SplitHostPort(addr); err == nil && host != "" {
			return domain.Identity(host)
		}
		if addr != "" {
			return domain.Identity(addr)
		}
		return domain.AnonymousIdentity
	}
}
