package router

import (
	"net/http"

	"github.com/shandysiswandi/otpgate/internal/pkg/instrument"
	"github.com/shandysiswandi/otpgate/internal/pkg/uid"
)

const (
	// HeaderCorrelationID is the canonical header used to track requests end-to-end.
	HeaderCorrelationID = "X-Correlation-ID"
	// HeaderRequestID is accepted from proxies that only set this header.
	HeaderRequestID = "X-Request-ID"

	maxCorrelationIDLen = 128
)

// validCID accepts printable ASCII without spaces so the id is safe in logs and headers.
func validCID(v string) bool {
	if v == "" || len(v) > maxCorrelationIDLen {
		return false
	}
	for i := 0; i < len(v); i++ {
		if c := v[i]; c <= ' ' || c > '~' {
			return false
		}
	}
	return true
}

func middlewareCorrelationID(gen uid.StringID) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cid := r.Header.Get(HeaderCorrelationID)
			if !validCID(cid) {
				cid = r.Header.Get(HeaderRequestID)
			}
			if !validCID(cid) {
				cid = ""
				if gen != nil {
					cid = gen.Generate()
				}
			}

			if cid != "" {
				w.Header().Set(HeaderCorrelationID, cid)
				r = r.WithContext(instrument.SetCorrelationID(r.Context(), cid))
			}

			next.ServeHTTP(w, r)
		})
	}
}
