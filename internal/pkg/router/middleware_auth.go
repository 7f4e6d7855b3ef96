package router

import (
	"context"
	"net/http"
	"time"

	"github.com/shandysiswandi/otpgate/internal/pkg/goerror"
)

// Principal is the identity bound to a validated session.
type Principal struct {
	Email     string
	SessionID string
	ExpiresAt time.Time
}

// Authenticator resolves a bearer session token.
//
// It returns a *goerror.Error for rejected tokens so the reason reaches the client.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*Principal, error)
}

type ctxKeyPrincipal struct{}

// SetPrincipal stores p in ctx.
func SetPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, ctxKeyPrincipal{}, p)
}

// GetPrincipal returns the authenticated principal, or nil on public routes.
func GetPrincipal(ctx context.Context) *Principal {
	p, _ := ctx.Value(ctxKeyPrincipal{}).(*Principal)
	return p
}

func middlewareAuthentication(
	auth func() Authenticator,
	publicEndpoints map[string]map[string]struct{},
	errorCodec func(ctx context.Context, w http.ResponseWriter, err error),
) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path := matchedRoutePath(r)

			if s, ok := publicEndpoints[r.Method]; ok {
				if _, skip := s[path]; skip {
					next.ServeHTTP(w, r)
					return
				}
			}

			token := bearerToken(r)
			if token == "" {
				errorCodec(r.Context(), w, goerror.NewBusiness("Authentication required", goerror.CodeUnauthorized))
				return
			}

			a := auth()
			if a == nil {
				errorCodec(r.Context(), w, goerror.NewBusiness("Authentication unavailable", goerror.CodeUnavailable))
				return
			}

			p, err := a.Authenticate(r.Context(), token)
			if err != nil {
				if setter, ok := w.(interface{ SetError(error) }); ok {
					setter.SetError(err)
				}
				errorCodec(r.Context(), w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(SetPrincipal(r.Context(), p)))
		})
	}
}
