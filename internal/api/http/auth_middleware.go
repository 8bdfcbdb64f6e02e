package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/httprate"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
)

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		party, err := s.authSvc.Authenticate(r.Context(), extractToken(r))
		if err != nil {
			respondFault(w, r, err)
			return
		}
		hlog.FromRequest(r).UpdateContext(func(c zerolog.Context) zerolog.Context {
			return c.Str("party", party)
		})
		next.ServeHTTP(w, r.WithContext(withParty(r.Context(), party)))
	})
}

// rateLimit limits requests per authenticated party, falling back to the client address.
func rateLimit(requests int, window time.Duration) func(http.Handler) http.Handler {
	return httprate.Limit(
		requests,
		window,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			if party := partyFromContext(r.Context()); party != "" {
				return "party:" + party, nil
			}
			return "ip:" + r.RemoteAddr, nil
		}),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", strconv.Itoa(int(window.Seconds())))
			respondError(w, http.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded")
		}),
	)
}

// extractToken reads the bearer token from the Authorization header, or from the
// access_token query parameter for websocket handshakes from browsers.
func extractToken(r *http.Request) string {
	authz := r.Header.Get("Authorization")
	if len(authz) > 7 && strings.EqualFold(authz[:7], "Bearer ") {
		return strings.TrimSpace(authz[7:])
	}
	return strings.TrimSpace(r.URL.Query().Get("access_token"))
}
