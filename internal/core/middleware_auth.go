package core

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"greetbot/internal/types"
)

// errCodeAuthToken is the code of a missing or wrong trigger token.
const errCodeAuthToken types.ErrorCode = "auth_token_invalid"

// TokenMiddleware requires "Authorization: Bearer <Server.Token>". With no
// token configured it passes every request through.
func (s *Server) TokenMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		want := s.Token.Unmask()
		if want == "" {
			next.ServeHTTP(w, r)
			return
		}

		got := extractBearerToken(r.Header.Get("Authorization"))
		if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
			s.Logger.WarnContext(r.Context(), "trigger rejected: bad token",
				"request_id", types.GetRequestID(r.Context()),
				"remote_addr", r.RemoteAddr,
			)
			w.Header().Set("WWW-Authenticate", `Bearer realm="greetbot"`)
			JSON(w, r, http.StatusUnauthorized, ErrorResponse{
				Error:     "a valid bearer token is required",
				Code:      string(errCodeAuthToken),
				RequestID: types.GetRequestID(r.Context()),
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// extractBearerToken returns the token of a "Bearer <token>" header value,
// matching the scheme case-insensitively, or "".
func extractBearerToken(authHeader string) string {
	const prefix = "Bearer "
	if len(authHeader) < len(prefix) || !strings.EqualFold(authHeader[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(authHeader[len(prefix):])
}
