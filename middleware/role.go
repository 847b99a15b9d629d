package middleware

import (
	"encoding/json"
	"net/http"

	goSession "github.com/MrEthical07/goSession"
)

// RequireRole allows requests whose guarded identity has one of roles. It must
// run after [Guard].
func RequireRole(roles ...goSession.Role) func(http.Handler) http.Handler {
	allowed := make(map[goSession.Role]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFromContext(r.Context())
			if !ok {
				writeError(w, goSession.ErrTokenInvalid)
				return
			}
			if _, ok := allowed[id.Role]; !ok {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "message": "Forbidden"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
