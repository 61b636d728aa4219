package gateway

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strings"
)

// SecretHeader carries the shared secret for clients that cannot set
// Authorization.
const SecretHeader = "X-AFKD-Secret"

// AuthHandler checks the shared secret on control API requests. An empty
// secret disables authentication.
type AuthHandler struct {
	digest  [sha256.Size]byte
	enabled bool
}

// NewAuthHandler creates a new authentication handler
func NewAuthHandler(sharedSecret string) *AuthHandler {
	if sharedSecret == "" {
		return &AuthHandler{}
	}
	return &AuthHandler{
		digest:  sha256.Sum256([]byte(sharedSecret)),
		enabled: true,
	}
}

// Enabled reports whether requests must carry the secret
func (a *AuthHandler) Enabled() bool {
	return a.enabled
}

// Verify compares a presented secret against the configured one in constant
// time.
func (a *AuthHandler) Verify(presented string) bool {
	if !a.enabled {
		return true
	}
	got := sha256.Sum256([]byte(presented))
	return subtle.ConstantTimeCompare(a.digest[:], got[:]) == 1
}

// FromRequest extracts the presented secret from the Authorization bearer
// token or SecretHeader.
func FromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return r.Header.Get(SecretHeader)
}

// Middleware rejects requests without a valid secret
func (a *AuthHandler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Verify(FromRequest(r)) {
			writeJSON(w, http.StatusUnauthorized, Response{Success: false, Error: "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
