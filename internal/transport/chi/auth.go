package chi

import (
	"context"
	"crypto/subtle"
	"net/http"
	"slices"
	"strings"
)

// exemptPaths are routes that bypass authentication (health, metrics).
var exemptPaths = map[string]struct{}{
	"/health":  {},
	"/metrics": {},
}

// Caller is the identity an API key stands for. Subject and Groups become the
// subject and groups properties of every query made with the key; whatever the
// request body claims for them is discarded.
type Caller struct {
	Subject string
	Groups  []string
}

type callerKey struct{}

// ContextWithCaller returns a context carrying the authenticated caller.
func ContextWithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

// CallerFromContext returns the caller bound by BearerAuthMiddleware.
func CallerFromContext(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(callerKey{}).(Caller)
	return c, ok
}

type apiKey struct {
	token  []byte
	caller Caller
}

// BearerAuthMiddleware resolves the Bearer token to its Caller and stores it in
// the request context. If callers is empty, authentication is disabled and
// requests carry no identity.
func BearerAuthMiddleware(callers map[string]Caller) func(http.Handler) http.Handler {
	keys := make([]apiKey, 0, len(callers))
	for token, c := range callers {
		if token == "" {
			continue
		}
		keys = append(keys, apiKey{
			token:  []byte(token),
			caller: Caller{Subject: c.Subject, Groups: slices.Clone(c.Groups)},
		})
	}

	return func(next http.Handler) http.Handler {
		if len(keys) == 0 {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := exemptPaths[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			auth := r.Header.Get("Authorization")
			if auth == "" {
				writeError(w, http.StatusUnauthorized, codeUnauthorized, "missing authorization header")
				return
			}

			const bearerPrefix = "Bearer "
			if !strings.HasPrefix(auth, bearerPrefix) {
				writeError(w, http.StatusUnauthorized,
					codeUnauthorized, "authorization header must use Bearer scheme")
				return
			}

			caller, ok := lookupCaller(keys, []byte(auth[len(bearerPrefix):]))
			if !ok {
				writeError(w, http.StatusUnauthorized, codeUnauthorized, "invalid api key")
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithCaller(r.Context(), caller)))
		})
	}
}

// lookupCaller compares the token against every key in constant time.
func lookupCaller(keys []apiKey, token []byte) (Caller, bool) {
	var (
		found Caller
		ok    bool
	)
	for _, k := range keys {
		if subtle.ConstantTimeCompare(k.token, token) == 1 {
			found, ok = k.caller, true
		}
	}
	return found, ok
}
