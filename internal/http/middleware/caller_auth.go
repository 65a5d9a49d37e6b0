package middleware

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/wolfman30/clinic-booking/internal/http/respond"
	"github.com/wolfman30/clinic-booking/internal/identity"
)

// CallerClaims is the token shape issued by the identity provider. The
// subject is the patient, doctor or admin id.
type CallerClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// CallerJWT verifies an HMAC-signed bearer token and stores the caller on the
// request context. Requests without an Authorization header pass through
// anonymously; handlers that need a caller answer 401 themselves.
func CallerJWT(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if auth == "" {
				next.ServeHTTP(w, r)
				return
			}
			if secret == "" {
				respond.Unauthorized(w, "authentication disabled")
				return
			}
			if !strings.HasPrefix(auth, "Bearer ") {
				respond.Unauthorized(w, "malformed authorization header")
				return
			}
			tokenString := strings.TrimPrefix(auth, "Bearer ")
			claims := CallerClaims{}
			token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(secret), nil
			}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
			if err != nil || !token.Valid {
				respond.Unauthorized(w, "invalid token")
				return
			}
			role, ok := identity.ParseRole(claims.Role)
			if !ok || strings.TrimSpace(claims.Subject) == "" {
				respond.Unauthorized(w, "token missing subject or role")
				return
			}
			caller := identity.Caller{ID: strings.TrimSpace(claims.Subject), Role: role}
			next.ServeHTTP(w, r.WithContext(identity.WithCaller(r.Context(), caller)))
		})
	}
}
