// Package auth authenticates taskd API callers.
//
// # Tokens
//
// Callers present an HS256 JWT issued by the account service at register or
// login time. Tokens carry:
//
//   - sub: decimal user id
//   - email, name: display data for the caller
//   - jti: random token id
//   - iat, exp: issue and expiry times
//
// Secrets shorter than MinSecretLength bytes are refused at construction.
//
// # Identity
//
// JWTVerifier.Authenticate turns a credential into an Identity. Every failure
// wraps ErrUnauthenticated plus the specific cause (ErrInvalidToken,
// ErrExpiredToken, ErrMissingClaim).
//
// The identity is never stored on the request context. RequireIdentity calls
// an IdentityHandler with the identity as an explicit argument, and the
// handler passes it on to the task service:
//
//	mux.Handle("GET /api/tasks", auth.RequireIdentity(verifier, logger,
//		func(w http.ResponseWriter, r *http.Request, id auth.Identity) {
//			tasks, err := svc.List(r.Context(), id, criteria)
//			...
//		}))
package auth
