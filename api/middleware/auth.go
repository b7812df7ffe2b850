package middleware

import (
	"net/http"

	"github.com/angelmondragon/marketledger-backend/api/responses"
	pkgAuth "github.com/angelmondragon/marketledger-backend/pkg/auth"
	"github.com/angelmondragon/marketledger-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/marketledger-backend/pkg/errors"
	"github.com/angelmondragon/marketledger-backend/pkg/logger"
)

// Auth verifies the bearer token and stores the caller on the request
// context. A misconfigured verifier fails every request closed.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	verifier, verifierErr := pkgAuth.NewVerifier(cfg)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if verifierErr != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, verifierErr, "token verifier unavailable"))
				return
			}
			token, ok := pkgAuth.BearerToken(r.Header.Get("Authorization"))
			if !ok {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}
			claims, err := verifier.Verify(token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			p := Principal{UserID: claims.UserID.String(), Role: string(claims.Role)}
			if claims.VendorID != nil {
				p.VendorID = claims.VendorID.String()
			}
			ctx := WithPrincipal(r.Context(), p)
			if logg != nil {
				ctx = logg.WithUserID(ctx, p.UserID)
				ctx = logg.WithField(ctx, "actor_role", p.Role)
				if p.VendorID != "" {
					ctx = logg.WithVendorID(ctx, p.VendorID)
				}
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
