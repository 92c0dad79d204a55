package middleware

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"service-marketplace/internal/data/entity"
	"service-marketplace/pkg/utils"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Claims carried by access tokens. Tokens are issued by the identity service;
// this service only verifies them.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// ParseToken verifies an HS256 token and returns the caller's id and role.
func ParseToken(tokenString string, secret []byte) (uuid.UUID, entity.Role, error) {
	claims := &Claims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(30*time.Second),
	)

	token, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		return secret, nil
	})
	if err != nil {
		return uuid.Nil, "", fmt.Errorf("invalid token: %w", err)
	}
	if !token.Valid {
		return uuid.Nil, "", fmt.Errorf("invalid token")
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil || userID == uuid.Nil {
		return uuid.Nil, "", fmt.Errorf("invalid token: subject is not a user id")
	}

	role := entity.Role(claims.Role)
	if !role.Valid() {
		return uuid.Nil, "", fmt.Errorf("invalid token: unknown role %q", claims.Role)
	}

	return userID, role, nil
}

// Authenticate requires a valid bearer token and puts the caller into the request context.
func Authenticate(secret string, logger *zap.Logger) func(http.Handler) http.Handler {
	key := []byte(secret)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				utils.ResponseUnauthorized(w, "Missing authorization token")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
				utils.ResponseUnauthorized(w, "Invalid token format. Use: Bearer <token>")
				return
			}

			userID, role, err := ParseToken(parts[1], key)
			if err != nil {
				logger.Warn("Rejected bearer token",
					zap.Error(err),
					zap.String("path", r.URL.Path))
				utils.ResponseUnauthorized(w, "Invalid or expired token")
				return
			}

			ctx := utils.SetUserContext(r.Context(), userID, string(role))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole lets the request through only when the caller has one of roles.
func RequireRole(logger *zap.Logger, roles ...entity.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role, ok := utils.GetRoleFromContext(r.Context())
			if !ok {
				utils.ResponseUnauthorized(w, "Authentication required")
				return
			}

			for _, allowed := range roles {
				if entity.Role(role) == allowed {
					next.ServeHTTP(w, r)
					return
				}
			}

			userID, _ := utils.GetUserIDFromContext(r.Context())
			logger.Warn("Role check failed",
				zap.String("user_id", userID.String()),
				zap.String("role", role),
				zap.String("path", r.URL.Path))
			utils.ResponseForbidden(w, "Insufficient role for this action")
		})
	}
}
