package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"keyforge/dto"
)

const OwnerIDKey contextKey = "owner_id"

var ErrNoOwner = errors.New("no owner in context")

// Auth resolves the caller's identity from a bearer token. Every task the
// caller creates or reads is scoped to this owner; there is no way to act on
// another owner's behalf.
func Auth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			tokenString, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || tokenString == "" {
				unauthorized(w, GetTraceID(r.Context()))
				return
			}

			token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				unauthorized(w, GetTraceID(r.Context()))
				return
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				unauthorized(w, GetTraceID(r.Context()))
				return
			}
			ownerID, _ := claims["user_id"].(string)
			if ownerID == "" {
				ownerID, _ = claims["sub"].(string)
			}
			if ownerID == "" {
				unauthorized(w, GetTraceID(r.Context()))
				return
			}

			ctx := context.WithValue(r.Context(), OwnerIDKey, ownerID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func GetOwnerID(ctx context.Context) (string, error) {
	if ownerID, ok := ctx.Value(OwnerIDKey).(string); ok && ownerID != "" {
		return ownerID, nil
	}
	return "", ErrNoOwner
}

func unauthorized(w http.ResponseWriter, traceID string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(dto.ErrorResponse{
		Error:   "Unauthorized",
		TraceID: traceID,
	})
}
