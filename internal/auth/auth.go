// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package auth validates bearer JWTs presented to the public HTTP API
// (spec §6). The core never issues tokens — it only verifies ones
// minted by an external trust anchor against a configured issuer and
// audience, extracting a role claim, in the claims-extraction style of
// the teacher's own JWT handling.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/seismonet/quakewatch/pkg/schema"
)

// Role is the closed set of claim roles the public API recognizes.
type Role string

const (
	RoleViewer   Role = "viewer"
	RoleOperator Role = "operator"
	RoleAdmin    Role = "admin"
)

// rank orders roles so At-least checks are a single integer comparison.
func (r Role) rank() int {
	switch r {
	case RoleOperator:
		return 1
	case RoleAdmin:
		return 2
	default:
		return 0
	}
}

// AtLeast reports whether r grants at least the privilege of min.
func (r Role) AtLeast(min Role) bool { return r.rank() >= min.rank() }

// Claims is what a validated token yields: the subject and its role.
type Claims struct {
	Subject string
	Role    Role
}

type ctxKey int

const claimsKey ctxKey = 0

// WithClaims returns a context carrying the validated claims, used by
// handlers to read back the caller's role after Middleware has run.
func WithClaims(ctx context.Context, c Claims) context.Context {
	return context.WithValue(ctx, claimsKey, c)
}

// FromContext extracts the Claims a prior Middleware call attached.
func FromContext(ctx context.Context) (Claims, bool) {
	c, ok := ctx.Value(claimsKey).(Claims)
	return c, ok
}

// Validator verifies a bearer token against a configured issuer and
// audience and extracts its role claim.
type Validator struct {
	cfg schema.JWTConfig
}

// New builds a Validator from the JWT section of the program config.
func New(cfg schema.JWTConfig) *Validator {
	return &Validator{cfg: cfg}
}

// Validate parses and verifies rawToken, checking signature, issuer,
// audience and expiry, and returns the extracted Claims.
func (v *Validator) Validate(rawToken string) (Claims, error) {
	keyFunc := func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(v.cfg.Secret), nil
	}

	token, err := jwt.Parse(rawToken, keyFunc,
		jwt.WithIssuer(v.cfg.Issuer),
		jwt.WithAudience(v.cfg.Audience),
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}))
	if err != nil {
		return Claims{}, fmt.Errorf("auth: token invalid: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return Claims{}, errors.New("auth: token invalid")
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return Claims{}, errors.New("auth: missing 'sub' claim")
	}

	role := Role(extractRole(claims))
	switch role {
	case RoleViewer, RoleOperator, RoleAdmin:
	default:
		return Claims{}, fmt.Errorf("auth: unrecognized role claim %q", role)
	}

	return Claims{Subject: sub, Role: role}, nil
}

func extractRole(claims jwt.MapClaims) string {
	if r, ok := claims["role"].(string); ok {
		return r
	}
	return ""
}

// Middleware enforces bearer auth on every request, attaching Claims to
// the request context on success. When disabled is true (dev mode,
// spec §6 disable-authentication) it instead attaches an admin identity
// to every request and performs no validation.
func Middleware(v *Validator, disabled bool, min Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if disabled {
				next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), Claims{Subject: "dev", Role: RoleAdmin})))
				return
			}

			header := r.Header.Get("Authorization")
			rawToken := strings.TrimPrefix(header, "Bearer ")
			if rawToken == "" {
				writeAuthError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}

			claims, err := v.Validate(rawToken)
			if err != nil {
				writeAuthError(w, http.StatusUnauthorized, err.Error())
				return
			}
			if !claims.Role.AtLeast(min) {
				writeAuthError(w, http.StatusForbidden, "insufficient role")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"error":"unauthorized","message":%q}`, message)
}
