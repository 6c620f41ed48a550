// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/seismonet/quakewatch/pkg/schema"
)

func testCfg() schema.JWTConfig {
	return schema.JWTConfig{Issuer: "quakewatch", Audience: "quakewatch-api", Secret: "test-secret"}
}

func signToken(t *testing.T, cfg schema.JWTConfig, sub, role string, expired bool) string {
	t.Helper()
	exp := time.Now().Add(time.Hour)
	if expired {
		exp = time.Now().Add(-time.Hour)
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  sub,
		"role": role,
		"iss":  cfg.Issuer,
		"aud":  cfg.Audience,
		"exp":  exp.Unix(),
	})
	signed, err := tok.SignedString([]byte(cfg.Secret))
	if err != nil {
		t.Fatalf("signing test token: %v", err)
	}
	return signed
}

func TestValidateAcceptsWellFormedToken(t *testing.T) {
	cfg := testCfg()
	v := New(cfg)
	claims, err := v.Validate(signToken(t, cfg, "alice", "operator", false))
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if claims.Subject != "alice" || claims.Role != RoleOperator {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	cfg := testCfg()
	v := New(cfg)
	if _, err := v.Validate(signToken(t, cfg, "alice", "viewer", true)); err == nil {
		t.Fatalf("expected an error for an expired token")
	}
}

func TestValidateRejectsUnrecognizedRole(t *testing.T) {
	cfg := testCfg()
	v := New(cfg)
	if _, err := v.Validate(signToken(t, cfg, "alice", "superuser", false)); err == nil {
		t.Fatalf("expected an error for an unrecognized role claim")
	}
}

func TestRoleAtLeast(t *testing.T) {
	if !RoleAdmin.AtLeast(RoleOperator) {
		t.Fatalf("admin should satisfy an operator requirement")
	}
	if RoleViewer.AtLeast(RoleOperator) {
		t.Fatalf("viewer should not satisfy an operator requirement")
	}
}

func TestMiddlewareRejectsMissingToken(t *testing.T) {
	v := New(testCfg())
	h := Middleware(v, false, RoleViewer)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler should not run without a bearer token")
	}))
	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestMiddlewareRejectsInsufficientRole(t *testing.T) {
	cfg := testCfg()
	v := New(cfg)
	h := Middleware(v, false, RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler should not run for an insufficiently privileged role")
	}))
	req := httptest.NewRequest(http.MethodPost, "/admin/cache-purge", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, cfg, "alice", "viewer", false))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestMiddlewareDisabledAttachesAdminClaims(t *testing.T) {
	var seen Claims
	h := Middleware(nil, true, RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = FromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodPost, "/admin/cache-purge", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if seen.Role != RoleAdmin {
		t.Fatalf("expected disabled auth to attach an admin identity, got %+v", seen)
	}
}
