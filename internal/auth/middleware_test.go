package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestMiddleware(t *testing.T) {
	authority := NewTokenAuthority(testKey(t), "test-kid")
	authenticator := newTestAuthenticator(t, authority)
	token, _, err := authority.Encode("sub", "saas", []UnitPrimitive{UnitPrimitiveDuoChat})
	if err != nil {
		t.Fatal(err)
	}

	var gotUser *User
	handler := Middleware(authenticator, false)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, _ = UserFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name       string
		authType   string
		authHeader string
		wantStatus int
	}{
		{"valid token", "oidc", "Bearer " + token, http.StatusOK},
		{"missing auth type header", "", "Bearer " + token, http.StatusBadRequest},
		{"wrong auth type", "basic", "Bearer " + token, http.StatusBadRequest},
		{"no authorization header", "oidc", "", http.StatusUnauthorized},
		{"not a bearer token", "oidc", "Token abc", http.StatusUnauthorized},
		{"invalid token", "oidc", "Bearer garbage", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotUser = nil
			req := httptest.NewRequest(http.MethodPost, "/v1/chat/agent", nil)
			if tt.authType != "" {
				req.Header.Set(authTypeHeader, tt.authType)
			}
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusOK {
				if gotUser == nil || !gotUser.Authenticated {
					t.Error("handler did not receive an authenticated user")
				}
			} else if gotUser != nil {
				t.Error("handler ran on a rejected request")
			}
		})
	}
}

func TestMiddlewareBypass(t *testing.T) {
	handler := Middleware(nil, true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := UserFromContext(r.Context())
		if !ok || !user.IsDebug {
			t.Error("bypass must install a debug user")
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestMiddlewareNoKeys(t *testing.T) {
	keys := NewCompositeProvider(time.Hour, NewLocalProvider("empty"))
	authenticator := NewAuthenticator(keys, NewCertChainVerifier(nil))

	handler := Middleware(authenticator, false)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler must not run")
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/agent", nil)
	req.Header.Set(authTypeHeader, "oidc")
	req.Header.Set("Authorization", "Bearer sometoken")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}
