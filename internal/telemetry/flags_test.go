package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFlagSet(t *testing.T) {
	fs := NewFlagSet("expanded_ai_logging")
	ctx := context.Background()

	if !fs.IsEnabled(ctx, "expanded_ai_logging") {
		t.Error("constructor flag should be enabled")
	}
	if fs.IsEnabled(ctx, "custom_models_enabled") {
		t.Error("unset flag should be disabled")
	}

	fs.Set("custom_models_enabled", true)
	if !fs.IsEnabled(ctx, "custom_models_enabled") {
		t.Error("Set(true) should enable the flag")
	}
	fs.Set("custom_models_enabled", false)
	if fs.IsEnabled(ctx, "custom_models_enabled") {
		t.Error("Set(false) should disable the flag")
	}
}

func TestFlagOverlayPrecedence(t *testing.T) {
	fs := NewFlagSet()
	ctx := fs.ContextWithOverrides(context.Background(), "custom_models_enabled, other_flag")

	if !fs.IsEnabled(ctx, "custom_models_enabled") {
		t.Error("request overlay should enable the flag")
	}
	if !fs.IsEnabled(ctx, "other_flag") {
		t.Error("request overlay should enable every listed flag")
	}
	if fs.IsEnabled(context.Background(), "custom_models_enabled") {
		t.Error("overlay must not leak into other requests")
	}
}

func TestEventContextMiddleware(t *testing.T) {
	fs := NewFlagSet()
	var got *EventContext
	var flagOn bool

	handler := EventContextMiddleware("production", fs)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = EventFromContext(r.Context())
		flagOn = fs.IsEnabled(r.Context(), "custom_models_enabled")
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/agent", nil)
	req.Header.Set("User-Agent", "gitlab-vscode/4.0")
	req.Header.Set("X-Gitlab-Realm", "self-managed")
	req.Header.Set("X-Gitlab-Instance-Id", "uid-123")
	req.Header.Set("X-Gitlab-Version", "17.2.0")
	req.Header.Set("X-Gitlab-Global-User-Id", "user-9")
	req.Header.Set("X-Gitlab-Enabled-Feature-Flags", "custom_models_enabled")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if got == nil {
		t.Fatal("no event context bound")
	}
	if got.Environment != "production" {
		t.Errorf("Environment = %q", got.Environment)
	}
	if got.Realm != "self-managed" || got.InstanceID != "uid-123" {
		t.Errorf("realm/instance = %q/%q", got.Realm, got.InstanceID)
	}
	if got.InstanceVersion != "17.2.0" || got.GlobalUserID != "user-9" {
		t.Errorf("version/user = %q/%q", got.InstanceVersion, got.GlobalUserID)
	}
	if got.Source != "gitlab-vscode/4.0" {
		t.Errorf("Source = %q", got.Source)
	}
	if !flagOn {
		t.Error("feature flag header should enable the flag for this request")
	}
}
