package telemetry

import (
	"context"
	"net/http"
)

// EventContext is the per-request client context taken from X-Gitlab-*
// headers. It is bound to the request for the duration of handling and read
// by telemetry and logging.
type EventContext struct {
	Environment     string `json:"environment"`
	Source          string `json:"source"`
	Realm           string `json:"realm"`
	InstanceID      string `json:"instance_id"`
	HostName        string `json:"host_name"`
	InstanceVersion string `json:"instance_version"`
	GlobalUserID    string `json:"global_user_id"`
}

type eventContextKey struct{}

func ContextWithEvent(ctx context.Context, ec *EventContext) context.Context {
	return context.WithValue(ctx, eventContextKey{}, ec)
}

func EventFromContext(ctx context.Context) (*EventContext, bool) {
	ec, ok := ctx.Value(eventContextKey{}).(*EventContext)
	return ec, ok
}

// EventContextMiddleware extracts the client context headers and binds them
// to the request context, together with any feature-flag overrides.
func EventContextMiddleware(environment string, flags *FlagSet) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ec := &EventContext{
				Environment:     environment,
				Source:          r.Header.Get("User-Agent"),
				Realm:           r.Header.Get("X-Gitlab-Realm"),
				InstanceID:      r.Header.Get("X-Gitlab-Instance-Id"),
				HostName:        r.Header.Get("X-Gitlab-Host-Name"),
				InstanceVersion: r.Header.Get("X-Gitlab-Version"),
				GlobalUserID:    r.Header.Get("X-Gitlab-Global-User-Id"),
			}
			ctx := ContextWithEvent(r.Context(), ec)
			ctx = flags.ContextWithOverrides(ctx, r.Header.Get("X-Gitlab-Enabled-Feature-Flags"))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
