// Package rbac guards HTTP routes with the permissions granted to the
// authenticated API token.
package rbac

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/odyssey-erp/logistics/internal/platform/httpx"
	"github.com/odyssey-erp/logistics/internal/shared"
)

// Wildcard grants every permission.
const Wildcard = "*"

// Middleware wires authorization helpers for HTTP handlers.
type Middleware struct {
	Logger *slog.Logger
}

// RequireAny ensures the current actor has at least one of the required permissions.
func (m Middleware) RequireAny(perms ...string) func(http.Handler) http.Handler {
	return m.require(normalizePermissions(perms), hasAnyPermission)
}

// RequireAll ensures the current actor has all required permissions.
func (m Middleware) RequireAll(perms ...string) func(http.Handler) http.Handler {
	return m.require(normalizePermissions(perms), hasAllPermissions)
}

func (m Middleware) require(required []string, check func(granted, required []string) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(required) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			granted := shared.PermissionsFromContext(r.Context())
			if granted == nil {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing or invalid token")
				return
			}
			if check(granted, required) {
				next.ServeHTTP(w, r)
				return
			}
			if m.Logger != nil {
				m.Logger.Info("permission denied",
					slog.String("actor", shared.ActorFromContext(r.Context())),
					slog.String("required", strings.Join(required, ",")))
			}
			httpx.Problem(w, http.StatusForbidden, "Forbidden", "missing permission "+strings.Join(required, " or "))
		})
	}
}

func normalizePermissions(perms []string) []string {
	unique := make(map[string]struct{}, len(perms))
	normalized := make([]string, 0, len(perms))
	for _, p := range perms {
		p = strings.TrimSpace(strings.ToLower(p))
		if p == "" {
			continue
		}
		if _, ok := unique[p]; ok {
			continue
		}
		unique[p] = struct{}{}
		normalized = append(normalized, p)
	}
	return normalized
}

func permissionSet(granted []string) map[string]struct{} {
	set := make(map[string]struct{}, len(granted))
	for _, p := range granted {
		set[strings.ToLower(strings.TrimSpace(p))] = struct{}{}
	}
	return set
}

func hasAnyPermission(granted []string, required []string) bool {
	set := permissionSet(granted)
	if _, ok := set[Wildcard]; ok {
		return true
	}
	for _, r := range required {
		if _, ok := set[r]; ok {
			return true
		}
	}
	return false
}

func hasAllPermissions(granted []string, required []string) bool {
	set := permissionSet(granted)
	if _, ok := set[Wildcard]; ok {
		return true
	}
	for _, r := range required {
		if _, ok := set[r]; !ok {
			return false
		}
	}
	return true
}
