package shared

import "context"

type actorContextKey struct{}

type permissionsContextKey struct{}

// SystemActor names changes made by background jobs.
const SystemActor = "system"

// ContextWithActor stores the authenticated token owner in context.
func ContextWithActor(ctx context.Context, actor string, permissions []string) context.Context {
	ctx = context.WithValue(ctx, actorContextKey{}, actor)
	return context.WithValue(ctx, permissionsContextKey{}, permissions)
}

// ActorFromContext extracts the actor, falling back to SystemActor.
func ActorFromContext(ctx context.Context) string {
	if actor, ok := ctx.Value(actorContextKey{}).(string); ok && actor != "" {
		return actor
	}
	return SystemActor
}

// PermissionsFromContext returns the permissions granted to the current actor.
func PermissionsFromContext(ctx context.Context) []string {
	perms, _ := ctx.Value(permissionsContextKey{}).([]string)
	return perms
}
