// Package context carries request scoped identifiers (request, tenant, user, project, job)
// through a context.Context.
package context

import "context"

type ContextKey string

var (
	RequestIDKey = ContextKey("X-Request-Id")
	MethodKey    = ContextKey("X-Method")
	RouteKey     = ContextKey("X-Route")
	RemoteIPKey  = ContextKey("X-Remote-Ip")
	TenantIDKey  = ContextKey("X-Tenant-Id")
	UserIDKey    = ContextKey("X-User-Id")
	ProjectIDKey = ContextKey("X-Project-Id")
	JobIDKey     = ContextKey("X-Job-Id")
)

func set(ctx context.Context, key ContextKey, value string) context.Context {
	return context.WithValue(ctx, key, value)
}

func get(ctx context.Context, key ContextKey) string {
	value, ok := ctx.Value(key).(string)
	if !ok {
		return ""
	}
	return value
}

func SetRequestID(ctx context.Context, requestID string) context.Context {
	return set(ctx, RequestIDKey, requestID)
}

func GetRequestID(ctx context.Context) string {
	return get(ctx, RequestIDKey)
}

func SetMethod(ctx context.Context, method string) context.Context {
	return set(ctx, MethodKey, method)
}

func GetMethod(ctx context.Context) string {
	return get(ctx, MethodKey)
}

func SetRoute(ctx context.Context, route string) context.Context {
	return set(ctx, RouteKey, route)
}

func GetRoute(ctx context.Context) string {
	return get(ctx, RouteKey)
}

func SetRemoteIP(ctx context.Context, remoteIP string) context.Context {
	return set(ctx, RemoteIPKey, remoteIP)
}

func GetRemoteIP(ctx context.Context) string {
	return get(ctx, RemoteIPKey)
}

func SetTenantID(ctx context.Context, tenantID string) context.Context {
	return set(ctx, TenantIDKey, tenantID)
}

func GetTenantID(ctx context.Context) string {
	return get(ctx, TenantIDKey)
}

// SetUserID stores the acting user. Merge audit records and import job creators read it back.
func SetUserID(ctx context.Context, userID string) context.Context {
	return set(ctx, UserIDKey, userID)
}

func GetUserID(ctx context.Context) string {
	return get(ctx, UserIDKey)
}

func SetProjectID(ctx context.Context, projectID string) context.Context {
	return set(ctx, ProjectIDKey, projectID)
}

func GetProjectID(ctx context.Context) string {
	return get(ctx, ProjectIDKey)
}

func SetJobID(ctx context.Context, jobID string) context.Context {
	return set(ctx, JobIDKey, jobID)
}

func GetJobID(ctx context.Context) string {
	return get(ctx, JobIDKey)
}

// LogFields returns the identifiers present on ctx in a form suitable for logger.WithFields.
func LogFields(ctx context.Context) map[string]any {
	fields := map[string]any{}
	for name, key := range map[string]ContextKey{
		"request_id": RequestIDKey,
		"tenant_id":  TenantIDKey,
		"user_id":    UserIDKey,
		"project_id": ProjectIDKey,
		"job_id":     JobIDKey,
	} {
		if v := get(ctx, key); v != "" {
			fields[name] = v
		}
	}
	return fields
}
