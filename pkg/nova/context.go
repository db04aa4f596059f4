package nova

import "context"

// principalContextKey is used to carry the acting principal through a
// request's context.
type principalContextKey struct{}

// WithPrincipal attaches the acting principal to the context.
func WithPrincipal(ctx context.Context, principal string) context.Context {
	return context.WithValue(ctx, principalContextKey{}, principal)
}

// PrincipalFrom retrieves the acting principal from the context, or "" if
// none is attached.
func PrincipalFrom(ctx context.Context) string {
	if p, ok := ctx.Value(principalContextKey{}).(string); ok {
		return p
	}
	return ""
}
