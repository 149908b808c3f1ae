package middleware

import (
	"context"

	"github.com/angelmondragon/kitchenstock-backend/pkg/enums"
	"github.com/angelmondragon/kitchenstock-backend/pkg/outbox"
)

type contextKey string

const (
	ctxStaffID contextKey = "staff_id"
	ctxRole    contextKey = "actor_role"
)

func StaffIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxStaffID).(string); ok {
		return v
	}
	return ""
}

func RoleFromContext(ctx context.Context) enums.StaffRole {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxRole).(enums.StaffRole); ok {
		return v
	}
	return ""
}

// ActorFromContext returns the authenticated staff member as an event actor,
// or nil when the request carries no identity.
func ActorFromContext(ctx context.Context) *outbox.ActorRef {
	staffID := StaffIDFromContext(ctx)
	if staffID == "" {
		return nil
	}
	return &outbox.ActorRef{StaffID: staffID, Role: string(RoleFromContext(ctx))}
}

// WithStaff injects the staff identity into the context.
func WithStaff(ctx context.Context, staffID string, role enums.StaffRole) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, ctxStaffID, staffID)
	return context.WithValue(ctx, ctxRole, role)
}
