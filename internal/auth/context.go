package auth

import (
	"context"
	"errors"
)

type ctxKey int

const (
	ctxIdentity ctxKey = iota
	ctxRole
	ctxParty
)

func WithIdentity(ctx context.Context, identity, role, party string) context.Context {
	ctx = context.WithValue(ctx, ctxIdentity, identity)
	ctx = context.WithValue(ctx, ctxRole, role)
	ctx = context.WithValue(ctx, ctxParty, party)
	return ctx
}

func Identity(ctx context.Context) (string, error) {
	v := ctx.Value(ctxIdentity)
	if s, ok := v.(string); ok && s != "" {
		return s, nil
	}
	return "", errors.New("identity not in context")
}

func Role(ctx context.Context) (string, error) {
	v := ctx.Value(ctxRole)
	if s, ok := v.(string); ok && s != "" {
		return s, nil
	}
	return "", errors.New("role not in context")
}

// Party is optional; an empty string means the caller did not assert one.
func Party(ctx context.Context) string {
	if s, ok := ctx.Value(ctxParty).(string); ok {
		return s
	}
	return ""
}
