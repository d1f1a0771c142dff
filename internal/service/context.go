package service

import (
	"context"
	"strings"
)

type ctxKey string

const ctxActorKey ctxKey = "actor"

const defaultActor = "system"

// WithActor records who performs ledger mutations; it ends up in StockAdjustment.Actor.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, ctxActorKey, strings.TrimSpace(actor))
}

func ActorFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(ctxActorKey).(string)
	return v, ok && v != ""
}

func actorOf(ctx context.Context) string {
	if a, ok := ActorFromContext(ctx); ok {
		return a
	}
	return defaultActor
}
