package httpx

import (
	"context"

	"github.com/aussiebroadwan/encore/pkg/jwtx"
)

type ctxKey string

const (
	CtxKeyAccountID ctxKey = "account_id"
	CtxKeySession   ctxKey = "session"
)

func contextWithSession(ctx context.Context, c jwtx.SessionClaims) context.Context {
	ctx = context.WithValue(ctx, CtxKeyAccountID, c.AccountID())
	ctx = context.WithValue(ctx, CtxKeySession, c)
	return ctx
}

// SessionFromContext returns the claims injected by AuthnMiddleware.
func SessionFromContext(ctx context.Context) (jwtx.SessionClaims, bool) {
	c, ok := ctx.Value(CtxKeySession).(jwtx.SessionClaims)
	return c, ok
}

func AccountIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(CtxKeyAccountID).(string); ok {
		return v
	}
	return ""
}
