package httpapi

import (
	"context"
)

type authContextKey string

const authPartyKey authContextKey = "authParty"

func withParty(ctx context.Context, party string) context.Context {
	if party == "" {
		return ctx
	}
	return context.WithValue(ctx, authPartyKey, party)
}

// partyFromContext returns the authenticated party, or "" outside requireAuth.
func partyFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(authPartyKey).(string); ok {
		return v
	}
	return ""
}
