package llm

import "context"

type contextKey string

const (
	purposeKey contextKey = "llm_purpose"
	unitKey    contextKey = "llm_unit"
)

// WithPurpose attaches a purpose label ("item-gen", ...) to the context for
// request logging.
func WithPurpose(ctx context.Context, purpose string) context.Context {
	return context.WithValue(ctx, purposeKey, purpose)
}

// PurposeFrom extracts the purpose label from the context.
func PurposeFrom(ctx context.Context) string {
	if v, ok := ctx.Value(purposeKey).(string); ok {
		return v
	}
	return "unknown"
}

// WithUnit tags requests made on behalf of a generation unit so the request
// log can be joined back to the unit that caused it.
func WithUnit(ctx context.Context, unitID string) context.Context {
	if unitID == "" {
		return ctx
	}
	return context.WithValue(ctx, unitKey, unitID)
}

// UnitFrom returns the unit id attached by WithUnit, or "".
func UnitFrom(ctx context.Context) string {
	v, _ := ctx.Value(unitKey).(string)
	return v
}
