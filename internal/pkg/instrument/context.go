package instrument

import "context"

type ctxKeyCorrelationID struct{}

// SetCorrelationID returns ctx carrying cID.
func SetCorrelationID(ctx context.Context, cID string) context.Context {
	return context.WithValue(ctx, ctxKeyCorrelationID{}, cID)
}

// GetCorrelationID returns the correlation id carried by ctx, or "".
func GetCorrelationID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	cID, _ := ctx.Value(ctxKeyCorrelationID{}).(string)
	return cID
}
