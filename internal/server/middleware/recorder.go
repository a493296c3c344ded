package middleware

import "context"

// callerRecorder lets inner middleware report the verified caller back to
// Logging, which cannot see the context Identity derives.
type callerRecorder struct {
	caller string
}

type recorderKey struct{}

func withRecorder(ctx context.Context, rec *callerRecorder) context.Context {
	return context.WithValue(ctx, recorderKey{}, rec)
}

func recordCaller(ctx context.Context, caller string) {
	if rec, ok := ctx.Value(recorderKey{}).(*callerRecorder); ok {
		rec.caller = caller
	}
}
