package middleware

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/pavilion/internal/crypto"
)

// maxSignedBody bounds the body read for signature checks.
const maxSignedBody = 1 << 20

type callerKey struct{}

// Caller returns the verified address attached by Identity.
func Caller(ctx context.Context) (common.Address, bool) {
	addr, ok := ctx.Value(callerKey{}).(common.Address)
	return addr, ok
}

// WithCaller attaches addr as the verified caller.
func WithCaller(ctx context.Context, addr common.Address) context.Context {
	return context.WithValue(ctx, callerKey{}, addr)
}

// Identity verifies the X-Pavilion-* signature headers when a request carries
// them and attaches the signer to the request context. Requests without the
// headers pass through anonymously; requests with bad headers get 401.
func Identity(maxAge time.Duration, now func() time.Time, logger *slog.Logger) func(http.Handler) http.Handler {
	if now == nil {
		now = time.Now
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			addrHdr := r.Header.Get(crypto.HeaderAddress)
			sig := r.Header.Get(crypto.HeaderSignature)
			ts := r.Header.Get(crypto.HeaderTimestamp)
			if addrHdr == "" && sig == "" && ts == "" {
				next.ServeHTTP(w, r)
				return
			}
			if !common.IsHexAddress(addrHdr) {
				writeJSONError(w, http.StatusUnauthorized, "invalid "+crypto.HeaderAddress)
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, maxSignedBody+1))
			if err != nil {
				writeJSONError(w, http.StatusBadRequest, "unreadable body")
				return
			}
			if len(body) > maxSignedBody {
				writeJSONError(w, http.StatusRequestEntityTooLarge, "body too large")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			addr := common.HexToAddress(addrHdr)
			if err := crypto.VerifyRequest(addr, ts, r.Method, r.URL.Path, body, sig, now(), maxAge); err != nil {
				logger.DebugContext(r.Context(), "identity: rejected signature",
					slog.String("address", addr.Hex()),
					slog.String("error", err.Error()),
				)
				writeJSONError(w, http.StatusUnauthorized, "invalid signature")
				return
			}
			recordCaller(r.Context(), addr.Hex())
			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), addr)))
		})
	}
}

// RequireCaller rejects anonymous requests with 401.
func RequireCaller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := Caller(r.Context()); !ok {
			writeJSONError(w, http.StatusUnauthorized, "signed request required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
