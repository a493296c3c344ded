package middleware

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/pavilion/internal/crypto"
)

const devKeyHex = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// echoCaller reports the verified caller and the body it saw.
func echoCaller() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		addr, ok := Caller(r.Context())
		if ok {
			w.Header().Set("X-Caller", addr.Hex())
		}
		_, _ = w.Write(body)
	})
}

func signedRequest(t *testing.T, method, path string, body []byte) *http.Request {
	t.Helper()
	key, err := crypto.ParseKey(devKeyHex)
	require.NoError(t, err)
	s := crypto.NewSigner(key)
	ts, sig, err := s.SignRequest(now, method, path, body)
	require.NoError(t, err)

	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set(crypto.HeaderAddress, s.Address().Hex())
	req.Header.Set(crypto.HeaderTimestamp, ts)
	req.Header.Set(crypto.HeaderSignature, sig)
	return req
}

func TestIdentity(t *testing.T) {
	h := Identity(time.Minute, func() time.Time { return now }, discard())(echoCaller())

	t.Run("signed", func(t *testing.T) {
		body := []byte(`{"quantity":1}`)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, signedRequest(t, http.MethodPost, "/api/games/1/tickets", body))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266", rec.Header().Get("X-Caller"))
		assert.Equal(t, string(body), rec.Body.String())
	})

	t.Run("anonymous", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/games/1", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Header().Get("X-Caller"))
	})

	t.Run("claimed address mismatch", func(t *testing.T) {
		req := signedRequest(t, http.MethodPost, "/api/treasury/withdraw", []byte(`{}`))
		req.Header.Set(crypto.HeaderAddress, common.HexToAddress("0xaa").Hex())
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("headers without address", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/games", nil)
		req.Header.Set(crypto.HeaderSignature, "0x00")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestRequireCaller(t *testing.T) {
	h := RequireCaller(echoCaller())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/games", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/games", nil)
	req = req.WithContext(WithCaller(req.Context(), common.HexToAddress("0xaa")))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCORS(t *testing.T) {
	h := CORS([]string{"http://localhost:3000"})(echoCaller())

	req := httptest.NewRequest(http.MethodOptions, "/api/games", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), crypto.HeaderSignature)

	req = httptest.NewRequest(http.MethodGet, "/api/games/1", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

type countingLimiter struct {
	keys  []string
	allow int
	err   error
}

func (c *countingLimiter) Allow(_ context.Context, key string, _ int, _ time.Duration) (bool, error) {
	c.keys = append(c.keys, key)
	if c.err != nil {
		return false, c.err
	}
	c.allow--
	return c.allow >= 0, nil
}

func TestRateLimit(t *testing.T) {
	lim := &countingLimiter{allow: 1}
	h := RateLimit(lim, 1, time.Minute, discard())(echoCaller())

	req := httptest.NewRequest(http.MethodPost, "/api/games/1/tickets", nil)
	req.RemoteAddr = "10.0.0.7:5123"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	signed := req.Clone(WithCaller(context.Background(), common.HexToAddress("0xAB")))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, signed)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	assert.Equal(t, []string{
		"api:ip:10.0.0.7",
		"api:addr:0x00000000000000000000000000000000000000ab",
	}, lim.keys)
}

func TestRateLimit_FailsOpen(t *testing.T) {
	h := RateLimit(&countingLimiter{err: errors.New("redis down")}, 1, time.Minute, discard())(echoCaller())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:1234"
	assert.Equal(t, "192.0.2.1", clientIP(req))
	req.Header.Set("X-Real-IP", "198.51.100.2")
	assert.Equal(t, "198.51.100.2", clientIP(req))
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "203.0.113.9", clientIP(req))
}

func TestLoggingRecordsCaller(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	h := Logging(logger)(Identity(time.Minute, func() time.Time { return now }, discard())(echoCaller()))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, signedRequest(t, http.MethodPost, "/api/games", []byte(`{}`)))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, buf.String(), `"caller":"0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"`)
	assert.Contains(t, buf.String(), `"msg":"http: request"`)
}
