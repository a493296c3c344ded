package crypto

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyoungcy/pavilion/internal/domain"
)

// Request headers carrying caller identity.
const (
	HeaderAddress   = "X-Pavilion-Address"
	HeaderTimestamp = "X-Pavilion-Timestamp"
	HeaderSignature = "X-Pavilion-Signature"
)

// RequestMessage is the text a caller signs: unix timestamp, upper-case
// method, path and raw body, concatenated.
func RequestMessage(timestamp, method, path string, body []byte) []byte {
	msg := make([]byte, 0, len(timestamp)+len(method)+len(path)+len(body))
	msg = append(msg, timestamp...)
	msg = append(msg, strings.ToUpper(method)...)
	msg = append(msg, path...)
	return append(msg, body...)
}

// Signer produces request signatures with personal_sign (EIP-191).
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

func NewSigner(key *ecdsa.PrivateKey) *Signer {
	return &Signer{key: key, address: ethcrypto.PubkeyToAddress(key.PublicKey)}
}

func (s *Signer) Address() common.Address { return s.address }

// SignRequest returns the header values for a request made at t.
func (s *Signer) SignRequest(t time.Time, method, path string, body []byte) (timestamp, signature string, err error) {
	timestamp = strconv.FormatInt(t.Unix(), 10)
	sig, err := ethcrypto.Sign(accounts.TextHash(RequestMessage(timestamp, method, path, body)), s.key)
	if err != nil {
		return "", "", fmt.Errorf("crypto: sign request: %w", err)
	}
	// Wallets emit v as 27/28.
	sig[ethcrypto.RecoveryIDOffset] += 27
	return timestamp, "0x" + hex.EncodeToString(sig), nil
}

// VerifyRequest checks that signature was made by claimed over the request
// and that timestamp is within maxAge of now in either direction. Every
// failure wraps domain.ErrUnauthorized.
func VerifyRequest(claimed common.Address, timestamp, method, path string, body []byte, signature string, now time.Time, maxAge time.Duration) error {
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: bad timestamp %q", domain.ErrUnauthorized, timestamp)
	}
	if age := now.Sub(time.Unix(ts, 0)); age > maxAge || age < -maxAge {
		return fmt.Errorf("%w: stale signature", domain.ErrUnauthorized)
	}

	sig, err := hex.DecodeString(strings.TrimPrefix(signature, "0x"))
	if err != nil || len(sig) != ethcrypto.SignatureLength {
		return fmt.Errorf("%w: malformed signature", domain.ErrUnauthorized)
	}
	if sig[ethcrypto.RecoveryIDOffset] >= 27 {
		sig[ethcrypto.RecoveryIDOffset] -= 27
	}

	pub, err := ethcrypto.SigToPub(accounts.TextHash(RequestMessage(timestamp, method, path, body)), sig)
	if err != nil {
		return fmt.Errorf("%w: recover signer: %v", domain.ErrUnauthorized, err)
	}
	if got := ethcrypto.PubkeyToAddress(*pub); got != claimed {
		return fmt.Errorf("%w: signature is from %s, not %s", domain.ErrUnauthorized, got.Hex(), claimed.Hex())
	}
	return nil
}
