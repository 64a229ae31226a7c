// Package auth resolves bearer tokens to principals. Token issuance happens
// outside this service; only lookup of already-provisioned tokens lives here.
package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	"github.com/go-faster/errors"

	"github.com/urbancart/api/internal/domain/user"
)

// ErrTokenNotFound is returned when no principal matches a token hash.
var ErrTokenNotFound = errors.New("token not found")

// Repository looks up the principal owning a token by the token's
// HMAC-SHA256 hash. Raw tokens are never stored.
type Repository interface {
	FindUserByTokenHash(ctx context.Context, hash string) (*user.User, error)
}

// HashToken computes the hex HMAC-SHA256 of a raw bearer token under the
// given pepper. The same derivation is used at seed time and at request time.
func HashToken(pepper []byte, token string) string {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(token))
	return hex.EncodeToString(mac.Sum(nil))
}
