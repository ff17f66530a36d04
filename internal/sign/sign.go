// Package sign computes per-venue request signatures.
package sign

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"

	"github.com/exwrap/martin/internal/schema"
)

// Sign produces the authentication signature for payload under the venue's
// scheme: HMAC-SHA256 hex for binance and okx, HMAC-SHA384 hex for huobi,
// HMAC-SHA256 base64 for bitfinex.
func Sign(venue schema.Venue, secret, payload []byte) string {
	switch venue {
	case schema.VenueHuobi:
		mac := hmac.New(sha512.New384, secret)
		mac.Write(payload)
		return hex.EncodeToString(mac.Sum(nil))
	case schema.VenueBitfinex:
		mac := hmac.New(sha256.New, secret)
		mac.Write(payload)
		return base64.StdEncoding.EncodeToString(mac.Sum(nil))
	default:
		mac := hmac.New(sha256.New, secret)
		mac.Write(payload)
		return hex.EncodeToString(mac.Sum(nil))
	}
}
