// Package crypto implements the order signing scheme shared with
// client tooling: a canonical pipe-delimited message, the SEP-0053
// signed-message prefix, SHA-256 and an ed25519 signature under a
// Stellar strkey keypair. The message bytes are a wire contract —
// clients and the engine must agree on them exactly.
package crypto

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/stellar/go/keypair"

	"github.com/stellarvault/matching-engine/pkg/core"
)

// signedMessagePrefix is the fixed SEP-0053 prefix prepended before
// hashing.
const signedMessagePrefix = "Stellar Signed Message:\n"

// OrderMessage builds the canonical signing message for an order.
// Decimal fields render with the exponent of the text they were parsed
// from — "1.50" and "1.5" produce different messages, and normalizing
// them would break compatibility with existing signer tooling.
func OrderMessage(o *core.Order) string {
	parts := []string{
		"order_id:" + o.OrderID,
		"user:" + o.UserAddress,
		"pair:" + o.AssetPair.Base + "/" + o.AssetPair.Quote,
		"side:" + string(o.Side),
		"type:" + string(o.Type),
	}
	if o.Price != nil {
		parts = append(parts, "price:"+o.Price.String())
	}
	parts = append(parts,
		"quantity:"+o.Quantity.String(),
		"tif:"+string(o.TimeInForce),
		fmt.Sprintf("timestamp:%d", o.Timestamp),
	)
	if o.Expiration != nil {
		parts = append(parts, fmt.Sprintf("expiration:%d", *o.Expiration))
	}
	return strings.Join(parts, "|")
}

// orderDigest returns the SHA-256 of the prefixed canonical message.
func orderDigest(o *core.Order) [32]byte {
	return sha256.Sum256([]byte(signedMessagePrefix + OrderMessage(o)))
}

// VerifyOrderSignature checks a base64 ed25519 signature against the
// order's digest under the given strkey public key (G...). Malformed
// input of any kind yields false; verification never panics and never
// returns an error.
func VerifyOrderSignature(o *core.Order, signature, publicKey string) bool {
	kp, err := keypair.ParseAddress(publicKey)
	if err != nil {
		return false
	}
	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false
	}
	digest := orderDigest(o)
	return kp.Verify(digest[:], sig) == nil
}

// SignOrder produces the base64 signature a client would attach to the
// order. Used by the sign-order tool and by tests.
func SignOrder(kp *keypair.Full, o *core.Order) (string, error) {
	digest := orderDigest(o)
	sig, err := kp.Sign(digest[:])
	if err != nil {
		return "", fmt.Errorf("sign order %s: %w", o.OrderID, err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}
