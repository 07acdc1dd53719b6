package crypto

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stellar/go/keypair"

	"github.com/stellarvault/matching-engine/pkg/core"
)

func sampleOrder() *core.Order {
	price := decimal.RequireFromString("1.50")
	return &core.Order{
		OrderID:     "ord-1",
		UserAddress: "GABC",
		AssetPair:   core.AssetPair{Base: "XLM", Quote: "USDC"},
		Side:        core.Buy,
		Type:        core.Limit,
		Price:       &price,
		Quantity:    decimal.RequireFromString("100"),
		TimeInForce: core.GTC,
		Timestamp:   1700000000,
	}
}

func TestOrderMessageLimit(t *testing.T) {
	got := OrderMessage(sampleOrder())
	want := "order_id:ord-1|user:GABC|pair:XLM/USDC|side:Buy|type:Limit|price:1.50|quantity:100|tif:GTC|timestamp:1700000000"
	if got != want {
		t.Errorf("message = %q, want %q", got, want)
	}
}

func TestOrderMessageMarketOmitsPrice(t *testing.T) {
	o := sampleOrder()
	o.Price = nil
	o.Type = core.Market
	o.TimeInForce = core.IOC

	got := OrderMessage(o)
	want := "order_id:ord-1|user:GABC|pair:XLM/USDC|side:Buy|type:Market|quantity:100|tif:IOC|timestamp:1700000000"
	if got != want {
		t.Errorf("message = %q, want %q", got, want)
	}
}

func TestOrderMessageWithExpiration(t *testing.T) {
	o := sampleOrder()
	exp := int64(1700003600)
	o.Expiration = &exp

	got := OrderMessage(o)
	want := "order_id:ord-1|user:GABC|pair:XLM/USDC|side:Buy|type:Limit|price:1.50|quantity:100|tif:GTC|timestamp:1700000000|expiration:1700003600"
	if got != want {
		t.Errorf("message = %q, want %q", got, want)
	}
}

// The message carries the price text as the client typed it. The same
// numeric value with a different exponent is a different message, so a
// signature over one does not verify the other.
func TestOrderMessagePreservesDecimalText(t *testing.T) {
	a := sampleOrder()
	b := sampleOrder()
	p := decimal.RequireFromString("1.5")
	b.Price = &p

	if OrderMessage(a) == OrderMessage(b) {
		t.Error("messages for price texts 1.50 and 1.5 are equal")
	}
}

func TestSignVerifyRoundtrip(t *testing.T) {
	kp, err := keypair.Random()
	if err != nil {
		t.Fatal(err)
	}

	o := sampleOrder()
	o.UserAddress = kp.Address()
	sig, err := SignOrder(kp, o)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if !VerifyOrderSignature(o, sig, kp.Address()) {
		t.Error("valid signature did not verify")
	}
}

func TestVerifyRejectsTamperedOrder(t *testing.T) {
	kp := keypair.MustRandom()

	o := sampleOrder()
	o.UserAddress = kp.Address()
	sig, err := SignOrder(kp, o)
	if err != nil {
		t.Fatal(err)
	}

	o.Quantity = decimal.RequireFromString("101")
	if VerifyOrderSignature(o, sig, kp.Address()) {
		t.Error("signature verified after quantity change")
	}
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	signer := keypair.MustRandom()
	other := keypair.MustRandom()

	o := sampleOrder()
	o.UserAddress = signer.Address()
	sig, err := SignOrder(signer, o)
	if err != nil {
		t.Fatal(err)
	}

	if VerifyOrderSignature(o, sig, other.Address()) {
		t.Error("signature verified under a different key")
	}
}

func TestVerifyMalformedInput(t *testing.T) {
	o := sampleOrder()

	if VerifyOrderSignature(o, "not base64!!", keypair.MustRandom().Address()) {
		t.Error("malformed base64 verified")
	}
	if VerifyOrderSignature(o, "YWJj", "not-a-strkey") {
		t.Error("malformed public key verified")
	}
	if VerifyOrderSignature(o, "YWJj", keypair.MustRandom().Address()) {
		t.Error("short signature verified")
	}
}
