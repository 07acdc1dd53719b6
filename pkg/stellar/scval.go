package stellar

import (
	"fmt"

	"github.com/stellar/go/strkey"
	"github.com/stellar/go/xdr"
)

// ScVal construction and extraction helpers for the handful of Soroban
// value shapes the settlement contract exchanges.

// scAddress wraps a strkey account (G...) or contract (C...) address.
func scAddress(addr string) (xdr.ScVal, error) {
	sa, err := scAddressRaw(addr)
	if err != nil {
		return xdr.ScVal{}, err
	}
	return xdr.ScVal{Type: xdr.ScValTypeScvAddress, Address: &sa}, nil
}

func scAddressRaw(addr string) (xdr.ScAddress, error) {
	switch {
	case strkey.IsValidEd25519PublicKey(addr):
		accountID := xdr.MustAddress(addr)
		return xdr.ScAddress{
			Type:      xdr.ScAddressTypeScAddressTypeAccount,
			AccountId: &accountID,
		}, nil
	case strkey.IsValidContractAddress(addr):
		raw, err := strkey.Decode(strkey.VersionByteContract, addr)
		if err != nil {
			return xdr.ScAddress{}, fmt.Errorf("decode contract address %q: %w", addr, err)
		}
		var contractID xdr.ContractId
		copy(contractID[:], raw)
		return xdr.ScAddress{
			Type:       xdr.ScAddressTypeScAddressTypeContract,
			ContractId: &contractID,
		}, nil
	default:
		return xdr.ScAddress{}, fmt.Errorf("not a strkey address: %q", addr)
	}
}

// scI128 encodes an int64 as a sign-extended i128.
func scI128(v int64) xdr.ScVal {
	var hi int64
	if v < 0 {
		hi = -1
	}
	parts := xdr.Int128Parts{Hi: xdr.Int64(hi), Lo: xdr.Uint64(uint64(v))}
	return xdr.ScVal{Type: xdr.ScValTypeScvI128, I128: &parts}
}

func scU64(v uint64) xdr.ScVal {
	u := xdr.Uint64(v)
	return xdr.ScVal{Type: xdr.ScValTypeScvU64, U64: &u}
}

func scBytes(b []byte) xdr.ScVal {
	sb := xdr.ScBytes(b)
	return xdr.ScVal{Type: xdr.ScValTypeScvBytes, Bytes: &sb}
}

func scSymbol(s string) xdr.ScVal {
	sym := xdr.ScSymbol(s)
	return xdr.ScVal{Type: xdr.ScValTypeScvSymbol, Sym: &sym}
}

func scMap(entries ...xdr.ScMapEntry) xdr.ScVal {
	m := xdr.ScMap(entries)
	mp := &m
	return xdr.ScVal{Type: xdr.ScValTypeScvMap, Map: &mp}
}

// scValToInt64 extracts an integer balance from the value shapes the
// settlement contract may return.
func scValToInt64(v xdr.ScVal) (int64, error) {
	switch v.Type {
	case xdr.ScValTypeScvI128:
		return i128ToInt64(*v.I128)
	case xdr.ScValTypeScvI64:
		return int64(*v.I64), nil
	case xdr.ScValTypeScvU64:
		return int64(*v.U64), nil
	case xdr.ScValTypeScvU32:
		return int64(*v.U32), nil
	case xdr.ScValTypeScvI32:
		return int64(*v.I32), nil
	default:
		return 0, fmt.Errorf("unexpected ScVal type %s", v.Type)
	}
}

func i128ToInt64(p xdr.Int128Parts) (int64, error) {
	lo := int64(p.Lo)
	switch {
	case p.Hi == 0 && lo >= 0:
		return lo, nil
	case p.Hi == -1 && lo < 0:
		return lo, nil
	default:
		return 0, fmt.Errorf("i128 value out of int64 range (hi=%d lo=%d)", p.Hi, p.Lo)
	}
}

// scValToAddress renders an ScVal address as its strkey string.
func scValToAddress(v xdr.ScVal) (string, error) {
	if v.Type != xdr.ScValTypeScvAddress || v.Address == nil {
		return "", fmt.Errorf("unexpected ScVal type %s, want address", v.Type)
	}
	addr := *v.Address
	switch addr.Type {
	case xdr.ScAddressTypeScAddressTypeAccount:
		return addr.AccountId.Address(), nil
	case xdr.ScAddressTypeScAddressTypeContract:
		return strkey.Encode(strkey.VersionByteContract, addr.ContractId[:])
	default:
		return "", fmt.Errorf("unexpected ScAddress type %d", addr.Type)
	}
}
