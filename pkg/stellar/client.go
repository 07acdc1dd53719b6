// Package stellar implements the settlement collaborator against a
// Soroban RPC endpoint: asset resolution, vault balance reads by
// transaction simulation, and settle_trade submission with polling.
package stellar

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/stellar/go/keypair"
	"github.com/stellar/go/strkey"
	"github.com/stellar/go/txnbuild"
	"github.com/stellar/go/xdr"
	"go.uber.org/zap"

	"github.com/stellarvault/matching-engine/pkg/core"
)

var (
	// ErrUnresolvableAsset is returned when an asset identifier cannot
	// be mapped to a contract id.
	ErrUnresolvableAsset = errors.New("unresolvable asset")

	// ErrSettlementTimeout is returned when a submitted settlement
	// transaction does not reach a terminal state within the polling
	// window.
	ErrSettlementTimeout = errors.New("settlement polling timed out")

	// ErrOnChainFailure is returned when the chain reports a submitted
	// settlement transaction as failed.
	ErrOnChainFailure = errors.New("settlement transaction failed on-chain")
)

// Polling cadence for submitted settlement transactions: every 2s for
// up to 120s.
const (
	pollInterval = 2 * time.Second
	pollAttempts = 60
)

const simulationTimeout = 30 // tx timebound for simulated reads, seconds

// Client talks to the settlement contract over Soroban RPC. It
// implements engine.SettlementClient.
type Client struct {
	rpc               *rpcClient
	networkPassphrase string
	contractID        string // settlement contract (C...)
	signingKey        *keypair.Full
	log               *zap.SugaredLogger
}

// NewClient builds a client for one settlement contract. signingKey
// may be nil for read-only deployments; SubmitSettlement then fails.
func NewClient(rpcURL, networkPassphrase, contractID string, signingKey *keypair.Full, log *zap.SugaredLogger) *Client {
	return &Client{
		rpc:               newRPCClient(rpcURL),
		networkPassphrase: networkPassphrase,
		contractID:        contractID,
		signingKey:        signingKey,
		log:               log,
	}
}

// ResolveContractAddress maps an asset identifier to its contract id.
// Accepted forms: a C... contract address (passthrough), 64 hex chars
// (raw contract hash), "XLM"/"native", or "CODE:ISSUER".
func (c *Client) ResolveContractAddress(asset string) (string, error) {
	if strkey.IsValidContractAddress(asset) {
		return asset, nil
	}

	if len(asset) == 64 {
		if raw, err := hex.DecodeString(asset); err == nil {
			return strkey.Encode(strkey.VersionByteContract, raw)
		}
	}

	xdrAsset, err := classicAsset(asset)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrUnresolvableAsset, asset, err)
	}
	contractID, err := xdrAsset.ContractID(c.networkPassphrase)
	if err != nil {
		return "", fmt.Errorf("%w: %s: derive contract id: %v", ErrUnresolvableAsset, asset, err)
	}
	return strkey.Encode(strkey.VersionByteContract, contractID[:])
}

// classicAsset parses "XLM"/"native" or "CODE:ISSUER" into an XDR
// asset.
func classicAsset(asset string) (xdr.Asset, error) {
	if asset == "XLM" || asset == "native" {
		return txnbuild.NativeAsset{}.ToXDR()
	}
	parts := strings.Split(asset, ":")
	if len(parts) != 2 {
		return xdr.Asset{}, fmt.Errorf("invalid asset format %q, want 'XLM' or 'CODE:ISSUER'", asset)
	}
	return txnbuild.CreditAsset{Code: parts[0], Issuer: parts[1]}.ToXDR()
}

// ConfiguredPair reads the two asset contract ids the settlement
// contract was deployed for.
func (c *Client) ConfiguredPair(ctx context.Context) (string, string, error) {
	base, err := c.contractReadAddress(ctx, "get_asset_a")
	if err != nil {
		return "", "", fmt.Errorf("get_asset_a: %w", err)
	}
	quote, err := c.contractReadAddress(ctx, "get_asset_b")
	if err != nil {
		return "", "", fmt.Errorf("get_asset_b: %w", err)
	}
	return base, quote, nil
}

// contractReadAddress simulates a no-argument contract call and
// decodes the returned address.
func (c *Client) contractReadAddress(ctx context.Context, fn string) (string, error) {
	val, err := c.simulateCall(ctx, fn, nil)
	if err != nil {
		return "", err
	}
	return scValToAddress(val)
}

// VaultBalance reads the user's custodial balance from the settlement
// contract. Transport and simulation failures are logged and reported
// as a zero balance rather than an error — the contract read path
// cannot distinguish "no balance" from "unknown".
func (c *Client) VaultBalance(ctx context.Context, user, contractID string) (int64, error) {
	userVal, err := scAddress(user)
	if err != nil {
		c.log.Errorw("vault balance read failed", "user", user, "err", err)
		return 0, nil
	}
	tokenVal, err := scAddress(contractID)
	if err != nil {
		c.log.Errorw("vault balance read failed", "token", contractID, "err", err)
		return 0, nil
	}

	val, err := c.simulateCall(ctx, "get_balance", []xdr.ScVal{userVal, tokenVal})
	if err != nil {
		c.log.Errorw("vault balance read failed", "user", user, "token", contractID, "err", err)
		return 0, nil
	}
	balance, err := scValToInt64(val)
	if err != nil {
		c.log.Errorw("vault balance decode failed", "user", user, "token", contractID, "err", err)
		return 0, nil
	}
	return balance, nil
}

// simulateCall builds a throwaway-source invocation of the settlement
// contract and returns the simulated result value.
func (c *Client) simulateCall(ctx context.Context, fn string, args []xdr.ScVal) (xdr.ScVal, error) {
	source := keypair.MustRandom()
	tx, err := c.buildInvocation(&txnbuild.SimpleAccount{AccountID: source.Address()}, fn, args)
	if err != nil {
		return xdr.ScVal{}, err
	}
	txBase64, err := tx.Base64()
	if err != nil {
		return xdr.ScVal{}, fmt.Errorf("encode %s tx: %w", fn, err)
	}

	sim, err := c.rpc.simulateTransaction(ctx, txBase64)
	if err != nil {
		return xdr.ScVal{}, err
	}
	if sim.Error != "" {
		return xdr.ScVal{}, fmt.Errorf("simulate %s: %s", fn, sim.Error)
	}
	if len(sim.Results) == 0 {
		return xdr.ScVal{}, fmt.Errorf("simulate %s: empty result", fn)
	}

	var val xdr.ScVal
	if err := xdr.SafeUnmarshalBase64(sim.Results[0].XDR, &val); err != nil {
		return xdr.ScVal{}, fmt.Errorf("decode %s result: %w", fn, err)
	}
	return val, nil
}

// buildInvocation assembles a single invoke-contract transaction
// against the settlement contract.
func (c *Client) buildInvocation(source *txnbuild.SimpleAccount, fn string, args []xdr.ScVal) (*txnbuild.Transaction, error) {
	contractAddr, err := scAddressRaw(c.contractID)
	if err != nil {
		return nil, fmt.Errorf("settlement contract address: %w", err)
	}

	op := &txnbuild.InvokeHostFunction{
		HostFunction: xdr.HostFunction{
			Type: xdr.HostFunctionTypeHostFunctionTypeInvokeContract,
			InvokeContract: &xdr.InvokeContractArgs{
				ContractAddress: contractAddr,
				FunctionName:    xdr.ScSymbol(fn),
				Args:            xdr.ScVec(args),
			},
		},
	}

	return txnbuild.NewTransaction(txnbuild.TransactionParams{
		SourceAccount:        source,
		IncrementSequenceNum: true,
		Operations:           []txnbuild.Operation{op},
		BaseFee:              txnbuild.MinBaseFee,
		Preconditions: txnbuild.Preconditions{
			TimeBounds: txnbuild.NewTimeout(simulationTimeout),
		},
	})
}

// SubmitSettlement signs and submits one settle_trade invocation and
// polls it to a terminal state, returning the transaction hash. A
// failure here never rolls back the matched trade — matching and
// settlement are deliberately decoupled.
func (c *Client) SubmitSettlement(ctx context.Context, instr core.SettlementInstruction) (string, error) {
	if c.signingKey == nil {
		return "", fmt.Errorf("no settlement signing key configured")
	}

	seq, err := c.accountSequence(ctx, c.signingKey.Address())
	if err != nil {
		return "", fmt.Errorf("load account %s: %w", c.signingKey.Address(), err)
	}
	source := &txnbuild.SimpleAccount{AccountID: c.signingKey.Address(), Sequence: seq}

	arg, err := c.settlementArg(instr)
	if err != nil {
		return "", err
	}

	tx, err := c.buildInvocation(source, "settle_trade", []xdr.ScVal{arg})
	if err != nil {
		return "", err
	}
	tx, err = tx.Sign(c.networkPassphrase, c.signingKey)
	if err != nil {
		return "", fmt.Errorf("sign settlement tx: %w", err)
	}
	txBase64, err := tx.Base64()
	if err != nil {
		return "", fmt.Errorf("encode settlement tx: %w", err)
	}

	sim, err := c.rpc.simulateTransaction(ctx, txBase64)
	if err != nil {
		return "", err
	}
	if sim.Error != "" {
		return "", fmt.Errorf("simulate settle_trade: %s", sim.Error)
	}

	prepared, err := c.prepareTransaction(source, instr, sim)
	if err != nil {
		return "", err
	}
	prepared, err = prepared.Sign(c.networkPassphrase, c.signingKey)
	if err != nil {
		return "", fmt.Errorf("sign prepared settlement tx: %w", err)
	}
	preparedBase64, err := prepared.Base64()
	if err != nil {
		return "", fmt.Errorf("encode prepared settlement tx: %w", err)
	}

	send, err := c.rpc.sendTransaction(ctx, preparedBase64)
	if err != nil {
		return "", err
	}
	if send.Status == "ERROR" {
		return "", fmt.Errorf("settlement submission rejected: %s", send.ErrorResultXDR)
	}

	c.log.Infow("settlement submitted", "trade_id", instr.TradeID, "tx", send.Hash)
	return c.pollTransaction(ctx, send.Hash)
}

// prepareTransaction rebuilds the settlement transaction with the
// simulation's Soroban resources: footprint/transaction data, resource
// fee and recorded auth entries.
func (c *Client) prepareTransaction(source *txnbuild.SimpleAccount, instr core.SettlementInstruction, sim *simulateResponse) (*txnbuild.Transaction, error) {
	var sorobanData xdr.SorobanTransactionData
	if err := xdr.SafeUnmarshalBase64(sim.TransactionData, &sorobanData); err != nil {
		return nil, fmt.Errorf("decode soroban transaction data: %w", err)
	}
	resourceFee, err := strconv.ParseInt(sim.MinResourceFee, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse min resource fee %q: %w", sim.MinResourceFee, err)
	}

	var auth []xdr.SorobanAuthorizationEntry
	if len(sim.Results) > 0 {
		for _, raw := range sim.Results[0].Auth {
			var entry xdr.SorobanAuthorizationEntry
			if err := xdr.SafeUnmarshalBase64(raw, &entry); err != nil {
				return nil, fmt.Errorf("decode auth entry: %w", err)
			}
			auth = append(auth, entry)
		}
	}

	contractAddr, err := scAddressRaw(c.contractID)
	if err != nil {
		return nil, fmt.Errorf("settlement contract address: %w", err)
	}
	arg, err := c.settlementArg(instr)
	if err != nil {
		return nil, err
	}

	op := &txnbuild.InvokeHostFunction{
		HostFunction: xdr.HostFunction{
			Type: xdr.HostFunctionTypeHostFunctionTypeInvokeContract,
			InvokeContract: &xdr.InvokeContractArgs{
				ContractAddress: contractAddr,
				FunctionName:    xdr.ScSymbol("settle_trade"),
				Args:            xdr.ScVec{arg},
			},
		},
		Auth: auth,
		Ext: xdr.TransactionExt{
			V:           1,
			SorobanData: &sorobanData,
		},
	}

	// The simulation consumed the sequence bump of the first build;
	// reuse the same number for the prepared transaction.
	prepSource := &txnbuild.SimpleAccount{AccountID: source.AccountID, Sequence: source.Sequence - 1}
	return txnbuild.NewTransaction(txnbuild.TransactionParams{
		SourceAccount:        prepSource,
		IncrementSequenceNum: true,
		Operations:           []txnbuild.Operation{op},
		BaseFee:              txnbuild.MinBaseFee + resourceFee,
		Preconditions: txnbuild.Preconditions{
			TimeBounds: txnbuild.NewTimeout(300),
		},
	})
}

// settlementArg builds the ScMap the settlement contract's
// settle_trade entry expects. Keys must be in symbol order.
func (c *Client) settlementArg(instr core.SettlementInstruction) (xdr.ScVal, error) {
	baseAsset, err := c.ResolveContractAddress(instr.BaseAsset)
	if err != nil {
		return xdr.ScVal{}, err
	}
	quoteAsset, err := c.ResolveContractAddress(instr.QuoteAsset)
	if err != nil {
		return xdr.ScVal{}, err
	}

	baseVal, err := scAddress(baseAsset)
	if err != nil {
		return xdr.ScVal{}, err
	}
	quoteVal, err := scAddress(quoteAsset)
	if err != nil {
		return xdr.ScVal{}, err
	}
	buyVal, err := scAddress(instr.BuyUser)
	if err != nil {
		return xdr.ScVal{}, fmt.Errorf("buy user: %w", err)
	}
	sellVal, err := scAddress(instr.SellUser)
	if err != nil {
		return xdr.ScVal{}, fmt.Errorf("sell user: %w", err)
	}

	tradeID, err := tradeIDBytes(instr.TradeID)
	if err != nil {
		return xdr.ScVal{}, err
	}

	return scMap(
		xdr.ScMapEntry{Key: scSymbol("base_amount"), Val: scI128(instr.BaseAmount)},
		xdr.ScMapEntry{Key: scSymbol("base_asset"), Val: baseVal},
		xdr.ScMapEntry{Key: scSymbol("buy_user"), Val: buyVal},
		xdr.ScMapEntry{Key: scSymbol("fee_base"), Val: scI128(instr.FeeBase)},
		xdr.ScMapEntry{Key: scSymbol("fee_quote"), Val: scI128(instr.FeeQuote)},
		xdr.ScMapEntry{Key: scSymbol("quote_amount"), Val: scI128(instr.QuoteAmount)},
		xdr.ScMapEntry{Key: scSymbol("quote_asset"), Val: quoteVal},
		xdr.ScMapEntry{Key: scSymbol("sell_user"), Val: sellVal},
		xdr.ScMapEntry{Key: scSymbol("timestamp"), Val: scU64(uint64(instr.Timestamp))},
		xdr.ScMapEntry{Key: scSymbol("trade_id"), Val: scBytes(tradeID)},
	), nil
}

// tradeIDBytes renders a UUID trade id as the 32-byte identifier the
// contract stores (16 UUID bytes, zero padded).
func tradeIDBytes(tradeID string) ([]byte, error) {
	raw, err := hex.DecodeString(strings.ReplaceAll(tradeID, "-", ""))
	if err != nil {
		return nil, fmt.Errorf("trade id %q is not hex: %w", tradeID, err)
	}
	if len(raw) > 32 {
		return nil, fmt.Errorf("trade id %q longer than 32 bytes", tradeID)
	}
	out := make([]byte, 32)
	copy(out, raw)
	return out, nil
}

// pollTransaction waits for the transaction to reach a terminal state.
func (c *Client) pollTransaction(ctx context.Context, hash string) (string, error) {
	for i := 0; i < pollAttempts; i++ {
		res, err := c.rpc.getTransaction(ctx, hash)
		if err != nil {
			return "", err
		}
		switch res.Status {
		case txStatusSuccess:
			c.log.Infow("settlement confirmed", "tx", hash, "waited", time.Duration(i)*pollInterval)
			return hash, nil
		case txStatusFailed:
			return "", fmt.Errorf("%w: %s (result %s)", ErrOnChainFailure, hash, res.ResultXDR)
		case txStatusNotFound:
			// not yet included in a ledger, keep polling
		}
		if i%10 == 0 {
			c.log.Infow("waiting for settlement", "tx", hash, "status", res.Status)
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(pollInterval):
		}
	}
	return "", fmt.Errorf("%w: tx %s", ErrSettlementTimeout, hash)
}

// accountSequence loads an account's current sequence number through
// getLedgerEntries.
func (c *Client) accountSequence(ctx context.Context, address string) (int64, error) {
	accountID := xdr.MustAddress(address)
	key := xdr.LedgerKey{
		Type:    xdr.LedgerEntryTypeAccount,
		Account: &xdr.LedgerKeyAccount{AccountId: accountID},
	}
	keyBytes, err := key.MarshalBinary()
	if err != nil {
		return 0, fmt.Errorf("marshal ledger key: %w", err)
	}

	resp, err := c.rpc.getLedgerEntries(ctx, []string{base64.StdEncoding.EncodeToString(keyBytes)})
	if err != nil {
		return 0, err
	}
	if len(resp.Entries) == 0 {
		return 0, fmt.Errorf("account %s not found", address)
	}

	var entry xdr.LedgerEntryData
	if err := xdr.SafeUnmarshalBase64(resp.Entries[0].XDR, &entry); err != nil {
		return 0, fmt.Errorf("decode ledger entry: %w", err)
	}
	if entry.Type != xdr.LedgerEntryTypeAccount || entry.Account == nil {
		return 0, fmt.Errorf("unexpected ledger entry type %s", entry.Type)
	}
	return int64(entry.Account.SeqNum), nil
}
