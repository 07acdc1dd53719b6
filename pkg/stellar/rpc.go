package stellar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// rpcClient is a minimal JSON-RPC 2.0 client for the Soroban RPC
// endpoint. Only the four methods the engine needs are wrapped.
type rpcClient struct {
	url  string
	http *http.Client
}

func newRPCClient(url string) *rpcClient {
	return &rpcClient{
		url:  url,
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      int         `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

func (c *rpcClient) call(ctx context.Context, method string, params, result interface{}) error {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: unexpected status %s", method, resp.Status)
	}

	var envelope rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	if envelope.Error != nil {
		return fmt.Errorf("%s: %w", method, envelope.Error)
	}
	if result != nil {
		if err := json.Unmarshal(envelope.Result, result); err != nil {
			return fmt.Errorf("decode %s result: %w", method, err)
		}
	}
	return nil
}

// simulateResponse carries the subset of the simulateTransaction
// result the client consumes.
type simulateResponse struct {
	Error           string `json:"error"`
	TransactionData string `json:"transactionData"`
	MinResourceFee  string `json:"minResourceFee"`
	Results         []struct {
		XDR  string   `json:"xdr"`
		Auth []string `json:"auth"`
	} `json:"results"`
}

func (c *rpcClient) simulateTransaction(ctx context.Context, txBase64 string) (*simulateResponse, error) {
	var out simulateResponse
	params := map[string]string{"transaction": txBase64}
	if err := c.call(ctx, "simulateTransaction", params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type sendResponse struct {
	Status         string `json:"status"`
	Hash           string `json:"hash"`
	ErrorResultXDR string `json:"errorResultXdr"`
}

func (c *rpcClient) sendTransaction(ctx context.Context, txBase64 string) (*sendResponse, error) {
	var out sendResponse
	params := map[string]string{"transaction": txBase64}
	if err := c.call(ctx, "sendTransaction", params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Terminal getTransaction statuses.
const (
	txStatusSuccess  = "SUCCESS"
	txStatusFailed   = "FAILED"
	txStatusNotFound = "NOT_FOUND"
)

type getTransactionResponse struct {
	Status    string `json:"status"`
	ResultXDR string `json:"resultXdr"`
}

func (c *rpcClient) getTransaction(ctx context.Context, hash string) (*getTransactionResponse, error) {
	var out getTransactionResponse
	params := map[string]string{"hash": hash}
	if err := c.call(ctx, "getTransaction", params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type ledgerEntriesResponse struct {
	Entries []struct {
		XDR string `json:"xdr"`
	} `json:"entries"`
}

func (c *rpcClient) getLedgerEntries(ctx context.Context, keys []string) (*ledgerEntriesResponse, error) {
	var out ledgerEntriesResponse
	params := map[string][]string{"keys": keys}
	if err := c.call(ctx, "getLedgerEntries", params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
