package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// ErrNotFound is returned when the mirror node has not indexed the requested
// record yet. It is an indeterminate result, not a rejection: the mirror lags
// consensus by a few seconds, so callers retry the query rather than treating
// the payment as failed.
var ErrNotFound = errors.New("record not yet indexed by mirror node")

// QueryError is returned when the mirror node is unreachable or returned a
// payload we cannot use. Status is zero for transport-level failures.
type QueryError struct {
	Op     string
	Status int
	Err    error
}

func (e *QueryError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("mirror %s failed: status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("mirror %s failed: %v", e.Op, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// Transfer is a single signed entry in a transaction's transfer list,
// denominated in tinybar. Negative amounts are debits.
type Transfer struct {
	Account string `json:"account"`
	Amount  int64  `json:"amount"`
}

// TransactionRecord is the finalized transfer list for one submitted
// transaction, as reported by the mirror node.
type TransactionRecord struct {
	Reference string
	Transfers []Transfer
}

// Client queries a Hedera mirror node over its public REST API.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	// Retry policy for WaitForTransaction. MaxAttempts bounds the total
	// number of queries; InitialBackoff doubles per attempt up to MaxBackoff.
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// NewClient creates a mirror node client for the given base URL,
// e.g. "https://testnet.mirrornode.hedera.com".
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		MaxAttempts:    5,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     4 * time.Second,
	}
}

// transactionsResponse covers both mirror response shapes: the documented
// {"transactions":[...]} envelope and the flattened single-object form.
type transactionsResponse struct {
	Transactions []struct {
		Transfers []Transfer `json:"transfers"`
	} `json:"transactions"`
	Transfers []Transfer `json:"transfers"`
}

// GetTransaction fetches the finalized transfer list for a transaction
// reference. A 404 maps to ErrNotFound; any other non-2xx status, transport
// error, or a payload without a transfers list is a *QueryError. A missing
// transfer list is never treated as an empty success.
func (c *Client) GetTransaction(ctx context.Context, reference string) (*TransactionRecord, error) {
	endpoint := fmt.Sprintf("%s/api/v1/transactions/%s?details=true", c.BaseURL, url.PathEscape(reference))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &QueryError{Op: "transaction lookup", Err: err}
	}

	res, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, &QueryError{Op: "transaction lookup", Err: err}
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, &QueryError{Op: "transaction lookup", Status: res.StatusCode}
	}

	var body transactionsResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return nil, &QueryError{Op: "transaction lookup", Err: fmt.Errorf("malformed payload: %w", err)}
	}

	transfers := body.Transfers
	if len(body.Transactions) > 0 {
		transfers = body.Transactions[0].Transfers
	}
	if transfers == nil {
		return nil, &QueryError{Op: "transaction lookup", Err: errors.New("payload missing transfers")}
	}

	return &TransactionRecord{Reference: reference, Transfers: transfers}, nil
}

// WaitForTransaction retries GetTransaction with capped exponential backoff
// while the mirror reports ErrNotFound, up to MaxAttempts. It returns
// ErrNotFound if the record never appears within the budget, so the caller
// can surface "not yet confirmed, try again shortly" instead of a rejection.
func (c *Client) WaitForTransaction(ctx context.Context, reference string) (*TransactionRecord, error) {
	backoff := c.InitialBackoff
	attempts := c.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 1; ; attempt++ {
		record, err := c.GetTransaction(ctx, reference)
		if !errors.Is(err, ErrNotFound) {
			return record, err
		}
		if attempt >= attempts {
			return nil, ErrNotFound
		}

		select {
		case <-ctx.Done():
			return nil, &QueryError{Op: "transaction lookup", Err: ctx.Err()}
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > c.MaxBackoff {
			backoff = c.MaxBackoff
		}
	}
}

type nftResponse struct {
	AccountID string `json:"account_id"`
}

// GetNftOwner returns the current owner account of one minted serial,
// queried fresh from the mirror node.
func (c *Client) GetNftOwner(ctx context.Context, tokenID string, serialNumber int64) (string, error) {
	endpoint := fmt.Sprintf("%s/api/v1/tokens/%s/nfts/%d", c.BaseURL, url.PathEscape(tokenID), serialNumber)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", &QueryError{Op: "nft owner lookup", Err: err}
	}

	res, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", &QueryError{Op: "nft owner lookup", Err: err}
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return "", ErrNotFound
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return "", &QueryError{Op: "nft owner lookup", Status: res.StatusCode}
	}

	var body nftResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return "", &QueryError{Op: "nft owner lookup", Err: fmt.Errorf("malformed payload: %w", err)}
	}
	if body.AccountID == "" {
		return "", &QueryError{Op: "nft owner lookup", Err: errors.New("payload missing owner account")}
	}

	return body.AccountID, nil
}

type accountTokensResponse struct {
	Tokens []struct {
		TokenID string `json:"token_id"`
	} `json:"tokens"`
}

// IsTokenAssociated reports whether the account has associated with the
// given token collection. Receiving an NFT requires prior association, so
// the issuer checks this before minting.
func (c *Client) IsTokenAssociated(ctx context.Context, accountID, tokenID string) (bool, error) {
	endpoint := fmt.Sprintf("%s/api/v1/accounts/%s/tokens?token.id=%s",
		c.BaseURL, url.PathEscape(accountID), url.QueryEscape(tokenID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, &QueryError{Op: "association lookup", Err: err}
	}

	res, err := c.HTTPClient.Do(req)
	if err != nil {
		return false, &QueryError{Op: "association lookup", Err: err}
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return false, &QueryError{Op: "association lookup", Status: res.StatusCode}
	}

	var body accountTokensResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return false, &QueryError{Op: "association lookup", Err: fmt.Errorf("malformed payload: %w", err)}
	}

	for _, t := range body.Tokens {
		if t.TokenID == tokenID {
			return true, nil
		}
	}
	return false, nil
}
