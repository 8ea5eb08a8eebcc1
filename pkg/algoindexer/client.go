/**
 * @description
 * This package provides a read-only client for the Algorand indexer REST API.
 * Only the payment fields the fee verifier compares are extracted from the
 * lookup response.
 *
 * @dependencies
 * - github.com/tidwall/gjson: path extraction from the indexer JSON payload.
 */
package algoindexer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/algoadopt/referral-service/internal/domain"
	"github.com/tidwall/gjson"
)

var (
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrNotPayment          = errors.New("transaction is not a payment")
)

// Client is a client for the Algorand indexer.
type Client struct {
	BaseURL    string
	APIToken   string
	HTTPClient *http.Client
}

// NewClient creates a new indexer client.
func NewClient(baseURL, apiToken string) *Client {
	return &Client{
		BaseURL:  strings.TrimSuffix(strings.TrimSpace(baseURL), "/"),
		APIToken: strings.TrimSpace(apiToken),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// LookupTransaction fetches a confirmed transaction by id.
func (c *Client) LookupTransaction(ctx context.Context, txID string) (*domain.LedgerTransaction, error) {
	txID = strings.TrimSpace(txID)
	if txID == "" {
		return nil, ErrTransactionNotFound
	}

	endpoint := c.BaseURL + "/v2/transactions/" + url.PathEscape(txID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create lookup request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.APIToken != "" {
		req.Header.Set("X-Indexer-API-Token", c.APIToken)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute lookup request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read lookup response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrTransactionNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		message := gjson.GetBytes(body, "message").String()
		return nil, fmt.Errorf("indexer returned status %d: %s", resp.StatusCode, message)
	}
	if !gjson.ValidBytes(body) {
		return nil, errors.New("indexer returned malformed json")
	}

	tx := gjson.GetBytes(body, "transaction")
	if !tx.Exists() {
		return nil, ErrTransactionNotFound
	}
	payment := tx.Get("payment-transaction")
	if !payment.Exists() {
		return nil, ErrNotPayment
	}

	return &domain.LedgerTransaction{
		ID:       tx.Get("id").String(),
		Sender:   tx.Get("sender").String(),
		Receiver: payment.Get("receiver").String(),
		Amount:   payment.Get("amount").Uint(),
	}, nil
}
