// Package restdepth is the REST Snapshot Client (C7): it issues the GET
// that snapshot.Fetcher wraps as a one-shot future. It owns HTTP
// transport and the exchange's depth wire shape; it contributes no
// synchronization logic of its own.
package restdepth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/BullionBear/obsync/internal/model"
)

const (
	// DefaultBaseURL is the production depth-snapshot host.
	DefaultBaseURL = "https://api.binance.com"
	depthEndpoint  = "/api/v3/depth"
)

// APIError mirrors the exchange's REST error shape, §6: `{"code":
// int, "msg": string}`. A snapshot fetch that receives one is treated as
// invalid, never as a fatal error.
type APIError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("depth snapshot error %d: %s", e.Code, e.Msg)
}

// Client performs the depth snapshot GET over plain net/http. It carries
// no credentials: the depth endpoint is public.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// New returns a Client against baseURL (DefaultBaseURL if empty) using
// httpClient (http.DefaultClient if nil). The caller's context governs the
// per-request timeout; Client sets none of its own.
func New(baseURL string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{httpClient: httpClient, baseURL: baseURL}
}

type depthResponse struct {
	LastUpdateID int64      `json:"lastUpdateId"`
	Bids         [][]string `json:"bids"`
	Asks         [][]string `json:"asks"`
}

// FetchDepth implements snapshot.RESTClient: GET
// https://<host>/api/v3/depth?symbol=<UPPER_SYMBOL>&limit=<limit>, uppercasing
// symbol per the exchange's REST convention. On any transport error, non-200
// status, or malformed payload it returns a zero Snapshot and a non-nil
// error — the caller (snapshot.Fetcher) is responsible for turning that
// into Valid=false; this layer never fabricates a valid snapshot.
func (c *Client) FetchDepth(ctx context.Context, symbol string, limit int) (model.Snapshot, error) {
	params := url.Values{}
	params.Set("symbol", strings.ToUpper(symbol))
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, depthEndpoint, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("build depth request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("execute depth request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("read depth response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr APIError
		if json.Unmarshal(body, &apiErr) == nil {
			return model.Snapshot{}, &apiErr
		}
		return model.Snapshot{}, fmt.Errorf("depth request failed: status %d: %s", resp.StatusCode, string(body))
	}

	var raw depthResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return model.Snapshot{}, fmt.Errorf("unmarshal depth response: %w", err)
	}

	bids, err := parsePairs(raw.Bids)
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("parse bids: %w", err)
	}
	asks, err := parsePairs(raw.Asks)
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("parse asks: %w", err)
	}

	return model.Snapshot{
		Bids:         bids,
		Asks:         asks,
		LastUpdateID: raw.LastUpdateID,
		Valid:        true,
	}, nil
}

func parsePairs(raw [][]string) ([]model.Level, error) {
	out := make([]model.Level, 0, len(raw))
	for _, pair := range raw {
		if len(pair) != 2 {
			return nil, fmt.Errorf("malformed level %v", pair)
		}
		price, err := decimal.NewFromString(pair[0])
		if err != nil {
			return nil, err
		}
		qty, err := decimal.NewFromString(pair[1])
		if err != nil {
			return nil, err
		}
		out = append(out, model.Level{Price: price, Quantity: qty})
	}
	return out, nil
}
