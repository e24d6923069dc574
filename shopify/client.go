package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Connect identifies one connected shop: the tenant key plus the remote
// API coordinates resolved by the auth layer.
type Connect struct {
	Shop        string
	Domain      string
	AccessToken string
}

// Client talks to the remote store API on behalf of one shop. All calls
// through one shop's client share a token bucket, block while the bucket is
// empty, and transparently retry 429/5xx responses with backoff.
type Client struct {
	connect    Connect
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	maxRetries int
	backoff    time.Duration
	pageLimit  int
}

func newClient(connect Connect, baseURL string, limiter *rate.Limiter, timeout time.Duration, maxRetries int, backoff time.Duration, pageLimit int) *Client {
	return &Client{
		connect:    connect,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    limiter,
		maxRetries: maxRetries,
		backoff:    backoff,
		pageLimit:  pageLimit,
	}
}

// Shop returns the tenant key this client is bound to.
func (c *Client) Shop() string { return c.connect.Shop }

// PageLimit returns the configured page size for list calls.
func (c *Client) PageLimit() int { return c.pageLimit }

// ListRecords fetches one page of records. Pagination is driven entirely by
// opts: a PageInfo cursor or Page number continues a listing, neither starts
// one. The returned NextPageToken is empty once the listing is exhausted.
func (c *Client) ListRecords(ctx context.Context, res Resource, opts ListOptions) (*RecordPage, error) {
	d, err := res.desc()
	if err != nil {
		return nil, err
	}
	if opts.Limit == 0 {
		opts.Limit = c.pageLimit
	}
	var wrapper map[string]json.RawMessage
	hdr, err := c.do(ctx, http.MethodGet, d.listPath(opts.ParentID), opts.Values(), nil, &wrapper)
	if err != nil {
		return nil, err
	}
	var items []json.RawMessage
	if raw, ok := wrapper[d.plural]; ok {
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, fmt.Errorf("decode %s list: %w", d.plural, err)
		}
	}
	page := &RecordPage{Records: make([]Record, 0, len(items))}
	for _, raw := range items {
		rec, err := decodeRecord(raw)
		if err != nil {
			return nil, fmt.Errorf("decode %s item: %w", d.singular, err)
		}
		if rec.ParentID == 0 {
			rec.ParentID = opts.ParentID
		}
		page.Records = append(page.Records, rec)
	}
	switch d.pagination {
	case PaginationCursor:
		page.NextPageToken = nextPageInfo(hdr)
	case PaginationPage:
		if len(items) >= opts.Limit {
			next := opts.Page
			if next == 0 {
				next = 1
			}
			page.NextPageToken = strconv.Itoa(next + 1)
		}
	}
	return page, nil
}

// CountRecords fetches the remote record count matching opts.
func (c *Client) CountRecords(ctx context.Context, res Resource, opts ListOptions) (int, error) {
	d, err := res.desc()
	if err != nil {
		return 0, err
	}
	var result struct {
		Count int `json:"count"`
	}
	opts.Limit = 0
	opts.Fields = nil
	if _, err := c.do(ctx, http.MethodGet, d.countPath(opts.ParentID), opts.Values(), nil, &result); err != nil {
		return 0, err
	}
	return result.Count, nil
}

// GetRecord fetches one record by external id.
func (c *Client) GetRecord(ctx context.Context, res Resource, parentID, id int64, opts GetOptions) (*Record, error) {
	d, err := res.desc()
	if err != nil {
		return nil, err
	}
	q := url.Values{}
	if len(opts.Fields) > 0 {
		q.Set("fields", strings.Join(opts.Fields, ","))
	}
	return c.itemCall(ctx, http.MethodGet, d.itemPath(parentID, id), q, nil, d)
}

// CreateRecord creates a record from a raw payload (the inner resource
// object, not the wrapper).
func (c *Client) CreateRecord(ctx context.Context, res Resource, parentID int64, payload json.RawMessage) (*Record, error) {
	d, err := res.desc()
	if err != nil {
		return nil, err
	}
	body := map[string]json.RawMessage{d.singular: payload}
	return c.itemCall(ctx, http.MethodPost, d.listPath(parentID), nil, body, d)
}

// UpdateRecord updates a record from a raw payload.
func (c *Client) UpdateRecord(ctx context.Context, res Resource, parentID, id int64, payload json.RawMessage) (*Record, error) {
	d, err := res.desc()
	if err != nil {
		return nil, err
	}
	body := map[string]json.RawMessage{d.singular: payload}
	return c.itemCall(ctx, http.MethodPut, d.itemPath(parentID, id), nil, body, d)
}

// DeleteRecord deletes a record in the remote store.
func (c *Client) DeleteRecord(ctx context.Context, res Resource, parentID, id int64) error {
	d, err := res.desc()
	if err != nil {
		return err
	}
	_, err = c.do(ctx, http.MethodDelete, d.itemPath(parentID, id), nil, nil, nil)
	return err
}

func (c *Client) itemCall(ctx context.Context, method, path string, q url.Values, body any, d descriptor) (*Record, error) {
	var wrapper map[string]json.RawMessage
	if _, err := c.do(ctx, method, path, q, body, &wrapper); err != nil {
		return nil, err
	}
	raw, ok := wrapper[d.singular]
	if !ok {
		return nil, fmt.Errorf("response has no %q object", d.singular)
	}
	rec, err := decodeRecord(raw)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// do performs one logical API call: wait for the shared token bucket, issue
// the request, retry 429/5xx/transport failures up to maxRetries with
// exponential backoff, and decode the JSON response into result. The
// response headers of the final attempt are returned for Link pagination.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, result any) (http.Header, error) {
	var bodyData []byte
	if body != nil {
		var err error
		bodyData, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("shopify marshal: %w", err)
		}
	}

	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("shopify rate wait: %w", err)
		}

		var bodyReader io.Reader
		if bodyData != nil {
			bodyReader = bytes.NewReader(bodyData)
		}
		req, err := http.NewRequestWithContext(ctx, method, reqURL, bodyReader)
		if err != nil {
			return nil, fmt.Errorf("shopify request: %w", err)
		}
		req.Header.Set("X-Shopify-Access-Token", c.connect.AccessToken)
		if bodyData != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// Transport failures and timeouts retry like a 5xx.
			lastErr = &APIError{Kind: KindServerError, Message: err.Error()}
			c.sleep(ctx, c.retryDelay(attempt))
			continue
		}

		data, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = &APIError{Kind: KindServerError, Message: readErr.Error()}
			c.sleep(ctx, c.retryDelay(attempt))
			continue
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			lastErr = &APIError{StatusCode: resp.StatusCode, Kind: KindRateLimited, Message: apiMessage(data)}
			c.sleep(ctx, retryAfter(resp.Header, c.retryDelay(attempt)))
			continue
		case resp.StatusCode >= 500:
			lastErr = &APIError{StatusCode: resp.StatusCode, Kind: KindServerError, Message: apiMessage(data)}
			c.sleep(ctx, c.retryDelay(attempt))
			continue
		case resp.StatusCode >= 400:
			return nil, &APIError{StatusCode: resp.StatusCode, Kind: KindClientError, Message: apiMessage(data)}
		}

		if result != nil && len(data) > 0 {
			if err := json.Unmarshal(data, result); err != nil {
				return nil, fmt.Errorf("shopify decode %s: %w", path, err)
			}
		}
		return resp.Header, nil
	}
	return nil, lastErr
}

func (c *Client) retryDelay(attempt int) time.Duration {
	d := c.backoff << uint(attempt)
	if max := 30 * time.Second; d > max {
		d = max
	}
	return d
}

func (c *Client) sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

// retryAfter honors the Retry-After header on throttled responses,
// falling back to the computed backoff.
func retryAfter(h http.Header, fallback time.Duration) time.Duration {
	if s := h.Get("Retry-After"); s != "" {
		if secs, err := strconv.ParseFloat(s, 64); err == nil && secs >= 0 {
			return time.Duration(secs * float64(time.Second))
		}
	}
	return fallback
}

var linkNextPattern = regexp.MustCompile(`<([^>]+)>;\s*rel="next"`)

// nextPageInfo extracts the page_info cursor from the Link response header.
func nextPageInfo(h http.Header) string {
	link := h.Get("Link")
	if link == "" {
		return ""
	}
	m := linkNextPattern.FindStringSubmatch(link)
	if m == nil {
		return ""
	}
	u, err := url.Parse(m[1])
	if err != nil {
		return ""
	}
	return u.Query().Get("page_info")
}

// apiMessage extracts the error message from an API error body.
func apiMessage(data []byte) string {
	var body struct {
		Errors json.RawMessage `json:"errors"`
		Error  string          `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err == nil {
		if body.Error != "" {
			return body.Error
		}
		if len(body.Errors) > 0 {
			return strings.Trim(string(body.Errors), `"`)
		}
	}
	if len(data) > 200 {
		data = data[:200]
	}
	return string(data)
}
