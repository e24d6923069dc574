package shopify

import (
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ListOptions is the union of remote list/count filter fields across
// resource types. Zero-valued fields are omitted from the query string.
type ListOptions struct {
	Limit    int
	SinceID  int64
	PageInfo string // cursor pagination token
	Page     int    // page-number pagination
	ParentID int64  // owning record for child resources

	IDs    []int64
	Fields []string

	CreatedAtMin time.Time
	CreatedAtMax time.Time
	UpdatedAtMin time.Time
	UpdatedAtMax time.Time

	// Order filters
	Status            string
	FinancialStatus   string
	FulfillmentStatus string

	// Product / collection / page filters
	Vendor          string
	ProductType     string
	Handle          string
	Title           string
	PublishedStatus string
}

// GetOptions narrows a single-record fetch.
type GetOptions struct {
	Fields []string
}

// Values encodes the options as a query string. When a page_info cursor is
// present the remote API rejects filter params, so only pagination fields
// are emitted in that case.
func (o ListOptions) Values() url.Values {
	v := url.Values{}
	if o.Limit > 0 {
		v.Set("limit", strconv.Itoa(o.Limit))
	}
	if len(o.Fields) > 0 {
		v.Set("fields", strings.Join(o.Fields, ","))
	}
	if o.PageInfo != "" {
		v.Set("page_info", o.PageInfo)
		return v
	}
	if o.Page > 0 {
		v.Set("page", strconv.Itoa(o.Page))
	}
	if o.SinceID > 0 {
		v.Set("since_id", strconv.FormatInt(o.SinceID, 10))
	}
	if len(o.IDs) > 0 {
		ids := make([]string, len(o.IDs))
		for i, id := range o.IDs {
			ids[i] = strconv.FormatInt(id, 10)
		}
		v.Set("ids", strings.Join(ids, ","))
	}
	setTime := func(key string, t time.Time) {
		if !t.IsZero() {
			v.Set(key, t.UTC().Format(time.RFC3339))
		}
	}
	setTime("created_at_min", o.CreatedAtMin)
	setTime("created_at_max", o.CreatedAtMax)
	setTime("updated_at_min", o.UpdatedAtMin)
	setTime("updated_at_max", o.UpdatedAtMax)
	setStr := func(key, s string) {
		if s != "" {
			v.Set(key, s)
		}
	}
	setStr("status", o.Status)
	setStr("financial_status", o.FinancialStatus)
	setStr("fulfillment_status", o.FulfillmentStatus)
	setStr("vendor", o.Vendor)
	setStr("product_type", o.ProductType)
	setStr("handle", o.Handle)
	setStr("title", o.Title)
	setStr("published_status", o.PublishedStatus)
	return v
}
