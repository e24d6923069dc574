package shopify

import (
	"encoding/json"
	"fmt"
	"time"
)

// Record is the neutral envelope the sync path works with: the identity and
// watermark fields every resource type shares, plus the full raw payload.
type Record struct {
	ID        int64           `json:"id"`
	ParentID  int64           `json:"parent_id,omitempty"`
	Title     string          `json:"title,omitempty"`
	CreatedAt time.Time       `json:"created_at,omitempty"`
	UpdatedAt time.Time       `json:"updated_at,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

// RecordPage is one page of records plus the token fetching the next page,
// empty when the listing is exhausted.
type RecordPage struct {
	Records       []Record
	NextPageToken string
}

// envelope holds the identity fields extracted from a raw API item.
type envelope struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	Name      string `json:"name"` // orders carry name instead of title
	OrderID   int64  `json:"order_id"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

func decodeRecord(raw json.RawMessage) (Record, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Record{}, fmt.Errorf("decode record envelope: %w", err)
	}
	if env.ID == 0 {
		return Record{}, fmt.Errorf("record has no id")
	}
	rec := Record{
		ID:       env.ID,
		ParentID: env.OrderID,
		Title:    env.Title,
		Payload:  raw,
	}
	if rec.Title == "" {
		rec.Title = env.Name
	}
	rec.CreatedAt = parseAPITime(env.CreatedAt)
	rec.UpdatedAt = parseAPITime(env.UpdatedAt)
	return rec, nil
}

func parseAPITime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339, time.RFC3339Nano, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
