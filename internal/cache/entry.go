package cache

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rohankatakam/repostats/internal/series"
)

// timestampLayouts are accepted when reading created_at/closed_at. The second
// is how the legacy scripts serialised datetimes.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05-07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// Entry is one cached issue or pull request. The item number is the cache
// key and is not repeated in the serialised object.
type Entry struct {
	Number    int
	Title     string
	CreatedAt time.Time
	ClosedAt  *time.Time
	State     string
	IsPR      bool

	// extra holds fields this version does not know about, re-emitted verbatim.
	extra map[string]json.RawMessage
}

// Span converts the entry for series construction.
func (e Entry) Span() series.Span {
	return series.Span{Created: e.CreatedAt, Closed: e.ClosedAt}
}

// MarshalJSON implements json.Marshaler.
func (e Entry) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(e.extra)+5)
	for k, v := range e.extra {
		out[k] = v
	}
	out["title"] = e.Title
	out["created_at"] = e.CreatedAt.UTC()
	if e.ClosedAt != nil {
		out["closed_at"] = e.ClosedAt.UTC()
	} else {
		out["closed_at"] = nil
	}
	out["state"] = e.State
	out["is_pr"] = e.IsPR
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*e = Entry{}
	if _, ok := raw["created_at"]; !ok {
		return fmt.Errorf("created_at missing")
	}
	for k, v := range raw {
		var err error
		switch k {
		case "number":
			err = json.Unmarshal(v, &e.Number)
		case "title":
			err = json.Unmarshal(v, &e.Title)
		case "state":
			err = json.Unmarshal(v, &e.State)
		case "is_pr":
			err = json.Unmarshal(v, &e.IsPR)
		case "created_at":
			var t *time.Time
			if t, err = decodeTimestamp(v); err == nil {
				if t == nil {
					err = fmt.Errorf("created_at is null")
				} else {
					e.CreatedAt = *t
				}
			}
		case "closed_at":
			e.ClosedAt, err = decodeTimestamp(v)
		default:
			if e.extra == nil {
				e.extra = make(map[string]json.RawMessage)
			}
			e.extra[k] = v
		}
		if err != nil {
			return fmt.Errorf("field %s: %w", k, err)
		}
	}
	return nil
}

func decodeTimestamp(v json.RawMessage) (*time.Time, error) {
	if bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
		return nil, nil
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return nil, err
	}
	if s == "" {
		return nil, nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("unrecognised timestamp %q", s)
}
