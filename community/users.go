package community

import (
	"encoding/json"
	"fmt"
)

// UserRecord is the enrichment data for one chat author. The gateway uses
// single-letter keys to keep the per-channel payload small.
type UserRecord struct {
	ID string `json:"-"`
	// DisplayName is URI-encoded.
	DisplayName string   `json:"a,omitempty"`
	Months      int      `json:"b,omitempty"`
	Color       string   `json:"c,omitempty"`
	EmoteMask   string   `json:"d,omitempty"`
	BadgeSlugs  []string `json:"e,omitempty"`
}

// UserList is the gateway's [[id, record], ...] pair encoding.
type UserList []UserRecord

// UnmarshalJSON decodes the pair array.
func (l *UserList) UnmarshalJSON(b []byte) error {
	var pairs [][2]json.RawMessage
	if err := json.Unmarshal(b, &pairs); err != nil {
		return fmt.Errorf("user list: %w", err)
	}
	out := make(UserList, 0, len(pairs))
	for _, p := range pairs {
		var rec UserRecord
		if err := json.Unmarshal(p[0], &rec.ID); err != nil {
			return fmt.Errorf("user id: %w", err)
		}
		if len(p[1]) > 0 && string(p[1]) != "null" {
			if err := json.Unmarshal(p[1], &rec); err != nil {
				return fmt.Errorf("user %s: %w", rec.ID, err)
			}
		}
		out = append(out, rec)
	}
	*l = out
	return nil
}

// Badge is one entry of the badge catalog. Only slugged badges are usable.
type Badge struct {
	URL    string  `json:"url"`
	Months *int    `json:"months,omitempty"`
	Slug   *string `json:"slug,omitempty"`
}
