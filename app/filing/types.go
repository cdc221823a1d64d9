package filing

import (
	"fmt"
	"strings"
	"time"
)

// Record is a filing that passed classification. ID is the dedup key.
type Record struct {
	ID       string    `json:"id"`
	Company  string    `json:"company"`
	FormType string    `json:"form_type"`
	Reason   string    `json:"reason"`
	Matched  []string  `json:"matched,omitempty"`
	FiledAt  time.Time `json:"filed_at"`
	Link     string    `json:"link"`
}

// Title is the feed headline, e.g. "4 - Acme Corp".
func (r Record) Title() string {
	return fmt.Sprintf("%s - %s", r.FormType, r.Company)
}

func (r Record) Validate() error {
	requiredFields := []struct {
		name  string
		value string
	}{
		{"id", r.ID},
		{"form type", r.FormType},
		{"company", r.Company},
		{"link", r.Link},
	}

	for _, field := range requiredFields {
		if field.value == "" {
			return fmt.Errorf("filing %q: %s is required", r.ID, field.name)
		}
	}

	if r.FiledAt.IsZero() {
		return fmt.Errorf("filing %q: filed time is required", r.ID)
	}

	return nil
}

// NewestFirst orders records by filed time descending, then by ID.
func NewestFirst(a, b Record) int {
	if c := b.FiledAt.Compare(a.FiledAt); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}

// SeenSet holds the IDs of every filing already emitted.
type SeenSet map[string]struct{}

func NewSeenSet(ids ...string) SeenSet {
	s := make(SeenSet, len(ids))
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

func (s SeenSet) Add(id string) {
	s[id] = struct{}{}
}

func (s SeenSet) Contains(id string) bool {
	_, ok := s[id]
	return ok
}

// Hit is a filing as returned by the search API, before classification.
type Hit struct {
	ID               string
	FormType         string
	Company          string
	FiledAt          time.Time
	Link             string
	Text             string
	TransactionCodes []string
}
