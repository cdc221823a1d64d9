package sec

import (
	"cmp"
	"fmt"
	"strings"
	"time"

	"github.com/lysyi3m/sec-comb/app/filing"
)

var filedAtLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

type searchResponse struct {
	Total *struct {
		Value int `json:"value"`
	} `json:"total"`
	Filings *[]apiFiling `json:"filings"`
	Data    *[]apiFiling `json:"data"`
}

func (r *searchResponse) filings() ([]apiFiling, error) {
	switch {
	case r.Filings != nil:
		return *r.Filings, nil
	case r.Data != nil:
		return *r.Data, nil
	default:
		return nil, fmt.Errorf("response has neither filings nor data")
	}
}

type apiFiling struct {
	ID                  string           `json:"id"`
	AccessionNo         string           `json:"accessionNo"`
	FormType            string           `json:"formType"`
	CompanyName         string           `json:"companyName"`
	IssuerName          string           `json:"issuerName"`
	FiledAt             string           `json:"filedAt"`
	LinkToFilingDetails string           `json:"linkToFilingDetails"`
	LinkToHtml          string           `json:"linkToHtml"`
	LinkToTxt           string           `json:"linkToTxt"`
	Description         string           `json:"description"`
	Items               []string         `json:"items"`
	Text                string           `json:"text"`
	Transactions        []apiTransaction `json:"transactions"`
}

type apiTransaction struct {
	TransactionCode string `json:"transactionCode"`
	Code            string `json:"code"`
}

func (f apiFiling) toHit() (filing.Hit, error) {
	hit := filing.Hit{
		ID:       strings.TrimSpace(cmp.Or(f.AccessionNo, f.ID)),
		FormType: strings.TrimSpace(f.FormType),
		Company:  strings.TrimSpace(cmp.Or(f.CompanyName, f.IssuerName)),
		Link:     strings.TrimSpace(cmp.Or(f.LinkToFilingDetails, f.LinkToHtml, f.LinkToTxt)),
	}

	requiredFields := []struct {
		name  string
		value string
	}{
		{"accessionNo", hit.ID},
		{"formType", hit.FormType},
		{"companyName", hit.Company},
		{"filedAt", f.FiledAt},
		{"link", hit.Link},
	}

	for _, field := range requiredFields {
		if field.value == "" {
			return filing.Hit{}, fmt.Errorf("filing %q is missing %s", hit.ID, field.name)
		}
	}

	filedAt, err := parseFiledAt(f.FiledAt)
	if err != nil {
		return filing.Hit{}, fmt.Errorf("filing %q: %w", hit.ID, err)
	}
	hit.FiledAt = filedAt

	parts := make([]string, 0, len(f.Items)+2)
	parts = append(parts, f.Description)
	parts = append(parts, f.Items...)
	parts = append(parts, f.Text)

	var text []string
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			text = append(text, part)
		}
	}
	hit.Text = strings.Join(text, " ")

	for _, tx := range f.Transactions {
		if code := strings.TrimSpace(cmp.Or(tx.TransactionCode, tx.Code)); code != "" {
			hit.TransactionCodes = append(hit.TransactionCodes, code)
		}
	}

	return hit, nil
}

func parseFiledAt(value string) (time.Time, error) {
	for _, layout := range filedAtLayouts {
		if t, err := time.Parse(layout, strings.TrimSpace(value)); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable filedAt %q", value)
}
