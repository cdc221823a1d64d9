package filing

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
)

type Classifier struct {
	form4Codes []string
	keywords   []*regexp.Regexp
	extractor  *TextExtractor
}

func NewClassifier(rules *Rules, extractor *TextExtractor) (*Classifier, error) {
	c := &Classifier{extractor: extractor}

	for _, code := range rules.Form4Codes {
		c.form4Codes = append(c.form4Codes, strings.ToUpper(strings.TrimSpace(code)))
	}

	for _, keyword := range rules.Keywords8K {
		re, err := regexp.Compile("(?i)" + keyword)
		if err != nil {
			return nil, fmt.Errorf("invalid 8-K keyword %q: %w", keyword, err)
		}
		c.keywords = append(c.keywords, re)
	}

	return c, nil
}

// Run reports whether the hit is bullish and, if so, the record to publish.
func (c *Classifier) Run(hit Hit) (Record, bool) {
	form := strings.ToUpper(strings.TrimSpace(hit.FormType))

	var reason string
	var matched []string

	switch {
	case form == "4":
		matched = c.matchCodes(hit.TransactionCodes)
		if len(matched) == 0 {
			return Record{}, false
		}
		reason = fmt.Sprintf("Form 4 with %s", strings.Join(c.form4Codes, "/"))
	case strings.HasPrefix(form, "8-K"):
		matched = c.matchKeywords(c.extractor.Run(hit.Text))
		if len(matched) == 0 {
			return Record{}, false
		}
		reason = fmt.Sprintf("8-K keywords match (%s)", matched[0])
	default:
		return Record{}, false
	}

	return Record{
		ID:       hit.ID,
		Company:  hit.Company,
		FormType: form,
		Reason:   reason,
		Matched:  matched,
		FiledAt:  hit.FiledAt,
		Link:     hit.Link,
	}, true
}

func (c *Classifier) matchCodes(codes []string) []string {
	var matched []string
	for _, code := range codes {
		code = strings.ToUpper(strings.TrimSpace(code))
		if slices.Contains(c.form4Codes, code) && !slices.Contains(matched, code) {
			matched = append(matched, code)
		}
	}
	return matched
}

func (c *Classifier) matchKeywords(text string) []string {
	if text == "" {
		return nil
	}

	var matched []string
	for _, re := range c.keywords {
		if re.MatchString(text) {
			matched = append(matched, strings.TrimPrefix(re.String(), "(?i)"))
		}
	}
	return matched
}
