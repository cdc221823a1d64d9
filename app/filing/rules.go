package filing

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Rules selects which filings count as bullish.
type Rules struct {
	Form4Codes []string `yaml:"form4_codes"`
	Keywords8K []string `yaml:"keywords_8k"`
}

func DefaultRules() *Rules {
	return &Rules{
		Form4Codes: []string{"A", "P"},
		Keywords8K: []string{
			`buyback`, `repurchase`, `share repurchase`, `stock repurchase`,
			`raises?\s+guidance`, `guidance\s+(raise|increas)`, `outlook\s+(raise|increas)`,
			`agreement`, `definitive\s+agreement`, `strategic\s+partnership`,
			`merger`, `acquisition`, `acquire`,
		},
	}
}

// LoadRules reads a YAML rules file. An empty path yields the defaults,
// and lists missing from the file keep their default values.
func LoadRules(path string) (*Rules, error) {
	rules := DefaultRules()
	if path == "" {
		return rules, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}

	var parsed Rules
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if parsed.Form4Codes != nil {
		rules.Form4Codes = parsed.Form4Codes
	}
	if parsed.Keywords8K != nil {
		rules.Keywords8K = parsed.Keywords8K
	}

	if err := rules.validate(); err != nil {
		return nil, fmt.Errorf("invalid rules %s: %w", path, err)
	}

	return rules, nil
}

func (r *Rules) validate() error {
	if len(r.Form4Codes) == 0 && len(r.Keywords8K) == 0 {
		return fmt.Errorf("at least one form4 code or 8-K keyword is required")
	}

	for i, code := range r.Form4Codes {
		if strings.TrimSpace(code) == "" {
			return fmt.Errorf("empty form4 code at index %d", i)
		}
	}

	for i, keyword := range r.Keywords8K {
		if strings.TrimSpace(keyword) == "" {
			return fmt.Errorf("empty 8-K keyword at index %d", i)
		}
		if _, err := regexp.Compile(keyword); err != nil {
			return fmt.Errorf("invalid 8-K keyword at index %d: %w", i, err)
		}
	}

	return nil
}
