package feed

import (
	"bytes"
	"fmt"

	"github.com/mmcdole/gofeed"
)

// Verifier parses a rendered feed back to make sure readers can consume it.
type Verifier struct {
	gofeedParser *gofeed.Parser
}

func NewVerifier() *Verifier {
	return &Verifier{
		gofeedParser: gofeed.NewParser(),
	}
}

// Run returns the number of items in the feed, or ErrRender when the
// document is not a well-formed RSS feed with unique GUIDs.
func (v *Verifier) Run(data []byte) (int, error) {
	parsed, err := v.gofeedParser.Parse(bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("%w: failed to parse rendered feed: %w", ErrRender, err)
	}

	if parsed.FeedType != "rss" {
		return 0, fmt.Errorf("%w: rendered feed type is %q, want rss", ErrRender, parsed.FeedType)
	}

	guids := make(map[string]struct{}, len(parsed.Items))
	for _, item := range parsed.Items {
		if _, ok := guids[item.GUID]; ok {
			return 0, fmt.Errorf("%w: duplicate guid %q in rendered feed", ErrRender, item.GUID)
		}
		guids[item.GUID] = struct{}{}
	}

	return len(parsed.Items), nil
}
