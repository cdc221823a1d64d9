package feed

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"slices"
	"strings"
	"time"

	"github.com/lysyi3m/sec-comb/app/filing"
)

// ErrRender marks records that cannot be serialized into the feed.
var ErrRender = errors.New("render error")

type Channel struct {
	Title       string
	Link        string
	Description string
	SelfURL     string
	Generator   string
}

type Generator struct {
	channel Channel
}

func NewGenerator(channel Channel) *Generator {
	return &Generator{channel: channel}
}

// Select orders records newest first (ties by ID), drops repeated IDs
// and keeps at most maxItems.
func Select(records []filing.Record, maxItems int) []filing.Record {
	sorted := slices.Clone(records)
	slices.SortStableFunc(sorted, filing.NewestFirst)

	seen := filing.NewSeenSet()
	selected := make([]filing.Record, 0, min(len(sorted), maxItems))
	for _, record := range sorted {
		if len(selected) >= maxItems {
			break
		}
		if seen.Contains(record.ID) {
			continue
		}
		seen.Add(record.ID)
		selected = append(selected, record)
	}

	return selected
}

// Run renders the newest maxItems records as an RSS 2.0 document.
// Output depends only on the records, so the same history renders
// byte-identical feeds.
func (g *Generator) Run(records []filing.Record, maxItems int) ([]byte, error) {
	items := Select(records, maxItems)
	for _, item := range items {
		if err := item.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrRender, err)
		}
	}

	var buf bytes.Buffer

	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	buf.WriteString("\n")
	buf.WriteString(`<rss version="2.0" xmlns:atom="http://www.w3.org/2005/Atom">`)
	buf.WriteString("\n  <channel>\n")

	g.writeElement(&buf, "title", g.channel.Title, 4)
	g.writeElement(&buf, "link", g.channel.Link, 4)
	g.writeElement(&buf, "description", g.channel.Description, 4)

	if g.channel.SelfURL != "" {
		buf.WriteString(fmt.Sprintf("    <atom:link href=\"%s\" rel=\"self\" type=\"application/rss+xml\" />\n",
			html.EscapeString(g.channel.SelfURL)))
	}

	if len(items) > 0 {
		g.writeElement(&buf, "lastBuildDate", formatDate(items[0].FiledAt), 4)
	}
	g.writeElement(&buf, "generator", g.channel.Generator, 4)

	for _, item := range items {
		g.writeItem(&buf, item)
	}

	buf.WriteString("  </channel>\n</rss>\n")

	return buf.Bytes(), nil
}

func (g *Generator) writeItem(buf *bytes.Buffer, item filing.Record) {
	buf.WriteString("    <item>\n")

	buf.WriteString("      <guid isPermaLink=\"false\">")
	xml.EscapeText(buf, []byte(item.ID))
	buf.WriteString("</guid>\n")

	g.writeElement(buf, "title", item.Title(), 6)
	g.writeElement(buf, "link", item.Link, 6)
	g.writeElement(buf, "description", describe(item), 6)
	g.writeElement(buf, "category", item.FormType, 6)
	g.writeElement(buf, "pubDate", formatDate(item.FiledAt), 6)

	buf.WriteString("    </item>\n")
}

func (g *Generator) writeElement(buf *bytes.Buffer, tag, content string, indent int) {
	if content == "" {
		return
	}

	for i := 0; i < indent; i++ {
		buf.WriteByte(' ')
	}

	buf.WriteString("<")
	buf.WriteString(tag)
	buf.WriteString(">")
	xml.EscapeText(buf, []byte(content))
	buf.WriteString("</")
	buf.WriteString(tag)
	buf.WriteString(">\n")
}

func describe(item filing.Record) string {
	if len(item.Matched) == 0 {
		return item.Reason
	}
	return fmt.Sprintf("%s; matched: %s", item.Reason, strings.Join(item.Matched, ", "))
}

func formatDate(t time.Time) string {
	return t.UTC().Format(time.RFC1123Z)
}
