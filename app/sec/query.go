package sec

import (
	"fmt"
	"strconv"
	"time"

	"github.com/lysyi3m/sec-comb/app/filing"
)

const queryDateLayout = "2006-01-02T15:04:05"

type SortOrder struct {
	Order string `json:"order"`
}

// Query is the JSON payload of a single search request.
type Query struct {
	Name  string                 `json:"-"`
	Query string                 `json:"query"`
	From  string                 `json:"from"`
	Size  string                 `json:"size"`
	Sort  []map[string]SortOrder `json:"sort"`
}

type QueryBuilder struct {
	rules    *filing.Rules
	lookback time.Duration
	pageSize int
}

func NewQueryBuilder(rules *filing.Rules, lookback time.Duration, pageSize int) *QueryBuilder {
	return &QueryBuilder{
		rules:    rules,
		lookback: lookback,
		pageSize: pageSize,
	}
}

// Run builds one query per tracked form type, limited to filings
// filed between now-lookback and now.
func (b *QueryBuilder) Run(now time.Time) []Query {
	from := now.Add(-b.lookback).UTC().Format(queryDateLayout)
	to := now.UTC().Format(queryDateLayout)

	var queries []Query
	if len(b.rules.Form4Codes) > 0 {
		queries = append(queries, b.newQuery("form4", "4", from, to))
	}
	if len(b.rules.Keywords8K) > 0 {
		queries = append(queries, b.newQuery("8k", "8-K", from, to))
	}

	return queries
}

func (b *QueryBuilder) newQuery(name, formType, from, to string) Query {
	return Query{
		Name:  name,
		Query: fmt.Sprintf(`formType:"%s" AND filedAt:[%s TO %s]`, formType, from, to),
		From:  "0",
		Size:  strconv.Itoa(b.pageSize),
		Sort:  []map[string]SortOrder{{"filedAt": {Order: "desc"}}},
	}
}
