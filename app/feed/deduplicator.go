package feed

import (
	"github.com/lysyi3m/sec-comb/app/filing"
)

type Deduplicator struct{}

func NewDeduplicator() *Deduplicator {
	return &Deduplicator{}
}

// Run returns the records whose ID is neither in seen nor repeated
// earlier in the batch, preserving input order.
func (d *Deduplicator) Run(records []filing.Record, seen filing.SeenSet) []filing.Record {
	batch := filing.NewSeenSet()
	fresh := make([]filing.Record, 0, len(records))

	for _, record := range records {
		if seen.Contains(record.ID) || batch.Contains(record.ID) {
			continue
		}
		batch.Add(record.ID)
		fresh = append(fresh, record)
	}

	return fresh
}
