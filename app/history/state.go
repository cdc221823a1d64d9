package history

import (
	"slices"

	"github.com/lysyi3m/sec-comb/app/filing"
)

// State is everything persisted between runs: every record ever
// published, newest first, with unique IDs.
type State struct {
	Records []filing.Record
}

func (s State) Seen() filing.SeenSet {
	seen := make(filing.SeenSet, len(s.Records))
	for _, record := range s.Records {
		seen.Add(record.ID)
	}
	return seen
}

// Merge returns a new State holding the current records plus any added
// record whose ID is not already present. The receiver is not modified.
func (s State) Merge(added []filing.Record) State {
	seen := s.Seen()
	records := slices.Clone(s.Records)

	for _, record := range added {
		if seen.Contains(record.ID) {
			continue
		}
		seen.Add(record.ID)
		records = append(records, record)
	}

	slices.SortStableFunc(records, filing.NewestFirst)
	return State{Records: records}
}
