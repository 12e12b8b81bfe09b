package models

import "time"

// DomainMapping caches a learned field plan per registrable domain so later
// visits bypass AI analysis. Replaced atomically; never partially mutated.
type DomainMapping struct {
	Domain    string       `json:"domain" badgerhold:"key"` // lowercased registrable domain
	Entries   []FieldEntry `json:"entries"`
	URL       string       `json:"url"` // URL of first learning
	Version   int          `json:"version"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// Plan returns the mapping's entries as a cached-source field plan.
func (m *DomainMapping) Plan() *FieldPlan {
	if m == nil {
		return nil
	}
	entries := make([]FieldEntry, len(m.Entries))
	copy(entries, m.Entries)
	return &FieldPlan{Entries: entries, Source: PlanSourceCached}
}

// MergeEntries unions old and new entries, deduplicated by selector, keeping
// the higher-confidence entry on conflict. New-plan ordering wins for new
// selectors; existing ordering is preserved for retained ones.
func MergeEntries(old, new []FieldEntry) []FieldEntry {
	merged := make([]FieldEntry, 0, len(old)+len(new))
	index := make(map[string]int, len(old))

	for _, e := range old {
		index[e.Selector] = len(merged)
		merged = append(merged, e)
	}
	for _, e := range new {
		if i, ok := index[e.Selector]; ok {
			if e.Confidence > merged[i].Confidence {
				merged[i] = e
			}
			continue
		}
		index[e.Selector] = len(merged)
		merged = append(merged, e)
	}
	return merged
}
