package domain

import (
	"slices"
)

// Index maps (year, stage) to the datasets that discovery confirmed. It is
// read-only after construction; a refresh builds a new Index.
type Index struct {
	records map[Key]DatasetRecord
}

// NewIndex builds an index from records. When two records share a key the
// later one wins.
func NewIndex(records ...DatasetRecord) Index {
	m := make(map[Key]DatasetRecord, len(records))
	for _, r := range records {
		m[r.Key()] = r
	}
	return Index{records: m}
}

func (idx Index) Len() int { return len(idx.records) }

func (idx Index) Empty() bool { return len(idx.records) == 0 }

// Lookup returns the record stored under key.
func (idx Index) Lookup(key Key) (DatasetRecord, bool) {
	r, ok := idx.records[key]
	return r, ok
}

// Has reports whether any stage of year is indexed.
func (idx Index) Has(year int) bool {
	for k := range idx.records {
		if k.Year == year {
			return true
		}
	}
	return false
}

// Keys returns every key ordered by year, then stage.
func (idx Index) Keys() []Key {
	keys := make([]Key, 0, len(idx.records))
	for k := range idx.records {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b Key) int {
		switch {
		case a.Less(b):
			return -1
		case b.Less(a):
			return 1
		default:
			return 0
		}
	})
	return keys
}

// Years returns the distinct indexed years in ascending order.
func (idx Index) Years() []int {
	var years []int
	for _, k := range idx.Keys() {
		if len(years) == 0 || years[len(years)-1] != k.Year {
			years = append(years, k.Year)
		}
	}
	return years
}

// ForYear returns the year's records in stage order.
func (idx Index) ForYear(year int) []DatasetRecord {
	var out []DatasetRecord
	for _, s := range Stages {
		if r, ok := idx.records[Key{Year: year, Stage: s}]; ok {
			out = append(out, r)
		}
	}
	return out
}

// Records returns all records in key order.
func (idx Index) Records() []DatasetRecord {
	keys := idx.Keys()
	out := make([]DatasetRecord, 0, len(keys))
	for _, k := range keys {
		out = append(out, idx.records[k])
	}
	return out
}
