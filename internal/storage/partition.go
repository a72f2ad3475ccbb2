package storage

import (
	"slices"

	"marketetl/internal/schema"
)

// PartitionSet is the events belonging to one partition key.
type PartitionSet struct {
	Key    string
	Events []schema.MarketEvent
}

// GroupByPartition splits events by partition key. Keys come back in
// ascending order and each set is sorted by schema.Compare, so the result
// does not depend on input order. events is not modified.
func GroupByPartition(events []schema.MarketEvent) []PartitionSet {
	idx := map[string]int{}
	var out []PartitionSet
	for _, ev := range events {
		k := ev.Partition()
		i, ok := idx[k]
		if !ok {
			i = len(out)
			idx[k] = i
			out = append(out, PartitionSet{Key: k})
		}
		out[i].Events = append(out[i].Events, ev)
	}
	slices.SortFunc(out, func(a, b PartitionSet) int {
		switch {
		case a.Key < b.Key:
			return -1
		case a.Key > b.Key:
			return 1
		}
		return 0
	})
	for i := range out {
		schema.SortEvents(out[i].Events)
	}
	return out
}

// Keys returns the partition keys of sets in order.
func Keys(sets []PartitionSet) []string {
	out := make([]string, len(sets))
	for i, s := range sets {
		out[i] = s.Key
	}
	return out
}

// Result builds a WriteResult from the sets that were written.
func Result(sets []PartitionSet) WriteResult {
	res := WriteResult{Partitions: make(map[string]int64, len(sets))}
	for _, s := range sets {
		n := int64(len(s.Events))
		res.Partitions[s.Key] = n
		res.Rows += n
	}
	return res
}
