package records

import (
	"slices"

	"labcore/pkg/domain"
)

// Diff returns the operations that turn before into after. Puts are emitted in
// Kinds order and removals in reverse order so a backend that enforces
// references would accept the sequence.
func Diff(before, after domain.RecordSet) []domain.RecordOp {
	var puts, removes []domain.RecordOp
	for _, kind := range Kinds {
		old := index(before[kind])
		for _, rec := range after[kind] {
			prev, ok := old[rec.Key]
			if ok && slices.Equal(prev.Fields, rec.Fields) {
				continue
			}
			puts = append(puts, domain.RecordOp{Kind: kind, Key: rec.Key, Fields: append([]string(nil), rec.Fields...)})
		}
	}
	for i := len(Kinds) - 1; i >= 0; i-- {
		kind := Kinds[i]
		current := index(after[kind])
		for _, rec := range before[kind] {
			if _, ok := current[rec.Key]; ok {
				continue
			}
			removes = append(removes, domain.RecordOp{Kind: kind, Key: rec.Key, Delete: true})
		}
	}
	return append(puts, removes...)
}

func index(recs []domain.Record) map[string]domain.Record {
	out := make(map[string]domain.Record, len(recs))
	for _, rec := range recs {
		out[rec.Key] = rec
	}
	return out
}

// Apply folds ops into set, returning a new set. It is the reference
// semantics every RecordSink implements.
func Apply(set domain.RecordSet, ops []domain.RecordOp) domain.RecordSet {
	out := make(domain.RecordSet, len(set))
	byKind := make(map[domain.EntityType]map[string]domain.Record, len(set))
	for kind, recs := range set {
		byKind[kind] = index(recs)
	}
	for _, op := range ops {
		recs, ok := byKind[op.Kind]
		if !ok {
			recs = make(map[string]domain.Record)
			byKind[op.Kind] = recs
		}
		if op.Delete {
			delete(recs, op.Key)
			continue
		}
		recs[op.Key] = domain.Record{Key: op.Key, Fields: append([]string(nil), op.Fields...)}
	}
	for kind, recs := range byKind {
		if len(recs) == 0 {
			continue
		}
		list := make([]domain.Record, 0, len(recs))
		for _, rec := range recs {
			list = append(list, rec)
		}
		SortRecords(kind, list)
		out[kind] = list
	}
	return out
}
