package markov

// Stats holds aggregated statistics for a single model.
type Stats struct {
	Order             int `json:"order"`              // Tokens per gram
	Keys              int `json:"keys"`               // Distinct key grams
	Transitions       int `json:"transitions"`        // Recorded key->successor pairs, duplicates included
	UniqueTransitions int `json:"unique_transitions"` // Distinct key->successor pairs
	MaxFanout         int `json:"max_fanout"`         // Most distinct successors of any single key
	DeadEnds          int `json:"dead_ends"`          // Distinct successors that are not keys themselves
}

// IndexStats computes a snapshot of statistics for index.
func IndexStats(index *Index) Stats {
	stats := Stats{
		Order:       index.Order(),
		Keys:        index.Len(),
		Transitions: index.Transitions(),
	}
	deadEnds := make(map[string]struct{})
	index.Range(func(_ string, successors []string) bool {
		distinct := make(map[string]struct{}, len(successors))
		for _, successor := range successors {
			distinct[successor] = struct{}{}
			if !index.Contains(successor) {
				deadEnds[successor] = struct{}{}
			}
		}
		stats.UniqueTransitions += len(distinct)
		if len(distinct) > stats.MaxFanout {
			stats.MaxFanout = len(distinct)
		}
		return true
	})
	stats.DeadEnds = len(deadEnds)
	return stats
}
