package markov

// Prune returns a copy of index that only keeps transitions observed more than
// minFreq times after their key. Kept transitions retain every repetition and
// their relative order, so sampling weights among survivors are unchanged.
// Keys left without successors are dropped. index itself is not modified.
func Prune(index *Index, minFreq int) *Index {
	pruned := &Index{
		order: index.order,
		grams: make(map[string][]string),
	}
	index.Range(func(key string, successors []string) bool {
		counts := make(map[string]int, len(successors))
		for _, successor := range successors {
			counts[successor]++
		}
		for _, successor := range successors {
			if counts[successor] > minFreq {
				pruned.insertKey(key, successor)
			}
		}
		return true
	})
	return pruned
}
