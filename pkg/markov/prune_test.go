package markov

import (
	"reflect"
	"testing"
)

func TestPrune(t *testing.T) {
	// "a" -> b (x3), c (x1); "b" -> a (x2); "c" -> d (x1)
	index := buildIndex(t, 1,
		[2]string{"a", "b"}, [2]string{"a", "c"}, [2]string{"b", "a"}, [2]string{"a", "b"},
		[2]string{"c", "d"}, [2]string{"b", "a"}, [2]string{"a", "b"})

	testCases := []struct {
		name     string
		minFreq  int
		expected map[string][]string
	}{
		{name: "Zero keeps everything", minFreq: 0, expected: map[string][]string{
			"a": {"b", "c", "b", "b"}, "b": {"a", "a"}, "c": {"d"},
		}},
		{name: "Singletons removed", minFreq: 1, expected: map[string][]string{
			"a": {"b", "b", "b"}, "b": {"a", "a"},
		}},
		{name: "Only the most frequent survives", minFreq: 2, expected: map[string][]string{
			"a": {"b", "b", "b"},
		}},
		{name: "Everything removed", minFreq: 3, expected: map[string][]string{}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			pruned := Prune(index, tc.minFreq)
			got := make(map[string][]string)
			pruned.Range(func(key string, successors []string) bool {
				got[key] = successors
				return true
			})
			if !reflect.DeepEqual(got, tc.expected) {
				t.Errorf("Prune(%d) = %v, want %v", tc.minFreq, got, tc.expected)
			}
			if pruned.Order() != index.Order() {
				t.Errorf("pruned order = %d, want %d", pruned.Order(), index.Order())
			}
		})
	}

	// The source index is untouched.
	if index.Transitions() != 7 || index.Len() != 3 {
		t.Errorf("Prune modified its input: %d keys / %d transitions", index.Len(), index.Transitions())
	}
}
