package markov

import "strings"

// DefaultOrder is the number of tokens in a gram when no order is configured.
const DefaultOrder = 2

// gramSeparator joins the tokens of a gram into its canonical key.
const gramSeparator = " "

// Gram is an ordered sequence of exactly Order tokens.
type Gram []string

// Key returns the canonical representation of the gram: its tokens joined by
// a single space. It is used both for index lookups and on disk.
func (g Gram) Key() string {
	return strings.Join(g, gramSeparator)
}

// ParseGram splits a canonical key back into its tokens.
func ParseGram(key string) Gram {
	return strings.Split(key, gramSeparator)
}

// gramLen counts the tokens of a canonical key without allocating.
func gramLen(key string) int {
	return strings.Count(key, gramSeparator) + 1
}
