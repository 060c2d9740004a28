/*
Package markov provides an in-memory n-gram (Markov chain) text model for Go.

A model maps every "key gram" of N consecutive words seen in a training corpus
to the list of N-word grams observed immediately after it. Successor lists keep
every observation, so frequent transitions are proportionally more likely to be
sampled during generation.

The package covers the whole lifecycle of a model: line-based training with a
sliding window (Trainer), seeded and random text generation (Generator), a
compressed binary file format (Save / Load), an engine type that owns the
active model and swaps it atomically (Chain), and a SQLite-backed catalogue of
named models (Store).
*/
package markov
