// Package keyword matches message phrases against the curated phrase lists
// of catalog songs.
//
// The message is normalized, stripped of stop-words and cut into windows of
// one to three words (four on messages longer than six words). Each window is
// looked up exactly, then by lemma when the exact lookup finds nothing:
//
//	m := keyword.NewMatcher(store, keyword.NewIdiomPrior(), keyword.DefaultConfig(), logger)
//	matches, err := m.FindMatches(ctx, "I need something happy and upbeat")
//
// A match scores weight(match type) × clarity, where clarity blends phrase
// length, word count and song popularity with a ClarityPrior adjustment.
// Lookups are cached in a bounded LRU with optional TTL.
package keyword
