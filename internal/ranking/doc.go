// Package ranking merges the per-signal results of one request into scored
// candidates and orders them.
//
// The Combiner builds one candidate per song id. Keyword matches seed the
// set; semantic matches fold into existing candidates or add new ones. Every
// candidate then receives a binary mood boost (its tags alias the message's
// dominant mood) and an additive entity boost (a fixed bonus per entity
// category whose terms overlap its tags). Nothing is pruned.
//
// The Reranker computes the final score:
//
//	final = semantic*0.45 + keyword*0.30 + popularity/100*0.15 + clarity*0.10
//	        + mood + entity - repetition
//
// The weights are defaults, not invariants; all of them are configurable.
// Ties break on popularity, then song id, so identical inputs always produce
// identical orderings.
package ranking
