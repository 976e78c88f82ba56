// Package types provides shared type definitions for the songmatch engine.
//
// The central type is Candidate: one scored song produced for one request.
// Candidates are created by the combiner, enriched by the content filter and
// the reranker, and returned to the caller with a breakdown of every signal
// that contributed to the final score:
//
//	cand := types.Candidate{
//	    SongID:     42,
//	    Title:      "Walking on Sunshine",
//	    Artist:     "Katrina and the Waves",
//	    Tags:       []string{"happy", "upbeat"},
//	    Popularity: 88,
//	    MatchType:  types.MatchExact,
//	}
//	cand.Scores.Keyword = 0.92
//	cand.AddReason(`matched phrase "walking on sunshine"`)
//
// # Invariants
//
// A ranked list never contains two candidates with the same SongID. Dedupe
// reports whether a list honors that rule and is used by tests throughout
// the module.
//
// Semantic similarity is always in [0,1]; Validate rejects candidates that
// violate it, along with out-of-range popularity and non-finite final scores.
package types
