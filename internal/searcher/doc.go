// Package searcher finds songs whose stored vectors are close to the
// embedding of a chat message.
//
// Three strategies are available, chosen by configuration:
//
//   - meta_only: nearest songs by metadata vector, thresholded by
//     MinSimilarity and truncated to k
//   - meta_aboutness: union of the metadata leg and the single aboutness
//     vector leg, scored 0.6*meta + 0.4*about by default
//   - meta_emotion_moment: union of the metadata and emotion legs, with the
//     moment vector compared only against that candidate set, scored
//     0.5*meta + 0.3*emotion + 0.2*moment by default
//
// The union strategies return 2k candidates sorted by score without a
// threshold. A song found by only one leg keeps 0 for the legs that missed
// it. Auxiliary legs run through a circuit breaker and degrade to meta-only
// ranking on failure.
//
// # Errors
//
// ErrDimensionMismatch is returned when the query vector width differs from
// the configured width or the width stored in the catalog. ErrIndexAnomaly is
// returned when the metadata leg fails, or returns no rows, while the catalog
// reports eligible songs and no restricting filter was applied. Both are
// fatal. A catalog with no eligible songs yields an empty result.
//
// # Usage
//
//	s, err := searcher.New(store, emb, searcher.DefaultConfig(), logger)
//	matches, err := s.FindSimilar(ctx, "songs for a rainy drive", 10)
//	for _, m := range matches {
//	    fmt.Printf("%.2f %s - %s\n", m.Similarity, m.Artist, m.Title)
//	}
package searcher
