// Package embedder turns message and catalog text into fixed-width vectors.
//
// Providers:
//   - local: deterministic hashed bag of words (surface words, lemmas and
//     word pairs), normalized to unit length. No model files needed.
//   - openai: OpenAI-compatible /v1/embeddings endpoint.
//   - http: sentence-transformers style servers taking {"inputs": [...]}
//     and returning [[...], ...].
//
// Remote providers retry with exponential backoff and sit behind a circuit
// breaker; Status reports an open circuit as unavailable.
//
// # Basic Usage
//
//	emb, err := embedder.New(embedder.DefaultConfig(), logger, nil)
//	if err != nil {
//	    return err
//	}
//	defer emb.Close()
//
//	result, err := emb.GenerateEmbedding(ctx, embedder.EmbeddingRequest{
//	    Text: "I need something happy and upbeat",
//	})
//
// # Batch Processing
//
// Catalog ingestion embeds in batches of up to MaxBatchSize texts:
//
//	resp, err := emb.GenerateBatch(ctx, embedder.BatchEmbeddingRequest{
//	    Texts: []string{"Happy - Pharrell Williams", "Someone Like You - Adele"},
//	})
//
// # Caching
//
// Embeddings are cached in an LRU keyed by SHA-256 of model and text. Get
// returns a copy, so callers may mutate the vector freely.
package embedder
