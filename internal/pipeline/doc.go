// Package pipeline turns one chat message into a ranked list of songs.
//
// Recommend fans the message out to four independent stages (keyword
// phrases, semantic search, mood, entities), joins them, merges their output
// into one candidate per song, drops content the room does not allow, and
// reranks:
//
//	p, err := pipeline.New(pipeline.Stages{
//	    Keyword:  matcher,
//	    Semantic: searcher,
//	    Mood:     classifier,
//	    Entity:   extractor,
//	    Songs:    store,
//	}, pipeline.DefaultConfig(), logger)
//	resp, err := p.Recommend(ctx, pipeline.Request{Message: "something happy and upbeat", K: 5})
//
// # Failure handling
//
// Only two failures reach the caller, both wrapped in ErrInternal: an
// embedding width that disagrees with the catalog, and a nearest-neighbor
// query that fails over a catalog known to hold eligible songs. Everything
// else degrades: a failed or timed-out stage contributes nothing and is
// listed in Response.DegradedReasons. When no stage produces a candidate the
// most popular songs are returned instead, so a caller always gets a list.
package pipeline
