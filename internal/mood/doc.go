// Package mood classifies the emotional tone of a chat message.
//
// A Classifier scores the message against five fixed moods (joy, anger,
// sadness, confidence, chill) using curated keyword buckets, then adjusts the
// bucket scores with a lexicon-based sentiment analysis of the whole message.
// The dominant mood feeds the ranking stage, which boosts songs whose tags
// alias that mood.
//
// Classification never fails. A panic anywhere in the analysis yields the
// Neutral result (chill, confidence 0).
//
// Example:
//
//	c := mood.NewClassifier(logger)
//	res := c.Classify("I need something happy and upbeat")
//	// res.Dominant == mood.Joy
package mood
