// Package entity pulls named things out of a chat message: places, times,
// weather, people, activities, emotions, colors and numbers.
//
// Each category is a curated wordlist. Every term is matched as a whole
// word, case-insensitively, so "paris" never matches "parisian". Numbers are
// found with a single pattern covering digits and number words. Buckets are
// deduplicated and sorted.
//
// The ranking stage compares extracted entities with song tags and adds a
// small bonus per category that overlaps.
package entity
