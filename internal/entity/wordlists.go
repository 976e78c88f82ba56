package entity

// Terms are lowercase and already in normalized form (no punctuation)
var wordlists = map[Category][]string{
	Cities: {
		"new york", "los angeles", "chicago", "miami", "nashville", "detroit", "atlanta",
		"memphis", "new orleans", "seattle", "san francisco", "las vegas", "boston", "austin",
		"london", "paris", "berlin", "tokyo", "seoul", "rio", "madrid", "barcelona", "rome",
		"dublin", "amsterdam", "toronto", "sydney", "mexico city", "havana", "kingston",
		"lagos", "mumbai", "hollywood", "brooklyn", "california",
	},
	Countries: {
		"usa", "america", "england", "ireland", "scotland", "france", "germany", "italy",
		"spain", "portugal", "japan", "korea", "china", "india", "brazil", "mexico", "cuba",
		"jamaica", "canada", "australia", "nigeria", "ghana", "russia", "sweden", "norway",
		"argentina", "colombia", "puerto rico",
	},
	Temporal: {
		"today", "tonight", "tomorrow", "yesterday", "morning", "afternoon", "evening",
		"night", "midnight", "weekend", "monday", "tuesday", "wednesday", "thursday",
		"friday", "saturday", "sunday", "summer", "winter", "spring", "autumn", "fall",
		"christmas", "new year", "halloween", "birthday", "forever", "now",
	},
	Weather: {
		"rain", "raining", "rainy", "sun", "sunny", "sunshine", "snow", "snowing", "storm",
		"stormy", "thunder", "lightning", "cloudy", "clouds", "wind", "windy", "fog",
		"hot", "cold", "heat", "freezing", "rainbow",
	},
	Relationships: {
		"mom", "mother", "dad", "father", "sister", "brother", "friend", "friends", "best friend",
		"girlfriend", "boyfriend", "wife", "husband", "baby", "crush", "ex", "lover",
		"family", "grandma", "grandpa", "son", "daughter", "partner", "bae",
	},
	Activities: {
		"dance", "dancing", "party", "workout", "gym", "running", "run", "driving", "drive",
		"road trip", "study", "studying", "cooking", "cleaning", "sleep", "sleeping",
		"wedding", "graduation", "beach", "swimming", "hiking", "camping", "karaoke",
		"gaming", "yoga", "date",
	},
	Emotions: {
		"happy", "sad", "angry", "love", "lonely", "excited", "nervous", "anxious",
		"heartbroken", "hopeful", "nostalgic", "bored", "tired", "proud", "scared",
		"grateful", "jealous", "confident", "calm", "stressed", "upbeat",
	},
	Colors: {
		"red", "blue", "green", "yellow", "purple", "pink", "orange", "black", "white",
		"gold", "golden", "silver", "gray", "grey", "brown", "violet",
	},
}
