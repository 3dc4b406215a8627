package fallback

// Curated lexicons for relationship journaling content. Matching is done on
// lowercased word boundaries, with a small set of multi-word phrases checked
// first.

var positiveWords = []string{
	"love", "loved", "loving", "happy", "happiness", "joy", "joyful",
	"grateful", "gratitude", "thankful", "appreciate", "appreciated",
	"wonderful", "amazing", "great", "good", "better", "best",
	"supportive", "support", "supported", "caring", "kind", "kindness",
	"warm", "close", "closer", "connected", "connection", "trust",
	"trusting", "understood", "understanding", "listened", "laughed",
	"laughing", "fun", "comfortable", "safe", "secure", "respected",
	"proud", "excited", "hopeful", "peaceful", "calm", "content",
	"affection", "affectionate", "hug", "hugged", "forgave", "forgiving",
}

var negativeWords = []string{
	"angry", "anger", "mad", "furious", "sad", "sadness", "upset",
	"hurt", "hurtful", "pain", "painful", "cry", "cried", "crying",
	"fight", "fought", "fighting", "argue", "argued", "argument",
	"yelled", "yelling", "screamed", "ignored", "ignoring", "distant",
	"disconnected", "lonely", "alone", "isolated", "betrayed", "betrayal",
	"lied", "lying", "dishonest", "jealous", "jealousy", "resent",
	"resentment", "frustrated", "frustrating", "frustration", "annoyed",
	"annoying", "disappointed", "disappointing", "disappointment",
	"anxious", "anxiety", "worried", "worry", "stress", "stressed",
	"afraid", "scared", "fear", "toxic", "cold", "bitter", "broken",
}

var positivePhrases = []string{
	"quality time",
	"felt heard",
	"made up",
	"opened up",
	"worked through",
}

var negativePhrases = []string{
	"silent treatment",
	"fell apart",
	"shut down",
	"walked out",
	"gave up",
}

// insightsBySentiment holds canned insight lines per sentiment bucket. The
// fallback path cannot reason about content, so these stay generic and
// honest about being keyword-driven.
var insightsBySentiment = map[string][]string{
	"positive": {
		"This entry leans positive based on the language used.",
		"Expressions of appreciation and connection stand out.",
	},
	"neutral": {
		"This entry reads as balanced or factual.",
		"No strong emotional language was detected.",
	},
	"negative": {
		"This entry contains language associated with conflict or distress.",
		"Consider revisiting this entry when a full analysis is available.",
	},
}
