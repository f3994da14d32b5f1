package emotion

import (
	"context"
	"strings"

	"github.com/comigor/dudil-go/internal/history"
)

var keywordBuckets = map[string][]string{
	"sadness": {
		"sad", "unhappy", "depressed", "cry", "crying", "lonely", "hopeless", "hurt", "miserable",
		"grief", "heartbroken", "down", "empty", "tired of", "can't sleep", "nothing seems",
	},
	"joy": {
		"happy", "glad", "great", "awesome", "amazing", "excited", "wonderful", "thanks", "thank you",
		"good news", "proud", "relieved", "fantastic", "yay",
	},
	"love": {
		"love", "adore", "care about", "grateful for", "miss you", "cherish", "sweetheart",
	},
	"anger": {
		"angry", "furious", "mad", "annoyed", "hate", "rage", "pissed", "frustrated", "irritated", "fed up",
	},
	"fear": {
		"afraid", "scared", "anxious", "anxiety", "worried", "nervous", "panic", "terrified", "fear", "stress",
	},
	"surprise": {
		"surprised", "shocked", "unexpected", "wow", "can't believe", "suddenly", "no way",
	},
}

// KeywordClassifier scores text by counting keyword hits per label. It
// needs no model and serves as the offline classifier.
type KeywordClassifier struct{}

func (KeywordClassifier) Classify(_ context.Context, text string) ([]history.LabelScore, error) {
	normalized := strings.ToLower(text)

	hits := make(map[string]int, len(Labels))
	total := 0
	for label, words := range keywordBuckets {
		for _, w := range words {
			if strings.Contains(normalized, w) {
				hits[label]++
				total++
			}
		}
	}
	if n := strings.Count(text, "!"); n > 0 && hits["anger"] == 0 && hits["sadness"] == 0 && hits["fear"] == 0 {
		hits["surprise"] += n
		total += n
	}

	scores := make([]history.LabelScore, 0, len(Labels)+1)
	if total == 0 {
		scores = append(scores, history.LabelScore{Label: Neutral, Score: 1})
		for _, label := range Labels {
			scores = append(scores, history.LabelScore{Label: label, Score: 0})
		}
		return scores, nil
	}
	for _, label := range Labels {
		scores = append(scores, history.LabelScore{Label: label, Score: float64(hits[label]) / float64(total)})
	}
	return scores, nil
}
