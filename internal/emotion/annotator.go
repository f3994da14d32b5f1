// Package emotion annotates user messages with a detected emotion.
package emotion

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/comigor/dudil-go/internal/history"
	"github.com/comigor/dudil-go/internal/logger"
)

// MaxInputRunes bounds the text sent to a classifier. Longer text is cut,
// not rejected.
const MaxInputRunes = 512

// Neutral is the label used when nothing is detected.
const Neutral = "neutral"

const neutralIntensity = 3

var intensityByLabel = map[string]int{
	"joy":      5,
	"love":     5,
	"surprise": 4,
	"anger":    2,
	"fear":     2,
	"sadness":  1,
}

// Intensity maps a label to its 1..5 intensity; unknown labels get 3.
func Intensity(label string) int {
	if v, ok := intensityByLabel[strings.ToLower(label)]; ok {
		return v
	}
	return neutralIntensity
}

// Classifier scores text against emotion labels.
type Classifier interface {
	Classify(ctx context.Context, text string) ([]history.LabelScore, error)
}

// Annotator turns classifier output into a message annotation.
type Annotator struct {
	classifier Classifier
	modelID    string
}

// NewAnnotator returns an annotator; modelID is recorded on every result.
func NewAnnotator(c Classifier, modelID string) *Annotator {
	return &Annotator{classifier: c, modelID: modelID}
}

// ModelID identifies the classifier in stored annotations.
func (a *Annotator) ModelID() string { return a.modelID }

// Annotate classifies text. Blank text returns a neutral result without
// calling the classifier; classifier failures return a zero-confidence
// neutral result and are logged.
func (a *Annotator) Annotate(ctx context.Context, text string) history.EmotionAnalysis {
	if strings.TrimSpace(text) == "" {
		return history.EmotionAnalysis{Emotion: Neutral, Confidence: 0.5, Intensity: neutralIntensity, ModelIdentifier: a.modelID}
	}
	if runes := []rune(text); len(runes) > MaxInputRunes {
		text = string(runes[:MaxInputRunes])
	}

	scores, err := a.classifier.Classify(ctx, text)
	if err == nil && len(scores) == 0 {
		err = errors.New("classifier returned no scores")
	}
	if err != nil {
		logger.L.Error("emotion analysis failed", "model", a.modelID, "error", err)
		return history.EmotionAnalysis{Emotion: Neutral, Confidence: 0, Intensity: neutralIntensity, ModelIdentifier: a.modelID}
	}

	best := slices.MaxFunc(scores, func(x, y history.LabelScore) int {
		switch {
		case x.Score < y.Score:
			return -1
		case x.Score > y.Score:
			return 1
		}
		return 0
	})
	label := strings.ToLower(best.Label)
	return history.EmotionAnalysis{
		Emotion:         label,
		Confidence:      clamp01(best.Score),
		Intensity:       Intensity(label),
		ModelIdentifier: a.modelID,
		RawResults:      scores,
	}
}

func clamp01(v float64) float64 {
	return min(max(v, 0), 1)
}

var emojiByLabel = map[string]string{
	"joy":      "😊",
	"love":     "😍",
	"surprise": "😮",
	"anger":    "😠",
	"fear":     "😨",
	"sadness":  "😢",
	"neutral":  "😐",
}

// Emoji returns a display glyph for label.
func Emoji(label string) string {
	if e, ok := emojiByLabel[strings.ToLower(label)]; ok {
		return e
	}
	return emojiByLabel[Neutral]
}
