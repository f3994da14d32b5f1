package history

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// LabelScore is one classifier output row.
type LabelScore struct {
	Label string  `json:"label" yaml:"label"`
	Score float64 `json:"score" yaml:"score"`
}

// EmotionAnalysis is the classifier annotation attached to a user message.
type EmotionAnalysis struct {
	Emotion    string  `json:"emotion" yaml:"emotion"`
	Confidence float64 `json:"confidence" yaml:"confidence"`
	Intensity  int     `json:"intensity" yaml:"intensity"`
	// Stored as model_type so files written by earlier versions load unchanged.
	ModelIdentifier string       `json:"model_type" yaml:"model_type"`
	RawResults      []LabelScore `json:"raw_results,omitempty" yaml:"raw_results,omitempty"`
}

// Message is one turn in a conversation.
type Message struct {
	Role            Role             `json:"role" yaml:"role"`
	Content         string           `json:"content" yaml:"content"`
	Timestamp       Timestamp        `json:"timestamp" yaml:"timestamp"`
	EmotionAnalysis *EmotionAnalysis `json:"emotion_analysis,omitempty" yaml:"emotion_analysis,omitempty"`
}
