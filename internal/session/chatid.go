package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const chatIDLayout = "20060102_150405"

// IDGenerator produces chat ids.
type IDGenerator interface {
	NewChatID(now time.Time) string
}

// SecondIDs derives ids from the wall clock at second granularity
// ("chat_YYYYMMDD_HHMMSS"). Two chats created in the same second share an id
// and the later archive overwrites the earlier one; only use it where that
// is acceptable.
type SecondIDs struct{}

func (SecondIDs) NewChatID(now time.Time) string {
	return "chat_" + now.Format(chatIDLayout)
}

// SuffixedIDs appends 8 random hex characters to the second-granularity id.
type SuffixedIDs struct{}

func (SuffixedIDs) NewChatID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return "chat_" + now.Format(chatIDLayout) + "_" + suffix
}

// NewIDGenerator selects a strategy by name: "second" or "suffixed". An
// empty name selects "suffixed".
func NewIDGenerator(name string) (IDGenerator, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "suffixed":
		return SuffixedIDs{}, nil
	case "second":
		return SecondIDs{}, nil
	default:
		return nil, fmt.Errorf("unsupported chat id strategy: %s (supported: second, suffixed)", name)
	}
}
