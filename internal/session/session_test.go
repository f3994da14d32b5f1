package session

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/comigor/dudil-go/internal/history"
)

// steppingClock returns the queued instants in order, then repeats the last.
func steppingClock(ts ...time.Time) func() time.Time {
	return func() time.Time {
		t := ts[0]
		if len(ts) > 1 {
			ts = ts[1:]
		}
		return t
	}
}

func TestAppendKeepsOrderAndGrowsByOne(t *testing.T) {
	base := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	c := New("chat_x", WithClock(steppingClock(
		base,
		base.Add(time.Second),
		base.Add(-time.Minute), // clock stepped backwards
		base.Add(2*time.Second),
	)))

	contents := []string{"one", "two", "three", "four"}
	for i, content := range contents {
		if i%2 == 0 {
			c.AppendUserMessage(content, &history.EmotionAnalysis{Emotion: "joy", Intensity: 5})
		} else {
			c.AppendAssistantMessage(content)
		}
		require.Equal(t, i+1, c.Len())
	}

	msgs := c.Messages()
	for i := range msgs {
		require.Equal(t, contents[i], msgs[i].Content)
		if i > 0 {
			require.False(t, msgs[i].Timestamp.Before(msgs[i-1].Timestamp.Time), "timestamp %d went backwards", i)
		}
	}
	require.Equal(t, history.RoleUser, msgs[0].Role)
	require.NotNil(t, msgs[0].EmotionAnalysis)
	require.Equal(t, history.RoleAssistant, msgs[1].Role)
	require.Nil(t, msgs[1].EmotionAnalysis)
}

func TestMessagesReturnsCopy(t *testing.T) {
	c := New("chat_x")
	c.AppendUserMessage("hello", &history.EmotionAnalysis{Emotion: "joy"})

	msgs := c.Messages()
	msgs[0].Content = "edited"
	msgs[0].EmotionAnalysis.Emotion = "anger"

	again := c.Messages()
	require.Equal(t, "hello", again[0].Content)
	require.Equal(t, "joy", again[0].EmotionAnalysis.Emotion)
}

func TestAppendUserMessageCopiesAnnotation(t *testing.T) {
	c := New("chat_x")
	ea := &history.EmotionAnalysis{Emotion: "fear"}
	c.AppendUserMessage("hi", ea)
	ea.Emotion = "joy"
	require.Equal(t, "fear", c.Messages()[0].EmotionAnalysis.Emotion)
}

func TestTitleFollowsFirstMessage(t *testing.T) {
	c := New("chat_x")
	require.Equal(t, "New Chat", c.Title())
	c.AppendUserMessage("Hi", nil)
	c.AppendAssistantMessage("Hello there, how are you doing today friend?")
	require.Equal(t, "Hi", c.Title())
}

func TestRestoreKeepsChatIDAndMessages(t *testing.T) {
	saved := history.At(time.Date(2024, 2, 2, 0, 0, 0, 0, time.UTC))
	rec := history.ChatRecord{
		Messages:  []history.Message{{Role: history.RoleUser, Content: "a"}, {Role: history.RoleAssistant, Content: "b"}},
		Title:     "a",
		Timestamp: saved,
	}
	c := Restore("chat_old", rec)
	require.Equal(t, "chat_old", c.ChatID())
	require.Equal(t, rec.Messages, c.Messages())
	require.Equal(t, saved, c.LastSaved())

	c.AppendUserMessage("c", nil)
	require.Len(t, rec.Messages, 2, "restoring must not alias the archived slice")
}

func TestRecordSnapshot(t *testing.T) {
	at := time.Date(2024, 3, 3, 3, 3, 3, 0, time.UTC)
	c := New("chat_x")
	c.AppendUserMessage("I feel anxious", nil)
	rec := c.Record(at)
	require.Equal(t, "I feel anxious", rec.Title)
	require.Len(t, rec.Messages, 1)
	require.True(t, rec.Timestamp.Equal(at))
}

func TestSecondIDsCollideWithinOneSecond(t *testing.T) {
	at := time.Date(2024, 6, 7, 8, 9, 10, 0, time.UTC)
	gen := SecondIDs{}
	a := gen.NewChatID(at)
	b := gen.NewChatID(at.Add(500 * time.Millisecond))
	require.Equal(t, "chat_20240607_080910", a)
	require.Equal(t, a, b)
}

func TestSuffixedIDsAreUniqueWithinOneSecond(t *testing.T) {
	at := time.Date(2024, 6, 7, 8, 9, 10, 0, time.UTC)
	gen := SuffixedIDs{}
	pattern := regexp.MustCompile(`^chat_20240607_080910_[0-9a-f]{8}$`)
	seen := make(map[string]struct{})
	for range 500 {
		id := gen.NewChatID(at)
		require.Regexp(t, pattern, id)
		_, dup := seen[id]
		require.False(t, dup, "duplicate id %s", id)
		seen[id] = struct{}{}
	}
}

func TestNewIDGenerator(t *testing.T) {
	g, err := NewIDGenerator("")
	require.NoError(t, err)
	require.IsType(t, SuffixedIDs{}, g)

	g, err = NewIDGenerator("Second")
	require.NoError(t, err)
	require.IsType(t, SecondIDs{}, g)

	_, err = NewIDGenerator("counter")
	require.Error(t, err)
}
