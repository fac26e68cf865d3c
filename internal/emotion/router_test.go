package emotion

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/abubokkor/safaavatar/internal/expression"
)

func TestClassify_Groups(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		group      string
		expression expression.Name
		situation  string
		resetDelay time.Duration
	}{
		{"greeting word", "Hello! How are you today?", "greeting", expression.Smile, SituationGreet, 2 * time.Second},
		{"bare hi", "hi", "greeting", expression.Smile, SituationGreet, 2 * time.Second},
		{"salam", "Wa alaikum assalam!", "greeting", expression.Smile, SituationGreet, 2 * time.Second},
		{"dance request", "Can you do a dance for me?", "dance", expression.Smile, SituationDance, 4 * time.Second},
		{"show me moves", "show me some moves", "dance", expression.Smile, SituationDance, 4 * time.Second},
		{"anger question", "are you angry with me?", "anger", expression.Angry, SituationAngry, 2500 * time.Millisecond},
		{"sadness", "I'm feeling really sad today", "sadness", expression.Sad, SituationSad, 2500 * time.Millisecond},
		{"tears", "that brought me to tears", "sadness", expression.Sad, SituationSad, 2500 * time.Millisecond},
		{"thinking", "what do you think about that?", "thinking", expression.Surprised, SituationThink, 2500 * time.Millisecond},
		{"happiness", "I'm so happy for you", "happiness", expression.Smile, SituationHappy, 2 * time.Second},
		{"laughter", "haha that's hilarious", "laughter", expression.Smile, SituationLaugh, 2 * time.Second},
		{"talking", "tell me about the weather", "talking", expression.Name(""), SituationTalk, 1500 * time.Millisecond},
		{"no match", "the quick brown fox", "default", expression.Name(""), SituationDefault, 300 * time.Millisecond},
		{"empty", "", "default", expression.Name(""), SituationDefault, 300 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.text)
			assert.Equal(t, tt.group, got.Group)
			assert.Equal(t, tt.expression, got.Expression)
			assert.Equal(t, tt.situation, got.Situation)
			assert.Equal(t, tt.resetDelay, got.ResetDelay)
		})
	}
}

// Group order is part of the contract: a text matching both greeting and a
// later group must classify as greeting.
func TestClassify_GreetingWinsOverDance(t *testing.T) {
	got := Classify("hi, let's dance!")
	assert.Equal(t, "greeting", got.Group)
	assert.Equal(t, SituationGreet, got.Situation)
}

func TestClassify_GreetingWinsOverHappiness(t *testing.T) {
	// "welcome" is a greeting keyword even though the sentence reads happy.
	got := Classify("welcome, I'm so happy you're here")
	assert.Equal(t, "greeting", got.Group)
}

func TestClassify_CaseInsensitive(t *testing.T) {
	assert.Equal(t, "laughter", Classify("LOL").Group)
	assert.Equal(t, "dance", Classify("DANCING queen").Group)
}

func TestClipFor(t *testing.T) {
	assert.Equal(t, "Waving", ClipFor(SituationGreet))
	assert.Equal(t, "RumbaDancing", ClipFor(SituationDance))
	assert.Equal(t, "Crying", ClipFor(SituationSad))
	assert.Equal(t, "StandingIdle", ClipFor(SituationDefault))
	assert.Equal(t, "StandingIdle", ClipFor("nonsense"))
}

// Clip durations track each group's reset delay, so a long clip like the
// dance is not cut short by a flat timeout.
func TestClipDuration(t *testing.T) {
	assert.Equal(t, time.Duration(0), ClipDuration(SituationDefault))
	assert.Equal(t, 2*time.Second, ClipDuration(SituationGreet))
	assert.Equal(t, 4*time.Second, ClipDuration(SituationDance))
	assert.Equal(t, 2500*time.Millisecond, ClipDuration(SituationSad))
	assert.Equal(t, 1500*time.Millisecond, ClipDuration(SituationTalk))
	assert.Equal(t, time.Duration(0), ClipDuration("nonsense"))
}
