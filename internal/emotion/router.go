// Package emotion maps assistant reply text to a facial expression, an
// animation situation and an expression-reset delay. Classification is a
// deterministic keyword/regex pass over lower-cased text; the group order
// is load-bearing (greetings must win over happiness, since words like
// "welcome" appear in both).
package emotion

import (
	"regexp"
	"strings"
	"time"

	"github.com/abubokkor/safaavatar/internal/expression"
)

// Result is the classified (expression, animation situation, reset delay)
// triple for one reply. An empty Expression means "leave the face as is".
type Result struct {
	Group      string
	Expression expression.Name
	Situation  string
	ResetDelay time.Duration
}

// Animation situations.
const (
	SituationGreet   = "greet"
	SituationDance   = "dance"
	SituationAngry   = "angry"
	SituationSad     = "sad"
	SituationThink   = "think"
	SituationHappy   = "happy"
	SituationLaugh   = "laugh"
	SituationTalk    = "talk"
	SituationDefault = "default"
)

// Clips maps each situation to its animation clip name.
var Clips = map[string]string{
	SituationHappy:   "Happy",
	SituationLaugh:   "laughing",
	SituationAngry:   "Angry",
	SituationSad:     "Crying",
	SituationDance:   "RumbaDancing",
	SituationTalk:    "Talking",
	SituationThink:   "Thinking",
	SituationGreet:   "Waving",
	SituationDefault: "StandingIdle",
}

// IdleClip is the resting animation every temporary clip returns to.
const IdleClip = "StandingIdle"

// ClipFor resolves a situation to a clip name, defaulting to idle.
func ClipFor(situation string) string {
	if clip, ok := Clips[strings.ToLower(situation)]; ok {
		return clip
	}
	return IdleClip
}

// ClipDuration returns how long a situation's clip plays before reverting
// to idle, matching the group's expression-reset delay so the animation
// and the face come back together. The default situation is the idle clip
// itself and never reverts.
func ClipDuration(situation string) time.Duration {
	lower := strings.ToLower(situation)
	for i := range ruleGroups {
		if ruleGroups[i].situation == lower {
			return ruleGroups[i].resetDelay
		}
	}
	return 0
}

type ruleGroup struct {
	name       string
	keywords   []string
	patterns   []*regexp.Regexp
	expression expression.Name
	situation  string
	resetDelay time.Duration
}

func (g *ruleGroup) matches(lower string) bool {
	for _, kw := range g.keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	for _, p := range g.patterns {
		if p.MatchString(lower) {
			return true
		}
	}
	return false
}

// ruleGroups in evaluation order. First match wins.
var ruleGroups = []ruleGroup{
	{
		name:     "greeting",
		keywords: []string{"salam", "hi ", "hello", "hey", "assalamu", "greeting", "welcome"},
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`^hi$`),
		},
		expression: expression.Smile,
		situation:  SituationGreet,
		resetDelay: 2000 * time.Millisecond,
	},
	{
		name:     "dance",
		keywords: []string{"dance", "dancing", "rumba"},
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`can you (do a |show me a |perform a )?dance`),
			regexp.MustCompile(`show me.*(dance|dancing|moves)`),
			regexp.MustCompile(`do a dance`),
		},
		expression: expression.Smile,
		situation:  SituationDance,
		resetDelay: 4000 * time.Millisecond,
	},
	{
		name:     "anger",
		keywords: []string{"angry", "mad at", "upset", "\U0001F620", "\U0001F621"},
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`are you (angry|mad|upset)`),
		},
		expression: expression.Angry,
		situation:  SituationAngry,
		resetDelay: 2500 * time.Millisecond,
	},
	{
		name: "sadness",
		keywords: []string{
			"i'm sad", "im sad", "cry", "tears", "feeling down", "unhappy",
			"\U0001F622", "\U0001F62D",
		},
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`\bsad\b`),
		},
		expression: expression.Sad,
		situation:  SituationSad,
		resetDelay: 2500 * time.Millisecond,
	},
	{
		name: "thinking",
		keywords: []string{
			"what do you think", "confused", "hmm", "complex",
			"difficult question", "understand this", "\U0001F914",
		},
		expression: expression.Surprised,
		situation:  SituationThink,
		resetDelay: 2500 * time.Millisecond,
	},
	{
		name: "happiness",
		keywords: []string{
			"happy", "glad", "joy", "smile", "alhamdulillah", "exciting",
			"\U0001F60A", "\U0001F604",
		},
		expression: expression.Smile,
		situation:  SituationHappy,
		resetDelay: 2000 * time.Millisecond,
	},
	{
		name:       "laughter",
		keywords:   []string{"laugh", "funny", "haha", "lol", "\U0001F602", "\U0001F923"},
		expression: expression.Smile,
		situation:  SituationLaugh,
		resetDelay: 2000 * time.Millisecond,
	},
	{
		name:       "talking",
		keywords:   []string{"talk", "speaking", "explain", "tell me"},
		expression: "",
		situation:  SituationTalk,
		resetDelay: 1500 * time.Millisecond,
	},
}

// fallback applies when no group matches: keep the face unset, idle
// animation, and a short reset.
var fallback = Result{
	Group:      "default",
	Expression: "",
	Situation:  SituationDefault,
	ResetDelay: 300 * time.Millisecond,
}

// Classify maps reply text to its Result. It is total and deterministic:
// exactly one triple comes back for any input, decided by group order.
func Classify(text string) Result {
	lower := strings.ToLower(text)

	for i := range ruleGroups {
		g := &ruleGroups[i]
		if g.matches(lower) {
			return Result{
				Group:      g.name,
				Expression: g.expression,
				Situation:  g.situation,
				ResetDelay: g.resetDelay,
			}
		}
	}
	return fallback
}
