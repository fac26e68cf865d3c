package speech

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/abubokkor/safaavatar/internal/bus"
	"github.com/abubokkor/safaavatar/internal/chat"
	"github.com/abubokkor/safaavatar/internal/emotion"
	"github.com/abubokkor/safaavatar/internal/expression"
)

// Completer produces an assistant reply for a message list.
type Completer interface {
	Complete(ctx context.Context, messages []chat.Message) (string, error)
	IsAvailable() bool
}

// Face receives expression changes.
type Face interface {
	SetExpression(name expression.Name)
}

// Animator receives animation commands.
type Animator interface {
	PlayClip(clip string)
	PlayTemporaryClip(clip string, duration time.Duration, revert string)
}

// Recorder persists conversation turns. Saves are fire-and-forget: a dead
// history service never blocks the reply.
type Recorder interface {
	SaveMessage(ctx context.Context, conversationID int64, content string, isUser bool) error
}

// Speaker runs the synthesis/playback pipeline.
type Speaker interface {
	StartSpeaking(ctx context.Context, text string) (string, error)
	StopSpeaking()
}

// Companion is the conversational front: it turns user text into a spoken,
// animated reply. One Respond call runs chat completion (with the canned
// apology on exhaustion), triggers the emotional reaction, persists both
// turns, and hands the reply to the Speaker.
type Companion struct {
	logger    zerolog.Logger
	events    *bus.EventBus
	completer Completer
	conv      *chat.Conversation
	face      Face
	animator  Animator
	speaker   Speaker
	recorder  Recorder

	mu             sync.Mutex
	conversationID int64
	resetTimer     *time.Timer
}

// NewCompanion wires the conversational front. recorder may be nil when
// persistence is disabled.
func NewCompanion(logger zerolog.Logger, events *bus.EventBus, completer Completer, conv *chat.Conversation, face Face, animator Animator, speaker Speaker, recorder Recorder) *Companion {
	return &Companion{
		logger:    logger.With().Str("component", "companion").Logger(),
		events:    events,
		completer: completer,
		conv:      conv,
		face:      face,
		animator:  animator,
		speaker:   speaker,
		recorder:  recorder,
	}
}

// SetConversationID routes persisted turns into an existing conversation.
func (c *Companion) SetConversationID(id int64) {
	c.mu.Lock()
	c.conversationID = id
	c.mu.Unlock()
}

// Respond handles one user turn end to end and returns the spoken reply.
func (c *Companion) Respond(ctx context.Context, userText string) string {
	c.conv.AddUser(userText)
	c.persist(userText, true)

	reply, err := c.completer.Complete(ctx, c.conv.Messages())
	if err != nil {
		c.logger.Error().Err(err).Msg("chat completion exhausted retries")
		if c.events != nil {
			c.events.Publish(bus.Event{Type: bus.EventTypeChatFailed, Data: map[string]any{"error": err.Error()}})
		}
		reply = chat.FallbackReply
	} else {
		c.conv.AddAssistant(reply)
		c.persist(reply, false)
		if c.events != nil {
			c.events.Publish(bus.Event{Type: bus.EventTypeChatResponse, Data: map[string]any{"reply": reply}})
		}
	}

	c.React(reply)

	if _, err := c.speaker.StartSpeaking(ctx, reply); err != nil {
		c.logger.Error().Err(err).Msg("speaking reply failed")
	}
	return reply
}

// React classifies reply text and drives the face and animation, then
// schedules the expression reset. A newer reaction cancels the pending
// reset of an older one.
func (c *Companion) React(reply string) emotion.Result {
	res := emotion.Classify(reply)

	face := res.Expression
	if face == "" {
		face = expression.Default
	}
	c.face.SetExpression(face)
	if c.events != nil {
		c.events.Publish(bus.Event{Type: bus.EventTypeExpressionChanged, Data: map[string]any{
			"expression": string(face),
		}})
	}

	clip := emotion.ClipFor(res.Situation)
	if dur := emotion.ClipDuration(res.Situation); dur > 0 {
		c.animator.PlayTemporaryClip(clip, dur, emotion.IdleClip)
	} else {
		c.animator.PlayClip(clip)
	}

	if c.events != nil {
		c.events.Publish(bus.Event{Type: bus.EventTypeAnimationPlay, Data: map[string]any{
			"clip":      clip,
			"situation": res.Situation,
		}})
	}

	c.logger.Debug().
		Str("group", res.Group).
		Str("clip", clip).
		Dur("resetDelay", res.ResetDelay).
		Msg("emotion reaction")

	c.mu.Lock()
	if c.resetTimer != nil {
		c.resetTimer.Stop()
	}
	c.resetTimer = time.AfterFunc(res.ResetDelay, func() {
		c.face.SetExpression(expression.Default)
	})
	c.mu.Unlock()

	return res
}

// Interrupt stops speech and pending expression resets, snapping the face
// back to default.
func (c *Companion) Interrupt() {
	c.speaker.StopSpeaking()

	c.mu.Lock()
	if c.resetTimer != nil {
		c.resetTimer.Stop()
		c.resetTimer = nil
	}
	c.mu.Unlock()

	c.face.SetExpression(expression.Default)
	c.animator.PlayClip(emotion.IdleClip)
	if c.events != nil {
		c.events.Publish(bus.Event{Type: bus.EventTypeAnimationIdle, Data: map[string]any{
			"clip": emotion.IdleClip,
		}})
	}
}

func (c *Companion) persist(content string, isUser bool) {
	c.mu.Lock()
	recorder, id := c.recorder, c.conversationID
	c.mu.Unlock()

	if recorder == nil || id == 0 {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := recorder.SaveMessage(ctx, id, content, isUser); err != nil {
			c.logger.Warn().Err(err).Msg("saving message failed")
			return
		}
		if c.events != nil {
			c.events.Publish(bus.Event{Type: bus.EventTypeMessageSaved, Data: map[string]any{"isUser": isUser}})
		}
	}()
}
