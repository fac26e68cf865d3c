// Package bus provides an internal event bus for component communication
package bus

import (
	"sync"
)

// EventType identifies different event types
type EventType string

// Event types published by the companion core
const (
	// Speech lifecycle events
	EventTypeSpeechSynthesizing EventType = "speech.synthesizing"
	EventTypeSpeechStarted      EventType = "speech.started"
	EventTypeSpeechStopping     EventType = "speech.stopping"
	EventTypeSpeechEnded        EventType = "speech.ended"
	EventTypeSpeechError        EventType = "speech.error"

	// Face events
	EventTypeExpressionChanged EventType = "face.expression_changed"
	EventTypeVisemeChanged     EventType = "face.viseme_changed"
	EventTypeBlink             EventType = "face.blink"

	// Animation events
	EventTypeAnimationPlay  EventType = "animation.play"
	EventTypeAnimationIdle  EventType = "animation.idle"

	// Chat events
	EventTypeChatResponse EventType = "chat.response"
	EventTypeChatFailed   EventType = "chat.failed"

	// Persistence events
	EventTypeConversationCreated EventType = "history.conversation_created"
	EventTypeMessageSaved        EventType = "history.message_saved"
)

// Event represents a bus event
type Event struct {
	Type EventType
	Data map[string]any
}

// Handler is a function that handles events
type Handler func(Event)

// EventBus is a simple pub/sub event bus
type EventBus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		handlers: make(map[EventType][]Handler),
	}
}

// Subscribe adds a handler for an event type
func (b *EventBus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// SubscribeMultiple adds a handler for multiple event types
func (b *EventBus) SubscribeMultiple(eventTypes []EventType, handler Handler) {
	for _, et := range eventTypes {
		b.Subscribe(et, handler)
	}
}

// Publish sends an event to all subscribed handlers
func (b *EventBus) Publish(event Event) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers[event.Type]))
	copy(handlers, b.handlers[event.Type])
	b.mu.RUnlock()

	for _, handler := range handlers {
		// Call handlers in goroutines to avoid blocking
		go handler(event)
	}
}

// PublishSync sends an event and waits for all handlers to complete
func (b *EventBus) PublishSync(event Event) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers[event.Type]))
	copy(handlers, b.handlers[event.Type])
	b.mu.RUnlock()

	var wg sync.WaitGroup
	for _, handler := range handlers {
		wg.Add(1)
		go func(h Handler) {
			defer wg.Done()
			h(event)
		}(handler)
	}
	wg.Wait()
}
