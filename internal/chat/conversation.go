package chat

import "sync"

// Conversation holds the ordered message log sent with every completion
// request: one system prompt followed by alternating user/assistant turns.
// It can be reseeded from persisted history so the assistant remembers
// prior sessions.
type Conversation struct {
	mu           sync.RWMutex
	systemPrompt string
	turns        []Message
	maxTurns     int
}

// NewConversation creates a conversation rooted at systemPrompt. maxTurns
// bounds the retained user/assistant messages; zero means unbounded.
func NewConversation(systemPrompt string, maxTurns int) *Conversation {
	return &Conversation{
		systemPrompt: systemPrompt,
		maxTurns:     maxTurns,
	}
}

// AddUser appends a user turn.
func (c *Conversation) AddUser(content string) {
	c.add(Message{Role: "user", Content: content})
}

// AddAssistant appends an assistant turn.
func (c *Conversation) AddAssistant(content string) {
	c.add(Message{Role: "assistant", Content: content})
}

func (c *Conversation) add(msg Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.turns = append(c.turns, msg)
	if c.maxTurns > 0 && len(c.turns) > c.maxTurns {
		c.turns = c.turns[len(c.turns)-c.maxTurns:]
	}
}

// Seed replaces the turn log with persisted (role, content) pairs,
// keeping the system prompt. Unknown roles are skipped.
func (c *Conversation) Seed(msgs []Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.turns = c.turns[:0]
	for _, m := range msgs {
		if m.Role != "user" && m.Role != "assistant" {
			continue
		}
		c.turns = append(c.turns, m)
	}
	if c.maxTurns > 0 && len(c.turns) > c.maxTurns {
		c.turns = c.turns[len(c.turns)-c.maxTurns:]
	}
}

// Messages returns the full prompt: system message first, then the turns.
// The returned slice is a copy.
func (c *Conversation) Messages() []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Message, 0, len(c.turns)+1)
	out = append(out, Message{Role: "system", Content: c.systemPrompt})
	out = append(out, c.turns...)
	return out
}

// Turns returns just the user/assistant turns, oldest first.
func (c *Conversation) Turns() []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Message, len(c.turns))
	copy(out, c.turns)
	return out
}

// Len reports the number of retained turns.
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.turns)
}

// Reset drops all turns, keeping the system prompt.
func (c *Conversation) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turns = c.turns[:0]
}
