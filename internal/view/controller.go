package view

import (
	"sync"
	"time"

	"pony-chat-admin/backend/internal/models"
	"pony-chat-admin/backend/pkg/cache"
)

// Mode is the per-platform view mode for one operator session.
type Mode string

const (
	// ModeList shows the conversation list; nothing is selected.
	ModeList Mode = "list"
	// ModeOpen shows a single open conversation.
	ModeOpen Mode = "open"
)

// State is the view state for one (session, platform) pair. Timestamp
// expansion flags live inside the open conversation and reset whenever it
// closes or another one opens; they are never persisted.
type State struct {
	Mode      Mode            `json:"mode"`
	ActiveKey string          `json:"active_key,omitempty"`
	Expanded  map[string]bool `json:"expanded,omitempty"`
}

// clone copies the expanded-flag map. Cached states are immutable once stored;
// every state handed out or about to be mutated is a clone, so readers never
// alias a map a later toggle writes to.
func (s State) clone() State {
	if s.Expanded == nil {
		return s
	}
	expanded := make(map[string]bool, len(s.Expanded))
	for k, v := range s.Expanded {
		expanded[k] = v
	}
	s.Expanded = expanded
	return s
}

// sessionTTL is how long an idle session keeps its view state. Expiry is the
// remount: the state resets to the list view.
const sessionTTL = 30 * time.Minute

// Controller tracks which conversation each operator session has open.
// Transitions are operator-driven only; there is no terminal state.
type Controller struct {
	mu     sync.Mutex
	states *cache.Cache
}

func NewController(states *cache.Cache) *Controller {
	return &Controller{states: states}
}

func stateKey(sessionID string, platform models.Platform) string {
	return "view:" + sessionID + ":" + string(platform)
}

// Get returns the current state, defaulting to the list view.
func (c *Controller) Get(sessionID string, platform models.Platform) State {
	if v, ok := c.states.Get(stateKey(sessionID, platform)); ok {
		if state, ok := v.(State); ok {
			return state.clone()
		}
	}
	return State{Mode: ModeList}
}

// Open transitions to OpenConversation(key). Opening a conversation always
// starts with collapsed timestamps, even when reopening the same one.
func (c *Controller) Open(sessionID string, platform models.Platform, key string) State {
	c.mu.Lock()
	defer c.mu.Unlock()

	state := State{
		Mode:      ModeOpen,
		ActiveKey: key,
		Expanded:  make(map[string]bool),
	}
	c.states.SetWithExpiration(stateKey(sessionID, platform), state, sessionTTL)
	return state.clone()
}

// Close transitions back to the list view. In-flight sends and fetches are
// not cancelled; their results simply apply late.
func (c *Controller) Close(sessionID string, platform models.Platform) State {
	c.mu.Lock()
	defer c.mu.Unlock()

	state := State{Mode: ModeList}
	c.states.SetWithExpiration(stateKey(sessionID, platform), state, sessionTTL)
	return state
}

// ToggleTimestamp flips the timestamp visibility flag for one message in the
// open conversation and returns the new flag. A no-op in list mode.
func (c *Controller) ToggleTimestamp(sessionID string, platform models.Platform, messageID string) (bool, State) {
	c.mu.Lock()
	defer c.mu.Unlock()

	state := c.Get(sessionID, platform)
	if state.Mode != ModeOpen {
		return false, state
	}
	if state.Expanded == nil {
		state.Expanded = make(map[string]bool)
	}
	state.Expanded[messageID] = !state.Expanded[messageID]
	expanded := state.Expanded[messageID]

	c.states.SetWithExpiration(stateKey(sessionID, platform), state, sessionTTL)
	return expanded, state.clone()
}
