package suggest

// State of the trigger for one conversation view.
type State int

const (
	// StateIdle: nothing pending or displayed.
	StateIdle State = iota
	// StatePending: a completion call is in flight for one message.
	StatePending
	// StateReady: suggestions for one message are displayed.
	StateReady
	// StateSuppressed: the service failed for the current message; no
	// suggestions, no automatic retry.
	StateSuppressed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePending:
		return "pending"
	case StateReady:
		return "ready"
	case StateSuppressed:
		return "suppressed"
	default:
		return "unknown"
	}
}

// Set is the live suggestion set: candidate replies for exactly one
// triggering message, in response order.
type Set struct {
	MessageID string   `json:"message_id"`
	Replies   []string `json:"replies"`
}

// LatestMessage is the projector output the trigger inspects: the newest
// message of the conversation.
type LatestMessage struct {
	ID       string
	SenderID string
	Body     string
}

// Trigger fires the completion service exactly once per newly observed
// inbound message. One instance is owned by one conversation view; all
// its state, including the last-processed-id marker, lives here so the
// gating rules are unit testable without any reactive plumbing.
//
// The marker is a single id, not a set: after a full-sequence
// replacement, re-seeing older messages must not re-fire, and only the
// newest message matters.
type Trigger struct {
	localUID string

	state           State
	pendingID       string
	lastProcessedID string
	set             *Set
}

func NewTrigger(localUID string) *Trigger {
	return &Trigger{localUID: localUID}
}

func (t *Trigger) State() State { return t.state }

// Suggestions returns the displayed set, nil unless Ready.
func (t *Trigger) Suggestions() *Set { return t.set }

// Observe feeds the trigger the projector's newest message after an
// update. It returns the message to fetch suggestions for, or ok=false
// when no call should fire: the caller invokes the completion service
// exactly when ok is true.
//
// An inbound message with an id the trigger has not processed yet fires
// a call and supersedes whatever was pending or displayed. A newest
// message from the local user returns the trigger to Idle. Anything else
// (no messages, already-processed id) changes nothing, so re-delivering
// an identical sequence is a no-op.
func (t *Trigger) Observe(latest *LatestMessage) (fire LatestMessage, ok bool) {
	if latest == nil {
		return LatestMessage{}, false
	}

	if latest.SenderID == t.localUID {
		t.toIdle()
		t.lastProcessedID = latest.ID
		return LatestMessage{}, false
	}

	if latest.ID == t.lastProcessedID {
		return LatestMessage{}, false
	}

	t.lastProcessedID = latest.ID
	t.pendingID = latest.ID
	t.state = StatePending
	t.set = nil
	return *latest, true
}

// Complete delivers a successful service response. Responses for a
// superseded message are discarded by the id check: there is no
// cancellation of in-flight calls, last-write-wins keyed on the pending
// id. Returns whether the set went live.
func (t *Trigger) Complete(messageID string, replies []string) bool {
	if t.state != StatePending || t.pendingID != messageID {
		return false
	}
	t.state = StateReady
	t.set = &Set{MessageID: messageID, Replies: replies}
	return true
}

// Fail delivers a service failure. Failures for a superseded message are
// ignored the same way stale successes are.
func (t *Trigger) Fail(messageID string) {
	if t.state != StatePending || t.pendingID != messageID {
		return
	}
	t.state = StateSuppressed
	t.set = nil
}

// ComposerChanged tracks the composer. Non-empty text makes any displayed
// or pending suggestions stale relative to user intent.
func (t *Trigger) ComposerChanged(text string) {
	if text != "" {
		t.toIdle()
	}
}

// Sent clears suggestions when the user sends a message.
func (t *Trigger) Sent() {
	t.toIdle()
}

// Select picks a displayed suggestion by index, returning its text for
// the composer. The set is cleared without sending.
func (t *Trigger) Select(i int) (string, bool) {
	if t.state != StateReady || t.set == nil || i < 0 || i >= len(t.set.Replies) {
		return "", false
	}
	text := t.set.Replies[i]
	t.toIdle()
	return text, true
}

func (t *Trigger) toIdle() {
	t.state = StateIdle
	t.pendingID = ""
	t.set = nil
}
