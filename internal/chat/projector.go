package chat

// Projector holds the display-ready message sequence for one conversation
// view. Each subscription update carries the full ordered sequence and
// replaces the held one wholesale; no incremental patching. Full
// replacement cannot diverge from server state, and conversations are
// small enough that the re-render cost does not matter.
//
// A subscription error never reaches Apply, so the held sequence is
// always the last known good state.
type Projector struct {
	messages []Message
	latestID string
}

func NewProjector() *Projector {
	return &Projector{}
}

// Apply replaces the held sequence with the supplied one and reports
// whether the most recent message changed. That signal is what the
// presentation layer consumes as "scroll to latest"; re-delivering an
// identical sequence does not raise it.
func (p *Projector) Apply(full []Message) (latestChanged bool) {
	p.messages = full

	newest := ""
	if len(full) > 0 {
		newest = full[len(full)-1].ID
	}
	if newest != p.latestID {
		p.latestID = newest
		return newest != ""
	}
	return false
}

// Messages returns the held sequence, oldest first.
func (p *Projector) Messages() []Message {
	return p.messages
}

// Latest returns the most recent message, or nil when the conversation is
// empty (or nothing has arrived yet).
func (p *Projector) Latest() *Message {
	if len(p.messages) == 0 {
		return nil
	}
	return &p.messages[len(p.messages)-1]
}
