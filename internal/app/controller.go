package app

import (
	"lowvibe/internal/agent"
	"lowvibe/internal/interact"
	"lowvibe/internal/logging"
)

// controller maps bridge commands onto the run's Control and the pending
// question, if any.
type controller struct {
	control *agent.Control
	handoff *interact.Handoff
}

func (c *controller) Answer(text string) {
	if c.handoff == nil || !c.handoff.Answer(text) {
		logging.Debug("answer with no pending question dropped")
	}
}

func (c *controller) Pause() {
	if c.control != nil {
		c.control.Pause()
	}
}

func (c *controller) Resume(guidance string) {
	if c.control != nil {
		c.control.Resume(guidance)
	}
}

func (c *controller) Cancel() {
	if c.control != nil {
		c.control.Cancel()
	}
	if c.handoff != nil {
		c.handoff.Cancel()
	}
}
