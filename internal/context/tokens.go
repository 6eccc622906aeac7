package context

import (
	"sync"

	"lowvibe/internal/chat"
)

// Per-message framing overhead the endpoints add around role and content.
const messageOverhead = 4

// EstimateTokens approximates the prompt size of msgs at four characters
// per token.
func EstimateTokens(msgs []chat.Message) int {
	n := 0
	for _, m := range msgs {
		n += (len(m.Content)+3)/4 + messageOverhead
	}
	return n
}

// Estimator scales the character heuristic by what the endpoint actually
// reported for the last prompt.
type Estimator struct {
	mu    sync.Mutex
	ratio float64
}

// Observe records that msgs cost promptTokens on the endpoint.
func (e *Estimator) Observe(promptTokens int, msgs []chat.Message) {
	guess := EstimateTokens(msgs)
	if promptTokens <= 0 || guess <= 0 {
		return
	}
	r := float64(promptTokens) / float64(guess)
	// Clamp so one odd response cannot swing the budget wildly.
	if r < 0.5 {
		r = 0.5
	} else if r > 2 {
		r = 2
	}
	e.mu.Lock()
	e.ratio = r
	e.mu.Unlock()
}

// Estimate returns the calibrated token estimate for msgs.
func (e *Estimator) Estimate(msgs []chat.Message) int {
	e.mu.Lock()
	r := e.ratio
	e.mu.Unlock()
	if r == 0 {
		r = 1
	}
	return int(float64(EstimateTokens(msgs)) * r)
}
