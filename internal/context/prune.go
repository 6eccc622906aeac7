package context

import "lowvibe/internal/chat"

// Reserved history slots: 0 is the system prompt, 1 the original task.
const reservedSlots = 2

// PruneToolPairs keeps the newest keep tool-call/result pairs verbatim and
// replaces each older pair with a one-line archival marker. The reserved
// slots are never touched and a history with keep or fewer pairs is
// returned unchanged, so pruning is idempotent.
func PruneToolPairs(history []chat.Message, keep int) ([]chat.Message, int) {
	var pairs []int // index of each tool_call that is followed by its result
	for i := reservedSlots; i+1 < len(history); i++ {
		if history[i].Kind == chat.KindToolCall && history[i+1].Kind == chat.KindToolResult {
			pairs = append(pairs, i)
			i++
		}
	}
	if len(pairs) <= keep {
		return history, 0
	}

	strip := make(map[int]bool, len(pairs)-keep)
	for _, idx := range pairs[:len(pairs)-keep] {
		strip[idx] = true
	}

	out := make([]chat.Message, 0, len(history)-len(strip))
	for i := 0; i < len(history); i++ {
		if strip[i] {
			out = append(out, chat.Archived(history[i].Tool))
			i++ // drop the result too
			continue
		}
		out = append(out, history[i])
	}
	return out, len(strip)
}
