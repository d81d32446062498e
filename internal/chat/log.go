package chat

import "taskly-chat/internal/models"

// messageLog is the ordered chat log. Insertion order is append order; it is
// never re-sorted. Callers hold the controller lock.
type messageLog struct {
	entries  []models.ChatMessage
	hydrated bool
}

func (l *messageLog) append(msg models.ChatMessage) {
	l.entries = append(l.entries, msg)
}

// prependHistory places the history batch before every live message. History
// entries that already arrived live are skipped.
func (l *messageLog) prependHistory(batch []models.ChatMessage) int {
	seen := make(map[int]struct{}, len(l.entries))
	for _, m := range l.entries {
		if m.ID != nil {
			seen[*m.ID] = struct{}{}
		}
	}

	merged := make([]models.ChatMessage, 0, len(batch)+len(l.entries))
	for _, m := range batch {
		if m.ID != nil {
			if _, dup := seen[*m.ID]; dup {
				continue
			}
		}
		merged = append(merged, m)
	}
	added := len(merged)
	merged = append(merged, l.entries...)
	l.entries = merged
	l.hydrated = true
	return added
}

func (l *messageLog) snapshot() []models.ChatMessage {
	out := make([]models.ChatMessage, len(l.entries))
	copy(out, l.entries)
	return out
}
