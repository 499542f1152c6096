package flow

import (
	"sync"
	"time"

	"github.com/hannahlabs/leadflow/internal/models"
)

// DuplicateGuard rejects an exact repeat of the immediately previous inbound
// message from the same sender. It is advisory: per-process, no expiry, reset
// on restart. It only deters webhook redelivery, it is not a correctness
// mechanism.
type DuplicateGuard struct {
	mu   sync.Mutex
	last map[string]lastMessage
}

type lastMessage struct {
	body string
	at   time.Time
}

// NewDuplicateGuard creates an empty guard.
func NewDuplicateGuard() *DuplicateGuard {
	return &DuplicateGuard{last: make(map[string]lastMessage)}
}

// Check records the message for the sender, returning
// models.ErrDuplicateMessage when it repeats the sender's previous message
// verbatim. A rejected message does not refresh the stored entry.
func (g *DuplicateGuard) Check(sender, body string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if prev, ok := g.last[sender]; ok && prev.body == body {
		return models.ErrDuplicateMessage
	}
	g.last[sender] = lastMessage{body: body, at: time.Now()}
	return nil
}
