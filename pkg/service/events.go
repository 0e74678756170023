// pkg/service/events.go
package service

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event records one lifecycle transition.
type Event struct {
	ID      string    `json:"id"`
	Service string    `json:"service"`
	From    Status    `json:"from"`
	To      Status    `json:"to"`
	Detail  string    `json:"detail,omitempty"`
	At      time.Time `json:"at"`
}

// journalCapacity bounds the in-memory event journal; older events are
// discarded first.
const journalCapacity = 256

type journal struct {
	mu  sync.Mutex
	buf []Event
}

func newJournal() *journal {
	return &journal{}
}

func (j *journal) append(service string, from, to Status, detail string) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.buf = append(j.buf, Event{
		ID:      uuid.NewString(),
		Service: service,
		From:    from,
		To:      to,
		Detail:  detail,
		At:      time.Now(),
	})
	if len(j.buf) > journalCapacity {
		j.buf = j.buf[len(j.buf)-journalCapacity:]
	}
}

func (j *journal) snapshot() []Event {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]Event(nil), j.buf...)
}
