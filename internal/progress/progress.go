// Package progress decouples the deployment state machine from rendering.
// The engine publishes structured events to a Sink owned by the caller; a
// renderer (or a test) decides what to do with them.
package progress

import (
	"fmt"
	"sync"
)

// Event is a point-in-time snapshot of one stack's deployment progress.
type Event struct {
	StackName          string `json:"stack_name"`
	AccountID          string `json:"account_id"`
	Region             string `json:"region"`
	Status             string `json:"status"`
	CompletedResources int    `json:"completed_resources"`
	TotalResources     int    `json:"total_resources"`
	LatestResourceID   string `json:"latest_resource_id,omitempty"`
	FailureReason      string `json:"failure_reason,omitempty"`
}

// Key identifies the stack an event belongs to.
func (e Event) Key() string {
	return fmt.Sprintf("%s/%s/%s", e.AccountID, e.Region, e.StackName)
}

// Sink receives progress events. Implementations must be safe for use from
// multiple goroutines; each deployment task publishes events for its own
// stack only.
type Sink interface {
	Publish(event Event)
}

// NullSink discards all events.
type NullSink struct{}

func (NullSink) Publish(Event) {}

// MemorySink retains every published event plus the latest event per stack.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
	latest map[string]Event
}

func NewMemorySink() *MemorySink {
	return &MemorySink{latest: map[string]Event{}}
}

func (s *MemorySink) Publish(event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	s.latest[event.Key()] = event
}

// Events returns a copy of all events in publication order.
func (s *MemorySink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// Latest returns the most recent event for a stack, if any.
func (s *MemorySink) Latest(accountID, region, stackName string) (Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	event, ok := s.latest[Event{StackName: stackName, AccountID: accountID, Region: region}.Key()]
	return event, ok
}
