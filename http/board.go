package http

import (
	"sort"
	"sync"
	"time"

	"github.com/aeytom/hw2influx/meter"
)

// Status is the last known state of one meter.
type Status struct {
	Meter       string                 `json:"meter"`
	URL         string                 `json:"url"`
	Interval    string                 `json:"interval"`
	Polls       uint64                 `json:"polls"`
	Failures    uint64                 `json:"failures"`
	LastPoll    *time.Time             `json:"last_poll,omitempty"`
	LastSuccess *time.Time             `json:"last_success,omitempty"`
	LastError   string                 `json:"last_error,omitempty"`
	Time        string                 `json:"time,omitempty"`
	Fields      map[string]interface{} `json:"fields,omitempty"`
}

// Board collects tick outcomes from all meter loops. Each loop only ever
// touches its own entry.
type Board struct {
	mu     sync.RWMutex
	meters map[string]*Status
}

// NewBoard …
func NewBoard() *Board {
	return &Board{meters: make(map[string]*Status)}
}

// Add registers a meter.
func (b *Board) Add(name, url string, interval time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.meters[name] = &Status{Meter: name, URL: url, Interval: interval.String()}
}

// Report records one tick outcome.
func (b *Board) Report(name string, p meter.DataPoint, err error, at time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.meters[name]
	if !ok {
		s = &Status{Meter: name}
		b.meters[name] = s
	}
	s.Polls++
	s.LastPoll = &at
	if err != nil {
		s.Failures++
		s.LastError = err.Error()
		return
	}
	s.LastError = ""
	s.LastSuccess = &at
	s.Time = p.Timestamp()
	s.Fields = p.Fields
}

// Get returns a copy of the meter status.
func (b *Board) Get(name string) (Status, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s, ok := b.meters[name]
	if !ok {
		return Status{}, false
	}
	return *s, true
}

// Names returns the registered meters in lexical order.
func (b *Board) Names() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	names := make([]string, 0, len(b.meters))
	for n := range b.meters {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
