package ui

import (
	"context"
	"sync"
)

// History is an in-process Navigator: it tracks the current location and
// reports page loads to a listener. Replace never notifies.
type History struct {
	mu      sync.Mutex
	current string
	entries []string
	onLoad  func(ctx context.Context, location string)
}

func NewHistory(start string) *History {
	return &History{current: start, entries: []string{start}}
}

// OnLoad sets the listener invoked after every Navigate. The listener runs
// without the history lock held and may navigate again.
func (h *History) OnLoad(fn func(ctx context.Context, location string)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onLoad = fn
}

func (h *History) Navigate(ctx context.Context, target string) {
	h.mu.Lock()
	h.current = target
	h.entries = append(h.entries, target)
	fn := h.onLoad
	h.mu.Unlock()

	if fn != nil {
		fn(ctx, target)
	}
}

func (h *History) Replace(_ context.Context, target string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.current = target
	if n := len(h.entries); n > 0 {
		h.entries[n-1] = target
	} else {
		h.entries = append(h.entries, target)
	}
}

func (h *History) Current() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current
}

// Path is the current location without parameters.
func (h *History) Path() string {
	return StripParams(h.Current())
}

// Entries returns every location visited, with replacements applied.
func (h *History) Entries() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.entries...)
}

// Notices collects notices in memory; the terminal client prints them as
// they arrive through an optional sink.
type Notices struct {
	mu      sync.Mutex
	notices []Notice
	sink    func(Notice)
}

func NewNotices(sink func(Notice)) *Notices {
	return &Notices{sink: sink}
}

func (n *Notices) Notify(_ context.Context, notice Notice) {
	n.mu.Lock()
	n.notices = append(n.notices, notice)
	sink := n.sink
	n.mu.Unlock()

	if sink != nil {
		sink(notice)
	}
}

func (n *Notices) All() []Notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notice(nil), n.notices...)
}
