package diag

import (
	"fmt"
	"math"
	"sort"

	"fortio.org/safecast"
)

// Bag collects diagnostics up to a limit. It is not safe for concurrent
// use; parallel producers fill one Bag each and Merge afterwards.
type Bag struct {
	items []Diagnostic
	max   uint16
}

// NewBag returns a bag holding at most max diagnostics; values that do not
// fit a uint16 are clamped.
func NewBag(max int) *Bag {
	limit, err := safecast.Conv[uint16](max)
	if err != nil {
		limit = math.MaxUint16
		if max < 0 {
			limit = 0
		}
	}
	return &Bag{items: make([]Diagnostic, 0, min(int(limit), 64)), max: limit}
}

// Add reports false when the limit is reached and d was dropped.
func (b *Bag) Add(d Diagnostic) bool {
	if len(b.items) >= int(b.max) {
		return false
	}
	b.items = append(b.items, d)
	return true
}

func (b *Bag) Cap() uint16 { return b.max }

func (b *Bag) HasErrors() bool {
	for i := range b.items {
		if b.items[i].Severity >= SevError {
			return true
		}
	}
	return false
}

func (b *Bag) HasWarnings() bool {
	for i := range b.items {
		if b.items[i].Severity >= SevWarning {
			return true
		}
	}
	return false
}

func (b *Bag) Len() int { return len(b.items) }

// Items returns the internal slice; callers must not modify it.
func (b *Bag) Items() []Diagnostic { return b.items }

// Merge appends other, still honouring the limit.
func (b *Bag) Merge(other *Bag) {
	if other == nil {
		return
	}
	for _, d := range other.items {
		if !b.Add(d) {
			return
		}
	}
}

// Sort orders by subject, then severity (errors first), then code.
func (b *Bag) Sort() {
	sort.SliceStable(b.items, func(i, j int) bool {
		di, dj := b.items[i], b.items[j]
		if di.Subject != dj.Subject {
			return di.Subject.less(dj.Subject)
		}
		if di.Severity != dj.Severity {
			return di.Severity > dj.Severity
		}
		return di.Code < dj.Code
	})
}

// Dedup drops diagnostics repeating an earlier code, subject and message.
func (b *Bag) Dedup() {
	seen := make(map[string]bool)
	out := b.items[:0]
	for _, d := range b.items {
		key := fmt.Sprintf("%d:%s:%s", d.Code, d.Subject, d.Message)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, d)
	}
	b.items = out
}
