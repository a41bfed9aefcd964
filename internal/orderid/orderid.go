// Package orderid generates order ids of the form ORD-<unix millis>-<suffix>.
package orderid

import (
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
)

const (
	suffixLen = 6
	// suffixSpace is 36^6.
	suffixSpace = 2_176_782_336
	maxAttempts = 8
)

// Generator issues timestamp + random suffix ids. A bloom filter remembers
// issued ids; a hit forces a new suffix. False positives only cost a retry
// and there are no false negatives, so an id seen by the filter is never
// issued twice.
type Generator struct {
	mu     sync.Mutex
	filter *bloom.BloomFilter
	now    func() time.Time
	suffix func() int64
}

// New creates a Generator sized for capacity ids at false-positive rate fpr.
func New(capacity uint, fpr float64) *Generator {
	return &Generator{
		filter: bloom.NewWithEstimates(capacity, fpr),
		now:    time.Now,
		suffix: func() int64 { return rand.Int64N(suffixSpace) },
	}
}

// Seed marks existing ids as issued.
func (g *Generator) Seed(ids ...string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, id := range ids {
		g.filter.AddString(id)
	}
}

// Next returns a fresh id.
func (g *Generator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	var id string
	for range maxAttempts {
		id = g.format(g.now(), g.suffix())
		if !g.filter.TestOrAddString(id) {
			return id
		}
	}
	// Saturated filter or a broken clock: fall back to the last candidate,
	// the repository still rejects exact duplicates.
	return id
}

func (g *Generator) format(t time.Time, n int64) string {
	s := strconv.FormatInt(n, 36)
	if len(s) < suffixLen {
		s = strings.Repeat("0", suffixLen-len(s)) + s
	}
	return "ORD-" + strconv.FormatInt(t.UnixMilli(), 10) + "-" + strings.ToUpper(s)
}
