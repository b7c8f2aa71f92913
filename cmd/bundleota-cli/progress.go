package main

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/dustin/go-humanize"
)

// progress keeps the latest transfer progress reported by a transport.
type progress struct {
	mu       sync.Mutex
	received int64
	total    int64
	seen     bool
}

func (p *progress) update(received, total string) {
	r, err := strconv.ParseInt(received, 10, 64)
	if err != nil {
		return
	}
	t, err := strconv.ParseInt(total, 10, 64)
	if err != nil {
		t = -1
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.received, p.total, p.seen = r, t, true
}

func (p *progress) String() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.seen {
		return ""
	}
	if p.total <= 0 {
		return fmt.Sprintf("received %s", humanize.Bytes(uint64(p.received)))
	}
	return fmt.Sprintf("received %s of %s (%.0f%%)",
		humanize.Bytes(uint64(p.received)),
		humanize.Bytes(uint64(p.total)),
		float64(p.received)/float64(p.total)*100,
	)
}
