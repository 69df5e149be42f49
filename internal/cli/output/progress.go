package output

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

// Progress renders a one-line counter for multi-slot operations, e.g.
// "verifying [######----] 6/10 slot-6".
type Progress struct {
	w       io.Writer
	title   string
	total   int
	current int
	width   int
	mu      sync.Mutex
}

// NewProgress creates a progress line for total steps. A nil writer
// discards output.
func NewProgress(w io.Writer, title string, total int) *Progress {
	if w == nil {
		w = io.Discard
	}
	return &Progress{w: w, title: title, total: total, width: 20}
}

// Step advances by one and shows label.
func (p *Progress) Step(label string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current++
	p.render(label)
}

// Finish ends the line.
func (p *Progress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.w)
}

// Current returns the number of completed steps.
func (p *Progress) Current() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

func (p *Progress) render(label string) {
	if p.total <= 0 {
		fmt.Fprintf(p.w, "\r%s %d %s", p.title, p.current, label)
		return
	}
	filled := p.width * p.current / p.total
	if filled > p.width {
		filled = p.width
	}
	bar := strings.Repeat("#", filled) + strings.Repeat("-", p.width-filled)
	fmt.Fprintf(p.w, "\r%s [%s] %d/%d %s", p.title, bar, p.current, p.total, label)
}
