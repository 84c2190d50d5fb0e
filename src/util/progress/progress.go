package progress

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// printInterval throttles progress lines so large archives do not flood
// the output.
const printInterval = 200 * time.Millisecond

// Reader wraps an io.Reader and periodically reports bytes read to out.
// Used while packing backup directories into a single archive.
type Reader struct {
	r           io.Reader
	out         io.Writer
	label       string
	total       int64
	read        int64
	mu          sync.Mutex
	lastPrinted time.Time
}

// NewReader creates a progress Reader. A zero total omits the percentage.
func NewReader(r io.Reader, total int64, label string, out io.Writer) *Reader {
	return &Reader{r: r, out: out, label: label, total: total}
}

func (p *Reader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.mu.Lock()
		p.read += int64(n)
		now := time.Now()
		if now.Sub(p.lastPrinted) >= printInterval {
			p.print()
			p.lastPrinted = now
		}
		p.mu.Unlock()
	}
	if err == io.EOF && p.out != nil {
		p.mu.Lock()
		p.print()
		fmt.Fprint(p.out, "\n")
		p.mu.Unlock()
	}
	return n, err
}

func (p *Reader) print() {
	if p.out == nil {
		return
	}
	if p.total > 0 {
		pct := float64(p.read) / float64(p.total) * 100
		fmt.Fprintf(p.out, "\r[%s] %.1f%% (%d/%d bytes)", p.label, pct, p.read, p.total)
	} else {
		fmt.Fprintf(p.out, "\r[%s] %d bytes", p.label, p.read)
	}
}
