package upload

import (
	"io"
	"sync"
)

// ProgressFunc receives transfer progress in percent.
type ProgressFunc func(percent int)

// progressReader reports monotonically increasing progress while the body is
// read. It never reports 100 on its own: completion is signalled by finish
// after the server accepted the file. Once finished, no further progress is
// emitted even if the transport keeps reading.
type progressReader struct {
	r     io.Reader
	total int64
	fn    ProgressFunc

	mu   sync.Mutex
	read int64
	last int
	done bool
}

func newProgressReader(r io.Reader, total int64, fn ProgressFunc) *progressReader {
	return &progressReader{r: r, total: total, fn: fn, last: -1}
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.r.Read(buf)
	if n > 0 {
		p.mu.Lock()
		p.read += int64(n)
		pct := 0
		if p.total > 0 {
			pct = int(p.read * 100 / p.total)
		}
		if pct > 99 {
			pct = 99
		}
		p.emitLocked(pct)
		p.mu.Unlock()
	}
	return n, err
}

func (p *progressReader) start() {
	p.mu.Lock()
	p.emitLocked(0)
	p.mu.Unlock()
}

// finish closes the reporter. success emits the final 100.
func (p *progressReader) finish(success bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done {
		return
	}
	if success {
		p.emitLocked(100)
	}
	p.done = true
}

func (p *progressReader) percent() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last < 0 {
		return 0
	}
	return p.last
}

func (p *progressReader) emitLocked(pct int) {
	if p.done || pct <= p.last {
		return
	}
	p.last = pct
	if p.fn != nil {
		p.fn(pct)
	}
}
