package jobrunner

import "sync"

// Progress tracks the last percent flushed for one job and enforces the
// system's only backpressure rule: a new value is flushed only when it
// differs from the last one reported. Once a task reports streaming
// character counts via ReportChars, the heartbeat ticker backs off and
// leaves progress reporting to the stream.
type Progress struct {
	mu          sync.Mutex
	lastPercent int
	isStreaming bool
	flush       func(percent int)
}

func newProgress(initial int, flush func(int)) *Progress {
	return &Progress{lastPercent: initial, flush: flush}
}

func (p *Progress) report(percent int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if percent == p.lastPercent {
		return
	}
	p.lastPercent = percent
	p.flush(percent)
}

// ReportChars applies the streaming-token-progress mapping
// min(95, 20 + 75*min(received/budget, 1)) and flushes on integer-percent
// change. A budget <= 0 means the caller has no output-size estimate and
// the heartbeat should keep driving progress instead.
func (p *Progress) ReportChars(received, budget int) {
	if budget <= 0 {
		return
	}
	p.mu.Lock()
	p.isStreaming = true
	p.mu.Unlock()

	ratio := float64(received) / float64(budget)
	if ratio > 1 {
		ratio = 1
	}
	pct := 20 + 75*ratio
	if pct > 95 {
		pct = 95
	}
	p.report(int(pct))
}

func (p *Progress) streaming() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.isStreaming
}
