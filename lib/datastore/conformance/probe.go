package conformance

import (
	"fmt"
	"testing"
	"time"
)

// --------------------------------------------------------------------------
// Probe results
// --------------------------------------------------------------------------

// ProbeStatus is the outcome of one probed scenario.
type ProbeStatus int

const (
	ProbePassed ProbeStatus = iota
	ProbeFailed
	ProbeSkipped
)

func (s ProbeStatus) String() string {
	switch s {
	case ProbePassed:
		return "PASS"
	case ProbeFailed:
		return "FAIL"
	case ProbeSkipped:
		return "SKIP"
	default:
		return "Unknown"
	}
}

// ProbeResult describes one scenario run against a live backend.
type ProbeResult struct {
	Name     string
	Status   ProbeStatus
	Detail   string // first assertion failure or skip reason
	Duration time.Duration
}

// ProbeSummary counts scenario outcomes of a probe run.
type ProbeSummary struct {
	Passed  int
	Failed  int
	Skipped int
}

// Ok reports whether no scenario failed.
func (s ProbeSummary) Ok() bool {
	return s.Failed == 0
}

// --------------------------------------------------------------------------
// Probe runner
// --------------------------------------------------------------------------

// RunProbe runs the conformance scenarios against a live backend outside the
// go test runner. Every scenario outcome is passed to report (when non-nil)
// as it completes. The returned error covers configuration problems only;
// scenario failures are reported through the summary.
func RunProbe(cfg Config, report func(ProbeResult)) (ProbeSummary, error) {
	if err := cfg.Validate(); err != nil {
		return ProbeSummary{}, err
	}

	var summary ProbeSummary
	for _, sc := range scenarios() {
		res := runProbeScenario(cfg, sc)
		switch res.Status {
		case ProbeFailed:
			summary.Failed++
		case ProbeSkipped:
			summary.Skipped++
		default:
			summary.Passed++
		}
		if report != nil {
			report(res)
		}
	}
	return summary, nil
}

func runProbeScenario(cfg Config, sc scenario) ProbeResult {
	p := &probeT{name: sc.name}
	start := time.Now()

	func() {
		defer p.recoverAbort()
		clearPrefixes(p, cfg)
		sc.fn(p, cfg)
	}()
	p.runCleanups()

	res := ProbeResult{
		Name:     sc.name,
		Detail:   p.detail,
		Duration: time.Since(start),
	}
	switch {
	case p.failed:
		res.Status = ProbeFailed
	case p.skipped:
		res.Status = ProbeSkipped
	default:
		res.Status = ProbePassed
	}
	return res
}

// --------------------------------------------------------------------------
// testing.TB shim
// --------------------------------------------------------------------------

// probeAbort unwinds a scenario after Fatal or Skip, mirroring how the test
// runner stops a test goroutine.
type probeAbort struct{}

// probeT drives the scenario functions without a *testing.T. Only the
// testing.TB methods the scenarios use are implemented; the embedded
// interface value stays nil and satisfies the unexported method.
type probeT struct {
	testing.TB

	name     string
	failed   bool
	skipped  bool
	detail   string
	cleanups []func()
}

func (p *probeT) Helper() {}

func (p *probeT) Name() string { return p.name }

func (p *probeT) Log(args ...any) {}

func (p *probeT) Logf(format string, args ...any) {}

func (p *probeT) Cleanup(fn func()) {
	p.cleanups = append(p.cleanups, fn)
}

func (p *probeT) Fail() {
	p.failed = true
}

func (p *probeT) FailNow() {
	p.failed = true
	panic(probeAbort{})
}

func (p *probeT) Failed() bool {
	return p.failed
}

func (p *probeT) Error(args ...any) {
	p.note(fmt.Sprint(args...))
	p.Fail()
}

func (p *probeT) Errorf(format string, args ...any) {
	p.note(fmt.Sprintf(format, args...))
	p.Fail()
}

func (p *probeT) Fatal(args ...any) {
	p.note(fmt.Sprint(args...))
	p.FailNow()
}

func (p *probeT) Fatalf(format string, args ...any) {
	p.note(fmt.Sprintf(format, args...))
	p.FailNow()
}

func (p *probeT) Skip(args ...any) {
	p.note(fmt.Sprint(args...))
	p.SkipNow()
}

func (p *probeT) Skipf(format string, args ...any) {
	p.note(fmt.Sprintf(format, args...))
	p.SkipNow()
}

func (p *probeT) SkipNow() {
	p.skipped = true
	panic(probeAbort{})
}

func (p *probeT) Skipped() bool {
	return p.skipped
}

// note keeps the first message; later assertions usually cascade from it.
func (p *probeT) note(msg string) {
	if p.detail == "" {
		p.detail = msg
	}
}

func (p *probeT) recoverAbort() {
	if r := recover(); r != nil {
		if _, ok := r.(probeAbort); !ok {
			p.failed = true
			p.note(fmt.Sprintf("panic: %v", r))
		}
	}
}

func (p *probeT) runCleanups() {
	for i := len(p.cleanups) - 1; i >= 0; i-- {
		fn := p.cleanups[i]
		func() {
			defer p.recoverAbort()
			fn()
		}()
	}
}
