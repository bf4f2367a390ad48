package app

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Profiler times named replay stages. Scopes holds the last measurement,
// Totals the sum over all frames.
type Profiler struct {
	Scopes     map[string]time.Duration
	Totals     map[string]time.Duration
	Calls      map[string]int
	StartTimes map[string]time.Time
	Counts     map[string]int
	Order      []string

	now func() time.Time
}

func NewProfiler() *Profiler {
	return &Profiler{
		Scopes:     make(map[string]time.Duration),
		Totals:     make(map[string]time.Duration),
		Calls:      make(map[string]int),
		StartTimes: make(map[string]time.Time),
		Counts:     make(map[string]int),
		Order:      make([]string, 0),
		now:        time.Now,
	}
}

func (p *Profiler) BeginScope(name string) {
	p.StartTimes[name] = p.now()
	if _, seen := p.Calls[name]; !seen {
		p.Calls[name] = 0
		p.Order = append(p.Order, name)
	}
}

func (p *Profiler) EndScope(name string) {
	start, ok := p.StartTimes[name]
	if !ok {
		return
	}
	delete(p.StartTimes, name)
	d := p.now().Sub(start)
	p.Scopes[name] = d
	p.Totals[name] += d
	p.Calls[name]++
}

// Time runs fn inside the named scope.
func (p *Profiler) Time(name string, fn func()) {
	p.BeginScope(name)
	defer p.EndScope(name)
	fn()
}

func (p *Profiler) SetCount(name string, count int) {
	p.Counts[name] = count
}

func (p *Profiler) AddCount(name string, delta int) {
	p.Counts[name] += delta
}

// Mean is the average duration of a scope over all its calls.
func (p *Profiler) Mean(name string) time.Duration {
	n := p.Calls[name]
	if n == 0 {
		return 0
	}
	return p.Totals[name] / time.Duration(n)
}

// Reset clears the last measurements and keeps totals and order.
func (p *Profiler) Reset() {
	for k := range p.Scopes {
		p.Scopes[k] = 0
	}
}

func (p *Profiler) GetStatsString() string {
	var sb strings.Builder

	sb.WriteString("Timings (last / mean):\n")
	for _, name := range p.Order {
		fmt.Fprintf(&sb, "  %-15s: %.2f ms / %.2f ms (%d)\n", name, ms(p.Scopes[name]), ms(p.Mean(name)), p.Calls[name])
	}

	sb.WriteString("\nStats:\n")
	keys := make([]string, 0, len(p.Counts))
	for k := range p.Counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&sb, "  %-15s: %d\n", k, p.Counts[k])
	}

	return sb.String()
}

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000.0
}
