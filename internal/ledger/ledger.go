// Package ledger implements the per-job CostLedger of spec.md §3/§4.9,
// generalizing the teacher's post-hoc PodcastItem usage fields
// (EstimatedCostUSD, InputCharCount, OutputDurationSec, TTSCharCount) into
// a running ledger of quote (expected) and actual line items.
package ledger

import "sync"

// LineItem is one entry in the ledger: {stage, units, rate, amount}.
type LineItem struct {
	Stage  string
	Units  float64
	Rate   float64
	Amount float64
	Actual bool // false = quote (expected), true = actual
}

// Ledger accumulates quote and actual line items for one Job. It is safe
// for concurrent reads (status snapshots) while the owning worker appends.
type Ledger struct {
	mu    sync.Mutex
	items []LineItem
}

// New returns an empty Ledger.
func New() *Ledger {
	return &Ledger{}
}

// AddQuote records an expected cost for a stage about to run.
func (l *Ledger) AddQuote(stage string, units, rate float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = append(l.items, LineItem{Stage: stage, Units: units, Rate: rate, Amount: units * rate})
}

// AddActual records the realized cost once a stage completes. It does not
// remove the matching quote — §4.9 defines total as sum(actuals) +
// sum(remaining quotes), so Total skips the quotes of stages that already
// have an actual line.
func (l *Ledger) AddActual(stage string, units, rate float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = append(l.items, LineItem{Stage: stage, Units: units, Rate: rate, Amount: units * rate, Actual: true})
}

// Items returns a snapshot copy of all line items.
func (l *Ledger) Items() []LineItem {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]LineItem, len(l.items))
	copy(out, l.items)
	return out
}

// Total is sum(actuals) + sum(remaining quotes): quotes for a stage that
// already has an actual line are excluded, since the actual supersedes it.
func (l *Ledger) Total() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return total(l.items)
}

func total(items []LineItem) float64 {
	actualStages := map[string]bool{}
	for _, it := range items {
		if it.Actual {
			actualStages[it.Stage] = true
		}
	}
	var sum float64
	for _, it := range items {
		if it.Actual {
			sum += it.Amount
			continue
		}
		if actualStages[it.Stage] {
			continue
		}
		sum += it.Amount
	}
	return sum
}

// Expected returns the sum of all quote (non-actual) line items
// regardless of whether an actual has since superseded them — used for
// the budget gate in spec.md §4.1/§8, which checks the projection before
// a stage runs, i.e. before any actual exists for that stage.
func (l *Ledger) Expected() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	var sum float64
	for _, it := range l.items {
		if !it.Actual {
			sum += it.Amount
		}
	}
	return sum
}

// WouldExceed reports whether adding a quote of the given amount would
// push the ledger's expected total past cap. A cap <= 0 means unbounded.
func (l *Ledger) WouldExceed(cap, quoteAmount float64) bool {
	if cap <= 0 {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	var expected float64
	for _, it := range l.items {
		if !it.Actual {
			expected += it.Amount
		}
	}
	return expected+quoteAmount > cap
}
