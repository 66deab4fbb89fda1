package validate

import (
	"context"
	"sync"

	"github.com/leapstack-labs/vectorflow/pkg/core"
)

// Checker produces a verdict for a graph. Implementations are safe for
// concurrent use.
type Checker interface {
	Check(ctx context.Context, g core.Graph, name string) (*core.Verdict, error)
}

// Local runs analysis and validation in-process against a type catalog.
// The most recent verdict is reused while the graph fingerprint is unchanged.
type Local struct {
	catalog core.TypeCatalog

	mu   sync.Mutex
	last *core.Verdict
}

// NewLocal creates a local checker.
func NewLocal(catalog core.TypeCatalog) *Local {
	return &Local{catalog: catalog}
}

// Check analyzes and validates g.
func (l *Local) Check(ctx context.Context, g core.Graph, _ string) (*core.Verdict, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fp := Fingerprint(g)

	l.mu.Lock()
	if l.last != nil && fp != "" && l.last.Fingerprint == fp {
		v := l.last
		l.mu.Unlock()
		return v, nil
	}
	l.mu.Unlock()

	v := &core.Verdict{
		Fingerprint: fp,
		Analysis:    Analyze(g),
		Validation:  Validate(g, l.catalog),
	}

	l.mu.Lock()
	l.last = v
	l.mu.Unlock()
	return v, nil
}

// Invalidate drops the cached verdict, e.g. after the catalog reloads.
func (l *Local) Invalidate() {
	l.mu.Lock()
	l.last = nil
	l.mu.Unlock()
}
