package pattern

import (
	"fmt"

	"pnf-signal-lab/internal/domain"
)

// MatchFunc inspects the trailing columns and returns the patterns that complete
// on the open column. It fills Kind, Direction, Priority, Level, SupportingLevels
// and optionally Target and Metrics; the classifier fills the rest.
type MatchFunc func(in *Input) []*domain.PatternMatch

// Matcher is a named MatchFunc.
type Matcher struct {
	Name  string
	Match MatchFunc
}

// Registry is an ordered set of matchers.
type Registry struct {
	matchers []Matcher
	names    map[string]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{names: make(map[string]struct{})}
}

// Register adds a matcher. Names must be unique.
func (r *Registry) Register(name string, fn MatchFunc) error {
	if fn == nil {
		return fmt.Errorf("matcher %q: nil func", name)
	}
	if _, ok := r.names[name]; ok {
		return fmt.Errorf("matcher %q already registered", name)
	}
	r.names[name] = struct{}{}
	r.matchers = append(r.matchers, Matcher{Name: name, Match: fn})
	return nil
}

// MustRegister is Register that panics on error.
func (r *Registry) MustRegister(name string, fn MatchFunc) {
	if err := r.Register(name, fn); err != nil {
		panic(err)
	}
}

// Matchers returns the registered matchers in registration order.
func (r *Registry) Matchers() []Matcher {
	out := make([]Matcher, len(r.matchers))
	copy(out, r.matchers)
	return out
}

// DefaultRegistry registers the full catalogue.
func DefaultRegistry(opts Options) *Registry {
	opts = opts.withDefaults()
	r := NewRegistry()
	r.MustRegister("multi_top", MultiTop(opts))
	r.MustRegister("multi_bottom", MultiBottom(opts))
	r.MustRegister("catapult", Catapult(opts))
	r.MustRegister("pole_follow_through", PoleFollowThrough(opts))
	r.MustRegister("aft_anchor", AFTAnchor(opts))
	r.MustRegister("low_high_pole", LowHighPole(opts))
	r.MustRegister("turtle", Turtle(opts))
	r.MustRegister("abc", ABC(opts))
	r.MustRegister("tweezer", Tweezer(opts))
	return r
}
