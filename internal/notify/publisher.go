// Package notify delivers pattern alerts to downstream sinks.
package notify

import (
	"context"
	"errors"

	"pnf-signal-lab/internal/domain"
)

// Alert is the delivered envelope: the match plus the matrix context it was
// confirmed against, if any.
type Alert struct {
	Match       *domain.PatternMatch `json:"match"`
	Matrix      *domain.MatrixResult `json:"matrix,omitempty"`
	Super       bool                 `json:"super"` // matrix agrees with the match direction
	PublishedAt int64                `json:"published_at"`
}

// Publisher delivers alerts. Implementations must be safe for concurrent use.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, a *Alert) error
	Close() error
}

// Multi fans an alert out to every publisher.
type Multi []Publisher

// Name returns the sink name.
func (m Multi) Name() string {
	return "multi"
}

// Publish delivers to all publishers and joins their errors.
func (m Multi) Publish(ctx context.Context, a *Alert) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes all publishers.
func (m Multi) Close() error {
	var errs []error
	for _, p := range m {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ Publisher = Multi(nil)
