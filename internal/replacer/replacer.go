package replacer

import (
	"context"
	"errors"
)

// Replacer is a prepared mutation of process state.
type Replacer interface {
	// Run applies the mutation. It may be called at most once.
	Run(ctx context.Context) error
	// Close releases every process the replacer holds. It is safe to call
	// more than once.
	Close() error
}

var (
	_ Replacer = (*CwdReplacer)(nil)
	_ Replacer = Chain(nil)
)

// Chain runs replacers in order and stops at the first failure.
type Chain []Replacer

// Run runs every replacer in order.
func (c Chain) Run(ctx context.Context) error {
	for _, r := range c {
		if err := r.Run(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every replacer, including those after a failing one.
func (c Chain) Close() error {
	var errs []error
	for _, r := range c {
		errs = append(errs, r.Close())
	}
	return errors.Join(errs...)
}
