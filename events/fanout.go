package events

import (
	"context"

	"github.com/hashicorp/go-multierror"
)

// Fanout publishes every event to all of its publishers.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, topic string, event any) error {
	var errs *multierror.Error
	for _, p := range f {
		if err := p.Publish(ctx, topic, event); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}

func (f Fanout) Close() error {
	var errs *multierror.Error
	for _, p := range f {
		if err := p.Close(); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}
