// Package audit records transfer-state transitions to optional
// side-channels (NATS, Postgres). The payment read path never consults
// these; intent metadata at the provider stays the source of truth.
package audit

import (
	"context"
	"errors"

	"payrouter/internal/transfer"
)

// Multi fans a transition out to several recorders.
func Multi(recorders ...transfer.Recorder) transfer.Recorder {
	return multi(recorders)
}

type multi []transfer.Recorder

func (m multi) Record(ctx context.Context, t transfer.Transition) error {
	var errs []error
	for _, r := range m {
		if err := r.Record(ctx, t); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
