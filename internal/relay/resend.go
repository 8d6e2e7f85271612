package relay

import (
	"context"
	"fmt"

	"github.com/issac1998/pos-relay/internal/audit"
	"github.com/issac1998/pos-relay/internal/dispatch"
)

// Resend posts previously snapshotted transactions again, one at a time
// in argument order. Each attempt is archived and recorded like a live
// dispatch. A snapshot that cannot be read stops the run.
func (r *Relay) Resend(ctx context.Context, paths []string) ([]dispatch.Result, error) {
	if err := r.config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	if err := r.config.ValidateDelivery(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	if err := r.openBackends(); err != nil {
		return nil, err
	}
	defer r.releaseBackends()

	d := r.newDispatcher()
	results := make([]dispatch.Result, 0, len(paths))
	for _, path := range paths {
		tx, err := audit.ReadSnapshot(path)
		if err != nil {
			return results, err
		}
		r.logger.WithTransaction(tx.GUID, tx.Sequence).Info("Resending snapshot", "path", path)
		results = append(results, d.Dispatch(ctx, tx))
	}
	return results, nil
}
