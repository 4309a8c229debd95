package notify

import (
	"context"
	"errors"

	"RateCast/internal/domain/models"
	"RateCast/internal/domain/repository"
)

// Multi fans an artifact out to every notifier and joins their errors.
type Multi []repository.Notifier

func (m Multi) Notify(ctx context.Context, a models.Artifact) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
