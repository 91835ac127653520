package app

import (
	"context"
	"errors"

	"salesboard/internal/domain"
)

// MultiPublisher hands every event to each publisher in turn. All are tried
// even when one fails.
type MultiPublisher []domain.EventPublisher

// PublishRecordEvent implements domain.EventPublisher.
func (m MultiPublisher) PublishRecordEvent(ctx context.Context, ev domain.RecordEvent) error {
	var errs []error
	for _, p := range m {
		if err := p.PublishRecordEvent(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
