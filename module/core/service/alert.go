package service

import (
	"context"

	"github.com/nandanugg/fleet-tracker/module/core/domain"
	"github.com/nandanugg/fleet-tracker/module/core/internal/repository/database"
)

// AlertArchive mirrors alerts and their read flag into a durable repository.
type AlertArchive struct {
	repo database.AlertRepository
}

func NewAlertArchive(repo database.AlertRepository) *AlertArchive {
	return &AlertArchive{repo: repo}
}

func (a *AlertArchive) Handle(ctx context.Context, e domain.Event) error {
	alert, ok := e.Data.(domain.Alert)
	if !ok {
		return nil
	}
	switch e.Type {
	case domain.EventAlertCreated:
		return a.repo.Insert(ctx, &alert)
	case domain.EventAlertRead:
		return a.repo.MarkRead(ctx, alert.ID)
	}
	return nil
}
