package service

import (
	"context"
	"fmt"

	"github.com/nandanugg/fleet-tracker/module/core/domain"
	"github.com/nandanugg/fleet-tracker/module/core/internal/repository/database"
	"github.com/nandanugg/fleet-tracker/pkg/email"
)

// AlertNotifier e-mails high priority alerts to the configured recipients.
type AlertNotifier struct {
	sender     email.Sender
	store      database.StateStore
	recipients []string
}

func NewAlertNotifier(sender email.Sender, store database.StateStore, recipients []string) *AlertNotifier {
	return &AlertNotifier{sender: sender, store: store, recipients: recipients}
}

func (n *AlertNotifier) Handle(ctx context.Context, e domain.Event) error {
	if e.Type != domain.EventAlertCreated {
		return nil
	}
	alert, ok := e.Data.(domain.Alert)
	if !ok || alert.Priority != domain.PriorityHigh || len(n.recipients) == 0 {
		return nil
	}

	vehicle := fmt.Sprintf("vehicle %d", alert.VehicleID)
	if v, err := n.store.GetVehicle(ctx, alert.VehicleID); err == nil {
		vehicle = v.DisplayName()
	}
	msg, err := email.RenderAlert(email.AlertData{
		Vehicle:   vehicle,
		Type:      string(alert.Type),
		Priority:  string(alert.Priority),
		Message:   alert.Message,
		Latitude:  alert.Lat,
		Longitude: alert.Lon,
		CreatedAt: alert.CreatedAt,
	})
	if err != nil {
		return err
	}
	return n.sender.SendAlert(ctx, n.recipients, msg)
}
