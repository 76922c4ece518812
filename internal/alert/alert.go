package alert

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"tradesmart/internal/models"
	"tradesmart/internal/notify"
	"tradesmart/internal/repository"
)

// Dispatcher fans freshly persisted opportunities out to realtime alert
// subscribers. Delivery is strictly best effort: failures are logged and
// never surface to the caller that triggered the scan.
type Dispatcher struct {
	repo          repository.Repository
	senders       map[string]notify.Sender
	minConfidence int
	log           *zap.Logger
}

func NewDispatcher(repo repository.Repository, senders []notify.Sender, minConfidence int, log *zap.Logger) *Dispatcher {
	byChannel := make(map[string]notify.Sender, len(senders))
	for _, sender := range senders {
		byChannel[sender.Channel()] = sender
	}
	if minConfidence <= 0 {
		minConfidence = 70
	}
	return &Dispatcher{
		repo:          repo,
		senders:       byChannel,
		minConfidence: minConfidence,
		log:           log,
	}
}

// SendBatch notifies every realtime subscriber about each high-confidence
// opportunity in the batch and reports how many messages went out.
func (d *Dispatcher) SendBatch(ctx context.Context, opportunities []models.Opportunity) int {
	if d == nil || d.repo == nil || len(opportunities) == 0 {
		return 0
	}

	alertable := make([]models.Opportunity, 0, len(opportunities))
	for _, opp := range opportunities {
		if opp.ConfidenceScore >= d.minConfidence {
			alertable = append(alertable, opp)
		}
	}
	if len(alertable) == 0 {
		return 0
	}

	subscriptions, err := d.repo.ListRealtimeAlertSubscriptions(ctx)
	if err != nil {
		if d.log != nil {
			d.log.Warn("load alert subscriptions failed", zap.Error(err))
		}
		return 0
	}
	if len(subscriptions) == 0 {
		return 0
	}

	sent := 0
	for _, opp := range alertable {
		subject, body := render(opp)
		for _, sub := range subscriptions {
			sender, ok := d.senders[sub.Channel]
			if !ok {
				continue
			}
			if err := sender.Send(ctx, sub.Destination, subject, body); err != nil {
				if d.log != nil {
					d.log.Warn("alert delivery failed",
						zap.String("channel", sub.Channel),
						zap.String("opportunity_id", opp.ID),
						zap.Error(err))
				}
				continue
			}
			sent++
		}
	}
	return sent
}

func render(opp models.Opportunity) (subject, body string) {
	subject = fmt.Sprintf("New %s opportunity: %s", opp.Category, opp.Title)
	body = fmt.Sprintf("%s\n\nConfidence: %d/100\nExpected value: %s (%s)",
		opp.Description, opp.ConfidenceScore, opp.ExpectedValue.String(), opp.ExpectedValueUnit)
	if opp.ExpiresAt != nil {
		body += "\nExpires: " + opp.ExpiresAt.UTC().Format("2006-01-02 15:04 MST")
	}
	return subject, body
}
