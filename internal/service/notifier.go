package service

import (
	"context"
	"fmt"

	"secret-santa-bot/internal/domain"

	"go.uber.org/zap"
)

// Messenger sends a private message to a user.
type Messenger interface {
	SendDirect(ctx context.Context, userID int64, text string) error
}

type DeliveryReport struct {
	Sent   int
	Failed []int64
}

// Notifier delivers one message per assignment. A failed delivery never
// stops the remaining ones.
type Notifier struct {
	messenger Messenger
	log       *zap.Logger
}

func NewNotifier(messenger Messenger, log *zap.Logger) *Notifier {
	return &Notifier{messenger: messenger, log: log}
}

func AssignmentMessage(receiver *domain.Participant) string {
	message := fmt.Sprintf("🎅 Тайный Санта назначен!\n\nВы дарите подарок: %s", receiver.Name)
	if receiver.Wish != "" {
		message += fmt.Sprintf("\n\n💝 Желание получателя:\n%s", receiver.Wish)
	}
	return message
}

// Dispatch looks receivers up in participants, keyed by user id.
func (n *Notifier) Dispatch(ctx context.Context, assignments []domain.Assignment, participants map[int64]*domain.Participant) DeliveryReport {
	var report DeliveryReport
	for _, a := range assignments {
		receiver, ok := participants[a.ReceiverID]
		if !ok {
			n.log.Warn("receiver missing, skipping notification",
				zap.Int64("giver_id", a.GiverID), zap.Int64("receiver_id", a.ReceiverID))
			report.Failed = append(report.Failed, a.GiverID)
			continue
		}

		if err := n.messenger.SendDirect(ctx, a.GiverID, AssignmentMessage(receiver)); err != nil {
			n.log.Warn("failed to notify giver", zap.Int64("giver_id", a.GiverID), zap.Error(err))
			report.Failed = append(report.Failed, a.GiverID)
			continue
		}

		n.log.Info("giver notified",
			zap.Int64("giver_id", a.GiverID), zap.Bool("with_wish", receiver.Wish != ""))
		report.Sent++
	}
	return report
}
