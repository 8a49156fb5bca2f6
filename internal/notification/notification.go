package notification

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/congo-pay/jointaccount/internal/ledger"
)

const (
	KindAccountOpened     = "account_opened"
	KindDeposit           = "deposit"
	KindApprovalNeeded    = "approval_needed"
	KindApprovalRecorded  = "approval_recorded"
	KindWithdrawExecuted  = "withdraw_executed"
	KindWithdrawCancelled = "withdraw_cancelled"
)

// Message describes a notification payload.
type Message struct {
	Kind        string
	Destination string
	Body        string
}

// Notifier delivers notifications to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier writes notifications to the structured logger.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("notification", "kind", message.Kind, "destination", message.Destination, "body", message.Body)
	return nil
}

// FromEvent renders the notification owners of an account should see for a
// ledger event. Withdraw events only carry the request id.
func FromEvent(ev ledger.Event) Message {
	switch ev.Type {
	case ledger.EventAccountCreated:
		return Message{Kind: KindAccountOpened, Destination: accountDest(ev.ID), Body: fmt.Sprintf("joint account %d opened by %d owners", ev.ID, len(ev.Owners))}
	case ledger.EventDeposit:
		return Message{Kind: KindDeposit, Destination: accountDest(ev.AccountID), Body: fmt.Sprintf("%s deposited %d", ev.User, ev.Value)}
	case ledger.EventWithdrawRequested:
		return Message{Kind: KindApprovalNeeded, Destination: accountDest(ev.AccountID), Body: fmt.Sprintf("%s requests withdrawal #%d of %d", ev.User, ev.WithdrawID, ev.Amount)}
	case ledger.EventWithdrawApproved:
		return Message{Kind: KindApprovalRecorded, Destination: accountDest(ev.AccountID), Body: fmt.Sprintf("%s approved withdrawal #%d", ev.User, ev.WithdrawID)}
	case ledger.EventWithdraw:
		return Message{Kind: KindWithdrawExecuted, Destination: fmt.Sprintf("withdraw:%d", ev.WithdrawID), Body: fmt.Sprintf("withdrawal #%d executed", ev.WithdrawID)}
	case ledger.EventWithdrawCancelled:
		return Message{Kind: KindWithdrawCancelled, Destination: accountDest(ev.AccountID), Body: fmt.Sprintf("%s cancelled withdrawal #%d", ev.User, ev.WithdrawID)}
	default:
		return Message{Kind: string(ev.Type), Body: fmt.Sprintf("event %d", ev.Seq)}
	}
}

func accountDest(id uint64) string {
	return fmt.Sprintf("account:%d", id)
}
