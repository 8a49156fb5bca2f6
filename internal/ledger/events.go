package ledger

import (
	"sync"
	"time"
)

// EventType names a domain event in the log.
type EventType string

const (
	EventAccountCreated    EventType = "AccountCreated"
	EventDeposit           EventType = "Deposit"
	EventWithdrawRequested EventType = "WithdrawRequested"
	EventWithdrawApproved  EventType = "WithdrawApproved"
	EventWithdraw          EventType = "Withdraw"
	EventWithdrawCancelled EventType = "WithdrawCancelled"

	// DefaultEventPage bounds Events when the caller passes a non-positive limit.
	DefaultEventPage = 100
)

// Event is one entry of the append-only log. Seq is gap-free and follows
// commit order; Timestamp is unix seconds and never decreases along Seq.
// Only the fields relevant to Type are set.
type Event struct {
	Seq        uint64     `json:"seq"`
	Type       EventType  `json:"type"`
	Owners     []Identity `json:"owners,omitempty"`
	ID         uint64     `json:"id,omitempty"`
	User       Identity   `json:"user,omitempty"`
	AccountID  uint64     `json:"accountID,omitempty"`
	WithdrawID uint64     `json:"withdrawID,omitempty"`
	Value      int64      `json:"value,omitempty"`
	Amount     int64      `json:"amount,omitempty"`
	Timestamp  int64      `json:"timestamp"`
}

func accountCreated(id uint64, owners []Identity) Event {
	return Event{Type: EventAccountCreated, ID: id, Owners: append([]Identity(nil), owners...)}
}

func deposited(user Identity, accountID uint64, value int64) Event {
	return Event{Type: EventDeposit, User: user, AccountID: accountID, Value: value}
}

func withdrawRequested(user Identity, accountID, withdrawID uint64, amount int64) Event {
	return Event{Type: EventWithdrawRequested, User: user, AccountID: accountID, WithdrawID: withdrawID, Amount: amount}
}

func withdrawApproved(user Identity, accountID, withdrawID uint64) Event {
	return Event{Type: EventWithdrawApproved, User: user, AccountID: accountID, WithdrawID: withdrawID}
}

func withdrawn(withdrawID uint64) Event {
	return Event{Type: EventWithdraw, WithdrawID: withdrawID}
}

func withdrawCancelled(user Identity, accountID, withdrawID uint64) Event {
	return Event{Type: EventWithdrawCancelled, User: user, AccountID: accountID, WithdrawID: withdrawID}
}

// stamp clamps now to the last timestamp so the log stays monotonic even
// when the wall clock steps back.
func stamp(now time.Time, last int64) int64 {
	ts := now.Unix()
	if ts < last {
		return last
	}
	return ts
}

// memoryLog is the in-process event log. Appends are serialized by mu.
type memoryLog struct {
	mu     sync.Mutex
	events []Event
	last   int64
	now    func() time.Time
}

func (l *memoryLog) append(ev Event) Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	ev.Seq = uint64(len(l.events)) + 1
	ev.Timestamp = stamp(l.now(), l.last)
	l.last = ev.Timestamp
	l.events = append(l.events, ev)
	return ev
}

func (l *memoryLog) since(after uint64, limit int) []Event {
	if limit <= 0 {
		limit = DefaultEventPage
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if after >= uint64(len(l.events)) {
		return []Event{}
	}
	end := after + uint64(limit)
	if end > uint64(len(l.events)) {
		end = uint64(len(l.events))
	}
	out := make([]Event, end-after)
	copy(out, l.events[after:end])
	for i := range out {
		if out[i].Owners != nil {
			out[i].Owners = append([]Identity(nil), out[i].Owners...)
		}
	}
	return out
}
