package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/jointaccount/internal/ledger"
	"github.com/congo-pay/jointaccount/internal/notification"
)

// StreamSink appends events to a Redis stream. Entry ids are derived from the
// event sequence number ("<seq>-1"), so Redis itself rejects a redelivered
// event and the sink reports it as accepted.
type StreamSink struct {
	rdb    *redis.Client
	stream string
	maxLen int64
}

// NewStreamSink builds a stream sink. maxLen > 0 caps the stream length
// approximately.
func NewStreamSink(rdb *redis.Client, stream string, maxLen int64) *StreamSink {
	return &StreamSink{rdb: rdb, stream: stream, maxLen: maxLen}
}

func (s *StreamSink) Name() string { return "redis_stream" }

// StreamID is the Redis stream entry id used for the event with seq.
func StreamID(seq uint64) string {
	return fmt.Sprintf("%d-1", seq)
}

func (s *StreamSink) Deliver(ctx context.Context, ev ledger.Event) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	args := &redis.XAddArgs{
		Stream: s.stream,
		ID:     StreamID(ev.Seq),
		Values: map[string]interface{}{"type": string(ev.Type), "payload": string(raw)},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}
	err = s.rdb.XAdd(ctx, args).Err()
	if err != nil && alreadyStored(err) {
		return nil
	}
	return err
}

func alreadyStored(err error) bool {
	return strings.Contains(err.Error(), "equal or smaller than the target stream top item")
}

// NotifierSink turns events into owner notifications.
type NotifierSink struct {
	notifier notification.Notifier
}

func NewNotifierSink(n notification.Notifier) *NotifierSink {
	return &NotifierSink{notifier: n}
}

func (s *NotifierSink) Name() string { return "notifier" }

func (s *NotifierSink) Deliver(ctx context.Context, ev ledger.Event) error {
	return s.notifier.Send(ctx, notification.FromEvent(ev))
}
