package queue_test

import (
	"testing"
	"time"

	"github.com/yeisme/tagstore/pkg/queue"
)

func TestWatermillMessageRoundTrip(t *testing.T) {
	fname := "a.txt"

	msg, err := queue.NewWatermillMessage(queue.TopicDatumCreated, queue.DatumPayload{
		ID:    3,
		URI:   "http://host/api/v1/ofs/x",
		FName: &fname,
		Tags:  []string{"a", "b"},
	}, queue.WithProducer("tagstore"), queue.WithTraceID("t-1"))
	if err != nil {
		t.Fatalf("new message: %v", err)
	}

	if msg.Metadata.Get("topic") != queue.TopicDatumCreated || msg.Metadata.Get("producer") != "tagstore" {
		t.Fatalf("metadata = %v", msg.Metadata)
	}

	env, err := queue.ParseDatum(msg)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if env.Header.EventID != msg.UUID {
		t.Fatalf("event id %q != message uuid %q", env.Header.EventID, msg.UUID)
	}

	if env.Payload.ID != 3 || *env.Payload.FName != "a.txt" || len(env.Payload.Tags) != 2 {
		t.Fatalf("payload = %+v", env.Payload)
	}
}

func TestEventIDsAreMonotonic(t *testing.T) {
	now := time.Now()

	prev := queue.NewEventID(now)
	for range 100 {
		next := queue.NewEventID(now)
		if next <= prev {
			t.Fatalf("event ids not increasing: %s then %s", prev, next)
		}

		prev = next
	}
}
