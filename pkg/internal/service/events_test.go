package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/yeisme/tagstore/pkg/configs"
	ctxPkg "github.com/yeisme/tagstore/pkg/context"
	"github.com/yeisme/tagstore/pkg/internal/service"
	mqc "github.com/yeisme/tagstore/pkg/internal/storage/mq"
	"github.com/yeisme/tagstore/pkg/internal/storage/storagetest"
	"github.com/yeisme/tagstore/pkg/queue"
)

func receive(t *testing.T, ch <-chan *message.Message) *message.Message {
	t.Helper()

	select {
	case m := <-ch:
		m.Ack()
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
		return nil
	}
}

func TestWritesPublishEvents(t *testing.T) {
	cfg := storagetest.Config(t)
	cfg.Events.Enabled = true
	cfg.MQ.Type = configs.MQTypeGoChannel
	cfg.MQ.TopicPrefix = "test."

	mgr := storagetest.New(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	bus, err := mqc.New(ctx, &cfg.MQ)
	if err != nil {
		t.Fatalf("event bus: %v", err)
	}

	t.Cleanup(func() { _ = bus.Close() })

	mgr.MQ = bus

	created, err := bus.Subscribe(ctx, queue.TopicDatumCreated)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	renamed, err := bus.Subscribe(ctx, queue.TopicTagRenamed)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	sctx := ctxPkg.WithStorageManager(ctx, mgr)
	e := &env{ctx: sctx, cfg: cfg, mgr: mgr, data: service.NewDataService(sctx), tags: service.NewTagService(sctx)}

	d := e.create(t, "urn:evt", "draft")

	msg := receive(t, created)
	if got := msg.Metadata.Get("topic"); got != queue.TopicDatumCreated {
		t.Fatalf("topic metadata = %q", got)
	}

	dev, err := queue.ParseDatum(msg)
	if err != nil {
		t.Fatalf("parse datum: %v", err)
	}

	if dev.Payload.ID != d.ID || dev.Payload.URI != "urn:evt" || dev.Header.Producer != service.Producer {
		t.Fatalf("datum event = %+v", dev)
	}

	if _, err := e.tags.RenameOrMerge(sctx, d.Tags[0].ID, "final"); err != nil {
		t.Fatalf("rename: %v", err)
	}

	tev, err := queue.ParseTagRenamed(receive(t, renamed))
	if err != nil {
		t.Fatalf("parse rename: %v", err)
	}

	if tev.Payload.FromTag != "draft" || tev.Payload.ToTag != "final" {
		t.Fatalf("rename event = %+v", tev.Payload)
	}
}

func TestTopicPrefix(t *testing.T) {
	cfg := configs.Defaults().MQ
	cfg.Type = configs.MQTypeGoChannel
	cfg.TopicPrefix = "site-a."

	bus, err := mqc.New(context.Background(), &cfg)
	if err != nil {
		t.Fatalf("event bus: %v", err)
	}
	defer bus.Close()

	if got := bus.Topic(queue.TopicBlobCollected); got != "site-a.ts.blob.collected" {
		t.Fatalf("topic = %q", got)
	}
}
