package mq

import (
	"context"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	nc "github.com/nats-io/nats.go"

	"github.com/yeisme/tagstore/pkg/configs"
)

const (
	natsDrainTimeout   = 30 * time.Second
	natsFlusherTimeout = 10 * time.Second
)

func init() {
	RegisterFactory(configs.MQTypeNATS, natsFactory)
}

func natsOptions(n configs.MQNATSConfig) []nc.Option {
	opts := []nc.Option{
		nc.Name(n.Name),
		nc.MaxReconnects(n.MaxReconnects),
		nc.ReconnectWait(n.ReconnectWait),
		nc.PingInterval(n.PingInterval),
		nc.DrainTimeout(natsDrainTimeout),
		nc.FlusherTimeout(natsFlusherTimeout),
		nc.RetryOnFailedConnect(true),
	}

	switch {
	case n.JWT != "":
		opts = append(opts, nc.UserJWTAndSeed(n.JWT, n.NKey))
	case n.NKey != "":
		opts = append(opts, nc.Nkey(n.NKey, nil))
	case n.User != "":
		opts = append(opts, nc.UserInfo(n.User, n.Password))
	}

	return opts
}

// natsFactory 事件经 NATS 主题分发；开启 JetStream 时由服务端持久化，订阅者断线重连后可补收.
func natsFactory(
	_ context.Context,
	cfg *configs.MQConfig,
	logger watermill.LoggerAdapter) (
	message.Publisher, message.Subscriber, error) {
	n := cfg.NATS
	url := strings.Join(n.URLs, ",")
	opts := natsOptions(n)
	marshaler := &nats.JSONMarshaler{}

	js := nats.JetStreamConfig{Disabled: !n.JetStream}
	if n.JetStream {
		js.AutoProvision = true
		// 以 watermill UUID 作为 Nats-Msg-Id，重发的事件由 JetStream 去重
		js.TrackMsgId = true
		js.AckAsync = true
		js.DurablePrefix = n.DurablePrefix
	}

	logger.Info("connecting to nats", watermill.LogFields{
		"url":       url,
		"jetstream": n.JetStream,
	})

	pub, err := nats.NewPublisher(nats.PublisherConfig{
		URL:         url,
		NatsOptions: opts,
		JetStream:   js,
		Marshaler:   marshaler,
	}, logger)
	if err != nil {
		return nil, nil, err
	}

	sub, err := nats.NewSubscriber(nats.SubscriberConfig{
		URL:         url,
		NatsOptions: opts,
		JetStream:   js,
		Unmarshaler: marshaler,
	}, logger)
	if err != nil {
		_ = pub.Close()
		return nil, nil, err
	}

	return pub, sub, nil
}
