// Package mq 提供基于 Watermill 库的统一消息队列操作接口。
// 支持发布/订阅模式，并通过工厂模式抽象不同的 MQ 实现。
//
// 支持的 MQ 类型：
//   - gochannel（进程内，默认）
//   - NATS（支持 JetStream）
//   - Redis Pub/Sub
//
// 使用示例：
//
//	ctx := context.Background()
//	client, err := mq.New(ctx, &configs.GetConfig().MQ)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close()
//
//	// 发布消息
//	msg := message.NewMessage(watermill.NewUUID(), []byte("hello world"))
//	err = client.Publish(ctx, "topic", msg)
//
//	// 订阅主题
//	ch, err := client.Subscribe(ctx, "topic")
package mq

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	watermill "github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/components/metrics"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/yeisme/tagstore/pkg/configs"
	nlog "github.com/yeisme/tagstore/pkg/log"
)

// Factory 定义创建 Publisher + Subscriber 的工厂函数.
type Factory func(ctx context.Context, cfg *configs.MQConfig, logger watermill.LoggerAdapter) (message.Publisher, message.Subscriber, error)

var (
	factoriesMu sync.RWMutex
	factories   = map[configs.MQType]Factory{}
)

// RegisterFactory 注册指定 MQType 的工厂.
func RegisterFactory(t configs.MQType, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()

	factories[t] = f
}

// GetRegisteredTypes 返回已注册的 MQ 类型.
func GetRegisteredTypes() []configs.MQType {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()

	types := make([]configs.MQType, 0, len(factories))
	for t := range factories {
		types = append(types, t)
	}

	slices.Sort(types)

	return types
}

// ErrNotInitialized 客户端未创建或已关闭.
var ErrNotInitialized = errors.New("mq: client not initialized")

// Client 封装 watermill Publisher 与 Subscriber. 主题统一加上 prefix.
type Client struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	prefix     string
	router     *message.Router
	stopServer func()
	closeOnce  sync.Once
}

// Topic 返回实际使用的主题名.
func (c *Client) Topic(topic string) string { return c.prefix + topic }

// Publish 发布到 topic. ctx 写入消息，供下游中间件取用.
func (c *Client) Publish(ctx context.Context, topic string, msgs ...*message.Message) error {
	if c == nil || c.publisher == nil {
		return ErrNotInitialized
	}

	for _, m := range msgs {
		m.SetContext(ctx)
	}

	return c.publisher.Publish(c.Topic(topic), msgs...)
}

// Subscribe 订阅 topic，ctx 取消后通道关闭.
func (c *Client) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	if c == nil || c.subscriber == nil {
		return nil, ErrNotInitialized
	}

	return c.subscriber.Subscribe(ctx, c.Topic(topic))
}

// Close 关闭资源，可重复调用.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}

	var errs []error

	c.closeOnce.Do(func() {
		// router 先停，之后不再有 handler 使用 publisher
		if c.router != nil {
			errs = append(errs, c.router.Close())
		}

		// gochannel 的 publisher 与 subscriber 是同一个对象
		if c.publisher != nil {
			errs = append(errs, c.publisher.Close())
		}

		if c.subscriber != nil && any(c.subscriber) != any(c.publisher) {
			errs = append(errs, c.subscriber.Close())
		}

		if c.stopServer != nil {
			c.stopServer()
		}
	})

	return errors.Join(errs...)
}

// New 按配置创建消息队列客户端.
func New(ctx context.Context, cfg *configs.MQConfig) (*Client, error) {
	factoriesMu.RLock()
	factory, ok := factories[cfg.Type]
	factoriesMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unsupported mq type: %s", cfg.Type)
	}

	logger := newLoggerAdapter()

	pub, sub, err := factory(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("init mq (%s): %w", cfg.Type, err)
	}

	client := &Client{publisher: pub, subscriber: sub, prefix: cfg.TopicPrefix}

	if cfg.Metrics.Enabled {
		if err := client.enableMetrics(ctx, cfg.Metrics.Endpoint, logger); err != nil {
			_ = client.Close()
			return nil, err
		}
	}

	lg := nlog.Component("mq")
	lg.Info().Str("type", string(cfg.Type)).Str("topic_prefix", cfg.TopicPrefix).Msg("event bus ready")

	return client, nil
}

// enableMetrics 在独立端口暴露 watermill 指标并装饰 publisher/subscriber.
func (c *Client) enableMetrics(ctx context.Context, endpoint string, logger watermill.LoggerAdapter) error {
	lg := nlog.Component("mq")

	registry, stop := metrics.CreateRegistryAndServeHTTP(endpoint)
	c.stopServer = stop

	router, err := message.NewRouter(message.RouterConfig{}, logger)
	if err != nil {
		return fmt.Errorf("create router: %w", err)
	}

	c.router = router

	metricsBuilder := metrics.NewPrometheusMetricsBuilder(registry, "tagstore", "events")
	metricsBuilder.AddPrometheusRouterMetrics(router)

	go func() {
		if runErr := router.Run(ctx); runErr != nil {
			lg.Error().Err(runErr).Msg("metrics router stopped")
		}
	}()

	if c.publisher, err = metricsBuilder.DecoratePublisher(c.publisher); err != nil {
		return fmt.Errorf("decorate publisher with metrics: %w", err)
	}

	if c.subscriber, err = metricsBuilder.DecorateSubscriber(c.subscriber); err != nil {
		return fmt.Errorf("decorate subscriber with metrics: %w", err)
	}

	lg.Info().Str("endpoint", endpoint).Msg("event bus metrics enabled")

	return nil
}
