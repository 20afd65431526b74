package mqtt

import (
	"context"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/IDASLab/InTec-Framework/internal/config"
)

// 重连退避参数：等待时间线性增长，上限60秒
const (
	baseDelay = 5 * time.Second
	capDelay  = 60 * time.Second
)

// MessageHandler 消息处理函数类型
type MessageHandler func(topic string, payload []byte) error

type subscription struct {
	qos     byte
	handler MessageHandler
}

// Client MQTT客户端封装
// 负责单个代理端点的连接管理：带退避的连接重试、断线通知与重新订阅
type Client struct {
	client mqtt.Client
	config *config.BrokerConfig
	logger *zap.Logger

	mu   sync.Mutex
	subs map[string]subscription
	ctx  context.Context
}

// NewClient 创建MQTT客户端（不建立连接）
func NewClient(cfg *config.BrokerConfig, logger *zap.Logger) *Client {
	c := &Client{
		config: cfg,
		logger: logger,
		subs:   make(map[string]subscription),
		ctx:    context.Background(),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.URL())
	opts.SetClientID(cfg.ClientID)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	// 重连由自身的退避循环管理，而不是paho内部的自动重连
	opts.SetAutoReconnect(false)
	opts.SetCleanSession(true)
	opts.SetConnectionLostHandler(c.onConnectionLost)
	opts.SetOnConnectHandler(c.onConnect)

	c.client = mqtt.NewClient(opts)
	return c
}

// BackoffDelay 计算第attempt次重试前的等待时间
// 等待时间为 min(attempt*5s, 60s)，attempt从1开始计数
func BackoffDelay(attempt int) time.Duration {
	delay := time.Duration(attempt) * baseDelay
	if delay > capDelay {
		delay = capDelay
	}
	return delay
}

// ConnectWithRetry 连接代理，失败时线性退避重试直到成功或上下文取消
func (c *Client) ConnectWithRetry(ctx context.Context) error {
	c.mu.Lock()
	c.ctx = ctx
	c.mu.Unlock()

	attempt := 1
	for {
		c.logger.Info("Connecting to MQTT broker",
			zap.String("broker", c.config.URL()),
			zap.String("client_id", c.config.ClientID),
			zap.Int("attempt", attempt),
		)

		token := c.client.Connect()
		token.Wait()
		if token.Error() == nil {
			c.logger.Info("Connected to MQTT broker",
				zap.String("broker", c.config.URL()),
				zap.String("client_id", c.config.ClientID),
			)
			return nil
		}

		delay := BackoffDelay(attempt)
		c.logger.Error("MQTT connection failed",
			zap.String("broker", c.config.URL()),
			zap.Int("attempt", attempt),
			zap.Duration("retry_in", delay),
			zap.Error(token.Error()),
		)

		select {
		case <-ctx.Done():
			return fmt.Errorf("connect cancelled: %w", ctx.Err())
		case <-time.After(delay):
			attempt++
		}
	}
}

// onConnectionLost 断线通知：进入退避重连循环
func (c *Client) onConnectionLost(_ mqtt.Client, err error) {
	c.logger.Warn("MQTT connection lost, reconnecting",
		zap.String("client_id", c.config.ClientID),
		zap.Error(err),
	)

	c.mu.Lock()
	ctx := c.ctx
	c.mu.Unlock()

	go func() {
		if err := c.ConnectWithRetry(ctx); err != nil {
			c.logger.Error("MQTT reconnection abandoned", zap.Error(err))
		}
	}()
}

// onConnect 连接（或重连）成功后恢复已注册的订阅
func (c *Client) onConnect(client mqtt.Client) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for topic, sub := range c.subs {
		handler := sub.handler
		if token := client.Subscribe(topic, sub.qos, func(_ mqtt.Client, msg mqtt.Message) {
			if err := handler(msg.Topic(), msg.Payload()); err != nil {
				c.logger.Error("Error handling MQTT message",
					zap.String("topic", msg.Topic()),
					zap.Error(err),
				)
			}
		}); token.Wait() && token.Error() != nil {
			c.logger.Error("Failed to restore subscription",
				zap.String("topic", topic),
				zap.Error(token.Error()),
			)
		}
	}
}

// Subscribe 订阅主题
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	c.mu.Lock()
	c.subs[topic] = subscription{qos: qos, handler: handler}
	c.mu.Unlock()

	if token := c.client.Subscribe(topic, qos, func(_ mqtt.Client, msg mqtt.Message) {
		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			c.logger.Error("Error handling MQTT message",
				zap.String("topic", msg.Topic()),
				zap.Error(err),
			)
		}
	}); token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to subscribe to topic %s: %w", topic, token.Error())
	}

	return nil
}

// Publish 发布消息
func (c *Client) Publish(topic string, qos byte, retained bool, payload []byte) error {
	token := c.client.Publish(topic, qos, retained, payload)
	token.Wait()

	if token.Error() != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", topic, token.Error())
	}

	return nil
}

// Unsubscribe 取消订阅
func (c *Client) Unsubscribe(topics ...string) error {
	c.mu.Lock()
	for _, topic := range topics {
		delete(c.subs, topic)
	}
	c.mu.Unlock()

	token := c.client.Unsubscribe(topics...)
	token.Wait()

	if token.Error() != nil {
		return fmt.Errorf("failed to unsubscribe: %w", token.Error())
	}

	return nil
}

// Disconnect 断开连接
func (c *Client) Disconnect() {
	c.client.Disconnect(250) // 250ms等待时间
}

// IsConnected 检查连接状态
func (c *Client) IsConnected() bool {
	return c.client.IsConnected()
}
