package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	ChannelEntitlementChanged = "entitlement_changed"
)

// EntitlementChanged 会员状态变化消息，设备收到后重新拉取状态
type EntitlementChanged struct {
	Type       string    `json:"type"`
	UserID     int64     `json:"user_id"`
	Status     string    `json:"status"`
	Plan       string    `json:"plan"`
	PrevStatus string    `json:"prev_status,omitempty"`
	Reason     string    `json:"reason"`
	ExpiresAt  *string   `json:"expires_at,omitempty"`
	ChangedAt  time.Time `json:"changed_at"`
}

// 变化原因
const (
	ReasonPurchase = "purchase"
	ReasonCancel   = "cancel"
	ReasonTrial    = "trial_started"
	ReasonExpired  = "expired"
)

// EventPublisher 业务层依赖的发布接口
type EventPublisher interface {
	PublishEntitlementChanged(ctx context.Context, msg *EntitlementChanged) error
}

// Publisher Redis 发布者
type Publisher struct {
	client *redis.Client
}

// NewPublisher 创建发布者
func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

// PublishEntitlementChanged 发布会员状态变化
func (p *Publisher) PublishEntitlementChanged(ctx context.Context, msg *EntitlementChanged) error {
	msg.Type = "entitlement_changed"
	if msg.ChangedAt.IsZero() {
		msg.ChangedAt = time.Now().UTC()
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal entitlement message: %w", err)
	}

	return p.client.Publish(ctx, ChannelEntitlementChanged, data).Err()
}

// Nop 未配置 Redis 时使用，丢弃所有消息
type Nop struct{}

func (Nop) PublishEntitlementChanged(context.Context, *EntitlementChanged) error { return nil }

// Subscriber Redis 订阅者
type Subscriber struct {
	client *redis.Client
}

// NewSubscriber 创建订阅者
func NewSubscriber(client *redis.Client) *Subscriber {
	return &Subscriber{client: client}
}

// Subscribe 订阅会员状态变化，阻塞直到 ctx 结束
func (s *Subscriber) Subscribe(ctx context.Context, handler func(*EntitlementChanged)) error {
	sub := s.client.Subscribe(ctx, ChannelEntitlementChanged)
	defer sub.Close()

	// 确认订阅成功后再开始接收
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", ChannelEntitlementChanged, err)
	}

	ch := sub.Channel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			var changed EntitlementChanged
			if err := json.Unmarshal([]byte(msg.Payload), &changed); err != nil {
				continue // 忽略解析错误
			}

			handler(&changed)
		}
	}
}
