// Package event 把领域事件发布到消息队列，由通知子系统消费
package event

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sysu-ecnc-dev/duty-roster/backend/internal/domain"
)

const QueueName = "notification_queue"

// Publisher 是发布领域事件的抽象，核心服务只依赖这个接口
type Publisher interface {
	Publish(eventType string, data any)
}

// AMQPPublisher 把事件以 JSON 的形式投递到 rabbitmq 的持久化队列中
// 事件只是通知，数据库事务才是事实来源，因此发布失败只记日志，不影响已提交的变更
type AMQPPublisher struct {
	channel        *amqp.Channel
	publishTimeout time.Duration
}

func NewAMQPPublisher(channel *amqp.Channel, publishTimeout time.Duration) *AMQPPublisher {
	return &AMQPPublisher{
		channel:        channel,
		publishTimeout: publishTimeout,
	}
}

// DeclareQueue 声明事件队列，api 和 notifier 两侧都会调用，保证队列存在
func DeclareQueue(channel *amqp.Channel) error {
	_, err := channel.QueueDeclare(
		QueueName,
		true,
		false,
		false,
		false,
		nil,
	)
	return err
}

func (p *AMQPPublisher) Publish(eventType string, data any) {
	message := domain.EventMessage{
		ID:         uuid.NewString(),
		Type:       eventType,
		OccurredAt: time.Now(),
		Data:       data,
	}

	body, err := json.Marshal(message)
	if err != nil {
		slog.Error("无法序列化领域事件", "type", eventType, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.publishTimeout)
	defer cancel()

	if err := p.channel.PublishWithContext(
		ctx,
		"",
		QueueName,
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	); err != nil {
		slog.Error("无法发布领域事件", "type", eventType, "error", err)
	}
}
