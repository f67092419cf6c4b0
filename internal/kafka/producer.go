package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"ms-lectures/internal/config"
	"ms-lectures/internal/logger"
	"ms-lectures/internal/models"

	"github.com/segmentio/kafka-go"
)

// Producer streams payment and order lifecycle events. Publishing is
// best-effort everywhere it is used: a broker outage must never fail a
// webhook response or an order submission.
type Producer struct {
	Writer *kafka.Writer
	Topics config.TopicConfig
	Log    *logger.Logger
}

func NewProducer(brokers []string, topics config.TopicConfig, log *logger.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
	return &Producer{Writer: writer, Topics: topics, Log: log}
}

func (p *Producer) Publish(topic, key string, value []byte) error {
	return p.Writer.WriteMessages(context.Background(), kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
	})
}

// PublishPaymentEvent routes a lifecycle event onto the matching topic.
func (p *Producer) PublishPaymentEvent(event models.PaymentEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	topic := p.Topics.PaymentFailed
	if event.Type == "payment.succeeded" {
		topic = p.Topics.PaymentSucceeded
	}

	if err := p.Publish(topic, event.PaymentRef, data); err != nil {
		return err
	}
	p.Log.Info("KAFKA", fmt.Sprintf("Published %s for %s", event.Type, event.PaymentRef))
	return nil
}

// PublishOrderCreated streams the full-order creation event.
func (p *Producer) PublishOrderCreated(order *models.Order) error {
	data, err := json.Marshal(order)
	if err != nil {
		return err
	}
	if err := p.Publish(p.Topics.OrderCreated, order.ID, data); err != nil {
		return err
	}
	p.Log.Info("KAFKA", fmt.Sprintf("Published order created for %s", order.OrderNumber))
	return nil
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}
