package kfka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/segmentio/kafka-go"

	"lms-backend/pkg/logger"
)

type Producer struct {
	writer *kafka.Writer
}

func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{writer: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}}
}

// Publish keys messages by user so one learner's events stay ordered.
func (p *Producer) Publish(ctx context.Context, ev Event) error {
	msg, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatUint(uint64(ev.UserID), 10)),
		Value: msg,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(ev.Type)},
		},
	})
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

type Consumer struct {
	reader  *kafka.Reader
	handler Handler
	log     *logger.Logger
}

func NewConsumer(brokers []string, topic, groupID string, h Handler, baseLog *logger.Logger) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers: brokers,
			Topic:   topic,
			GroupID: groupID,
		}),
		handler: h,
		log:     baseLog.With("component", "kafka-consumer", "topic", topic),
	}
}

// Run reads until ctx is cancelled. Malformed messages and handler
// failures are logged and skipped.
func (c *Consumer) Run(ctx context.Context) {
	for {
		m, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			c.log.Error("read message", "error", err)
			continue
		}
		var ev Event
		if err := json.Unmarshal(m.Value, &ev); err != nil {
			c.log.Warn("decode event", "offset", m.Offset, "error", err)
			continue
		}
		if err := c.handler.Handle(ctx, ev); err != nil {
			c.log.Error("handle event", "event", ev.Type, "offset", m.Offset, "error", err)
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
