package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// KafkaSender hands messages to the notifications topic; the worker performs
// the actual delivery.
type KafkaSender struct {
	writer  *kafka.Writer
	brokers []string
	topic   string
}

func NewKafkaSender(brokers []string, topic string) *KafkaSender {
	return &KafkaSender{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Balancer:     &kafka.LeastBytes{},
			BatchTimeout: 50 * time.Millisecond,
			RequiredAcks: kafka.RequireOne,
		},
		brokers: brokers,
		topic:   topic,
	}
}

func (k *KafkaSender) Send(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	key := msg.BookingID
	if key == "" {
		key = msg.ID
	}
	if err := k.writer.WriteMessages(ctx, kafka.Message{
		Topic: k.topic,
		Key:   []byte(key),
		Value: data,
		Time:  msg.CreatedAt,
	}); err != nil {
		return fmt.Errorf("publish notification %s: %w", msg.ID, err)
	}
	return nil
}

// Ping dials the first reachable broker and reads the topic's partitions.
func (k *KafkaSender) Ping(ctx context.Context) error {
	var lastErr error
	for _, b := range k.brokers {
		conn, err := kafka.DialContext(ctx, "tcp", b)
		if err != nil {
			lastErr = err
			continue
		}
		_, err = conn.ReadPartitions(k.topic)
		conn.Close()
		if err != nil {
			return fmt.Errorf("read partitions of %s: %w", k.topic, err)
		}
		return nil
	}
	return fmt.Errorf("no kafka broker reachable: %w", lastErr)
}

func (k *KafkaSender) Close() error {
	if k == nil || k.writer == nil {
		return nil
	}
	return k.writer.Close()
}

// Consumer reads notifications from Kafka and delivers them.
type Consumer struct {
	reader *kafka.Reader
	logger zerolog.Logger
}

func NewConsumer(brokers []string, groupID, topic string, logger zerolog.Logger) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:           brokers,
			GroupID:           groupID,
			Topic:             topic,
			HeartbeatInterval: 3 * time.Second,
			SessionTimeout:    30 * time.Second,
		}),
		logger: logger,
	}
}

func (c *Consumer) Close() error {
	if c == nil || c.reader == nil {
		return nil
	}
	return c.reader.Close()
}

// Consume blocks until ctx ends or the reader fails. Undecodable records are
// skipped; delivery failures are logged by deliver and the offset still
// advances.
func (c *Consumer) Consume(ctx context.Context, deliver func(context.Context, Message) error) error {
	for {
		rec, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read notification: %w", err)
		}
		msg, err := Decode(rec.Value)
		if err != nil {
			c.logger.Warn().Err(err).Int64("offset", rec.Offset).Msg("skip undecodable notification")
			continue
		}
		_ = deliver(ctx, msg)
	}
}

// Decode parses a notification record.
func Decode(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("decode notification: %w", err)
	}
	if msg.Channel == "" || msg.Recipient == "" {
		return Message{}, fmt.Errorf("decode notification: channel and recipient are required")
	}
	return msg, nil
}
