package pkg

import (
	"context"

	"github.com/segmentio/kafka-go"
)

// MessageWriter kafka.Writer 的最小接口，测试里可替换
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaProducer struct {
	writer MessageWriter
	topic  string
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
	// Async 为 true 时写入不等待 broker 确认
	Async bool
}

func NewKafkaProducer(cfg KafkaConfig) *KafkaProducer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        cfg.Async,
	}
	return &KafkaProducer{writer: w, topic: cfg.Topic}
}

// NewKafkaProducerWithWriter 使用自定义 writer
func NewKafkaProducerWithWriter(w MessageWriter, topic string) *KafkaProducer {
	return &KafkaProducer{writer: w, topic: topic}
}

func (p *KafkaProducer) Topic() string { return p.topic }

func (p *KafkaProducer) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

// Send 同一个 key 落在同一分区，保证顺序
func (p *KafkaProducer) Send(ctx context.Context, key string, value []byte) error {
	msg := kafka.Message{
		Key:   []byte(key),
		Value: value,
	}
	return p.writer.WriteMessages(ctx, msg)
}
