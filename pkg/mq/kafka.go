package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/Gopher0727/ProfDash/config"
	"github.com/Gopher0727/ProfDash/internal/events"
	logger "github.com/Gopher0727/ProfDash/middleware/log"
)

// KafkaProducer 把领域事件写入 kafka, 同一群组的事件使用相同 key 保证分区内有序
type KafkaProducer struct {
	producer sarama.SyncProducer
	topic    string
	log      *logger.Logger
}

func NewKafkaProducer(cfg *config.KafkaConfig, log *logger.Logger) (*KafkaProducer, error) {
	sc := sarama.NewConfig()
	sc.Producer.Return.Successes = true
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Retry.Max = cfg.MaxRetries
	sc.Producer.Retry.Backoff = time.Duration(cfg.RetryBackoffMs) * time.Millisecond
	sc.Net.DialTimeout = 10 * time.Second

	producer, err := sarama.NewSyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("启动 Sarama 生产者失败: %w", err)
	}
	return NewKafkaProducerFrom(producer, cfg.Topic, log), nil
}

// NewKafkaProducerFrom 使用已有的 SyncProducer (测试中为 mocks.SyncProducer)
func NewKafkaProducerFrom(producer sarama.SyncProducer, topic string, log *logger.Logger) *KafkaProducer {
	return &KafkaProducer{producer: producer, topic: topic, log: log}
}

// Publish 实现 events.Publisher
func (k *KafkaProducer) Publish(ctx context.Context, ev events.Event) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("序列化事件失败: %w", err)
	}
	return k.Send(ctx, k.topic, []byte(strconv.FormatUint(uint64(ev.GroupID), 10)), value)
}

// Send 发送原始消息, 也用于投递死信
func (k *KafkaProducer) Send(ctx context.Context, topic string, key, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.ByteEncoder(key),
		Value: sarama.ByteEncoder(value),
	}

	partition, offset, err := k.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("发送消息到 kafka 失败: %w", err)
	}

	k.log.DebugContext(ctx, "message stored",
		zap.String("topic", topic),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
	)
	return nil
}

func (k *KafkaProducer) Close() error {
	return k.producer.Close()
}
