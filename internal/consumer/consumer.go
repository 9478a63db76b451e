package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/Gopher0727/ProfDash/config"
	"github.com/Gopher0727/ProfDash/internal/events"
	"github.com/Gopher0727/ProfDash/internal/models"
	logger "github.com/Gopher0727/ProfDash/middleware/log"
)

// AuditWriter persists audit rows. Writing the same id twice must be a no-op.
type AuditWriter interface {
	Create(ctx context.Context, event *models.AuditEvent) error
}

// Broadcaster pushes a message to every dashboard watching a group.
type Broadcaster interface {
	BroadcastToGroup(groupID uint, message any)
}

// DeadLetterSender receives messages that kept failing.
type DeadLetterSender interface {
	Send(ctx context.Context, topic string, key, value []byte) error
}

// EventConsumer records each event in the audit log and then fans it out to
// live dashboards. It is both the in-process events.Handler and the kafka
// consumer group handler.
type EventConsumer struct {
	audit AuditWriter
	hub   Broadcaster
	log   *logger.Logger

	dlq        DeadLetterSender
	dlqTopic   string
	maxRetries int
	backoff    time.Duration
}

func NewEventConsumer(audit AuditWriter, hub Broadcaster, log *logger.Logger) *EventConsumer {
	return &EventConsumer{audit: audit, hub: hub, log: log}
}

// WithRetry enables retries with exponential backoff and a dead letter topic.
func (c *EventConsumer) WithRetry(cfg *config.KafkaConfig, dlq DeadLetterSender) *EventConsumer {
	c.dlq = dlq
	c.dlqTopic = cfg.DLQTopic
	c.maxRetries = cfg.MaxRetries
	c.backoff = time.Duration(cfg.RetryBackoffMs) * time.Millisecond
	return c
}

// Handle 实现 events.Handler
func (c *EventConsumer) Handle(ctx context.Context, ev events.Event) error {
	row := &models.AuditEvent{
		ID:        ev.ID,
		Kind:      string(ev.Kind),
		GroupID:   ev.GroupID,
		ActorID:   ev.ActorID,
		Payload:   datatypes.JSON(ev.Payload),
		CreatedAt: ev.OccurredAt,
	}
	if err := c.audit.Create(ctx, row); err != nil {
		return fmt.Errorf("record audit event %d: %w", ev.ID, err)
	}

	if c.hub != nil {
		c.hub.BroadcastToGroup(ev.GroupID, ev)
	}
	return nil
}

// Setup is run at the beginning of a new session, before ConsumeClaim
func (c *EventConsumer) Setup(sarama.ConsumerGroupSession) error {
	return nil
}

// Cleanup is run at the end of a session, once all ConsumeClaim goroutines have exited
func (c *EventConsumer) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim must start a consumer loop of ConsumerGroupClaim's Messages().
func (c *EventConsumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := session.Context()
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			// 未处理完的消息不提交 offset, 重新分配后会再次投递
			if !c.process(ctx, message) {
				return nil
			}
			session.MarkMessage(message, "")
		case <-ctx.Done():
			return nil
		}
	}
}

// process reports whether the message is settled: handled, or handed to the
// dead letter path. It is unsettled only when ctx ends during a retry.
func (c *EventConsumer) process(ctx context.Context, message *sarama.ConsumerMessage) bool {
	var ev events.Event
	if err := json.Unmarshal(message.Value, &ev); err != nil {
		// 无法解析的消息重试也没有意义
		c.log.WarnContext(ctx, "dropping undecodable event",
			zap.String("topic", message.Topic),
			zap.Int64("offset", message.Offset),
			zap.Error(err),
		)
		c.deadLetter(ctx, message, err)
		return true
	}

	backoff := c.backoff
	var err error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err = c.Handle(ctx, ev); err == nil {
			return true
		}
		if attempt == c.maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			c.log.WarnContext(ctx, "event left unacknowledged on shutdown",
				zap.Int64("event_id", ev.ID),
				zap.Int64("offset", message.Offset),
				zap.Error(err),
			)
			return false
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	c.log.ErrorContext(ctx, "event handling failed",
		zap.Int64("event_id", ev.ID),
		zap.String("kind", string(ev.Kind)),
		zap.Int("attempts", c.maxRetries+1),
		zap.Error(err),
	)
	c.deadLetter(ctx, message, err)
	return true
}

func (c *EventConsumer) deadLetter(ctx context.Context, message *sarama.ConsumerMessage, cause error) {
	if c.dlq == nil || c.dlqTopic == "" {
		return
	}
	if err := c.dlq.Send(ctx, c.dlqTopic, message.Key, message.Value); err != nil {
		c.log.ErrorContext(ctx, "failed to send message to DLQ", zap.Error(err), zap.NamedError("cause", cause))
	}
}

// Runner drives the consumer group until Stop is called.
type Runner struct {
	group  sarama.ConsumerGroup
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Start joins the consumer group and consumes cfg.Topic in the background.
func Start(ctx context.Context, cfg *config.KafkaConfig, handler *EventConsumer, log *logger.Logger) (*Runner, error) {
	sc := sarama.NewConfig()
	sc.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	sc.Consumer.Offsets.Initial = sarama.OffsetNewest
	sc.Consumer.Return.Errors = true
	sc.Net.DialTimeout = 10 * time.Second

	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, sc)
	if err != nil {
		return nil, fmt.Errorf("创建消费者组客户端失败: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	r := &Runner{group: group, cancel: cancel}

	r.wg.Add(2)
	go func() {
		defer r.wg.Done()
		for err := range group.Errors() {
			log.Warn("consumer group error", zap.Error(err))
		}
	}()
	go func() {
		defer r.wg.Done()
		for {
			err := group.Consume(ctx, []string{cfg.Topic}, handler)
			// check if context was cancelled, signaling that the consumer should stop
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				log.Error("消费者错误", zap.Error(err))
				select {
				case <-ctx.Done():
					return
				case <-time.After(time.Second):
				}
			}
		}
	}()
	return r, nil
}

func (r *Runner) Stop() error {
	r.cancel()
	err := r.group.Close()
	r.wg.Wait()
	return err
}
