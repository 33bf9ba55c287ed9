package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/lvdashuaibi/campusvote/config"
	"github.com/lvdashuaibi/campusvote/internal/model"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Producer struct {
	writer messageWriter
}

func NewProducer(ctx context.Context, cfg config.KafkaConfig) (*Producer, error) {
	partitions, err := topicPartitions(ctx, cfg)
	if err != nil {
		return nil, err
	}
	zap.S().Infof("生产者检测到Kafka主题 %s 有 %d 个分区", cfg.Topic, len(partitions))

	// 使用Hash分区器，基于消息Key进行分区路由
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}
	return &Producer{writer: writer}, nil
}

// topicPartitions 读取主题的分区ID
func topicPartitions(ctx context.Context, cfg config.KafkaConfig) ([]int, error) {
	conn, err := kafka.DialLeader(ctx, "tcp", cfg.Brokers[0], cfg.Topic, 0)
	if err != nil {
		return nil, fmt.Errorf("连接Kafka失败: %w", err)
	}
	defer conn.Close()

	partitions, err := conn.ReadPartitions()
	if err != nil {
		return nil, fmt.Errorf("读取分区信息失败: %w", err)
	}

	var ids []int
	for _, p := range partitions {
		if p.Topic == cfg.Topic {
			ids = append(ids, p.ID)
		}
	}
	return ids, nil
}

func encodeVoteEvent(event *model.VoteEvent) (kafka.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("序列化投票事件失败: %w", err)
	}
	// 以学生ID作为分区key，同一学生的事件进入同一分区
	return kafka.Message{
		Key:   []byte(event.StudentID),
		Value: data,
		Time:  time.Now(),
	}, nil
}

// PublishVoteEvent 发送投票事件到Kafka
func (p *Producer) PublishVoteEvent(ctx context.Context, event *model.VoteEvent) error {
	msg, err := encodeVoteEvent(event)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("发送投票事件失败: %w", err)
	}
	return nil
}

// Close 关闭Kafka生产者
func (p *Producer) Close() error {
	return p.writer.Close()
}
