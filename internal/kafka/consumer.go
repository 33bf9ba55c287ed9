package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/lvdashuaibi/campusvote/config"
	"github.com/lvdashuaibi/campusvote/internal/model"
)

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Consumer 每个实例读取全部分区，收到投票事件后刷新本地计票结果
type Consumer struct {
	readers    []messageReader
	ctx        context.Context
	cancel     context.CancelFunc
	numWorkers int
	events     chan *model.VoteEvent
	wg         sync.WaitGroup
}

type MessageHandler func(ctx context.Context, event *model.VoteEvent) error

func NewConsumer(ctx context.Context, cfg config.KafkaConfig, instanceID string) (*Consumer, error) {
	partitions, err := topicPartitions(ctx, cfg)
	if err != nil {
		return nil, err
	}
	zap.S().Infof("检测到Kafka主题 %s 有 %d 个分区", cfg.Topic, len(partitions))

	readers := make([]messageReader, 0, len(partitions))
	for _, partition := range partitions {
		readers = append(readers, kafka.NewReader(kafka.ReaderConfig{
			Brokers:     cfg.Brokers,
			Topic:       cfg.Topic,
			Partition:   partition,
			StartOffset: kafka.LastOffset, // 只关心启动之后的投票
			MinBytes:    1,
			MaxBytes:    10e6, // 10MB
			MaxWait:     500 * time.Millisecond,
		}))
	}

	// 未检测到分区时退回消费者组模式，组ID带实例号使每个实例都能收到全部事件
	if len(readers) == 0 {
		groupID := fmt.Sprintf("%s-%s", cfg.GroupID, instanceID)
		zap.S().Warnf("未检测到分区，将使用消费者组模式，GroupID: %s", groupID)
		readers = append(readers, kafka.NewReader(kafka.ReaderConfig{
			Brokers:     cfg.Brokers,
			Topic:       cfg.Topic,
			GroupID:     groupID,
			StartOffset: kafka.LastOffset,
			MinBytes:    1,
			MaxBytes:    10e6,
		}))
	}

	return newConsumer(readers, cfg.Workers), nil
}

func newConsumer(readers []messageReader, workers int) *Consumer {
	if workers < 1 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Consumer{
		readers:    readers,
		ctx:        ctx,
		cancel:     cancel,
		numWorkers: workers,
		events:     make(chan *model.VoteEvent, 256),
	}
}

func decodeVoteEvent(m kafka.Message) (*model.VoteEvent, error) {
	var event model.VoteEvent
	if err := json.Unmarshal(m.Value, &event); err != nil {
		return nil, fmt.Errorf("解析投票事件失败: %w", err)
	}
	if event.StudentID == "" {
		event.StudentID = string(m.Key)
	}
	return &event, nil
}

// StartConsuming 每个分区一个读协程，解码后交给 numWorkers 个处理协程
func (c *Consumer) StartConsuming(handler MessageHandler) {
	var readersWG sync.WaitGroup
	for i, reader := range c.readers {
		readersWG.Add(1)
		go func(readerID int, r messageReader) {
			defer readersWG.Done()
			c.readMessages(readerID, r)
		}(i, reader)
	}

	// 所有读协程退出后关闭事件通道，处理协程随之退出
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		readersWG.Wait()
		close(c.events)
	}()

	for i := 0; i < c.numWorkers; i++ {
		c.wg.Add(1)
		go func(workerID int) {
			defer c.wg.Done()
			for event := range c.events {
				if err := handler(c.ctx, event); err != nil {
					zap.S().Warnf("消费者工作线程 #%d 处理投票事件失败: %v", workerID, err)
				}
			}
		}(i)
	}

	zap.S().Infof("已启动 %d 个Kafka读协程, %d 个处理协程", len(c.readers), c.numWorkers)
}

func (c *Consumer) readMessages(readerID int, reader messageReader) {
	for {
		m, err := reader.ReadMessage(c.ctx)
		if err != nil {
			if c.ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			zap.S().Warnf("读协程 #%d 读取消息失败: %v", readerID, err)
			select {
			case <-c.ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		event, err := decodeVoteEvent(m)
		if err != nil {
			zap.S().Warnf("读协程 #%d: %v", readerID, err)
			continue
		}

		select {
		case c.events <- event:
		case <-c.ctx.Done():
			return
		}
	}
}

// Stop 停止消费
func (c *Consumer) Stop() error {
	zap.S().Info("正在停止所有Kafka消费者工作线程...")
	c.cancel()
	c.wg.Wait()

	for i, reader := range c.readers {
		if err := reader.Close(); err != nil {
			zap.S().Warnf("关闭消费者 #%d 失败: %v", i, err)
		}
	}
	zap.S().Info("所有Kafka消费者工作线程已停止")
	return nil
}
