package mq

import "context"

type Message struct {
	Topic   string
	Key     []byte
	Value   []byte
	Headers map[string]string
}

type PublishResult struct {
	Partition int32
	Offset    int64
}

// Publisher 审计事件发布端。业务侧只写 outbox 表，投递由 relay 统一走这里。
type Publisher interface {
	Publish(ctx context.Context, msg Message) (PublishResult, error)
	Close() error
}
