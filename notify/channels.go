package notify

import (
	"sync"

	"go.uber.org/zap"
)

// LogChannel 把通知落到结构化日志，无外部依赖的兜底通道。
type LogChannel struct {
	log *zap.Logger
}

func NewLogChannel(log *zap.Logger) *LogChannel {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogChannel{log: log}
}

func (c *LogChannel) Send(text string) error {
	c.log.Info("notification", zap.String("text", text))
	return nil
}

func (c *LogChannel) Name() string { return "log" }

// MockChannel 测试用通道，记录收到的全部消息。
type MockChannel struct {
	mu        sync.Mutex
	messages  []string
	shouldErr error
}

func NewMockChannel() *MockChannel { return &MockChannel{} }

func (c *MockChannel) Send(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.shouldErr != nil {
		return c.shouldErr
	}
	c.messages = append(c.messages, text)
	return nil
}

func (c *MockChannel) Name() string { return "mock" }

func (c *MockChannel) Messages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	res := make([]string, len(c.messages))
	copy(res, c.messages)
	return res
}

func (c *MockChannel) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}

func (c *MockChannel) SetError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shouldErr = err
}
