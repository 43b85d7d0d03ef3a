// Package notify delivers best-effort human-readable notifications.
// Delivery is asynchronous; the trading path never blocks on it and
// failures are logged, never propagated.
package notify

import (
	"sync"

	"go.uber.org/zap"

	"dip-buyer-go/metrics"
)

// Channel 单个投递通道（Telegram、日志等）。
type Channel interface {
	Send(text string) error
	Name() string
}

// Dispatcher 把消息放进缓冲队列由后台 worker 逐条投递。
// 队列满时丢弃并计数，绝不阻塞调用方。
type Dispatcher struct {
	channels []Channel
	log      *zap.Logger

	queue    chan string
	stopOnce sync.Once
	done     chan struct{}
}

// NewDispatcher 创建并启动投递 worker。bufferSize <= 0 时取 64。
func NewDispatcher(channels []Channel, bufferSize int, log *zap.Logger) *Dispatcher {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	if log == nil {
		log = zap.NewNop()
	}
	d := &Dispatcher{
		channels: channels,
		log:      log,
		queue:    make(chan string, bufferSize),
		done:     make(chan struct{}),
	}
	go d.run()
	return d
}

// Send 入队即返回。
func (d *Dispatcher) Send(text string) {
	select {
	case d.queue <- text:
	default:
		metrics.NotificationsDropped.Inc()
		d.log.Warn("notification queue full, dropping message")
	}
}

// Close 停止接收并投递完已入队的消息。
func (d *Dispatcher) Close() {
	d.stopOnce.Do(func() {
		close(d.queue)
		<-d.done
	})
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for text := range d.queue {
		for _, ch := range d.channels {
			if err := ch.Send(text); err != nil {
				d.log.Warn("notification delivery failed",
					zap.String("channel", ch.Name()), zap.Error(err))
			}
		}
	}
}
