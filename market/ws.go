package market

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const spotWSEndpoint = "wss://stream.binance.com:9443"

// PriceStream 订阅 combined miniTicker 流，把最新成交价喂给 Service。
// 断线按指数退避重连，直到 ctx 取消。
type PriceStream struct {
	Endpoint string // 留空用现货默认
	Dialer   *websocket.Dialer

	symbols []string
	svc     *Service
	log     *zap.Logger
}

func NewPriceStream(symbols []string, svc *Service, log *zap.Logger) *PriceStream {
	if log == nil {
		log = zap.NewNop()
	}
	return &PriceStream{
		Endpoint: spotWSEndpoint,
		Dialer:   websocket.DefaultDialer,
		symbols:  symbols,
		svc:      svc,
		log:      log,
	}
}

type combinedMsg struct {
	Stream string `json:"stream"`
	Data   struct {
		Symbol string `json:"s"`
		Close  string `json:"c"`
	} `json:"data"`
}

// Run 阻塞运行直到 ctx 取消。调用方通常 go stream.Run(ctx)。
func (p *PriceStream) Run(ctx context.Context) {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return
		}
		err := p.readOnce(ctx)
		if ctx.Err() != nil {
			return
		}
		p.log.Warn("price stream disconnected, reconnecting",
			zap.Duration("backoff", backoff), zap.Error(err))
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (p *PriceStream) readOnce(ctx context.Context) error {
	streams := make([]string, 0, len(p.symbols))
	for _, s := range p.symbols {
		streams = append(streams, strings.ToLower(s)+"@miniTicker")
	}
	u := url.URL{
		Scheme: "wss",
		Host:   strings.TrimPrefix(p.Endpoint, "wss://"),
		Path:   "/stream",
	}
	q := u.Query()
	q.Set("streams", strings.Join(streams, "/"))
	u.RawQuery = q.Encode()

	conn, _, err := p.Dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	p.log.Info("price stream connected", zap.Int("symbols", len(p.symbols)))

	// ctx 取消时强制关闭连接，解除 ReadMessage 阻塞。
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_ = conn.SetReadDeadline(time.Now().Add(90 * time.Second))
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var msg combinedMsg
		if err := json.Unmarshal(message, &msg); err != nil {
			p.log.Debug("unparsable stream message", zap.Error(err))
			continue
		}
		price, err := strconv.ParseFloat(msg.Data.Close, 64)
		if err != nil || msg.Data.Symbol == "" {
			continue
		}
		p.svc.UpdatePrice(msg.Data.Symbol, price)
	}
}
