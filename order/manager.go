package order

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"dip-buyer-go/gateway"
	"dip-buyer-go/metrics"
)

// Ledger 阈值去重账本。Manager 只在确认下单成功后才 MarkFired。
type Ledger interface {
	CanFire(symbol string, threshold float64) bool
	MarkFired(symbol string, threshold float64)
	ResetForNewPeriod(symbol string, stillOpen []float64)
}

// BalanceTracker 余额快照与成交累计。
type BalanceTracker interface {
	TakeSnapshot(ctx context.Context)
	RecordFill(symbol string, qty, price float64)
}

// Notifier 尽力而为的人读通知，失败绝不影响交易路径。
type Notifier interface {
	Send(text string)
}

// Store 持久化钩子，可为 nil。写失败只记日志。
type Store interface {
	SavePending(o Order) error
	RemovePending(id int64) error
	Archive(o Order) error
}

// ManagerConfig Manager 行为参数。
type ManagerConfig struct {
	Symbols       []string
	ExpiryWindow  time.Duration // 限价单有效期，默认 8h
	PollInterval  time.Duration // 成交轮询周期，默认 5s
	SweepInterval time.Duration // 过期清理周期，默认 5m
}

// Manager 维护在途订单集合，是本地意图与交易所状态的唯一对账点。
//
// 三个定时循环（信号驱动 ≈60s、成交轮询 ≈5s、过期清理 ≈5m）共享
// pending 与 ordersInProgress，全部修改串行在同一把锁后面；
// 网络调用一律在临界区外完成，只把最终状态变更放进临界区。
type Manager struct {
	gw     gateway.ExchangeGateway
	ledger Ledger
	cfg    ManagerConfig
	log    *zap.Logger

	notifier Notifier
	balance  BalanceTracker
	store    Store

	mu               sync.Mutex
	pending          map[int64]*Order
	ordersInProgress int
	dailyOrderCount  map[string]int
	constraints      map[string]SymbolConstraints

	stopChan chan struct{}
	wg       sync.WaitGroup
	started  bool
}

// NewManager 创建 Manager。notifier/balance/store 通过 Set 方法按需注入。
func NewManager(gw gateway.ExchangeGateway, ledger Ledger, cfg ManagerConfig, log *zap.Logger) *Manager {
	if cfg.ExpiryWindow <= 0 {
		cfg.ExpiryWindow = 8 * time.Hour
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 5 * time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		gw:              gw,
		ledger:          ledger,
		cfg:             cfg,
		log:             log,
		pending:         make(map[int64]*Order),
		dailyOrderCount: make(map[string]int),
		constraints:     make(map[string]SymbolConstraints),
		stopChan:        make(chan struct{}),
	}
}

func (m *Manager) SetNotifier(n Notifier)      { m.notifier = n }
func (m *Manager) SetBalance(b BalanceTracker) { m.balance = b }
func (m *Manager) SetStore(s Store)            { m.store = s }

// SetConstraints 设置各交易对的精度/数量限制。
func (m *Manager) SetConstraints(c map[string]SymbolConstraints) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.constraints = make(map[string]SymbolConstraints, len(c))
	for sym, sc := range c {
		m.constraints[sym] = sc
	}
}

// Start 启动成交轮询与过期清理两个后台循环。
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return errors.New("manager already started")
	}
	m.started = true
	m.mu.Unlock()

	m.wg.Add(2)
	go m.pollLoop(ctx)
	go m.sweepLoop(ctx)
	return nil
}

// Stop 通知循环退出并等待全部结束。在途网络调用允许完成，但不再重试。
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	m.started = false
	m.mu.Unlock()
	close(m.stopChan)
	m.wg.Wait()
}

func (m *Manager) pollLoop(ctx context.Context) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopChan:
			return
		case <-ticker.C:
			m.PollPendingOrders(ctx)
		}
	}
}

func (m *Manager) sweepLoop(ctx context.Context) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopChan:
			return
		case <-ticker.C:
			m.SweepExpiredOrders(ctx)
		}
	}
}

// Submit 经账本/约束校验后向交易所下单并登记跟踪。
// threshold 为 nil 表示手动下单，跳过账本校验。
func (m *Manager) Submit(ctx context.Context, symbol string, quantity, price float64, kind Kind, threshold *float64) (*Order, error) {
	if threshold != nil && !m.ledger.CanFire(symbol, *threshold) {
		m.log.Info("threshold already consumed, skipping",
			zap.String("symbol", symbol), zap.Float64("threshold", *threshold))
		return nil, ErrDuplicateThreshold
	}

	// 批次首单在下单前抓余额快照，供成交后对比报告。
	m.mu.Lock()
	firstOfBatch := m.ordersInProgress == 0
	m.ordersInProgress++
	metrics.OrdersInProgress.Set(float64(m.ordersInProgress))
	m.mu.Unlock()
	if firstOfBatch && m.balance != nil {
		m.balance.TakeSnapshot(ctx)
	}

	o, err := m.place(ctx, symbol, quantity, price, kind, threshold)
	if err != nil {
		m.mu.Lock()
		m.ordersInProgress--
		metrics.OrdersInProgress.Set(float64(m.ordersInProgress))
		m.mu.Unlock()
		metrics.OrdersRejected.Inc()
		return nil, err
	}

	// 只有确认下单成功才消耗阈值，交易所拒单时阈值保持可用。
	if threshold != nil {
		m.ledger.MarkFired(symbol, *threshold)
	}
	m.mu.Lock()
	m.dailyOrderCount[symbol]++
	m.mu.Unlock()
	return o, nil
}

func (m *Manager) place(ctx context.Context, symbol string, quantity, price float64, kind Kind, threshold *float64) (*Order, error) {
	m.mu.Lock()
	c := m.constraints[symbol]
	m.mu.Unlock()

	qty, err := c.NormalizeQuantity(quantity)
	if err != nil {
		m.log.Warn("quantity rejected", zap.String("symbol", symbol),
			zap.Float64("requested", quantity), zap.Error(err))
		return nil, err
	}
	req := gateway.CreateOrderRequest{
		Symbol:   symbol,
		Side:     gateway.SideBuy,
		Kind:     string(kind),
		Quantity: qty,
	}
	if kind == KindLimit {
		alignedPrice, err := c.NormalizePrice(price)
		if err != nil {
			return nil, err
		}
		if err := c.CheckNotional(alignedPrice, qty); err != nil {
			return nil, err
		}
		req.Price = alignedPrice
	}

	rec, err := m.gw.CreateOrder(ctx, req)
	if err != nil {
		metrics.GatewayErrors.Inc()
		m.log.Error("create order failed", zap.String("symbol", symbol), zap.Error(err))
		return nil, err
	}

	now := time.Now()
	o := &Order{
		ID:          rec.ID,
		Symbol:      symbol,
		Side:        gateway.SideBuy,
		Quantity:    qty,
		Price:       req.Price,
		Kind:        kind,
		Status:      StatusPending,
		Threshold:   threshold,
		SubmittedAt: now,
	}
	metrics.OrdersPlaced.Inc()

	if kind == KindMarket {
		// 市价单同步终结，不进入 pending 集合。
		return m.settleMarket(o, rec), nil
	}

	o.ExpiresAt = now.Add(m.cfg.ExpiryWindow)
	m.mu.Lock()
	m.pending[o.ID] = o
	pendingCount := len(m.pending)
	m.mu.Unlock()
	metrics.PendingOrders.Set(float64(pendingCount))
	if m.store != nil {
		if err := m.store.SavePending(*o); err != nil {
			m.log.Warn("persist pending order failed", zap.Int64("orderID", o.ID), zap.Error(err))
		}
	}

	m.log.Info("limit order placed",
		zap.Int64("orderID", o.ID),
		zap.String("symbol", symbol),
		zap.Float64("price", o.Price),
		zap.Float64("quantity", o.Quantity),
		zap.Time("expiresAt", o.ExpiresAt))
	m.notify(fmt.Sprintf("✅ Limit Order Placed\nSymbol: %s\nPrice: $%.2f\nQuantity: %.8f\nExpires: %s",
		symbol, o.Price, o.Quantity, o.ExpiresAt.UTC().Format("2006-01-02 15:04:05")))
	return o, nil
}

// settleMarket 市价单在下单响应里直接带回终态。
func (m *Manager) settleMarket(o *Order, rec gateway.OrderRecord) *Order {
	if rec.Status == gateway.StatusFilled || rec.Status == gateway.StatusPartiallyFilled {
		o.Status = StatusFilled
		fillPrice := o.Price
		if rec.ExecutedQty > 0 && rec.QuoteSpent > 0 {
			fillPrice = rec.QuoteSpent / rec.ExecutedQty
		}
		if m.balance != nil {
			m.balance.RecordFill(o.Symbol, rec.ExecutedQty, fillPrice)
		}
		metrics.OrdersFilled.Inc()
		m.notify(fmt.Sprintf("✅ Market Order Executed!\nSymbol: %s\nQuantity: %.8f\nTotal: $%.2f",
			o.Symbol, rec.ExecutedQty, rec.QuoteSpent))
	} else {
		o.Status = StatusRejected
		metrics.OrdersRejected.Inc()
	}
	m.mu.Lock()
	m.ordersInProgress--
	metrics.OrdersInProgress.Set(float64(m.ordersInProgress))
	m.mu.Unlock()
	m.archive(*o)
	return o
}

// PollPendingOrders 对每笔 PENDING 订单查询交易所状态。
// 每次扫描最多应用一次状态转换，保证通知顺序相对自身迭代确定。
// 查询失败只记日志，绝不因此移除跟踪。
func (m *Manager) PollPendingOrders(ctx context.Context) {
	for _, o := range m.snapshotPending() {
		rec, err := m.gw.GetOrder(ctx, o.Symbol, o.ID)
		if err != nil {
			if errors.Is(err, gateway.ErrOrderNotFound) {
				m.log.Debug("order not yet visible, retrying next poll", zap.Int64("orderID", o.ID))
			} else {
				metrics.GatewayErrors.Inc()
				m.log.Warn("poll order status failed", zap.Int64("orderID", o.ID), zap.Error(err))
			}
			continue
		}

		switch rec.Status {
		case gateway.StatusFilled:
			done, ok := m.takeAndRemove(o.ID, StatusFilled)
			if !ok {
				continue
			}
			fillPrice := rec.Price
			if rec.ExecutedQty > 0 && rec.QuoteSpent > 0 {
				fillPrice = rec.QuoteSpent / rec.ExecutedQty
			}
			if m.balance != nil {
				m.balance.RecordFill(done.Symbol, rec.ExecutedQty, fillPrice)
			}
			metrics.OrdersFilled.Inc()
			m.log.Info("order filled", zap.Int64("orderID", done.ID),
				zap.String("symbol", done.Symbol), zap.Float64("qty", rec.ExecutedQty))
			m.notify(fmt.Sprintf("✅ Order Filled!\nSymbol: %s\nPrice: $%.2f\nQuantity: %.8f\nTotal: $%.2f",
				done.Symbol, fillPrice, rec.ExecutedQty, rec.QuoteSpent))
			return
		case gateway.StatusCanceled, gateway.StatusRejected, gateway.StatusExpired:
			st := remoteTerminal(rec.Status)
			done, ok := m.takeAndRemove(o.ID, st)
			if !ok {
				continue
			}
			metrics.OrdersRejected.Inc()
			m.log.Info("order closed by exchange", zap.Int64("orderID", done.ID),
				zap.String("symbol", done.Symbol), zap.String("status", string(st)))
			m.notify(fmt.Sprintf("⚠️ Order %s\nSymbol: %s\nOrder ID: %d",
				string(st), done.Symbol, done.ID))
			return
		}
	}
}

// SweepExpiredOrders 撤销超过有效期的限价单。撤单失败保持跟踪，下轮重试。
func (m *Manager) SweepExpiredOrders(ctx context.Context) {
	now := time.Now()
	for _, o := range m.snapshotPending() {
		if o.ExpiresAt.After(now) {
			continue
		}
		if err := m.gw.CancelOrder(ctx, o.Symbol, o.ID); err != nil {
			if !errors.Is(err, gateway.ErrOrderNotFound) {
				metrics.GatewayErrors.Inc()
				m.log.Warn("cancel expired order failed, will retry",
					zap.Int64("orderID", o.ID), zap.Error(err))
				continue
			}
			// 交易所已无此单，本地收尾即可。
		}
		done, ok := m.takeAndRemove(o.ID, StatusExpired)
		if !ok {
			continue
		}
		age := now.Sub(done.SubmittedAt)
		metrics.OrdersExpired.Inc()
		m.log.Info("expired order canceled", zap.Int64("orderID", done.ID),
			zap.String("symbol", done.Symbol), zap.Duration("age", age))
		m.notify(fmt.Sprintf("🕒 Order Expired and Cancelled\nSymbol: %s\nOrder Age: %.2f hours\nOrder ID: %d",
			done.Symbol, age.Hours(), done.ID))
	}
}

// CancelStaleOpenOrders 以交易所挂单列表为准的兜底清理：
// 进程重启丢失内存时间戳后，凡超过有效期的挂单也会在这里被撤掉。
func (m *Manager) CancelStaleOpenOrders(ctx context.Context) {
	open, err := m.gw.GetOpenOrders(ctx, "")
	if err != nil {
		metrics.GatewayErrors.Inc()
		m.log.Warn("list open orders failed", zap.Error(err))
		return
	}
	now := time.Now()
	for _, rec := range open {
		if rec.Side != gateway.SideBuy {
			continue
		}
		submittedAt := rec.SubmittedAt
		m.mu.Lock()
		if local, ok := m.pending[rec.ID]; ok {
			submittedAt = local.SubmittedAt
		}
		m.mu.Unlock()
		if submittedAt.IsZero() || now.Sub(submittedAt) <= m.cfg.ExpiryWindow {
			continue
		}
		if err := m.gw.CancelOrder(ctx, rec.Symbol, rec.ID); err != nil && !errors.Is(err, gateway.ErrOrderNotFound) {
			metrics.GatewayErrors.Inc()
			m.log.Warn("cancel stale order failed", zap.Int64("orderID", rec.ID), zap.Error(err))
			continue
		}
		if done, ok := m.takeAndRemove(rec.ID, StatusExpired); ok {
			m.notify(fmt.Sprintf("🕒 Stale Order Cancelled\nSymbol: %s\nOrder ID: %d", done.Symbol, done.ID))
		}
		m.log.Info("stale open order canceled", zap.Int64("orderID", rec.ID),
			zap.String("symbol", rec.Symbol))
	}
}

// ResetDailyOrderCount 在 UTC 日界重建“今日已下单”计数。
// 以交易所挂单列表为准（进程重启后依然正确），随后让账本按仍然
// 在途的阈值做保留式重置。
func (m *Manager) ResetDailyOrderCount(ctx context.Context) {
	counts := make(map[string]int, len(m.cfg.Symbols))
	for _, symbol := range m.cfg.Symbols {
		open, err := m.gw.GetOpenOrders(ctx, symbol)
		if err != nil {
			metrics.GatewayErrors.Inc()
			m.log.Warn("open orders query failed during reset, keeping previous count",
				zap.String("symbol", symbol), zap.Error(err))
			m.mu.Lock()
			counts[symbol] = m.dailyOrderCount[symbol]
			m.mu.Unlock()
			continue
		}
		n := 0
		for _, rec := range open {
			if rec.Side == gateway.SideBuy {
				n++
			}
		}
		if n > 0 {
			m.log.Info("open orders carried over reset", zap.String("symbol", symbol), zap.Int("count", n))
		}
		counts[symbol] = n
	}

	m.mu.Lock()
	m.dailyOrderCount = counts
	stillOpen := make(map[string][]float64, len(m.cfg.Symbols))
	for _, o := range m.pending {
		if o.Threshold != nil {
			stillOpen[o.Symbol] = append(stillOpen[o.Symbol], *o.Threshold)
		}
	}
	m.mu.Unlock()

	for _, symbol := range m.cfg.Symbols {
		m.ledger.ResetForNewPeriod(symbol, stillOpen[symbol])
	}
	m.log.Info("daily order count reset completed")
}

// RestorePending 开机时从持久层恢复跟踪，不触发任何网关调用。
// 只接受尚未过期追踪意义的订单；Status 强制回 PENDING。
func (m *Manager) RestorePending(orders []Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range orders {
		o := orders[i]
		o.Status = StatusPending
		if o.ExpiresAt.IsZero() {
			// 丢失过期元数据时给保守的默认有效期，而不是永不过期。
			o.ExpiresAt = time.Now().Add(m.cfg.ExpiryWindow)
		}
		m.pending[o.ID] = &o
		m.ordersInProgress++
	}
	metrics.OrdersInProgress.Set(float64(m.ordersInProgress))
	metrics.PendingOrders.Set(float64(len(m.pending)))
}

// OrdersInProgress 当前未终结订单的引用计数。
func (m *Manager) OrdersInProgress() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ordersInProgress
}

// DailyOrderCount 返回某交易对今日已下单数。
func (m *Manager) DailyOrderCount(symbol string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dailyOrderCount[symbol]
}

// PendingOrders 返回在途订单拷贝。
func (m *Manager) PendingOrders() []Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	res := make([]Order, 0, len(m.pending))
	for _, o := range m.pending {
		res = append(res, *o)
	}
	return res
}

func (m *Manager) snapshotPending() []Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	res := make([]Order, 0, len(m.pending))
	for _, o := range m.pending {
		res = append(res, *o)
	}
	return res
}

// takeAndRemove 原子的“存在才移除”。两个循环同时观察到同一终态时，
// 引用计数与通知都只发生一次。
func (m *Manager) takeAndRemove(id int64, st Status) (Order, bool) {
	m.mu.Lock()
	o, ok := m.pending[id]
	if !ok {
		m.mu.Unlock()
		return Order{}, false
	}
	delete(m.pending, id)
	m.ordersInProgress--
	metrics.OrdersInProgress.Set(float64(m.ordersInProgress))
	pendingCount := len(m.pending)
	m.mu.Unlock()

	metrics.PendingOrders.Set(float64(pendingCount))
	done := *o
	done.Status = st
	if m.store != nil {
		if err := m.store.RemovePending(id); err != nil {
			m.log.Warn("remove persisted pending failed", zap.Int64("orderID", id), zap.Error(err))
		}
	}
	m.archive(done)
	return done, true
}

// archive 终态订单归档留作报表，不删除。
func (m *Manager) archive(o Order) {
	if m.store == nil {
		return
	}
	if err := m.store.Archive(o); err != nil {
		m.log.Warn("archive order failed", zap.Int64("orderID", o.ID), zap.Error(err))
	}
}

func (m *Manager) notify(text string) {
	if m.notifier != nil {
		m.notifier.Send(text)
	}
}

func remoteTerminal(status string) Status {
	switch status {
	case gateway.StatusCanceled:
		return StatusCanceled
	case gateway.StatusRejected:
		return StatusRejected
	case gateway.StatusExpired:
		return StatusExpired
	default:
		return StatusCanceled
	}
}
