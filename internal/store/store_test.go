package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"dip-buyer-go/order"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	return s
}

func TestPendingRoundTrip(t *testing.T) {
	s := openTestStore(t)
	th := 0.03
	submitted := time.Now().Truncate(time.Second)
	o := order.Order{
		ID: 42, Symbol: "BTCUSDT", Quantity: 0.5, Price: 100,
		Threshold: &th, SubmittedAt: submitted, ExpiresAt: submitted.Add(8 * time.Hour),
	}
	require.NoError(t, s.SavePending(o))

	loaded, err := s.LoadPending()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	got := loaded[0]
	require.Equal(t, int64(42), got.ID)
	require.Equal(t, "BTCUSDT", got.Symbol)
	require.Equal(t, order.StatusPending, got.Status)
	require.NotNil(t, got.Threshold)
	require.Equal(t, 0.03, *got.Threshold)
	// 过期元数据必须在重启后存活
	require.WithinDuration(t, submitted.Add(8*time.Hour), got.ExpiresAt, time.Second)
}

func TestSavePendingOverwrites(t *testing.T) {
	s := openTestStore(t)
	o := order.Order{ID: 42, Symbol: "BTCUSDT", Price: 100}
	require.NoError(t, s.SavePending(o))
	o.Price = 99
	require.NoError(t, s.SavePending(o))

	loaded, err := s.LoadPending()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	require.Equal(t, 99.0, loaded[0].Price)
}

func TestRemovePending(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.SavePending(order.Order{ID: 1, Symbol: "BTCUSDT"}))
	require.NoError(t, s.RemovePending(1))
	require.NoError(t, s.RemovePending(1)) // 不存在不算错

	loaded, err := s.LoadPending()
	require.NoError(t, err)
	require.Empty(t, loaded)
}

func TestConsumedThresholds(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.SaveConsumed("BTCUSDT", 0.01))
	require.NoError(t, s.SaveConsumed("BTCUSDT", 0.01)) // 幂等
	require.NoError(t, s.SaveConsumed("BTCUSDT", 0.03))
	require.NoError(t, s.SaveConsumed("ETHUSDT", 0.01))

	consumed, err := s.LoadConsumed()
	require.NoError(t, err)
	require.ElementsMatch(t, []float64{0.01, 0.03}, consumed["BTCUSDT"])
	require.ElementsMatch(t, []float64{0.01}, consumed["ETHUSDT"])
}

func TestReplaceConsumed(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.SaveConsumed("BTCUSDT", 0.01))
	require.NoError(t, s.SaveConsumed("BTCUSDT", 0.03))
	require.NoError(t, s.SaveConsumed("ETHUSDT", 0.05))

	// 日界重置只替换目标 symbol 的集合
	require.NoError(t, s.ReplaceConsumed("BTCUSDT", []float64{0.03}))

	consumed, err := s.LoadConsumed()
	require.NoError(t, err)
	require.ElementsMatch(t, []float64{0.03}, consumed["BTCUSDT"])
	require.ElementsMatch(t, []float64{0.05}, consumed["ETHUSDT"])

	require.NoError(t, s.ReplaceConsumed("BTCUSDT", nil))
	consumed, err = s.LoadConsumed()
	require.NoError(t, err)
	require.Empty(t, consumed["BTCUSDT"])
}

func TestArchiveAppends(t *testing.T) {
	s := openTestStore(t)
	o := order.Order{ID: 7, Symbol: "BTCUSDT", Kind: order.KindLimit, Status: order.StatusFilled}
	require.NoError(t, s.Archive(o))
	o.Status = order.StatusExpired
	require.NoError(t, s.Archive(o))

	var rows []ArchivedOrderRow
	require.NoError(t, s.db.Find(&rows).Error)
	require.Len(t, rows, 2)
}
