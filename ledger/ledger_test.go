package ledger

import "testing"

func TestCanFireAfterMarkFired(t *testing.T) {
	l := New(nil)
	if !l.CanFire("BTCUSDT", 0.02) {
		t.Fatal("fresh ledger should allow firing")
	}
	l.MarkFired("BTCUSDT", 0.02)
	if l.CanFire("BTCUSDT", 0.02) {
		t.Fatal("threshold must be consumed after MarkFired")
	}
	// 其他阈值/交易对不受影响
	if !l.CanFire("BTCUSDT", 0.05) {
		t.Fatal("different threshold should still fire")
	}
	if !l.CanFire("ETHUSDT", 0.02) {
		t.Fatal("different symbol should still fire")
	}
}

func TestMarkFiredIdempotent(t *testing.T) {
	l := New(nil)
	l.MarkFired("BTCUSDT", 0.02)
	l.MarkFired("BTCUSDT", 0.02)
	if got := len(l.Consumed("BTCUSDT")); got != 1 {
		t.Fatalf("expected 1 consumed entry, got %d", got)
	}
}

func TestResetClearsWhenNoOpenOrders(t *testing.T) {
	l := New(nil)
	l.MarkFired("BTCUSDT", 0.01)
	l.MarkFired("BTCUSDT", 0.03)
	l.ResetForNewPeriod("BTCUSDT", nil)
	if !l.CanFire("BTCUSDT", 0.01) || !l.CanFire("BTCUSDT", 0.03) {
		t.Fatal("reset without open orders must clear everything")
	}
}

func TestResetPreservesOpenOrderThresholds(t *testing.T) {
	l := New(nil)
	l.MarkFired("X", 0.01)
	l.MarkFired("X", 0.03)
	// 0.03 背后仍有在途订单
	l.ResetForNewPeriod("X", []float64{0.03})
	if l.CanFire("X", 0.03) {
		t.Fatal("threshold backing an open order must stay consumed")
	}
	if !l.CanFire("X", 0.01) {
		t.Fatal("threshold without open order must be available again")
	}
}

func TestRestore(t *testing.T) {
	l := New(nil)
	l.Restore(map[string][]float64{"BTCUSDT": {0.02, 0.05}})
	if l.CanFire("BTCUSDT", 0.02) || l.CanFire("BTCUSDT", 0.05) {
		t.Fatal("restored thresholds must be consumed")
	}
	if !l.CanFire("BTCUSDT", 0.01) {
		t.Fatal("unrestored threshold should fire")
	}
}
