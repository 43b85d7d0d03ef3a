package strategy

import "testing"

func TestGenerateSignalsScenario(t *testing.T) {
	e, err := NewEngine([]float64{0.01, 0.03, 0.05})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	// 开盘 100，现价 96 → 跌幅 4%，命中 0.01 与 0.03，0.05 不命中
	signals := e.GenerateSignals([]float64{99, 97, 96}, 100)
	if len(signals) != 2 {
		t.Fatalf("expected 2 signals, got %d", len(signals))
	}
	if signals[0].Threshold != 0.01 || signals[1].Threshold != 0.03 {
		t.Fatalf("unexpected thresholds: %+v", signals)
	}
	for _, s := range signals {
		if s.Price != 96 {
			t.Fatalf("expected price 96, got %v", s.Price)
		}
	}
}

func TestGenerateSignalsMonotonicInclusion(t *testing.T) {
	e, _ := NewEngine([]float64{0.02, 0.04})
	// 跌幅 5% ≥ 0.04 时，0.02 必然同时返回
	signals := e.GenerateSignals([]float64{95}, 100)
	if len(signals) != 2 {
		t.Fatalf("expected both thresholds included, got %+v", signals)
	}
}

func TestGenerateSignalsNoDrop(t *testing.T) {
	e, _ := NewEngine([]float64{0.01})
	if got := e.GenerateSignals([]float64{101}, 100); got != nil {
		t.Fatalf("expected no signals on rising price, got %+v", got)
	}
	if got := e.GenerateSignals(nil, 100); got != nil {
		t.Fatalf("expected no signals on empty series, got %+v", got)
	}
}

func TestNewEngineValidation(t *testing.T) {
	cases := [][]float64{
		nil,
		{0},
		{1.5},
		{0.01, 0.01},
	}
	for _, thresholds := range cases {
		if _, err := NewEngine(thresholds); err == nil {
			t.Fatalf("expected error for thresholds %v", thresholds)
		}
	}
}

func TestNewEngineSortsThresholds(t *testing.T) {
	e, err := NewEngine([]float64{0.05, 0.01, 0.03})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	got := e.Thresholds()
	if got[0] != 0.01 || got[1] != 0.03 || got[2] != 0.05 {
		t.Fatalf("thresholds not sorted: %v", got)
	}
}
