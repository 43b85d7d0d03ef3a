package gateway

import (
	"errors"
	"fmt"
	"testing"

	"github.com/adshao/go-binance/v2/common"
)

func TestWrapBinanceErrOrderNotExist(t *testing.T) {
	err := wrapBinanceErr("get order", &common.APIError{Code: -2013, Message: "Order does not exist."})
	if !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestWrapBinanceErrAPIErrorPreserved(t *testing.T) {
	apiErr := &common.APIError{Code: -1013, Message: "Filter failure: LOT_SIZE"}
	err := wrapBinanceErr("create order", apiErr)
	if errors.Is(err, ErrUnavailable) || errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("API error must not be reclassified, got %v", err)
	}
	var got *common.APIError
	if !errors.As(err, &got) || got.Code != -1013 {
		t.Fatalf("original API error must be unwrappable, got %v", err)
	}
}

func TestWrapBinanceErrNetworkAsUnavailable(t *testing.T) {
	err := wrapBinanceErr("ticker", fmt.Errorf("dial tcp: connection refused"))
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("network error must map to ErrUnavailable, got %v", err)
	}
}

func TestFormatAmount(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{0.001, "0.001"},
		{100, "100"},
		{0.12345678, "0.12345678"},
		// 小数值不得退化为科学计数法
		{0.0000001, "0.0000001"},
	}
	for _, tc := range cases {
		if got := formatAmount(tc.in); got != tc.want {
			t.Fatalf("formatAmount(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
