package schema

import (
	"testing"

	json "github.com/goccy/go-json"
)

func TestMapStatus(t *testing.T) {
	cases := []struct {
		native string
		want   OrderStatus
	}{
		{"canceled", StatusCanceled},
		{"partial-canceled", StatusCanceled},
		{"partial-filled", StatusPartiallyFilled},
		{"filled", StatusFilled},
		{"submitted", StatusNew},
		{"created", StatusNew},
		{"", StatusNew},
	}
	for _, tc := range cases {
		if got := MapStatus(tc.native); got != tc.want {
			t.Fatalf("MapStatus(%q) = %s, want %s", tc.native, got, tc.want)
		}
	}
}

func TestEventKeys(t *testing.T) {
	candle := Candle{Symbol: "BTCUSDT", Interval: "1m"}
	if got := candle.EventKey(); got != "btcusdt@kline_1m" {
		t.Fatalf("candle key = %q", got)
	}
	ticker := MiniTicker{Symbol: "ETHBTC"}
	if got := ticker.EventKey(); got != "ethbtc@miniTicker" {
		t.Fatalf("ticker key = %q", got)
	}
	book := OrderBookTop{Symbol: "BTCUSDT"}
	if got := book.EventKey(); got != "btcusdt@depth5" {
		t.Fatalf("book key = %q", got)
	}
	if got := (ExecutionReport{}).EventKey(); got != KeyExecutionReport {
		t.Fatalf("execution report key = %q", got)
	}

	symbol, stream := SplitKey("btcusdt@kline_1m")
	if symbol != "btcusdt" || stream != "kline_1m" {
		t.Fatalf("SplitKey = %q, %q", symbol, stream)
	}
	symbol, stream = SplitKey(KeyExecutionReport)
	if symbol != "" || stream != KeyExecutionReport {
		t.Fatalf("SplitKey user = %q, %q", symbol, stream)
	}
}

func TestKlineArrayRoundTrip(t *testing.T) {
	k := Kline{
		OpenTime: 1700000000000, Open: "100.1", High: "101", Low: "99.5",
		Close: "100.7", Volume: "12.5", CloseTime: 1700000059999,
		QuoteVolume: "1258.75", Trades: 42, TakerBuyBase: "6.1", TakerBuyQuote: "614",
	}
	raw, err := json.Marshal(k)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back Kline
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back != k {
		t.Fatalf("round trip mismatch: %+v != %+v", back, k)
	}
}

func TestValidInterval(t *testing.T) {
	for _, i := range []string{"1m", "1h", "1M"} {
		if !ValidInterval(i) {
			t.Fatalf("expected %s to be canonical", i)
		}
	}
	for _, i := range []string{"2m", "60min", "1week", ""} {
		if ValidInterval(i) {
			t.Fatalf("expected %s to be rejected", i)
		}
	}
}

func TestTerminalStatuses(t *testing.T) {
	if StatusNew.Terminal() || StatusPartiallyFilled.Terminal() {
		t.Fatalf("non-terminal statuses flagged terminal")
	}
	for _, s := range []OrderStatus{StatusFilled, StatusCanceled, StatusRejected, StatusExpired} {
		if !s.Terminal() {
			t.Fatalf("%s should be terminal", s)
		}
	}
}

func TestParseVenue(t *testing.T) {
	if v, err := ParseVenue(" Binance "); err != nil || v != VenueBinance {
		t.Fatalf("ParseVenue(binance) = %v, %v", v, err)
	}
	if _, err := ParseVenue("kraken"); err == nil {
		t.Fatalf("expected unsupported exchange error")
	}
}
