package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/genes3e7/Closed-Loop-Leverage-Grid-Bot-Optimizer/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// newFuturesMock 模拟币安U本位合约接口
func newFuturesMock(t *testing.T, signedHits *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var respBody interface{}

		switch r.URL.Path {
		case "/fapi/v1/ticker/bookTicker":
			respBody = []map[string]interface{}{
				{"symbol": "BTCUSDT", "bidPrice": "99.5", "bidQty": "3", "askPrice": "100.5", "askQty": "2"},
			}
		case "/fapi/v1/premiumIndex":
			respBody = []map[string]interface{}{
				{"symbol": "BTCUSDT", "markPrice": "100.1", "lastFundingRate": "0.00025", "nextFundingTime": 1, "time": 1},
			}
		case "/fapi/v1/fundingInfo":
			respBody = []map[string]interface{}{
				{"symbol": "BTCUSDT", "adjustedFundingRateCap": "0.02", "adjustedFundingRateFloor": "-0.02", "fundingIntervalHours": 4},
				{"symbol": "ETHUSDT", "adjustedFundingRateCap": "0.02", "adjustedFundingRateFloor": "-0.02", "fundingIntervalHours": 1},
			}
		case "/fapi/v1/ticker/price", "/fapi/v2/ticker/price":
			respBody = []map[string]interface{}{
				{"symbol": "BTCUSDT", "price": "100.2", "time": 1},
			}
		case "/fapi/v1/commissionRate":
			atomic.AddInt32(signedHits, 1)
			respBody = map[string]interface{}{
				"symbol": "BTCUSDT", "makerCommissionRate": "0.00018", "takerCommissionRate": "0.00045",
			}
		case "/fapi/v1/leverageBracket":
			atomic.AddInt32(signedHits, 1)
			respBody = []map[string]interface{}{
				{"symbol": "BTCUSDT", "brackets": []map[string]interface{}{
					{"bracket": 2, "initialLeverage": 100, "notionalCap": 250000, "notionalFloor": 50000, "maintMarginRatio": 0.005, "cum": 50},
					{"bracket": 1, "initialLeverage": 125, "notionalCap": 50000, "notionalFloor": 0, "maintMarginRatio": 0.004, "cum": 0},
				}},
			}
		default:
			w.WriteHeader(http.StatusNotFound)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		assert.NoError(t, json.NewEncoder(w).Encode(respBody))
	}))
}

func failingServer() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"code":-1000,"msg":"unknown error"}`))
	}))
}

type stubReference struct {
	snap MarketSnapshot
	err  error
}

func (s stubReference) FetchMarket(context.Context, string) (MarketSnapshot, error) {
	return s.snap, s.err
}

func pct(v float64) *float64 { return &v }

func TestLiveFeeProvider_WithKeys(t *testing.T) {
	var signed int32
	server := newFuturesMock(t, &signed)
	defer server.Close()

	p := NewLiveFeeProvider("key", "secret", server.URL, zap.NewNop())
	fees, err := p.FetchFees(context.Background(), "BTCUSDT")
	require.NoError(t, err)

	assert.Equal(t, models.FeeSourceLive, fees.FeeSource)
	assert.Equal(t, models.FeeSourceLive, fees.MarketSource)
	assert.InDelta(t, 0.00018, fees.MakerFee, 1e-12)
	assert.InDelta(t, 0.00045, fees.TakerFee, 1e-12)
	assert.InDelta(t, 0.00025, fees.FundingRate, 1e-12)
	assert.Equal(t, 4.0, fees.FundingIntervalHours)
	assert.InDelta(t, 1.0/100.5, fees.Spread, 1e-12)
	assert.InDelta(t, 100.2, fees.LastPrice, 1e-12)
	assert.InDelta(t, 0.004, fees.MaintenanceMarginRate, 1e-12)
	assert.Equal(t, 125.0, fees.MaxLeverage)
	assert.Equal(t, int32(2), atomic.LoadInt32(&signed))
}

func TestLiveFeeProvider_WithoutKeys(t *testing.T) {
	var signed int32
	server := newFuturesMock(t, &signed)
	defer server.Close()

	p := NewLiveFeeProvider("", "", server.URL, zap.NewNop())
	fees, err := p.FetchFees(context.Background(), "BTCUSDT")
	require.NoError(t, err)

	assert.Equal(t, models.FeeSourceDefault, fees.FeeSource)
	assert.Equal(t, models.FeeSourceLive, fees.MarketSource)
	assert.Equal(t, standardMakerFee, fees.MakerFee)
	assert.Equal(t, standardTakerFee, fees.TakerFee)
	assert.Zero(t, fees.MaintenanceMarginRate)
	assert.Zero(t, atomic.LoadInt32(&signed))
}

func TestLiveFeeProvider_DegradesToDefaults(t *testing.T) {
	server := failingServer()
	defer server.Close()

	p := NewLiveFeeProvider("key", "secret", server.URL, zap.NewNop())
	fees, err := p.FetchFees(context.Background(), "BTCUSDT")
	require.NoError(t, err)

	assert.Equal(t, models.FeeSourceDefault, fees.FeeSource)
	assert.Equal(t, models.FeeSourceDefault, fees.MarketSource)
	assert.Equal(t, defaultFundingRate, fees.FundingRate)
	assert.Zero(t, fees.Spread)
	assert.Zero(t, fees.LastPrice)

	_, err = p.FetchMarket(context.Background(), "BTCUSDT")
	assert.Error(t, err)
}

func TestLiveFeeProvider_UnknownSymbolInResponse(t *testing.T) {
	var signed int32
	server := newFuturesMock(t, &signed)
	defer server.Close()

	p := NewLiveFeeProvider("", "", server.URL, zap.NewNop())
	_, err := p.FetchMarket(context.Background(), "ETHUSDT")
	assert.Error(t, err)
}

func TestLiveFeeProvider_FundingInterval(t *testing.T) {
	var signed int32
	server := newFuturesMock(t, &signed)
	defer server.Close()

	p := NewLiveFeeProvider("", "", server.URL, zap.NewNop())
	hours, err := p.fundingInterval(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 4.0, hours)

	// 未调整过参数的交易对不在 fundingInfo 中
	hours, err = p.fundingInterval(context.Background(), "SOLUSDT")
	require.NoError(t, err)
	assert.Equal(t, defaultFundingPeriod, hours)

	failing := failingServer()
	defer failing.Close()
	_, err = NewLiveFeeProvider("", "", failing.URL, zap.NewNop()).fundingInterval(context.Background(), "BTCUSDT")
	assert.Error(t, err)
}

func TestManualFeeProvider_ConfiguredPercent(t *testing.T) {
	ref := stubReference{snap: MarketSnapshot{LastPrice: 42, Spread: 0.001, FundingRate: -0.0002, FundingIntervalHours: 4}}
	p := NewManualFeeProvider(pct(0.02), pct(0.05), nil, ref, zap.NewNop())

	fees, err := p.FetchFees(context.Background(), "XYZUSDT")
	require.NoError(t, err)
	assert.InDelta(t, 0.0002, fees.MakerFee, 1e-12)
	assert.InDelta(t, 0.0005, fees.TakerFee, 1e-12)
	assert.Equal(t, models.FeeSourceManual, fees.FeeSource)
	assert.Equal(t, models.FeeSourceReference, fees.MarketSource)
	assert.Equal(t, -0.0002, fees.FundingRate)
	assert.Equal(t, 4.0, fees.FundingIntervalHours)
	assert.Equal(t, 42.0, fees.LastPrice)
}

func TestManualFeeProvider_ReferenceFailure(t *testing.T) {
	ref := stubReference{err: errors.New("offline")}
	p := NewManualFeeProvider(pct(0.1), pct(0.1), nil, ref, zap.NewNop())

	fees, err := p.FetchFees(context.Background(), "XYZUSDT")
	require.NoError(t, err)
	assert.Equal(t, models.FeeSourceDefault, fees.MarketSource)
	assert.Equal(t, defaultFundingRate, fees.FundingRate)
	assert.Equal(t, defaultFundingPeriod, fees.FundingIntervalHours)
}

func TestManualFeeProvider_Prompt(t *testing.T) {
	in := strings.NewReader("abc\n0.02\n-1\n0.05\n")
	out := &bytes.Buffer{}
	p := NewManualFeeProvider(nil, nil, NewStdinPrompt(in, out, "pionex"), nil, zap.NewNop())

	fees, err := p.FetchFees(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.InDelta(t, 0.0002, fees.MakerFee, 1e-12)
	assert.InDelta(t, 0.0005, fees.TakerFee, 1e-12)
	assert.Equal(t, 2, strings.Count(out.String(), "Invalid input"))
	assert.Contains(t, out.String(), "for pionex")
}

// slowReader 模拟用户输入较慢
type slowReader struct {
	delay time.Duration
	r     io.Reader
}

func (s *slowReader) Read(p []byte) (int, error) {
	time.Sleep(s.delay)
	return s.r.Read(p)
}

func TestManualFeeProvider_PrepareOutlivesRequestTimeout(t *testing.T) {
	in := &slowReader{delay: 150 * time.Millisecond, r: strings.NewReader("0.02\n0.05\n")}
	p := NewManualFeeProvider(nil, nil, NewStdinPrompt(in, io.Discard, "kraken"), nil, zap.NewNop())

	require.NoError(t, p.Prepare(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	fees, err := p.FetchFees(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.InDelta(t, 0.0002, fees.MakerFee, 1e-12)
	assert.InDelta(t, 0.0005, fees.TakerFee, 1e-12)
	assert.Equal(t, models.FeeSourceManual, fees.FeeSource)
}

func TestManualFeeProvider_PrepareIsNoopWithConfiguredFees(t *testing.T) {
	var p Interactive = NewManualFeeProvider(pct(0.02), pct(0.05), func(context.Context) (float64, float64, error) {
		t.Fatal("prompt must not be called")
		return 0, 0, nil
	}, nil, zap.NewNop())
	assert.NoError(t, p.Prepare(context.Background()))
}

func TestManualFeeProvider_NoFees(t *testing.T) {
	p := NewManualFeeProvider(nil, nil, nil, nil, zap.NewNop())
	_, err := p.FetchFees(context.Background(), "BTCUSDT")
	assert.ErrorIs(t, err, ErrNoManualFees)

	p = NewManualFeeProvider(nil, nil, NewStdinPrompt(strings.NewReader("0.02\n"), &bytes.Buffer{}, "x"), nil, zap.NewNop())
	_, err = p.FetchFees(context.Background(), "BTCUSDT")
	assert.ErrorIs(t, err, ErrNoManualFees)
}

func TestResolveExchange(t *testing.T) {
	tests := map[string]string{
		"binance":  "binance",
		"Binance ": "binance",
		"binanse":  "binance",
		"bybitt":   "bybit",
		"krakn":    "kraken",
		"pionex":   "pionex",
		"nosuchex": "nosuchex",
	}
	for in, want := range tests {
		assert.Equal(t, want, ResolveExchange(in, zap.NewNop()), in)
	}
}

func TestNormalizeSymbol(t *testing.T) {
	tests := map[string]string{
		"BTC":           "BTCUSDT",
		"btc":           "BTCUSDT",
		"BTC/USDT":      "BTCUSDT",
		"eth-usdc":      "ETHUSDC",
		"SOL/USDT:USDT": "SOLUSDT",
		"BNBUSDT":       "BNBUSDT",
		"USDT":          "USDTUSDT",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeSymbol(in), in)
	}
}

func TestNewFeeProvider(t *testing.T) {
	cfg := &models.Config{Exchange: "binance"}
	_, ok := NewFeeProvider(cfg, nil, zap.NewNop()).(*LiveFeeProvider)
	assert.True(t, ok)

	cfg.ManualFees = models.ManualFeeConfig{MakerFeePct: pct(0.02), TakerFeePct: pct(0.04)}
	_, ok = NewFeeProvider(cfg, nil, zap.NewNop()).(*ManualFeeProvider)
	assert.True(t, ok)

	cfg = &models.Config{Exchange: "pionex"}
	_, ok = NewFeeProvider(cfg, nil, zap.NewNop()).(*ManualFeeProvider)
	assert.True(t, ok)
}
