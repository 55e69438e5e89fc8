package market

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"
)

type bookTickerEvent struct {
	Symbol   string `json:"s"`
	BidPrice string `json:"b"`
	AskPrice string `json:"a"`
}

// StreamSpotPrice reads one <symbol>@bookTicker event and returns the mid price.
// wsBaseURL is the raw stream endpoint, e.g. wss://fstream.binance.com/ws.
func StreamSpotPrice(ctx context.Context, wsBaseURL, symbol string) (float64, error) {
	url := fmt.Sprintf("%s/%s@bookTicker", strings.TrimRight(wsBaseURL, "/"), strings.ToLower(symbol))

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return 0, fmt.Errorf("连接行情流失败: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	}

	_, message, err := conn.ReadMessage()
	if err != nil {
		return 0, fmt.Errorf("读取行情流失败: %w", err)
	}

	var event bookTickerEvent
	if err := json.Unmarshal(message, &event); err != nil {
		return 0, fmt.Errorf("解析bookTicker失败: %w", err)
	}
	bid, errB := strconv.ParseFloat(event.BidPrice, 64)
	ask, errA := strconv.ParseFloat(event.AskPrice, 64)
	if errB != nil || errA != nil || bid <= 0 || ask <= 0 {
		return 0, fmt.Errorf("%w: bookTicker bid=%q ask=%q", ErrMalformedData, event.BidPrice, event.AskPrice)
	}
	return (bid + ask) / 2, nil
}
