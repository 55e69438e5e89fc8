package reporter

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/genes3e7/Closed-Loop-Leverage-Grid-Bot-Optimizer/internal/models"
	"github.com/genes3e7/Closed-Loop-Leverage-Grid-Bot-Optimizer/internal/optimizer"
	"github.com/genes3e7/Closed-Loop-Leverage-Grid-Bot-Optimizer/internal/persistence"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// 状态图例
var legend = map[models.Status]string{
	models.StatusOK:                      "OK: parameters are safe to deploy",
	models.StatusStopInvalidRiskDistance: "STOP: the stop-loss cannot be placed on the correct side of entry",
	models.StatusStopUnsafeLeverage:      "STOP: no leverage keeps liquidation beyond the stop-loss",
	models.StatusStopNegativeEdge:        "STOP: the trade has no positive expected edge",
}

// Legend 返回状态对应的图例文本
func Legend(status models.Status) string {
	if l, ok := legend[status]; ok {
		return l
	}
	return string(status)
}

func newTable(w io.Writer, title string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(title)
	t.SetStyle(table.StyleRounded)
	t.SetColumnConfigs([]table.ColumnConfig{{Number: 2, Align: text.AlignRight}})
	return t
}

// PrintMarketIntel 打印数据采集结果（费用与历史统计）
func PrintMarketIntel(w io.Writer, run *persistence.RunRecord) {
	s, f := run.Statistics, run.Fees
	t := newTable(w, fmt.Sprintf("MARKET INTEL: %s @ %s", run.Symbol, run.Exchange))
	t.AppendRows([]table.Row{
		{"Maker / Taker", fmt.Sprintf("%.4f%% / %.4f%% (%s)", f.MakerFee*100, f.TakerFee*100, f.FeeSource)},
		{"Spread", fmt.Sprintf("%.4f%% (%s)", f.Spread*100, f.MarketSource)},
		{"Funding", fmt.Sprintf("%.4f%% / %.0fh", f.FundingRate*100, f.FundingIntervalHours)},
	})
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"Spot Price", fmt.Sprintf("%.6g", s.SpotPrice)},
		{"Daily Volatility", fmt.Sprintf("%.2f%%", s.DailyVolatility*100)},
		{"Daily Drift", fmt.Sprintf("%.3f%%", s.DailyDrift*100)},
		{"ATR (14)", fmt.Sprintf("%.6g", s.ATR)},
		{"Samples", s.Samples},
	})
	t.Render()
}

// PrintReport 打印策略报告。OK 时输出完整参数，STOP 时输出原因与诊断数据
func PrintReport(w io.Writer, run *persistence.RunRecord) {
	res := run.Result
	title := fmt.Sprintf("STRATEGY REPORT: %s (%.0f Days, %s)", run.Symbol, run.Statistics.HorizonDays(), run.Options.Side)

	for _, note := range run.Notes {
		fmt.Fprintf(w, "NOTE: %s\n", note)
	}

	if res.Status.IsStop() {
		printStop(w, title, res)
		return
	}

	t := newTable(w, title)
	t.AppendRow(table.Row{"Entry Price", price(res.EntryPrice)})
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"1. Grid Bounds", fmt.Sprintf("%s to %s", price(res.Cone.Lower), price(res.Cone.Upper))},
		{"2. Stop Loss", price(res.Boundary.StopLoss)},
		{"3. Take Profit", price(res.Boundary.TakeProfit)},
		{"4. Grid Quantity", fmt.Sprintf("%d lines (step ~%.3f%%)", res.Grid.Lines, res.Grid.Step*100)},
	})
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"5. Liquidation", price(res.Leverage.LiquidationPrice)},
		{"6. Leverage", fmt.Sprintf("%.2fx (max %.2fx)", res.Leverage.Leverage, res.Leverage.MaxLeverage)},
		{"7. Kelly Fraction", fmt.Sprintf("%.4f (sizing %.4f, R/R %.3f)", res.Kelly.KellyFraction, res.Kelly.SizingFraction, res.Kelly.RewardToRisk)},
	})
	t.AppendSeparator()

	header := fmt.Sprintf("EXECUTION (Portfolio %s)", usd(run.Options.AccountSize))
	switch {
	case res.Leverage.MinimumCapital:
		header = "EXECUTION (Recommended Minimum)"
	case run.Options.FixedNotional > 0:
		header = fmt.Sprintf("EXECUTION (Notional %s)", usd(run.Options.FixedNotional))
	}
	t.AppendRow(table.Row{header, ""})
	t.AppendRows([]table.Row{
		{"Transfer To Bot", usd(res.Leverage.Margin)},
		{"Total Exposure", usd(res.Leverage.Notional)},
		{"Min Grid Capital", usd(res.Grid.MinCapital)},
	})
	t.Render()
	fmt.Fprintln(w, Legend(res.Status))
}

func printStop(w io.Writer, title string, res models.GridBotParameterSet) {
	t := newTable(w, title)
	t.AppendRows([]table.Row{
		{"Status", string(res.Status)},
		{"Stage", string(res.Stage)},
	})
	t.AppendSeparator()

	keys := make([]string, 0, len(res.Diagnostics))
	for k := range res.Diagnostics {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		t.AppendRow(table.Row{k, fmt.Sprintf("%.6g", res.Diagnostics[k])})
	}
	t.Render()

	fmt.Fprintln(w, Legend(res.Status))
	fmt.Fprintf(w, "STOP: %s\n", res.Reason)
}

// jsonReport 是 -json 输出的结构
type jsonReport struct {
	RunID      string                     `json:"run_id,omitempty"`
	Exchange   string                     `json:"exchange"`
	Symbol     string                     `json:"symbol"`
	Legend     string                     `json:"legend"`
	Statistics models.MarketStatistics    `json:"statistics"`
	Fees       models.FeeStructure        `json:"fees"`
	Options    optimizer.Options          `json:"options"`
	Result     models.GridBotParameterSet `json:"result"`
	Notes      []string                   `json:"notes,omitempty"`
}

// WriteJSON 以JSON格式输出完整结果
func WriteJSON(w io.Writer, run *persistence.RunRecord) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(jsonReport{
		RunID:      run.ID,
		Exchange:   run.Exchange,
		Symbol:     run.Symbol,
		Legend:     Legend(run.Result.Status),
		Statistics: run.Statistics,
		Fees:       run.Fees,
		Options:    run.Options,
		Result:     run.Result,
		Notes:      run.Notes,
	})
}

func price(v float64) string {
	return fmt.Sprintf("$%.6g", v)
}

func usd(v float64) string {
	return fmt.Sprintf("$%.2f", v)
}

// PrintHistory 打印已保存的运行记录列表（最新在前）
func PrintHistory(w io.Writer, runs []*persistence.RunRecord) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Run ID", "Time (UTC)", "Symbol", "Side", "Status", "Leverage"})
	for _, run := range runs {
		lev := "-"
		if run.Result.Status == models.StatusOK && run.Result.Leverage != nil {
			lev = fmt.Sprintf("%.2fx", run.Result.Leverage.Leverage)
		}
		t.AppendRow(table.Row{
			run.ID,
			run.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
			run.Symbol,
			run.Options.Side,
			run.Result.Status,
			lev,
		})
	}
	if len(runs) == 0 {
		t.AppendRow(table.Row{"(no runs)"})
	}
	t.Render()
}
