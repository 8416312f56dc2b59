package bot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/quantbox/cvar-trading-bot/internal/journal"
	"github.com/quantbox/cvar-trading-bot/pkg/types"
)

// Engine supervises one trading loop per symbol and owns the shared
// trade journal.
type Engine struct {
	loops   []*Loop
	journal journal.Store
	xlsxDir string
	started time.Time
}

// NewEngine wraps the symbol loops. xlsxDir, when non-empty, receives a
// session export of the trade history on shutdown.
func NewEngine(loops []*Loop, store journal.Store, xlsxDir string) (*Engine, error) {
	if len(loops) == 0 {
		return nil, fmt.Errorf("at least one symbol loop is required")
	}
	if store == nil {
		store = journal.NewNoopStore()
	}
	return &Engine{
		loops:   loops,
		journal: store,
		xlsxDir: xlsxDir,
	}, nil
}

// Start launches every symbol loop. On the first failure the already
// started loops are stopped again.
func (e *Engine) Start() error {
	e.started = time.Now()
	for i, loop := range e.loops {
		if err := loop.Start(); err != nil {
			for j := 0; j < i; j++ {
				e.loops[j].Stop()
			}
			return fmt.Errorf("failed to start loop for %s: %w", loop.symbol, err)
		}
	}
	e.printStartupInfo()
	return nil
}

// Stop shuts down all loops, prints the session summary and exports the
// trade history.
func (e *Engine) Stop() {
	for _, loop := range e.loops {
		loop.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	records, err := e.journal.List(ctx, "")
	if err != nil {
		fmt.Printf("Could not load trade history for summary: %v\n", err)
		return
	}

	e.printSessionSummary(records)

	if e.xlsxDir != "" && len(records) > 0 {
		path := filepath.Join(e.xlsxDir, fmt.Sprintf("session_%s.xlsx", time.Now().Format("20060102_150405")))
		if err := journal.ExportXLSX(records, path); err != nil {
			fmt.Printf("Could not export trade history: %v\n", err)
		} else {
			fmt.Printf("Trade history exported to %s\n", path)
		}
	}
}

func (e *Engine) printStartupInfo() {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("ENGINE STARTED")
	t.SetStyle(table.StyleRounded)

	for _, loop := range e.loops {
		t.AppendRow(table.Row{"📊 Symbol", loop.symbol})
	}
	t.AppendRow(table.Row{"⏰ Started", e.started.Format("2006-01-02 15:04:05")})

	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 12, Align: text.AlignLeft},
		{Number: 2, WidthMin: 25, Align: text.AlignLeft},
	})

	t.Render()
	fmt.Println()
}

func (e *Engine) printSessionSummary(records []types.TradeRecord) {
	perSymbol := make(map[string]int)
	perMode := make(map[types.TradeMode]int)
	for _, r := range records {
		perSymbol[r.Symbol]++
		perMode[r.Mode]++
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("SESSION SUMMARY")
	t.SetStyle(table.StyleRounded)

	t.AppendRows([]table.Row{
		{"⏰ Duration", time.Since(e.started).Round(time.Second).String()},
		{"📈 Trades", fmt.Sprintf("%d", len(records))},
	})

	if len(perSymbol) > 0 {
		t.AppendSeparator()
		for _, loop := range e.loops {
			t.AppendRow(table.Row{"📊 " + loop.symbol, fmt.Sprintf("%d trades", perSymbol[loop.symbol])})
		}
	}

	if len(perMode) > 0 {
		t.AppendSeparator()
		for _, mode := range []types.TradeMode{types.ModeEntry, types.ModeFlip, types.ModeStopLoss, types.ModeTakeProfit, types.ModeManualExit} {
			if n := perMode[mode]; n > 0 {
				t.AppendRow(table.Row{"🔄 " + string(mode), fmt.Sprintf("%d", n)})
			}
		}
	}

	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 15, Align: text.AlignLeft},
		{Number: 2, WidthMin: 20, Align: text.AlignLeft},
	})

	t.Render()
	fmt.Println()
}
