// Package charts renders stored candle data as self-contained HTML documents:
// candlestick charts with moving-average overlays, normalized multi-symbol
// comparisons, and volume bars. Rendering always goes through the resampler,
// so any supported timeframe can be charted from the base dataset.
package charts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/shopspring/decimal"

	"github.com/quantfeed/candlekeep/internal/config"
	"github.com/quantfeed/candlekeep/internal/errs"
	"github.com/quantfeed/candlekeep/internal/models"
	"github.com/quantfeed/candlekeep/internal/resample"
	"github.com/quantfeed/candlekeep/internal/storage"
)

const axisTimeFormat = "2006-01-02 15:04"

// Renderer loads datasets, resamples them, and writes chart HTML files.
type Renderer struct {
	store  storage.DatasetStore
	cfg    *config.Config
	logger *slog.Logger
}

// NewRenderer creates a chart renderer.
func NewRenderer(store storage.DatasetStore, cfg *config.Config, log *slog.Logger) *Renderer {
	if log == nil {
		log = slog.Default()
	}
	return &Renderer{
		store:  store,
		cfg:    cfg,
		logger: log.With(slog.String("component", "charts")),
	}
}

// KlineOptions toggles the optional indicator panels under a candlestick
// chart. Panels are skipped silently when the series is shorter than the
// indicator window.
type KlineOptions struct {
	ShowRSI bool
	ShowATR bool
}

// Candlestick renders a kline chart for one symbol with the configured SMA
// overlays, a volume bar chart underneath, and optional RSI/ATR panels.
// Returns the output file path.
func (r *Renderer) Candlestick(ctx context.Context, symbol string, tf resample.Timeframe, start, end time.Time, panels KlineOptions) (string, error) {
	candles, err := r.loadSeries(ctx, symbol, tf, start, end)
	if err != nil {
		return "", err
	}

	loc := r.cfg.Location()
	xAxis := make([]string, 0, len(candles))
	klineData := make([]opts.KlineData, 0, len(candles))
	volumeData := make([]opts.BarData, 0, len(candles))
	closes := make([]decimal.Decimal, 0, len(candles))

	for i := range candles {
		c := &candles[i]
		open, high, low, closePrice, volume, err := c.Floats()
		if err != nil {
			return "", errs.Classify(err, "charts", "candlestick")
		}
		xAxis = append(xAxis, c.Timestamp.In(loc).Format(axisTimeFormat))
		// echarts kline order: open, close, lowest, highest.
		klineData = append(klineData, opts.KlineData{Value: [4]float64{open, closePrice, low, high}})
		volumeData = append(volumeData, opts.BarData{Value: volume})

		d, err := c.CloseDecimal()
		if err != nil {
			return "", errs.Classify(err, "charts", "candlestick")
		}
		closes = append(closes, d)
	}

	kline := charts.NewKLine()
	kline.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: fmt.Sprintf("%s %s", symbol, tf),
			Width:     r.cfg.Charts.Width,
			Height:    r.cfg.Charts.Height,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    fmt.Sprintf("%s %s candlestick", symbol, tf),
			Subtitle: rangeSubtitle(candles, loc),
		}),
		charts.WithYAxisOpts(opts.YAxis{Scale: opts.Bool(true)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", Start: 0, End: 100}),
	)
	kline.SetXAxis(xAxis).AddSeries(symbol, klineData,
		charts.WithItemStyleOpts(opts.ItemStyle{
			Color:        r.cfg.Charts.UpColor,
			Color0:       r.cfg.Charts.DownColor,
			BorderColor:  r.cfg.Charts.UpColor,
			BorderColor0: r.cfg.Charts.DownColor,
		}))

	for i, window := range r.cfg.Charts.MAWindows {
		if window <= 0 || window > len(closes) {
			continue
		}
		ma := charts.NewLine()
		ma.SetXAxis(xAxis).AddSeries(fmt.Sprintf("SMA %d", window), smaSeries(closes, window),
			charts.WithLineStyleOpts(opts.LineStyle{
				Color: r.lineColor(i),
				Width: 1.5,
			}))
		kline.Overlap(ma)
	}

	volume := charts.NewBar()
	volume.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Width:  r.cfg.Charts.Width,
			Height: "250px",
		}),
		charts.WithTitleOpts(opts.Title{Title: fmt.Sprintf("%s %s volume", symbol, tf)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", Start: 0, End: 100}),
	)
	volume.SetXAxis(xAxis).AddSeries("volume", volumeData)

	page := components.NewPage()
	page.AddCharts(kline, volume)

	if panels.ShowRSI {
		if pts := rsiPoints(closes, indicatorPeriod); pts != nil {
			rsi := charts.NewLine()
			rsi.SetGlobalOptions(
				charts.WithInitializationOpts(opts.Initialization{
					Width:  r.cfg.Charts.Width,
					Height: "250px",
				}),
				charts.WithTitleOpts(opts.Title{Title: fmt.Sprintf("%s %s RSI (%d)", symbol, tf, indicatorPeriod)}),
				charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: 100}),
				charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
			)
			rsi.SetXAxis(xAxis).AddSeries(fmt.Sprintf("RSI %d", indicatorPeriod), pts,
				charts.WithLineStyleOpts(opts.LineStyle{Color: "blue"}))
			page.AddCharts(rsi)
		}
	}

	if panels.ShowATR {
		pts, err := atrPoints(candles, indicatorPeriod)
		if err != nil {
			return "", errs.Classify(err, "charts", "candlestick")
		}
		if pts != nil {
			atr := charts.NewLine()
			atr.SetGlobalOptions(
				charts.WithInitializationOpts(opts.Initialization{
					Width:  r.cfg.Charts.Width,
					Height: "250px",
				}),
				charts.WithTitleOpts(opts.Title{Title: fmt.Sprintf("%s %s ATR (%d)", symbol, tf, indicatorPeriod)}),
				charts.WithYAxisOpts(opts.YAxis{Scale: opts.Bool(true)}),
				charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
			)
			atr.SetXAxis(xAxis).AddSeries(fmt.Sprintf("ATR %d", indicatorPeriod), pts,
				charts.WithLineStyleOpts(opts.LineStyle{Color: "orange"}))
			page.AddCharts(atr)
		}
	}

	path := r.outputPath(fmt.Sprintf("%s_%s_kline.html", symbol, tf))
	if err := r.renderPage(page, path); err != nil {
		return "", err
	}
	r.logger.Info("rendered candlestick chart",
		slog.String("symbol", symbol),
		slog.String("timeframe", string(tf)),
		slog.Int("candles", len(candles)),
		slog.String("path", path))
	return path, nil
}

// Comparison renders close-price lines for several symbols on one chart.
// With normalize set, every series is rebased to 100 at its first point so
// relative performance is comparable across price scales.
func (r *Renderer) Comparison(ctx context.Context, symbols []string, tf resample.Timeframe, start, end time.Time, normalize bool) (string, error) {
	if len(symbols) < 2 {
		return "", fmt.Errorf("comparison chart needs at least 2 symbols, got %d", len(symbols))
	}

	loc := r.cfg.Location()
	line := charts.NewLine()

	title := "close price comparison"
	if normalize {
		title = "normalized performance comparison (first point = 100)"
	}
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: title,
			Width:     r.cfg.Charts.Width,
			Height:    r.cfg.Charts.Height,
		}),
		charts.WithTitleOpts(opts.Title{Title: title}),
		charts.WithYAxisOpts(opts.YAxis{Scale: opts.Bool(true)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", Start: 0, End: 100}),
	)

	// Load everything first so the axis can cover the union of timestamps.
	// Symbols with shorter histories or internal gaps then align by bucket
	// instead of drifting against the labels.
	closesBySymbol := make(map[string]map[int64]decimal.Decimal, len(symbols))
	var ticks []int64
	seen := make(map[int64]struct{})
	for _, symbol := range symbols {
		candles, err := r.loadSeries(ctx, symbol, tf, start, end)
		if err != nil {
			return "", err
		}

		closes := make(map[int64]decimal.Decimal, len(candles))
		for j := range candles {
			closePrice, err := candles[j].CloseDecimal()
			if err != nil {
				return "", errs.Classify(err, "charts", "comparison")
			}
			ms := candles[j].Timestamp.UnixMilli()
			closes[ms] = closePrice
			if _, ok := seen[ms]; !ok {
				seen[ms] = struct{}{}
				ticks = append(ticks, ms)
			}
		}
		closesBySymbol[symbol] = closes
	}
	sort.Slice(ticks, func(i, j int) bool { return ticks[i] < ticks[j] })

	xAxis := make([]string, len(ticks))
	for i, ms := range ticks {
		xAxis[i] = time.UnixMilli(ms).In(loc).Format(axisTimeFormat)
	}
	line.SetXAxis(xAxis)

	hundred := decimal.NewFromInt(100)
	for i, symbol := range symbols {
		closes := closesBySymbol[symbol]

		var base decimal.Decimal
		haveBase := false
		points := make([]opts.LineData, len(ticks))
		for j, ms := range ticks {
			closePrice, ok := closes[ms]
			if !ok {
				points[j] = opts.LineData{Value: "-"}
				continue
			}
			value := closePrice
			if normalize {
				if !haveBase {
					base = closePrice
					haveBase = true
				}
				if base.IsZero() {
					return "", fmt.Errorf("cannot normalize %s: first close is zero", symbol)
				}
				value = closePrice.Div(base).Mul(hundred)
			}
			points[j] = opts.LineData{Value: value.InexactFloat64()}
		}

		line.AddSeries(symbol, points,
			charts.WithLineStyleOpts(opts.LineStyle{Color: r.lineColor(i)}))
	}

	suffix := "compare"
	if normalize {
		suffix = "compare_norm"
	}
	path := r.outputPath(fmt.Sprintf("%s_%s_%s.html", strings.Join(symbols, "_"), tf, suffix))
	if err := r.renderChart(line, path); err != nil {
		return "", err
	}
	r.logger.Info("rendered comparison chart",
		slog.Int("symbols", len(symbols)),
		slog.String("timeframe", string(tf)),
		slog.String("path", path))
	return path, nil
}

// Volume renders a standalone per-bucket volume bar chart for one symbol.
func (r *Renderer) Volume(ctx context.Context, symbol string, tf resample.Timeframe, start, end time.Time) (string, error) {
	candles, err := r.loadSeries(ctx, symbol, tf, start, end)
	if err != nil {
		return "", err
	}

	loc := r.cfg.Location()
	xAxis := make([]string, 0, len(candles))
	data := make([]opts.BarData, 0, len(candles))
	for i := range candles {
		_, _, _, _, volume, err := candles[i].Floats()
		if err != nil {
			return "", errs.Classify(err, "charts", "volume")
		}
		xAxis = append(xAxis, candles[i].Timestamp.In(loc).Format(axisTimeFormat))
		data = append(data, opts.BarData{Value: volume})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: fmt.Sprintf("%s %s volume", symbol, tf),
			Width:     r.cfg.Charts.Width,
			Height:    r.cfg.Charts.Height,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    fmt.Sprintf("%s %s volume", symbol, tf),
			Subtitle: rangeSubtitle(candles, loc),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", Start: 0, End: 100}),
	)
	bar.SetXAxis(xAxis).AddSeries("volume", data,
		charts.WithItemStyleOpts(opts.ItemStyle{Color: r.cfg.Charts.UpColor}))

	path := r.outputPath(fmt.Sprintf("%s_%s_volume.html", symbol, tf))
	if err := r.renderChart(bar, path); err != nil {
		return "", err
	}
	r.logger.Info("rendered volume chart",
		slog.String("symbol", symbol),
		slog.String("timeframe", string(tf)),
		slog.String("path", path))
	return path, nil
}

// loadSeries loads a symbol's dataset, clips it, and resamples it to the
// requested timeframe.
func (r *Renderer) loadSeries(ctx context.Context, symbol string, tf resample.Timeframe, start, end time.Time) ([]models.Candle, error) {
	base, err := r.store.LoadRange(ctx, symbol, start, end)
	if err != nil {
		if errors.Is(err, storage.ErrDatasetNotFound) {
			return nil, fmt.Errorf("%w: %s", errs.ErrNoLocalData, symbol)
		}
		return nil, errs.Classify(err, "charts", "load_dataset")
	}
	if len(base) == 0 {
		return nil, fmt.Errorf("%w: %s (no candles in the requested range)", errs.ErrNoLocalData, symbol)
	}
	return resample.Aggregate(base, tf, r.cfg.Location())
}

func (r *Renderer) outputPath(name string) string {
	return filepath.Join(r.cfg.Charts.OutputDir, name)
}

func (r *Renderer) lineColor(i int) string {
	palette := r.cfg.Charts.LineColors
	if len(palette) == 0 {
		return ""
	}
	return palette[i%len(palette)]
}

type renderable interface {
	Render(w io.Writer) error
}

func (r *Renderer) renderChart(chart renderable, path string) error {
	return r.writeHTML(path, chart.Render)
}

func (r *Renderer) renderPage(page *components.Page, path string) error {
	return r.writeHTML(path, page.Render)
}

func (r *Renderer) writeHTML(path string, render func(w io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errs.Classify(fmt.Errorf("create chart directory: %w", err), "charts", "render")
	}
	f, err := os.Create(path)
	if err != nil {
		return errs.Classify(fmt.Errorf("create chart file: %w", err), "charts", "render")
	}
	defer f.Close()

	if err := render(f); err != nil {
		return errs.Classify(fmt.Errorf("render chart: %w", err), "charts", "render")
	}
	return nil
}

// smaSeries computes a simple moving average over closes. Points before the
// window fills are emitted as echarts missing values so the overlay starts at
// the right offset.
func smaSeries(closes []decimal.Decimal, window int) []opts.LineData {
	out := make([]opts.LineData, len(closes))
	sum := decimal.Zero
	w := decimal.NewFromInt(int64(window))
	for i := range closes {
		sum = sum.Add(closes[i])
		if i >= window {
			sum = sum.Sub(closes[i-window])
		}
		if i >= window-1 {
			out[i] = opts.LineData{Value: sum.Div(w).InexactFloat64()}
		} else {
			out[i] = opts.LineData{Value: "-"}
		}
	}
	return out
}

func rangeSubtitle(candles []models.Candle, loc *time.Location) string {
	if len(candles) == 0 {
		return ""
	}
	return fmt.Sprintf("%s to %s",
		candles[0].Timestamp.In(loc).Format(axisTimeFormat),
		candles[len(candles)-1].Timestamp.In(loc).Format(axisTimeFormat))
}
