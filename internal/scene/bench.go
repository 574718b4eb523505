package scene

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/fuabioo/atlascache/internal/asset"
	"github.com/fuabioo/atlascache/internal/cache"
	"github.com/fuabioo/atlascache/internal/output"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ErrInvalidCycles is returned when a benchmark is asked to run no cycles.
var ErrInvalidCycles = errors.New("cycles must be positive")

// BenchConfig configures a benchmark run.
type BenchConfig struct {
	Layout      Layout
	Capacity    int
	Policy      cache.Policy
	Overflow    cache.Overflow
	Cycles      int
	Seed        uint64
	Concurrency int
	Logger      logrus.FieldLogger
}

// CycleRow records one refresh of the scene.
type CycleRow struct {
	Cycle         int           `json:"cycle"`
	Requests      int           `json:"requests"`
	Hits          int           `json:"hits"`
	Misses        int           `json:"misses"`
	Puts          int           `json:"puts"`
	Rejected      int           `json:"rejected"`
	LoadErrors    int           `json:"load_errors"`
	Evictions     int64         `json:"evictions"`
	CacheLen      int           `json:"cache_len"`
	Resident      int           `json:"resident"`
	ResidentBytes int64         `json:"resident_bytes"`
	Duration      time.Duration `json:"duration_ns"`
}

// Report is the outcome of a benchmark run.
type Report struct {
	RunID    string        `json:"run_id"`
	Started  time.Time     `json:"started"`
	Elapsed  time.Duration `json:"elapsed_ns"`
	Layout   Layout        `json:"layout"`
	Cycles   []CycleRow    `json:"cycles"`
	Cache    cache.Stats   `json:"cache"`
	Assets   asset.Stats   `json:"assets"`
	PeakLen  int           `json:"peak_len"`
	HitRate  float64       `json:"hit_rate"`
	Leaked   []string      `json:"leaked,omitempty"`
	Canceled bool          `json:"canceled,omitempty"`
}

// RunBench draws the layout, then refreshes it cfg.Cycles times, recording
// cache and asset activity per refresh. Afterwards the scene is cleared and
// the cache closed; any texture still resident at that point is reported as
// leaked.
func RunBench(ctx context.Context, src asset.Source, cfg BenchConfig) (*Report, error) {
	if cfg.Cycles < 1 {
		return nil, ErrInvalidCycles
	}
	if err := cfg.Layout.Validate(); err != nil {
		return nil, err
	}
	if cfg.Capacity < 1 {
		return nil, fmt.Errorf("capacity must be positive, got %d", cfg.Capacity)
	}
	log := cfg.Logger
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}

	r := &Report{
		RunID:   uuid.NewString(),
		Started: time.Now(),
		Layout:  cfg.Layout,
	}
	log = log.WithField("run", r.RunID)

	m := asset.NewManager(src, log)
	c := cache.New(cfg.Capacity, m,
		cache.WithPolicy(cfg.Policy),
		cache.WithOverflow(cfg.Overflow),
		cache.WithLogger(log),
	)
	sc := New(cfg.Layout, c, m, Options{
		Seed:        cfg.Seed,
		Concurrency: cfg.Concurrency,
		Logger:      log,
	})

	log.WithFields(logrus.Fields{
		"capacity": cfg.Capacity,
		"policy":   cfg.Policy,
		"overflow": cfg.Overflow,
		"cycles":   cfg.Cycles,
		"bundles":  cfg.Layout.Bundles(),
		"sprites":  cfg.Layout.Sprites(),
	}).Info("benchmark starting")

	var runErr error
	var evicted int64
	for i := 1; i <= cfg.Cycles; i++ {
		start := time.Now()
		fs, err := sc.Refresh(ctx)
		cs := c.Stats()
		as := m.Stats()
		r.Cycles = append(r.Cycles, CycleRow{
			Cycle:         i,
			Requests:      fs.Requests,
			Hits:          fs.Hits,
			Misses:        fs.Misses,
			Puts:          fs.Puts,
			Rejected:      fs.Rejected,
			LoadErrors:    fs.LoadErrors,
			Evictions:     cs.Evictions - evicted,
			CacheLen:      cs.Len,
			Resident:      as.Resident,
			ResidentBytes: as.ResidentBytes,
			Duration:      time.Since(start),
		})
		evicted = cs.Evictions
		if cs.Len > r.PeakLen {
			r.PeakLen = cs.Len
		}
		if err != nil {
			runErr = err
			break
		}
	}

	sc.Clear()
	c.Close()

	r.Cache = c.Stats()
	r.Assets = m.Stats()
	r.Elapsed = time.Since(r.Started)
	if lookups := r.Cache.Hits + r.Cache.Misses; lookups > 0 {
		r.HitRate = float64(r.Cache.Hits) / float64(lookups)
	}
	for _, t := range m.Resident() {
		r.Leaked = append(r.Leaked, t.String())
	}

	if runErr != nil {
		if !errors.Is(runErr, context.Canceled) && !errors.Is(runErr, context.DeadlineExceeded) {
			return r, runErr
		}
		r.Canceled = true
	}

	entry := log.WithFields(logrus.Fields{
		"hit_rate":  fmt.Sprintf("%.3f", r.HitRate),
		"evictions": r.Cache.Evictions,
		"rejected":  r.Cache.Rejected,
		"elapsed":   r.Elapsed,
	})
	if len(r.Leaked) > 0 {
		entry.WithField("leaked", len(r.Leaked)).Warn("benchmark finished with leaked textures")
	} else {
		entry.Info("benchmark finished")
	}
	return r, nil
}

// Header implements output.Tabular.
func (r *Report) Header() []string {
	return []string{
		"cycle", "requests", "hits", "misses", "puts", "rejected", "load_errors",
		"evictions", "cache_len", "resident", "resident_bytes", "duration_ms",
	}
}

// Rows implements output.Tabular.
func (r *Report) Rows() [][]string {
	rows := make([][]string, 0, len(r.Cycles))
	for _, c := range r.Cycles {
		row := make([]string, 0, 12)
		for _, v := range c.values() {
			switch x := v.(type) {
			case int:
				row = append(row, strconv.Itoa(x))
			case int64:
				row = append(row, strconv.FormatInt(x, 10))
			case float64:
				row = append(row, strconv.FormatFloat(x, 'f', 3, 64))
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// Sheets implements output.Workbook.
func (r *Report) Sheets() []output.Sheet {
	summary := [][]any{
		{"run_id", r.RunID},
		{"started", r.Started.Format(time.RFC3339)},
		{"elapsed_ms", ms(r.Elapsed)},
		{"capacity", r.Cache.Capacity},
		{"policy", r.Cache.Policy},
		{"overflow", r.Cache.Overflow},
		{"cycles", len(r.Cycles)},
		{"sprites_per_cycle", r.Layout.Sprites()},
		{"hits", r.Cache.Hits},
		{"misses", r.Cache.Misses},
		{"hit_rate", r.HitRate},
		{"evictions", r.Cache.Evictions},
		{"skipped_pinned", r.Cache.Skipped},
		{"rejected", r.Cache.Rejected},
		{"peak_len", r.PeakLen},
		{"textures_loaded", r.Assets.Loads},
		{"textures_freed", r.Assets.Frees},
		{"leaked", len(r.Leaked)},
	}

	cycles := make([][]any, 0, len(r.Cycles))
	for _, c := range r.Cycles {
		cycles = append(cycles, c.values())
	}

	sheets := []output.Sheet{
		{Name: "Summary", Header: []string{"metric", "value"}, Rows: summary},
		{Name: "Cycles", Header: r.Header(), Rows: cycles},
	}
	if len(r.Leaked) > 0 {
		leaked := make([][]any, 0, len(r.Leaked))
		for _, l := range r.Leaked {
			leaked = append(leaked, []any{l})
		}
		sheets = append(sheets, output.Sheet{Name: "Leaked", Header: []string{"texture"}, Rows: leaked})
	}
	return sheets
}

func (c CycleRow) values() []any {
	return []any{
		c.Cycle, c.Requests, c.Hits, c.Misses, c.Puts, c.Rejected, c.LoadErrors,
		c.Evictions, c.CacheLen, c.Resident, c.ResidentBytes, ms(c.Duration),
	}
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
