package main

import (
	"context"
	"encoding/json"
	"flag"
	"math"
	"os"
	"os/signal"
	"syscall"

	"github.com/rzzdr/localvol-pde/config"
	"github.com/rzzdr/localvol-pde/internal/market"
	"github.com/rzzdr/localvol-pde/internal/risk"
	"github.com/rzzdr/localvol-pde/internal/smile"
	"github.com/rzzdr/localvol-pde/pkg/metrics"
	"github.com/rzzdr/localvol-pde/pkg/models"
	"github.com/rzzdr/localvol-pde/pkg/utils/logger"
	"github.com/rzzdr/localvol-pde/pkg/utils/performance"
)

var (
	ladder   = flag.Bool("ladder", false, "Also print the forward delta/gamma ladder")
	serve    = flag.Bool("serve", false, "Keep serving metrics until interrupted")
	bucketed = flag.Bool("bucketed", false, "Also run bucketed vega against flat quotes around the job")
	profile  = flag.String("profile", "", "Directory to write CPU and heap profiles of the run to")
)

// report is the JSON document written to stdout
type report struct {
	RunID  string             `json:"run_id"`
	Expiry float64            `json:"expiry"`
	Strike float64            `json:"strike"`
	IsCall bool               `json:"is_call"`
	Greeks map[string]float64 `json:"greeks"`
	Ladder []ladderRow        `json:"ladder,omitempty"`
	Vega   *bucketReport      `json:"bucketed_vega,omitempty"`
}

type bucketReport struct {
	Expiries []float64   `json:"expiries"`
	Strikes  []float64   `json:"strikes"`
	Vega     [][]float64 `json:"vega"`
}

type ladderRow struct {
	Strike     float64 `json:"strike"`
	Price      float64 `json:"price"`
	ImpliedVol float64 `json:"implied_vol"`
	Delta      float64 `json:"delta"`
	Gamma      float64 `json:"gamma"`
}

func main() {
	// Parse command line flags
	flag.Parse()

	// Load configuration; only a missing file falls back to defaults
	cfg, err := config.Load()
	usingDefaults := config.IsNotFound(err)
	if usingDefaults {
		cfg, err = config.Default()
	}
	if err != nil {
		logger.GetLogger("pde-engine.main").Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger.Init(cfg.App.LogLevel, cfg.App.Environment)
	log := logger.GetLogger("pde-engine.main")
	if usingDefaults {
		log.Warnf("No config file found, using defaults and environment overrides")
	}
	log.Info("Starting local volatility PDE engine")

	// Create a context that will be canceled on program termination
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var promServer *metrics.PrometheusServer
	if cfg.Metrics.Prometheus.Enabled {
		promServer = metrics.NewPrometheusServer(cfg.Metrics.Prometheus.Port)
		go func() {
			if err := promServer.Start(); err != nil {
				log.Errorf("Prometheus server error: %v", err)
			}
		}()
	}

	calc, err := risk.NewGreeksCalculator(risk.CalculatorConfigFrom(cfg))
	if err != nil {
		log.Fatalf("Failed to create Greeks calculator: %v", err)
	}

	var profiler *performance.Profiler
	if *profile != "" {
		profiler, err = performance.NewProfiler(performance.ProfilerConfig{
			EnableCPU:    true,
			EnableMemory: true,
			OutputDir:    *profile,
		})
		if err == nil {
			err = profiler.Start()
		}
		if err != nil {
			log.Fatalf("Failed to start profiler: %v", err)
		}
	}

	job := cfg.Job
	fwd, err := market.NewForwardCurve(job.Forward, job.Rate)
	if err != nil {
		log.Fatalf("Invalid forward curve: %v", err)
	}
	lv := market.FlatVolatility(job.FlatVol)

	var sens *models.Sensitivities
	if *bucketed {
		fitter, qerr := flatQuotes(job.Expiry, job.Strike, job.FlatVol)
		if qerr != nil {
			log.Fatalf("Failed to build quote grid: %v", qerr)
		}
		sens, err = calc.GreeksWithBucketedVega(ctx, fwd, lv, fitter, job.Expiry, job.Strike, job.IsCall)
	} else {
		sens, err = calc.Greeks(ctx, fwd, lv, job.Expiry, job.Strike, job.IsCall)
	}
	if err != nil {
		log.Fatalf("Failed to compute Greeks: %v", err)
	}

	out := report{
		RunID:  sens.RunID,
		Expiry: sens.Expiry,
		Strike: sens.Strike,
		IsCall: sens.IsCall,
		Greeks: make(map[string]float64),
	}
	for _, name := range sens.Names() {
		out.Greeks[name], _ = sens.Get(name)
	}

	if *ladder {
		rows, err := calc.ForwardDeltaGamma(ctx, fwd, lv, job.Expiry, job.IsCall)
		if err != nil {
			log.Fatalf("Failed to compute delta/gamma ladder: %v", err)
		}
		for _, row := range rows {
			out.Ladder = append(out.Ladder, ladderRow{
				Strike:     row.Strike,
				Price:      row.Price,
				ImpliedVol: row.ImpliedVol,
				Delta:      row.ModelDelta,
				Gamma:      row.ModelGamma,
			})
		}
	}

	if bv := sens.BucketedVega(); bv != nil {
		out.Vega = newBucketReport(bv)
	}

	if profiler != nil {
		if err := profiler.Stop(); err != nil {
			log.Errorf("Profiler shutdown error: %v", err)
		}
	}

	// NaN is not valid JSON
	if dropped := out.dropNaN(); dropped > 0 {
		log.Warnf("Dropped %d values whose implied vol could not be recovered", dropped)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		log.Fatalf("Failed to write report: %v", err)
	}

	if !*serve {
		return
	}

	log.Info("PDE engine serving metrics")

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Wait for termination signal
	sig := <-sigChan
	log.Infof("Received signal %v, initiating shutdown", sig)

	if promServer != nil {
		if err := promServer.Stop(); err != nil {
			log.Errorf("Prometheus server shutdown error: %v", err)
		}
	}

	log.Info("Shutdown complete")
}

// newBucketReport copies the matrix so that dropNaN leaves the bundle intact
func newBucketReport(bv *models.BucketedVega) *bucketReport {
	vega := make([][]float64, len(bv.Vega))
	for i, row := range bv.Vega {
		vega[i] = append([]float64(nil), row...)
	}
	return &bucketReport{Expiries: bv.Expiries, Strikes: bv.Strikes, Vega: vega}
}

func (r *report) dropNaN() int {
	dropped := 0
	for name, v := range r.Greeks {
		if math.IsNaN(v) {
			delete(r.Greeks, name)
			dropped++
		}
	}
	if r.Vega != nil {
		for _, row := range r.Vega.Vega {
			for j, v := range row {
				if math.IsNaN(v) {
					row[j] = 0
					dropped++
				}
			}
		}
	}
	rows := r.Ladder[:0]
	for _, row := range r.Ladder {
		if math.IsNaN(row.ImpliedVol) {
			dropped++
			continue
		}
		rows = append(rows, row)
	}
	r.Ladder = rows
	return dropped
}

// flatQuotes is a 3x5 grid of identical quotes bracketing the job
func flatQuotes(expiry, strike, vol float64) (*smile.GridFitter, error) {
	expiries := []float64{expiry / 2, expiry, 2 * expiry}
	strikes := []float64{0.8 * strike, 0.9 * strike, strike, 1.1 * strike, 1.2 * strike}
	vols := make([][]float64, len(expiries))
	for i := range vols {
		vols[i] = make([]float64, len(strikes))
		for j := range vols[i] {
			vols[i][j] = vol
		}
	}
	return smile.NewGridFitter(expiries, strikes, vols)
}
