// Package performance captures pprof profiles around batches of PDE solves.
package performance

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"sync/atomic"
	"time"

	"github.com/rzzdr/localvol-pde/pkg/utils/logger"
)

// ProfilerConfig holds configuration for the profiler
type ProfilerConfig struct {
	EnableCPU    bool
	EnableMemory bool
	OutputDir    string
}

// Profiler writes a CPU profile covering the time between Start and Stop
// and a heap profile at Stop. Only one CPU profile can be active per process.
type Profiler struct {
	config    ProfilerConfig
	cpuFile   *os.File
	running   int64
	startTime time.Time
	stamp     string
	log       *logger.Logger
}

// NewProfiler creates a new performance profiler
func NewProfiler(config ProfilerConfig) (*Profiler, error) {
	if config.OutputDir == "" {
		config.OutputDir = "./profiles"
	}
	if err := os.MkdirAll(config.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create profile directory: %w", err)
	}

	return &Profiler{
		config: config,
		log:    logger.GetLogger("performance.profiler"),
	}, nil
}

// Start starts the profiler
func (p *Profiler) Start() error {
	if !atomic.CompareAndSwapInt64(&p.running, 0, 1) {
		return fmt.Errorf("profiler is already running")
	}

	p.startTime = time.Now()
	p.stamp = p.startTime.Format("20060102_150405")

	if p.config.EnableCPU {
		name := filepath.Join(p.config.OutputDir, fmt.Sprintf("cpu_%s.prof", p.stamp))
		f, err := os.Create(name)
		if err != nil {
			atomic.StoreInt64(&p.running, 0)
			return fmt.Errorf("failed to create CPU profile file: %w", err)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			f.Close()
			atomic.StoreInt64(&p.running, 0)
			return fmt.Errorf("failed to start CPU profiling: %w", err)
		}
		p.cpuFile = f
		p.log.Infof("Started CPU profiling to %s", name)
	}
	return nil
}

// Stop stops the profiler and writes the remaining profiles
func (p *Profiler) Stop() error {
	if !atomic.CompareAndSwapInt64(&p.running, 1, 0) {
		return fmt.Errorf("profiler is not running")
	}

	if p.cpuFile != nil {
		pprof.StopCPUProfile()
		if err := p.cpuFile.Close(); err != nil {
			p.log.Errorf("Failed to close CPU profile: %v", err)
		}
		p.cpuFile = nil
	}

	if p.config.EnableMemory {
		if err := p.saveMemoryProfile(); err != nil {
			return err
		}
	}

	p.log.Infof("Performance profiler stopped after %v", time.Since(p.startTime))
	return nil
}

// IsRunning returns true if the profiler is running
func (p *Profiler) IsRunning() bool {
	return atomic.LoadInt64(&p.running) == 1
}

func (p *Profiler) saveMemoryProfile() error {
	name := filepath.Join(p.config.OutputDir, fmt.Sprintf("memory_%s.prof", p.stamp))
	f, err := os.Create(name)
	if err != nil {
		return fmt.Errorf("failed to create memory profile file: %w", err)
	}
	defer f.Close()

	runtime.GC() // Up-to-date heap statistics
	if err := pprof.WriteHeapProfile(f); err != nil {
		return fmt.Errorf("failed to write memory profile: %w", err)
	}

	p.log.Infof("Saved memory profile to %s", name)
	return nil
}
