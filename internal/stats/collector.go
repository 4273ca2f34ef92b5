// Package stats samples process resource usage during long-running bulk
// ingestion.
package stats

import (
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// Sample is one point-in-time reading.
type Sample struct {
	Timestamp  time.Time `json:"timestamp"`
	HeapAlloc  uint64    `json:"heap_alloc"`
	ProcessRSS uint64    `json:"process_rss"`
	CPUPercent float64   `json:"cpu_percent"`
	Goroutines int       `json:"goroutines"`
	NumGC      uint32    `json:"num_gc"`
}

// Summary aggregates a finished collection run.
type Summary struct {
	Elapsed        time.Duration `json:"elapsed_ns"`
	PeakHeapAlloc  uint64        `json:"peak_heap_alloc"`
	PeakProcessRSS uint64        `json:"peak_process_rss"`
	PeakCPUPercent float64       `json:"peak_cpu_percent"`
	AvgCPUPercent  float64       `json:"avg_cpu_percent"`
	PeakGoroutines int           `json:"peak_goroutines"`
	GCCycles       uint32        `json:"gc_cycles"`
	SampleCount    int           `json:"sample_count"`
}

type Collector struct {
	mu      sync.Mutex
	samples []Sample

	startTime time.Time
	interval  time.Duration
	proc      *process.Process
	stopChan  chan struct{}
	doneChan  chan struct{}
}

func NewCollector(interval time.Duration) (*Collector, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, fmt.Errorf("failed to get process info: %w", err)
	}

	return &Collector{
		interval: interval,
		proc:     proc,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}, nil
}

func (c *Collector) Start() {
	c.startTime = time.Now()
	go c.collect()
}

func (c *Collector) collect() {
	defer close(c.doneChan)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.sample()
	for {
		select {
		case <-c.stopChan:
			c.sample()
			return
		case <-ticker.C:
			c.sample()
		}
	}
}

func (c *Collector) sample() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	s := Sample{
		Timestamp:  time.Now(),
		HeapAlloc:  memStats.HeapAlloc,
		Goroutines: runtime.NumGoroutine(),
		NumGC:      memStats.NumGC,
	}
	if memInfo, err := c.proc.MemoryInfo(); err == nil && memInfo != nil {
		s.ProcessRSS = memInfo.RSS
	}
	if cpuPercent, err := c.proc.CPUPercent(); err == nil {
		s.CPUPercent = cpuPercent
	}

	c.mu.Lock()
	c.samples = append(c.samples, s)
	c.mu.Unlock()
}

// Stop halts sampling and returns the aggregated summary.
func (c *Collector) Stop() Summary {
	close(c.stopChan)
	<-c.doneChan

	c.mu.Lock()
	defer c.mu.Unlock()

	summary := Summary{
		Elapsed:     time.Since(c.startTime),
		SampleCount: len(c.samples),
	}
	var totalCPU float64
	for _, s := range c.samples {
		if s.HeapAlloc > summary.PeakHeapAlloc {
			summary.PeakHeapAlloc = s.HeapAlloc
		}
		if s.ProcessRSS > summary.PeakProcessRSS {
			summary.PeakProcessRSS = s.ProcessRSS
		}
		if s.CPUPercent > summary.PeakCPUPercent {
			summary.PeakCPUPercent = s.CPUPercent
		}
		if s.Goroutines > summary.PeakGoroutines {
			summary.PeakGoroutines = s.Goroutines
		}
		if s.NumGC > summary.GCCycles {
			summary.GCCycles = s.NumGC
		}
		totalCPU += s.CPUPercent
	}
	if summary.SampleCount > 0 {
		summary.AvgCPUPercent = totalCPU / float64(summary.SampleCount)
	}
	return summary
}
