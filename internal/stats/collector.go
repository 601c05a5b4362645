package stats

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/process"
)

// ResourceReport summarizes process resource usage over a run.
type ResourceReport struct {
	StartTime    time.Time       `json:"start_time"`
	EndTime      time.Time       `json:"end_time"`
	TotalElapsed time.Duration   `json:"total_elapsed_ns"`
	Samples      []ResourcePoint `json:"samples"`

	PeakHeapAlloc  uint64  `json:"peak_heap_alloc"`
	PeakProcessRSS uint64  `json:"peak_process_rss"`
	PeakCPUPercent float64 `json:"peak_cpu_percent"`
	AvgCPUPercent  float64 `json:"avg_cpu_percent"`
	PeakGoroutines int     `json:"peak_goroutines"`
	GCCycles       uint32  `json:"gc_cycles"`
}

// ResourcePoint is a single sample of process resource usage.
type ResourcePoint struct {
	Timestamp       time.Time `json:"timestamp"`
	ElapsedSeconds  float64   `json:"elapsed_seconds"`
	HeapAlloc       uint64    `json:"heap_alloc"`
	ProcessRSSBytes uint64    `json:"process_rss_bytes"`
	CPUPercent      float64   `json:"cpu_percent"`
	SystemCPU       []float64 `json:"system_cpu_percent"`
	NumGoroutine    int       `json:"num_goroutine"`
	NumGC           uint32    `json:"num_gc"`
}

// Collector samples process resource usage on a fixed interval until stopped.
type Collector struct {
	mu        sync.Mutex
	report    ResourceReport
	startTime time.Time
	stopChan  chan struct{}
	doneChan  chan struct{}
	interval  time.Duration
	proc      *process.Process
}

func NewCollector(interval time.Duration) (*Collector, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, fmt.Errorf("getting process handle: %w", err)
	}
	return &Collector{
		interval: interval,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
		proc:     proc,
	}, nil
}

// Start begins sampling in a background goroutine.
func (c *Collector) Start() {
	c.startTime = time.Now()
	c.report.StartTime = c.startTime
	go c.loop()
}

func (c *Collector) loop() {
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
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	point := ResourcePoint{
		Timestamp:      time.Now(),
		ElapsedSeconds: time.Since(c.startTime).Seconds(),
		HeapAlloc:      ms.HeapAlloc,
		NumGC:          ms.NumGC,
		NumGoroutine:   runtime.NumGoroutine(),
	}
	if memInfo, err := c.proc.MemoryInfo(); err == nil && memInfo != nil {
		point.ProcessRSSBytes = memInfo.RSS
	}
	if pct, err := c.proc.CPUPercent(); err == nil {
		point.CPUPercent = pct
	}
	if sys, err := cpu.Percent(0, true); err == nil {
		point.SystemCPU = sys
	}

	c.mu.Lock()
	c.report.Samples = append(c.report.Samples, point)
	c.mu.Unlock()
}

// Stop halts sampling and returns the finished report.
func (c *Collector) Stop() ResourceReport {
	close(c.stopChan)
	<-c.doneChan

	c.mu.Lock()
	defer c.mu.Unlock()

	c.report.EndTime = time.Now()
	c.report.TotalElapsed = c.report.EndTime.Sub(c.report.StartTime)

	var totalCPU float64
	for _, s := range c.report.Samples {
		if s.HeapAlloc > c.report.PeakHeapAlloc {
			c.report.PeakHeapAlloc = s.HeapAlloc
		}
		if s.ProcessRSSBytes > c.report.PeakProcessRSS {
			c.report.PeakProcessRSS = s.ProcessRSSBytes
		}
		if s.CPUPercent > c.report.PeakCPUPercent {
			c.report.PeakCPUPercent = s.CPUPercent
		}
		if s.NumGoroutine > c.report.PeakGoroutines {
			c.report.PeakGoroutines = s.NumGoroutine
		}
		if s.NumGC > c.report.GCCycles {
			c.report.GCCycles = s.NumGC
		}
		totalCPU += s.CPUPercent
	}
	if n := len(c.report.Samples); n > 0 {
		c.report.AvgCPUPercent = totalCPU / float64(n)
	}
	return c.report
}

// SaveToFile writes a plain-text resource report alongside the run output.
func (r *ResourceReport) SaveToFile(filename string, timings *Timings) error {
	var sb strings.Builder

	sb.WriteString("RUN RESOURCE REPORT\n")
	sb.WriteString(fmt.Sprintf("  start:    %s\n", r.StartTime.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("  end:      %s\n", r.EndTime.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("  elapsed:  %s\n\n", r.TotalElapsed.Round(time.Millisecond)))

	if timings != nil {
		sb.WriteString("STAGES\n")
		for _, s := range timings.Stages() {
			sb.WriteString(fmt.Sprintf("  %-12s %s\n", s.Name, s.Duration.Round(time.Millisecond)))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("PEAKS\n")
	sb.WriteString(fmt.Sprintf("  heap alloc:   %s\n", humanize.IBytes(r.PeakHeapAlloc)))
	sb.WriteString(fmt.Sprintf("  process rss:  %s\n", humanize.IBytes(r.PeakProcessRSS)))
	sb.WriteString(fmt.Sprintf("  cpu:          %.1f%% (avg %.1f%%)\n", r.PeakCPUPercent, r.AvgCPUPercent))
	sb.WriteString(fmt.Sprintf("  goroutines:   %d\n", r.PeakGoroutines))
	sb.WriteString(fmt.Sprintf("  gc cycles:    %d\n", r.GCCycles))

	if err := os.WriteFile(filename, []byte(sb.String()), 0644); err != nil {
		return fmt.Errorf("writing resource report: %w", err)
	}
	return nil
}
