package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
)

type MemoryMetricEntry struct {
	Timestamp      time.Time `json:"timestamp"`
	HeapAllocBytes float64   `json:"heap_alloc_bytes"`
	HeapInuseBytes float64   `json:"heap_inuse_bytes"`
	HeapSysBytes   float64   `json:"heap_sys_bytes"`
}

// MemoryMonitor samples the heap of the training process while variants
// run.
type MemoryMonitor struct {
	cfg      *Config
	gatherer prometheus.Gatherer
	metrics  []MemoryMetricEntry
	mutex    sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	path     string
}

func NewMemoryMonitor(cfg *Config, g prometheus.Gatherer) *MemoryMonitor {
	ctx, cancel := context.WithCancel(context.Background())

	filename := cfg.MemoryMonitoringFile
	if filename == "" {
		filename = fmt.Sprintf("memory_metrics_%d.json", time.Now().Unix())
	}

	return &MemoryMonitor{
		cfg:      cfg,
		gatherer: g,
		metrics:  make([]MemoryMetricEntry, 0),
		ctx:      ctx,
		cancel:   cancel,
		path:     filepath.Join(cfg.ResultsDir, filename),
	}
}

func (m *MemoryMonitor) Start() {
	if !m.cfg.MemoryMonitoringEnabled {
		return
	}

	interval := time.Duration(m.cfg.MemoryMonitoringInterval) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}

	log.WithFields(log.Fields{
		"interval": interval,
		"file":     m.path,
	}).Info("Starting memory monitoring")

	m.wg.Add(1)
	go m.monitorLoop(interval)
}

func (m *MemoryMonitor) Stop() {
	if !m.cfg.MemoryMonitoringEnabled {
		return
	}

	m.cancel()
	m.wg.Wait()

	if err := m.writeToFile(); err != nil {
		log.WithError(err).Error("Failed to write memory metrics to file")
		return
	}
	log.WithFields(log.Fields{
		"file":    m.path,
		"entries": len(m.metrics),
	}).Info("Memory metrics written to file")
}

func (m *MemoryMonitor) monitorLoop(interval time.Duration) {
	defer m.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.recordMetric()

	for {
		select {
		case <-m.ctx.Done():
			m.recordMetric()
			return
		case <-ticker.C:
			m.recordMetric()
		}
	}
}

func (m *MemoryMonitor) recordMetric() {
	memstats, err := readMemoryMetrics(m.gatherer)
	if err != nil {
		log.WithError(err).Warn("Failed to read memory metrics")
		return
	}

	entry := MemoryMetricEntry{
		Timestamp:      time.Now(),
		HeapAllocBytes: memstats.HeapAllocBytes,
		HeapInuseBytes: memstats.HeapInuseBytes,
		HeapSysBytes:   memstats.HeapSysBytes,
	}

	m.mutex.Lock()
	m.metrics = append(m.metrics, entry)
	m.mutex.Unlock()

	log.WithFields(log.Fields{
		"heap_alloc_mb": entry.HeapAllocBytes / 1024 / 1024,
		"heap_inuse_mb": entry.HeapInuseBytes / 1024 / 1024,
	}).Debug("Recorded memory metric")
}

func (m *MemoryMonitor) writeToFile() error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return errors.Wrap(err, "create results directory")
	}

	data, err := json.MarshalIndent(m.metrics, "", "    ")
	if err != nil {
		return errors.Wrap(err, "marshal metrics")
	}

	return errors.Wrapf(os.WriteFile(m.path, data, 0o644), "write %s", m.path)
}

// PeakHeapAlloc is the largest heap allocation observed so far.
func (m *MemoryMonitor) PeakHeapAlloc() float64 {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	var peak float64
	for _, e := range m.metrics {
		if e.HeapAllocBytes > peak {
			peak = e.HeapAllocBytes
		}
	}
	return peak
}

func (m *MemoryMonitor) GetMetrics() []MemoryMetricEntry {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	result := make([]MemoryMetricEntry, len(m.metrics))
	copy(result, m.metrics)
	return result
}
