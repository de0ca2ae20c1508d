package render

import (
	"runtime"
	"runtime/debug"
	"sync"
)

// DeviceMonitor reports device-level telemetry the renderer cannot measure
// from its own frame loop.
type DeviceMonitor interface {
	MemoryUsage() float64
	BatteryLevel() float64
	ThermalState() ThermalState
}

// DefaultMemoryBudget is the heap budget used by RuntimeMonitor when the
// process has no soft memory limit.
const DefaultMemoryBudget = 512 << 20

// RuntimeMonitor measures the Go heap against a memory budget. It has no
// battery or thermal sensors and reports a full battery and nominal state.
type RuntimeMonitor struct {
	budget uint64
}

// NewRuntimeMonitor creates a monitor. A budget of zero uses the process soft
// memory limit, or DefaultMemoryBudget when none is set.
func NewRuntimeMonitor(budget uint64) *RuntimeMonitor {
	if budget == 0 {
		if limit := debug.SetMemoryLimit(-1); limit > 0 && limit < 1<<62 {
			budget = uint64(limit)
		} else {
			budget = DefaultMemoryBudget
		}
	}
	return &RuntimeMonitor{budget: budget}
}

// MemoryUsage returns heap in use as a fraction of the budget, capped at 1.
func (m *RuntimeMonitor) MemoryUsage() float64 {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	return clampRatio(float64(stats.HeapInuse) / float64(m.budget))
}

// BatteryLevel implements DeviceMonitor.
func (m *RuntimeMonitor) BatteryLevel() float64 { return 1 }

// ThermalState implements DeviceMonitor.
func (m *RuntimeMonitor) ThermalState() ThermalState { return ThermalNominal }

// ReportedMonitor holds telemetry pushed by a client device.
type ReportedMonitor struct {
	mu      sync.RWMutex
	memory  float64
	battery float64
	thermal ThermalState
}

// NewReportedMonitor creates a monitor with idle defaults: no memory
// pressure, full battery, nominal thermal state.
func NewReportedMonitor() *ReportedMonitor {
	return &ReportedMonitor{battery: 1, thermal: ThermalNominal}
}

// Report replaces the device readings. Ratios are clamped to [0, 1]; an empty
// thermal state keeps the previous one.
func (m *ReportedMonitor) Report(memory, battery float64, thermal ThermalState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.memory = clampRatio(memory)
	m.battery = clampRatio(battery)
	if thermal != "" {
		m.thermal = thermal
	}
}

// MemoryUsage implements DeviceMonitor.
func (m *ReportedMonitor) MemoryUsage() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.memory
}

// BatteryLevel implements DeviceMonitor.
func (m *ReportedMonitor) BatteryLevel() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.battery
}

// ThermalState implements DeviceMonitor.
func (m *ReportedMonitor) ThermalState() ThermalState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.thermal
}

func clampRatio(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

var (
	_ DeviceMonitor = (*RuntimeMonitor)(nil)
	_ DeviceMonitor = (*ReportedMonitor)(nil)
)
