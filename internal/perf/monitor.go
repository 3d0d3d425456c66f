// Package perf watches system load and adapts the preview frame rate.
package perf

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Errors
var (
	ErrInvalidLoadAverage  = errors.New("perf: invalid load average format")
	ErrTemperatureNotFound = errors.New("perf: temperature sensors not found")
)

// Stats is one sample of system health.
type Stats struct {
	LoadAvg     float64 // 1-minute load average
	Temperature float64 // Celsius; valid only when HasTemp
	HasTemp     bool
	MemoryUsage float64 // percent of memory in use
}

// Monitor samples /proc and /sys.
type Monitor struct {
	procRoot string
	sysRoot  string
}

// NewMonitor returns a monitor reading the live system.
func NewMonitor() *Monitor {
	return &Monitor{procRoot: "/proc", sysRoot: "/sys"}
}

// Sample reads the current load average, CPU temperature and memory use.
// Only a missing load average is an error; boards without thermal zones
// report HasTemp=false.
func (m *Monitor) Sample() (Stats, error) {
	var s Stats

	load, err := m.loadAverage()
	if err != nil {
		return s, err
	}
	s.LoadAvg = load

	if temp, err := m.temperature(); err == nil {
		s.Temperature = temp
		s.HasTemp = true
	}

	// Non-critical.
	s.MemoryUsage, _ = m.memoryUsage()
	return s, nil
}

func (m *Monitor) loadAverage() (float64, error) {
	data, err := os.ReadFile(filepath.Join(m.procRoot, "loadavg"))
	if err != nil {
		return 0, err
	}
	fields := strings.Fields(string(data))
	if len(fields) < 1 {
		return 0, ErrInvalidLoadAverage
	}
	v, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, ErrInvalidLoadAverage
	}
	return v, nil
}

// temperature averages the thermal zones that report a value.
func (m *Monitor) temperature() (float64, error) {
	zones, _ := filepath.Glob(filepath.Join(m.sysRoot, "class", "thermal", "thermal_zone*", "temp"))

	var total float64
	var count int
	for _, path := range zones {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		milli, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
		if err != nil {
			continue
		}
		total += milli / 1000.0
		count++
	}
	if count == 0 {
		return 0, ErrTemperatureNotFound
	}
	return total / float64(count), nil
}

func (m *Monitor) memoryUsage() (float64, error) {
	data, err := os.ReadFile(filepath.Join(m.procRoot, "meminfo"))
	if err != nil {
		return 0, err
	}

	var total, available int64
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		switch fields[0] {
		case "MemTotal:":
			total, _ = strconv.ParseInt(fields[1], 10, 64)
		case "MemAvailable:":
			available, _ = strconv.ParseInt(fields[1], 10, 64)
		}
	}
	if total <= 0 {
		return 0, nil
	}
	return 100.0 * float64(total-available) / float64(total), nil
}
