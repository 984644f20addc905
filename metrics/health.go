package metrics

import (
	"errors"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	log "github.com/sirupsen/logrus"

	"github.com/cctvwall/cctvwall/core/streaminfo"
)

// Health is the host and grid summary served by the health endpoint.
type Health struct {
	CPUPercent      float64                  `json:"cpuPercent"`
	MemoryPercent   float64                  `json:"memoryPercent"`
	MemoryUsedBytes uint64                   `json:"memoryUsedBytes"`
	Goroutines      int                      `json:"goroutines"`
	Uptime          string                   `json:"uptime"`
	Tiles           map[string]int           `json:"tiles"`
	Queue           streaminfo.QueueSnapshot `json:"queue"`
}

var startedAt = time.Now()

// Swapped in tests.
var (
	cpuPercent    = cpu.Percent
	virtualMemory = mem.VirtualMemory
)

func readCPU() (float64, error) {
	v, err := cpuPercent(0, false)
	if err != nil {
		return 0, err
	}
	if len(v) == 0 {
		return 0, errors.New("no cpu sample")
	}
	return v[0], nil
}

func readMemory() (percent float64, used uint64, err error) {
	vm, err := virtualMemory()
	if err != nil {
		return 0, 0, err
	}
	return vm.UsedPercent, vm.Used, nil
}

// CollectHealth samples the host and summarises tile states.
func CollectHealth(src Source) Health {
	h := Health{
		Goroutines: runtime.NumGoroutine(),
		Uptime:     time.Since(startedAt).Round(time.Second).String(),
		Tiles:      countStates(src),
		Queue:      src.Queue().Snapshot(),
	}
	var err error
	if h.CPUPercent, err = readCPU(); err != nil {
		log.Debugln("unable to read cpu usage:", err)
	}
	if h.MemoryPercent, h.MemoryUsedBytes, err = readMemory(); err != nil {
		log.Debugln("unable to read memory usage:", err)
	}
	return h
}

func countStates(src Source) map[string]int {
	counts := map[string]int{}
	for _, s := range src.Snapshots() {
		counts[s.State.String()]++
	}
	return counts
}
