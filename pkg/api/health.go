package api

import (
	"math"
	"net/http"
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/taleweave/fable/pkg/types"
)

// degradedMemoryPercent is the host memory usage above which the
// aggregate health flips to degraded.
const degradedMemoryPercent = 90

type healthResponse struct {
	Status           string    `json:"status"`
	Timestamp        time.Time `json:"timestamp"`
	Version          string    `json:"version"`
	MemoryUsage      float64   `json:"memory_usage"`
	StoreConnected   bool      `json:"store_connected"`
	StorageAvailable bool      `json:"storage_available"`
}

// handleHealth reports aggregate service health: store reachability,
// upload storage writability and host memory pressure. It always
// answers 200; "degraded" in the body is the signal, so probes can
// distinguish an unhealthy service from an unreachable one.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	storeOK := s.deps.Store.Ping(r.Context()) == nil
	storageOK := s.storageAvailable()

	var memory float64
	if sample, err := s.deps.System.Sample(); err == nil {
		memory = sample.MemoryPercent
	}

	status := "healthy"
	if !storeOK || !storageOK || memory >= degradedMemoryPercent {
		status = "degraded"
	}

	s.respond(w, http.StatusOK, healthResponse{
		Status:           status,
		Timestamp:        time.Now().UTC(),
		Version:          s.deps.Version,
		MemoryUsage:      memory,
		StoreConnected:   storeOK,
		StorageAvailable: storageOK,
	})
}

// storageAvailable verifies the upload directory accepts writes.
func (s *Server) storageAvailable() bool {
	if s.deps.Uploads == nil {
		return false
	}
	probe, err := os.CreateTemp(s.deps.Uploads.Dir(), ".health-*")
	if err != nil {
		return false
	}
	probe.Close()
	os.Remove(probe.Name())
	return true
}

func (s *Server) handleWorkers(w http.ResponseWriter, r *http.Request) {
	workers, err := s.deps.Workers.List(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list workers")
		s.respondError(w, http.StatusInternalServerError, "Failed to list workers")
		return
	}
	if workers == nil {
		workers = []types.WorkerInfo{}
	}
	s.respond(w, http.StatusOK, workers)
}

// handleMetricsSummary is the human-readable counterpart of /metrics:
// task counts, a host sample and the live worker count in one body.
func (s *Server) handleMetricsSummary(w http.ResponseWriter, r *http.Request) {
	stats, err := s.deps.Repo.Statistics(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to compute statistics")
		s.respondError(w, http.StatusInternalServerError, "Failed to compute metrics summary")
		return
	}

	system := map[string]float64{}
	if sample, err := s.deps.System.Sample(); err == nil {
		system["cpu_percent"] = sample.CPUPercent
		system["memory_percent"] = sample.MemoryPercent
		system["memory_available_gb"] = sample.MemoryAvailableGB
	}

	active := 0
	if workers, err := s.deps.Workers.List(r.Context()); err == nil {
		active = len(workers)
	}

	s.respond(w, http.StatusOK, map[string]any{
		"tasks":     stats,
		"system":    system,
		"workers":   map[string]int{"active_count": active},
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleStoreHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Store.Ping(r.Context()); err != nil {
		s.respondError(w, http.StatusServiceUnavailable, "Store connection failed")
		return
	}
	s.respond(w, http.StatusOK, map[string]string{"status": "healthy", "service": "store"})
}

// handleSystemInfo reports raw host resource numbers. CPU usage is
// measured since the previous call rather than over a fixed window, so
// the handler never blocks.
func (s *Server) handleSystemInfo(w http.ResponseWriter, r *http.Request) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to read memory stats")
		s.respondError(w, http.StatusInternalServerError, "Failed to read system information")
		return
	}
	du, err := disk.Usage("/")
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to read disk stats")
		s.respondError(w, http.StatusInternalServerError, "Failed to read system information")
		return
	}

	var cpuPercent float64
	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		cpuPercent = percents[0]
	}
	cores, _ := cpu.Counts(true)

	const gb = 1 << 30
	s.respond(w, http.StatusOK, map[string]any{
		"cpu": map[string]any{
			"percent": round2(cpuPercent),
			"count":   cores,
		},
		"memory": map[string]any{
			"total_gb":     round2(float64(vm.Total) / gb),
			"available_gb": round2(float64(vm.Available) / gb),
			"used_gb":      round2(float64(vm.Used) / gb),
			"percent":      round2(vm.UsedPercent),
		},
		"disk": map[string]any{
			"total_gb": round2(float64(du.Total) / gb),
			"free_gb":  round2(float64(du.Free) / gb),
			"used_gb":  round2(float64(du.Used) / gb),
			"percent":  round2(du.UsedPercent),
		},
		"timestamp": time.Now().UTC(),
	})
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
