package handlers

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"docparser/config"
	"docparser/dto"
)

type SystemHandler struct {
	cfg       *config.Config
	backends  []string
	startTime time.Time
}

func NewSystemHandler(cfg *config.Config, backends []string) *SystemHandler {
	return &SystemHandler{
		cfg:       cfg,
		backends:  backends,
		startTime: time.Now(),
	}
}

func (h *SystemHandler) Root(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{
		"service": "docparser",
		"version": config.Version,
	})
}

func (h *SystemHandler) Health(w http.ResponseWriter, r *http.Request) {
	modelsLoaded := h.modelsLoaded()

	status := "healthy"
	if !modelsLoaded {
		status = "degraded"
	}

	h.respondJSON(w, http.StatusOK, dto.HealthResponse{
		Status:        status,
		GPUAvailable:  gpuAvailable(),
		ModelsLoaded:  modelsLoaded,
		Version:       config.Version,
		UptimeSeconds: time.Since(h.startTime).Seconds(),
	})
}

func (h *SystemHandler) Version(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, dto.VersionResponse{
		Version:           config.Version,
		APIVersion:        config.APIVersion,
		GoVersion:         runtime.Version(),
		BackendsAvailable: h.backends,
		Config: map[string]any{
			"max_concurrent_requests": h.cfg.MaxConcurrent,
			"max_file_size_mb":        h.cfg.MaxFileSize / 1024 / 1024,
			"task_expire_hours":       int(h.cfg.TaskRetention.Hours()),
			"models_dir":              h.cfg.ModelsDir,
		},
	})
}

// modelsLoaded checks for the marker dropped by the model download
// step at container start.
func (h *SystemHandler) modelsLoaded() bool {
	_, err := os.Stat(filepath.Join(h.cfg.ModelsDir, ".models_ready"))
	return err == nil
}

func gpuAvailable() bool {
	if _, err := os.Stat("/dev/nvidia0"); err == nil {
		return true
	}
	_, err := os.Stat("/proc/driver/nvidia/version")
	return err == nil
}

func (h *SystemHandler) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
