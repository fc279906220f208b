package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/testschool/assessment-backend/internal/config"
	"github.com/testschool/assessment-backend/internal/middleware"
	"github.com/testschool/assessment-backend/internal/response"
)

const metricsInterval = 7 * time.Second

// SystemHandler streams host and Go runtime metrics to admins over SSE.
// Host figures come straight from /proc, queue depths from Redis.
type SystemHandler struct {
	rdb      *redis.Client
	started  time.Time
	cpuModel string
	log      zerolog.Logger

	// Previous /proc/stat sample for CPU-percent deltas.
	lastIdle  uint64
	lastTotal uint64
}

func NewSystemHandler(rdb *redis.Client, log zerolog.Logger) *SystemHandler {
	h := &SystemHandler{
		rdb:      rdb,
		started:  time.Now(),
		cpuModel: procCPUModel(),
		log:      log.With().Str("component", "system_handler").Logger(),
	}
	// Prime the delta so the first tick reports a real value
	h.lastIdle, h.lastTotal, _ = procCPUTimes()
	return h
}

type systemMetrics struct {
	Timestamp int64  `json:"timestamp"`
	Uptime    string `json:"uptime"`

	// Host
	CPUPercent     float64 `json:"cpu_percent"`
	MemUsedBytes   uint64  `json:"mem_used_bytes"`
	MemTotalBytes  uint64  `json:"mem_total_bytes"`
	MemPercent     float64 `json:"mem_percent"`
	DiskUsedBytes  uint64  `json:"disk_used_bytes"`
	DiskTotalBytes uint64  `json:"disk_total_bytes"`
	DiskPercent    float64 `json:"disk_percent"`
	LoadAvg1       float64 `json:"load_avg_1"`
	LoadAvg5       float64 `json:"load_avg_5"`
	LoadAvg15      float64 `json:"load_avg_15"`

	// Go runtime
	Goroutines  int    `json:"goroutines"`
	HeapAlloc   uint64 `json:"heap_alloc"`
	HeapSys     uint64 `json:"heap_sys"`
	StackInuse  uint64 `json:"stack_inuse"`
	NumGC       uint32 `json:"num_gc"`
	AppRSSBytes uint64 `json:"app_rss_bytes"`
	GoVersion   string `json:"go_version"`
	NumCPU      int    `json:"num_cpu"`
	CPUModel    string `json:"cpu_model"`

	// Background work
	QueueViolations int64 `json:"queue_violations"`
	QueueResults    int64 `json:"queue_results"`
	DeadlineIndex   int64 `json:"deadline_index"`
}

// SystemMetricsSSE godoc
// GET /admin/v1/system/metrics
func (h *SystemHandler) SystemMetricsSSE(c *gin.Context) {
	if middleware.GetClaims(c) == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	reqCtx := c.Request.Context()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("Access-Control-Allow-Origin", "*")

	h.log.Info().Msg("Admin connected to system metrics SSE")

	ticker := time.NewTicker(metricsInterval)
	defer ticker.Stop()

	// First frame immediately, then one per tick
	h.pushFrame(c)

	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Msg("Admin disconnected from system metrics SSE")
			return
		case <-ticker.C:
			h.pushFrame(c)
		}
	}
}

func (h *SystemHandler) pushFrame(c *gin.Context) {
	frame, err := json.Marshal(h.sample())
	if err != nil {
		return
	}
	c.Writer.Write([]byte("data: "))
	c.Writer.Write(frame)
	c.Writer.Write([]byte("\n\n"))
	c.Writer.Flush()
}

func (h *SystemHandler) sample() systemMetrics {
	m := systemMetrics{
		Timestamp: time.Now().Unix(),
		Uptime:    uptimeString(time.Since(h.started)),
		GoVersion: runtime.Version(),
		NumCPU:    runtime.NumCPU(),
		CPUModel:  h.cpuModel,
	}

	if idle, total, err := procCPUTimes(); err == nil && total > h.lastTotal {
		idleDelta := float64(idle - h.lastIdle)
		totalDelta := float64(total - h.lastTotal)
		m.CPUPercent = (1 - idleDelta/totalDelta) * 100
		h.lastIdle = idle
		h.lastTotal = total
	}

	if total, avail, err := procMemory(); err == nil && total > 0 {
		m.MemTotalBytes = total
		m.MemUsedBytes = total - avail
		m.MemPercent = float64(m.MemUsedBytes) / float64(total) * 100
	}

	if total, free, err := diskUsage("/"); err == nil && total > 0 {
		m.DiskTotalBytes = total
		m.DiskUsedBytes = total - free
		m.DiskPercent = float64(m.DiskUsedBytes) / float64(total) * 100
	}

	m.LoadAvg1, m.LoadAvg5, m.LoadAvg15, _ = procLoadAvg()

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	m.Goroutines = runtime.NumGoroutine()
	m.HeapAlloc = ms.HeapAlloc
	m.HeapSys = ms.Sys
	m.StackInuse = ms.StackInuse
	m.NumGC = ms.NumGC
	m.AppRSSBytes, _ = procSelfRSS()

	// Queue depths in one round trip
	ctx := context.Background()
	pipe := h.rdb.Pipeline()
	violationsCmd := pipe.LLen(ctx, config.WorkerKey.PersistViolationsQueue)
	resultsCmd := pipe.LLen(ctx, config.WorkerKey.PersistResultsQueue)
	deadlinesCmd := pipe.ZCard(ctx, config.CacheKey.DeadlineIndexKey())
	if _, err := pipe.Exec(ctx); err == nil {
		m.QueueViolations, _ = violationsCmd.Result()
		m.QueueResults, _ = resultsCmd.Result()
		m.DeadlineIndex, _ = deadlinesCmd.Result()
	}

	return m
}

// procCPUTimes reads the aggregate cpu line of /proc/stat and returns the
// idle and total jiffy counters.
func procCPUTimes() (idle, total uint64, err error) {
	data, err := os.ReadFile("/proc/stat")
	if err != nil {
		return 0, 0, err
	}
	line := strings.SplitN(string(data), "\n", 2)[0]
	fields := strings.Fields(line)
	if len(fields) < 5 || fields[0] != "cpu" {
		return 0, 0, fmt.Errorf("unexpected /proc/stat format")
	}
	for i := 1; i < len(fields); i++ {
		v, _ := strconv.ParseUint(fields[i], 10, 64)
		total += v
		if i == 4 {
			idle = v
		}
	}
	return idle, total, nil
}

func procCPUModel() string {
	f, err := os.Open("/proc/cpuinfo")
	if err != nil {
		return "Unknown"
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := sc.Text(); strings.HasPrefix(line, "model name") {
			if _, after, ok := strings.Cut(line, ":"); ok {
				return strings.TrimSpace(after)
			}
		}
	}
	return "Unknown"
}

func procMemory() (total, available uint64, err error) {
	f, err := os.Open("/proc/meminfo")
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	found := 0
	for sc.Scan() && found < 2 {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "MemTotal:"):
			total = kbFieldBytes(line)
			found++
		case strings.HasPrefix(line, "MemAvailable:"):
			available = kbFieldBytes(line)
			found++
		}
	}
	return total, available, nil
}

// kbFieldBytes parses a "/proc key: value kB" line into bytes.
func kbFieldBytes(line string) uint64 {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return 0
	}
	v, _ := strconv.ParseUint(fields[1], 10, 64)
	return v * 1024
}

func diskUsage(path string) (total, free uint64, err error) {
	var st syscall.Statfs_t
	if err := syscall.Statfs(path, &st); err != nil {
		return 0, 0, err
	}
	return st.Blocks * uint64(st.Bsize), st.Bavail * uint64(st.Bsize), nil
}

func procLoadAvg() (load1, load5, load15 float64, err error) {
	data, err := os.ReadFile("/proc/loadavg")
	if err != nil {
		return 0, 0, 0, err
	}
	fields := strings.Fields(string(data))
	if len(fields) < 3 {
		return 0, 0, 0, fmt.Errorf("unexpected /proc/loadavg format")
	}
	load1, _ = strconv.ParseFloat(fields[0], 64)
	load5, _ = strconv.ParseFloat(fields[1], 64)
	load15, _ = strconv.ParseFloat(fields[2], 64)
	return load1, load5, load15, nil
}

// procSelfRSS reads this process's VmRSS from /proc/self/status.
func procSelfRSS() (uint64, error) {
	f, err := os.Open("/proc/self/status")
	if err != nil {
		return 0, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := sc.Text(); strings.HasPrefix(line, "VmRSS:") {
			return kbFieldBytes(line), nil
		}
	}
	return 0, fmt.Errorf("VmRSS not found")
}

func uptimeString(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	case hours > 0:
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	default:
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
}
