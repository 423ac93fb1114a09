package server

import (
	"encoding/json"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/YOUSOYOUSO/zsxq-market-data/internal/domain"
	"github.com/YOUSOYOUSO/zsxq-market-data/internal/timeutil"
	"github.com/YOUSOYOUSO/zsxq-market-data/pkg/analytics"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		_ = err
	}
}

// resourceSample is the process resource snapshot surfaced on /healthz,
// mirroring the originating codebase's getSystemStats but adding goroutine
// count since this module has no LED-display consumer to keep the payload
// minimal for.
type resourceSample struct {
	CPUPercent   float64 `json:"cpu_percent"`
	MemPercent   float64 `json:"mem_percent"`
	GoroutineNum int     `json:"goroutines"`
}

func sampleResources() resourceSample {
	sample := resourceSample{GoroutineNum: runtime.NumGoroutine()}
	if cpuPercent, err := cpu.Percent(100*time.Millisecond, false); err == nil && len(cpuPercent) > 0 {
		sample.CPUPercent = cpuPercent[0]
	}
	if memStat, err := mem.VirtualMemory(); err == nil {
		sample.MemPercent = memStat.UsedPercent
	}
	return sample
}

type healthzResponse struct {
	Status    string          `json:"status"`
	Resources resourceSample  `json:"resources"`
	Error     string          `json:"error,omitempty"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := healthzResponse{Status: "healthy", Resources: sampleResources()}
	if err := s.facade.Probe(r.Context()); err != nil {
		resp.Status = "unhealthy"
		resp.Error = err.Error()
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.facade.Status(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleProvidersHealth(w http.ResponseWriter, r *http.Request) {
	status, err := s.facade.Status(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, status.Providers)
}

func (s *Server) handlePrices(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	start := r.URL.Query().Get("start")
	end := r.URL.Query().Get("end")
	if end == "" {
		end = timeutil.TodayBeijing()
	}
	if start == "" {
		startT, err := timeutil.ParseDate(end)
		if err != nil {
			http.Error(w, "invalid end date", http.StatusBadRequest)
			return
		}
		start = timeutil.FormatDate(startT.AddDate(0, 0, -s.cfg.IncrementalHistoryDays))
	}
	allowTodayUnfinal := parseBoolParam(r.URL.Query().Get("allow_today_unfinal"), false)

	rows, err := s.facade.PriceHistory(r.Context(), code, start, end, allowTodayUnfinal)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleLatestPrice(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	row, err := s.facade.LatestPrice(r.Context(), code)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if row == nil {
		http.Error(w, "no stored bars for symbol", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

type smaResponse struct {
	StockCode string   `json:"stock_code"`
	Window    int       `json:"window"`
	Value     *float64 `json:"value"`
}

func (s *Server) handleSMA(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	window := parseIntParam(r.URL.Query().Get("window"), 20)

	closes, err := s.closeSeries(r, code, window)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, smaResponse{
		StockCode: domain.NormalizeCode(code),
		Window:    window,
		Value:     analytics.LatestSMA(closes, window),
	})
}

type volatilityResponse struct {
	StockCode         string  `json:"stock_code"`
	Window            int     `json:"window"`
	AnnualizedVolatility float64 `json:"annualized_volatility"`
}

func (s *Server) handleVolatility(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	window := parseIntParam(r.URL.Query().Get("window"), 20)

	closes, err := s.closeSeries(r, code, window)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, volatilityResponse{
		StockCode:            domain.NormalizeCode(code),
		Window:               window,
		AnnualizedVolatility: analytics.AnnualizedVolatility(closes),
	})
}

// closeSeries reads window+1 trading days of stored bars (plus buffer) and
// extracts the close column in chronological order for the analytics
// endpoints.
func (s *Server) closeSeries(r *http.Request, code string, window int) ([]float64, error) {
	end := timeutil.TodayBeijing()
	endT, err := timeutil.ParseDate(end)
	if err != nil {
		return nil, err
	}
	lookbackDays := window*2 + 10
	start := timeutil.FormatDate(endT.AddDate(0, 0, -lookbackDays))

	rows, err := s.facade.PriceHistory(r.Context(), code, start, end, true)
	if err != nil {
		return nil, err
	}
	closes := make([]float64, 0, len(rows))
	for _, row := range rows {
		closes = append(closes, row.Close)
	}
	return closes, nil
}

func parseIntParam(v string, def int) int {
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func parseBoolParam(v string, def bool) bool {
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
