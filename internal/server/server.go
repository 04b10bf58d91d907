package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gopkg.in/yaml.v3"

	"github.com/audiolibrelab/easyrec/internal/audio"
	"github.com/audiolibrelab/easyrec/internal/service"
	"github.com/audiolibrelab/easyrec/internal/wavetable"
)

// Server exposes the record engine over HTTP
type Server struct {
	service  service.Service
	gatherer prometheus.Gatherer
	addr     string
	logger   *slog.Logger
}

// StatusResponse wraps the service status for the /status endpoint
type StatusResponse struct {
	Status  service.Status `json:"status"`
	Message string         `json:"message"`
}

// WavesResponse lists the occupied wavetable slots
type WavesResponse struct {
	Waves    []service.WaveInfo `json:"waves"`
	Capacity int                `json:"capacity"`
}

// PrefixRequest sets the export name prefix
type PrefixRequest struct {
	Text string `json:"text"`
}

// CommandInfo is a menu entry as listed by /commands
type CommandInfo struct {
	Label string `json:"label"`
}

// GenericResponse is returned by the action endpoints
type GenericResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// New creates a server for svc listening on addr. gatherer backs /metrics
// and may be nil.
func New(svc service.Service, addr string, gatherer prometheus.Gatherer) *Server {
	return &Server{
		service:  svc,
		gatherer: gatherer,
		addr:     addr,
		logger:   slog.Default().With("component", "server"),
	}
}

// Handler returns the routes of the control API
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/mode", s.handleMode)
	mux.HandleFunc("/params", s.handleParams)
	mux.HandleFunc("/transport/play", s.handlePlay)
	mux.HandleFunc("/transport/stop", s.handleStopSong)
	mux.HandleFunc("/prefix", s.handlePrefix)
	mux.HandleFunc("/waves", s.handleWaves)
	mux.HandleFunc("/waves/", s.handleWaveStream)
	mux.HandleFunc("/commands", s.handleCommands)
	mux.HandleFunc("/config", s.handleConfig)
	if s.gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{
			ErrorHandling: promhttp.HTTPErrorOnError,
		}))
	}
	return mux
}

// Start serves until ctx is done, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	_, port, _ := net.SplitHostPort(s.addr)
	s.logger.Info("Starting EasyRec control server",
		"addr", s.addr,
		"local_url", fmt.Sprintf("http://%s:%s", getLocalIP(), port),
		"localhost_url", fmt.Sprintf("http://localhost:%s", port))

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	s.logger.Info("Control server stopped")
	return nil
}

// handleIndex lists the available endpoints
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if !s.requireMethod(w, r, http.MethodGet) {
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"service": "easyrec",
		"version": service.Version,
		"endpoints": []string{
			"GET /status",
			"POST /mode",
			"GET|POST /params",
			"POST /transport/play",
			"POST /transport/stop",
			"GET|POST /prefix",
			"GET /waves",
			"GET /waves/{slot}",
			"GET|POST /commands",
			"GET /config",
			"GET /metrics",
		},
	})
}

// handleStatus returns the recorder, transport and export state
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodGet) {
		return
	}

	status := s.service.Status()
	s.writeJSON(w, http.StatusOK, StatusResponse{
		Status:  status,
		Message: statusMessage(status),
	})
}

func statusMessage(st service.Status) string {
	switch {
	case st.Recorder.Mode == audio.ModeRecord && st.Recorder.TickZeroReached:
		return fmt.Sprintf("Recording (%d frames)", st.Recorder.BufferedFrames)
	case st.Recorder.Mode == audio.ModeRecord:
		return "Armed, waiting for the song to start"
	case st.LastExport != nil && !st.LastExport.Skipped:
		return fmt.Sprintf("Stopped, last take %q in slot %d", st.LastExport.Name, st.LastExport.Slot+1)
	default:
		return "Stopped"
	}
}

// handleMode switches between record and stop
func (s *Server) handleMode(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodPost) {
		return
	}
	if err := r.ParseForm(); err != nil {
		s.sendErrorResponse(w, http.StatusBadRequest, "Failed to parse form", "operation", "set_mode")
		return
	}

	mode, err := audio.ParseMode(r.FormValue("mode"))
	if err != nil {
		s.sendErrorResponse(w, http.StatusBadRequest, err.Error(), "operation", "set_mode")
		return
	}
	if err := s.service.SetMode(mode); err != nil {
		s.sendErrorResponse(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to set mode: %v", err),
			"mode", mode, "operation", "set_mode")
		return
	}

	s.writeJSON(w, http.StatusOK, GenericResponse{Success: true, Message: "Mode set to " + mode.String()})
}

// handleParams reads or replaces the record parameters
func (s *Server) handleParams(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.writeJSON(w, http.StatusOK, s.service.Params())
	case http.MethodPost:
		// unset fields keep their current value
		p := s.service.Params()
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			s.sendErrorResponse(w, http.StatusBadRequest, "Invalid JSON body", "operation", "set_params")
			return
		}
		if err := s.service.SetParams(p); err != nil {
			s.sendErrorResponse(w, http.StatusBadRequest, err.Error(), "operation", "set_params")
			return
		}
		s.writeJSON(w, http.StatusOK, p)
	default:
		s.methodNotAllowed(w)
	}
}

func (s *Server) handlePlay(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodPost) {
		return
	}
	s.service.Play()
	s.writeJSON(w, http.StatusOK, GenericResponse{Success: true, Message: "Song started"})
}

func (s *Server) handleStopSong(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodPost) {
		return
	}
	s.service.StopSong()
	s.writeJSON(w, http.StatusOK, GenericResponse{Success: true, Message: "Song stopped"})
}

// handlePrefix reads or sets the export name prefix
func (s *Server) handlePrefix(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.writeJSON(w, http.StatusOK, PrefixRequest{Text: s.service.NamePrefix()})
	case http.MethodPost:
		var req PrefixRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.sendErrorResponse(w, http.StatusBadRequest, "Invalid JSON body", "operation", "set_prefix")
			return
		}
		text, err := s.service.SetNamePrefix(req.Text)
		if err != nil {
			s.sendErrorResponse(w, http.StatusInternalServerError,
				fmt.Sprintf("Failed to save name prefix: %v", err), "operation", "set_prefix")
			return
		}
		s.writeJSON(w, http.StatusOK, PrefixRequest{Text: text})
	default:
		s.methodNotAllowed(w)
	}
}

// handleWaves lists the wavetable
func (s *Server) handleWaves(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodGet) {
		return
	}
	s.writeJSON(w, http.StatusOK, WavesResponse{
		Waves:    s.service.Waves(),
		Capacity: wavetable.Capacity,
	})
}

// handleWaveStream streams the WAV file of a slot
func (s *Server) handleWaveStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	slot, err := strconv.Atoi(strings.TrimPrefix(r.URL.Path, "/waves/"))
	if err != nil || slot < 1 || slot > wavetable.Capacity {
		http.Error(w, "Invalid slot", http.StatusBadRequest)
		return
	}

	path, err := s.service.WavePath(slot)
	if err != nil {
		if errors.Is(err, wavetable.ErrEmptySlot) {
			http.Error(w, "Slot is empty", http.StatusNotFound)
		} else {
			http.Error(w, "Wave is not stored on disk", http.StatusNotFound)
		}
		return
	}

	file, err := os.Open(path)
	if err != nil {
		http.Error(w, "Error opening file", http.StatusInternalServerError)
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		http.Error(w, "Error accessing file", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Accept-Ranges", "bytes")
	http.ServeContent(w, r, info.Name(), info.ModTime(), file)
}

// handleCommands lists the menu commands, or runs one on POST
func (s *Server) handleCommands(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		cmds := s.service.Commands()
		infos := make([]CommandInfo, 0, len(cmds))
		for _, c := range cmds {
			infos = append(infos, CommandInfo{Label: c.Label})
		}
		s.writeJSON(w, http.StatusOK, infos)
	case http.MethodPost:
		if err := r.ParseForm(); err != nil {
			s.sendErrorResponse(w, http.StatusBadRequest, "Failed to parse form", "operation", "run_command")
			return
		}
		label := r.FormValue("label")
		msg, err := s.service.RunCommand(label)
		if err != nil {
			s.sendErrorResponse(w, http.StatusNotFound, err.Error(), "label", label, "operation", "run_command")
			return
		}
		s.writeJSON(w, http.StatusOK, GenericResponse{Success: true, Message: msg})
	default:
		s.methodNotAllowed(w)
	}
}

// handleConfig returns the resolved configuration in the config file's YAML form
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodGet) {
		return
	}

	data, err := yaml.Marshal(s.service.GetConfig())
	if err != nil {
		s.sendErrorResponse(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to marshal config: %v", err), "operation", "show_config")
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.Write(data)
}

func (s *Server) requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		s.methodNotAllowed(w)
		return false
	}
	return true
}

func (s *Server) methodNotAllowed(w http.ResponseWriter) {
	s.writeJSON(w, http.StatusMethodNotAllowed, GenericResponse{Success: false, Error: "Method not allowed"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", "error", err)
	}
}

// sendErrorResponse logs the error with context and sends it as JSON
func (s *Server) sendErrorResponse(w http.ResponseWriter, statusCode int, errorMsg string, logContext ...interface{}) {
	logFields := []interface{}{"error_message", errorMsg, "status_code", statusCode}
	if len(logContext) > 0 {
		logFields = append(logFields, logContext...)
	}
	s.logger.Error("Sending error response to client", logFields...)

	s.writeJSON(w, statusCode, GenericResponse{Success: false, Error: errorMsg})
}

func getLocalIP() string {
	// Try to connect to a remote address to determine local IP
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "localhost"
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP.String()
}
