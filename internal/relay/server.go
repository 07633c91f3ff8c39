// Package relay is a development stand-in for the server side of the link
// handshake. It keeps state in redis and speaks the same HTTP surface the
// link-and-sync client expects.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/matheus3301/wpplink/internal/linksync"
	"github.com/matheus3301/wpplink/internal/metrics"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	minWaitSeconds = 1
	maxWaitSeconds = 600
	maxBodyBytes   = 64 << 10
)

var tokenPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

type Config struct {
	// RequestsPerMinute is the per-account budget; excess requests get 429.
	RequestsPerMinute int
	LinkTTL           time.Duration
	TransferTTL       time.Duration
}

func DefaultConfig() Config {
	return Config{
		RequestsPerMinute: 60,
		LinkTTL:           10 * time.Minute,
		TransferTTL:       time.Hour,
	}
}

type Server struct {
	cfg     Config
	state   *state
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewServer(rdb redis.UniversalClient, cfg Config, logger *zap.Logger, m *metrics.Metrics) *Server {
	def := DefaultConfig()
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = def.RequestsPerMinute
	}
	if cfg.LinkTTL <= 0 {
		cfg.LinkTTL = def.LinkTTL
	}
	if cfg.TransferTTL <= 0 {
		cfg.TransferTTL = def.TransferTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		cfg:     cfg,
		state:   &state{rdb: rdb, linkTTL: cfg.LinkTTL, transferTTL: cfg.TransferTTL},
		logger:  logger,
		metrics: m,
		now:     time.Now,
	}
}

// Handler returns the relay's routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.observe)

	r.Route("/v1/devices", func(r chi.Router) {
		r.Use(s.authenticate)
		r.Use(s.rateLimit)
		r.Post("/link", s.handleLink)
		r.Get("/wait_for_linked_device/{tokenId}", s.handleWaitForLinkedDevice)
		r.Put("/transfer_archive", s.handlePutTransferArchive)
		r.Get("/transfer_archive", s.handleWaitForTransferArchive)
	})
	return r
}

type linkRequest struct {
	TokenID string `json:"tokenId"`
	Name    string `json:"name"`
}

// handleLink simulates provisioning: a new device joins the account and
// the primary waiting on the token is woken.
func (s *Server) handleLink(w http.ResponseWriter, r *http.Request) {
	var req linkRequest
	if err := decodeBody(w, r, &req); err != nil || !tokenPattern.MatchString(req.TokenID) {
		http.Error(w, "invalid link request", http.StatusBadRequest)
		return
	}
	acct := accountFrom(r.Context())
	device, err := s.state.registerDevice(r.Context(), acct.aci, req.TokenID, req.Name, s.now())
	if err != nil {
		s.internalError(w, "register device", err)
		return
	}
	s.logger.Info("device linked", zap.String("aci", acct.aci), zap.Uint32("device_id", device.ID))
	writeJSON(w, http.StatusOK, device)
}

func (s *Server) handleWaitForLinkedDevice(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "tokenId")
	if !tokenPattern.MatchString(token) {
		http.Error(w, "invalid token", http.StatusBadRequest)
		return
	}
	timeout, ok := waitTimeout(r)
	if !ok {
		http.Error(w, "timeout must be between 1 and 600 seconds", http.StatusBadRequest)
		return
	}
	device, found, err := s.state.waitForLinkedDevice(r.Context(), token, timeout)
	if err != nil {
		s.waitError(w, r, "wait for linked device", err)
		return
	}
	if !found {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, device)
}

func (s *Server) handlePutTransferArchive(w http.ResponseWriter, r *http.Request) {
	var req linksync.MarkUploadedRequest
	if err := decodeBody(w, r, &req); err != nil || req.DestinationDeviceID == 0 || req.TransferArchive.Key == "" {
		http.Error(w, "invalid transfer archive", http.StatusBadRequest)
		return
	}
	acct := accountFrom(r.Context())
	device, err := s.state.device(r.Context(), acct.aci, req.DestinationDeviceID)
	if errors.Is(err, errDeviceNotFound) || (err == nil && device.Created != req.DestinationDeviceCreated) {
		http.Error(w, "destination device not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.internalError(w, "load device", err)
		return
	}
	if err := s.state.putTransferArchive(r.Context(), acct.aci, device.ID, req.TransferArchive); err != nil {
		s.internalError(w, "put transfer archive", err)
		return
	}
	s.logger.Info("transfer archive posted",
		zap.String("aci", acct.aci),
		zap.Uint32("destination", device.ID),
		zap.Uint32("cdn", req.TransferArchive.CDN),
	)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleWaitForTransferArchive(w http.ResponseWriter, r *http.Request) {
	timeout, ok := waitTimeout(r)
	if !ok {
		http.Error(w, "timeout must be between 1 and 600 seconds", http.StatusBadRequest)
		return
	}
	acct := accountFrom(r.Context())
	ta, found, err := s.state.waitForTransferArchive(r.Context(), acct.aci, acct.deviceID, timeout)
	if err != nil {
		s.waitError(w, r, "wait for transfer archive", err)
		return
	}
	if !found {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, ta)
}

func waitTimeout(r *http.Request) (time.Duration, bool) {
	secs, err := strconv.Atoi(r.URL.Query().Get("timeout"))
	if err != nil || secs < minWaitSeconds || secs > maxWaitSeconds {
		return 0, false
	}
	return time.Duration(secs) * time.Second, true
}

// waitError treats a client that went away mid-wait as a normal end.
func (s *Server) waitError(w http.ResponseWriter, r *http.Request, op string, err error) {
	if r.Context().Err() != nil || errors.Is(err, context.Canceled) {
		s.logger.Debug("waiter gone", zap.String("op", op))
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.internalError(w, op, err)
}

func (s *Server) internalError(w http.ResponseWriter, op string, err error) {
	s.logger.Error(op, zap.Error(err))
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
