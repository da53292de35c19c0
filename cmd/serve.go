// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Saad Alam

package cmd

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/saad-alam12/hvpsu/pkg/psu"
)

var (
	serveListen   string
	serveSupplies []string
	serveAuthUser string
	serveStream   time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "HTTP control service for multiple supplies",
	Long: `Serve a small HTTP API driving one or more supplies.

Endpoints (all JSON):
  GET  /status                  state of every attached supply
  GET  /{name}/read             voltage and current readback
  GET  /{name}/relay            last reported relay state
  POST /{name}/set_voltage      {"value": <volts>}
  POST /{name}/set_current      {"value": <milliamps>}
  POST /{name}/relay            {"on": true|false}
  GET  /ws                      WebSocket stream of periodic readbacks

Supplies are opened from named profiles (--supplies). With --auth-user
set, every request requires HTTP Basic auth; the password is read from
the HVPSU_PASSWORD environment variable or prompted at startup.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveListen, "listen", ":8080", "Listen address")
	serveCmd.Flags().StringSliceVar(&serveSupplies, "supplies", []string{"heinzinger", "fug"}, "Profiles to attach")
	serveCmd.Flags().StringVar(&serveAuthUser, "auth-user", "", "Username for HTTP Basic auth (empty = no auth)")
	serveCmd.Flags().DurationVar(&serveStream, "stream-interval", time.Second, "WebSocket readback interval")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	authPass := ""
	if serveAuthUser != "" {
		var err error
		authPass, err = GetPassword()
		if err != nil {
			return err
		}
	}

	reg := psu.NewRegistry(busConfig(), nil)
	defer reg.CleanupAll()

	devices := make(map[string]*psu.PSU)
	order := make([]int, 0, len(serveSupplies))
	specs := make(map[int]psu.Spec)
	byIndex := make(map[int]string)
	for _, name := range serveSupplies {
		prof, ok := profiles[name]
		if !ok {
			return fmt.Errorf("unknown profile %q (have: %s)", name, strings.Join(profileNames(), ", "))
		}
		order = append(order, prof.index)
		specs[prof.index] = prof.spec
		byIndex[prof.index] = name
	}

	result := reg.OpenOrdered(order, specs)
	for idx, err := range result.Failed {
		fmt.Printf("WARNING: %s (device %d) unavailable: %v\n", byIndex[idx], idx, err)
	}
	if len(result.Opened) == 0 {
		return errors.New("no supply could be opened")
	}
	for _, idx := range result.Opened {
		devices[byIndex[idx]] = reg.Get(idx)
		fmt.Printf("Attached %s (device %d)\n", byIndex[idx], idx)
	}

	srv := newServer(devices, serveAuthUser, authPass, serveStream)
	fmt.Printf("Listening on %s\n", serveListen)
	return http.ListenAndServe(serveListen, srv.routes())
}

// server owns the attached supplies. The mutex serializes all device
// access: handlers run on arbitrary goroutines and PSU handles are not
// safe for concurrent use.
type server struct {
	mu      sync.Mutex
	devices map[string]*psu.PSU

	authUser string
	authPass string
	interval time.Duration
	upgrader websocket.Upgrader
}

func newServer(devices map[string]*psu.PSU, authUser, authPass string, interval time.Duration) *server {
	return &server{
		devices:  devices,
		authUser: authUser,
		authPass: authPass,
		interval: interval,
	}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /status", s.auth(s.handleStatus))
	mux.HandleFunc("GET /{name}/read", s.auth(s.handleRead))
	mux.HandleFunc("GET /{name}/relay", s.auth(s.handleRelayGet))
	mux.HandleFunc("POST /{name}/set_voltage", s.auth(s.handleSetVoltage))
	mux.HandleFunc("POST /{name}/set_current", s.auth(s.handleSetCurrent))
	mux.HandleFunc("POST /{name}/relay", s.auth(s.handleRelaySet))
	mux.HandleFunc("GET /ws", s.auth(s.handleWS))
	return mux
}

func (s *server) auth(next http.HandlerFunc) http.HandlerFunc {
	if s.authUser == "" {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok ||
			subtle.ConstantTimeCompare([]byte(user), []byte(s.authUser)) != 1 ||
			subtle.ConstantTimeCompare([]byte(pass), []byte(s.authPass)) != 1 {
			w.Header().Set("WWW-Authenticate", `Basic realm="hvpsu"`)
			writeError(w, http.StatusUnauthorized, errors.New("unauthorized"))
			return
		}
		next(w, r)
	}
}

func (s *server) device(w http.ResponseWriter, r *http.Request) (*psu.PSU, bool) {
	name := r.PathValue("name")
	p, ok := s.devices[name]
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("no supply named %q", name))
		return nil, false
	}
	return p, true
}

type setRequest struct {
	Value float64 `json:"value"`
}

type relayRequest struct {
	On bool `json:"on"`
}

type readbackReply struct {
	Name    string  `json:"name"`
	Voltage float64 `json:"voltage"`
	Current float64 `json:"current"`
	RelayOn bool    `json:"relay_on"`
	Error   string  `json:"error,omitempty"`
}

type statusReply struct {
	Name        string  `json:"name"`
	DeviceIndex int     `json:"device_index"`
	State       string  `json:"state"`
	SetVoltage  float64 `json:"set_voltage"`
	SetCurrent  float64 `json:"set_current"`
	RelayOn     bool    `json:"relay_on"`
	HasRelay    bool    `json:"has_relay"`
	MaxVoltage  float64 `json:"max_voltage"`
	MaxCurrent  float64 `json:"max_current"`
}

func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.devices))
	for name := range s.devices {
		names = append(names, name)
	}
	sort.Strings(names)

	statuses := make([]statusReply, 0, len(names))
	for _, name := range names {
		p := s.devices[name]
		spec := p.Spec()
		statuses = append(statuses, statusReply{
			Name:        name,
			DeviceIndex: p.DeviceIndex(),
			State:       p.State().String(),
			SetVoltage:  p.SetpointVoltage(),
			SetCurrent:  p.SetpointCurrent(),
			RelayOn:     p.IsRelayOn(),
			HasRelay:    spec.HasRelay,
			MaxVoltage:  spec.MaxVoltage,
			MaxCurrent:  spec.MaxCurrent,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"supplies": statuses})
}

func (s *server) handleRead(w http.ResponseWriter, r *http.Request) {
	p, ok := s.device(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	reply, err := readback(r.PathValue("name"), p)
	s.mu.Unlock()
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func (s *server) handleRelayGet(w http.ResponseWriter, r *http.Request) {
	p, ok := s.device(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	_, _, err := p.ReadADC()
	on := false
	if frame := p.LastFrame(); frame != nil {
		on = frame.RelayOn()
	}
	s.mu.Unlock()
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"on": on})
}

func (s *server) handleSetVoltage(w http.ResponseWriter, r *http.Request) {
	p, ok := s.device(w, r)
	if !ok {
		return
	}
	var req setRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("bad request body: %v", err))
		return
	}

	s.mu.Lock()
	err := p.SetVoltage(req.Value)
	s.mu.Unlock()
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]float64{"set_voltage": req.Value})
}

func (s *server) handleSetCurrent(w http.ResponseWriter, r *http.Request) {
	p, ok := s.device(w, r)
	if !ok {
		return
	}
	var req setRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("bad request body: %v", err))
		return
	}

	s.mu.Lock()
	err := p.SetCurrent(req.Value)
	s.mu.Unlock()
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]float64{"set_current": req.Value})
}

func (s *server) handleRelaySet(w http.ResponseWriter, r *http.Request) {
	p, ok := s.device(w, r)
	if !ok {
		return
	}
	var req relayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("bad request body: %v", err))
		return
	}

	s.mu.Lock()
	var err error
	if req.On {
		err = p.SwitchOn()
	} else {
		err = p.SwitchOff()
	}
	s.mu.Unlock()
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"on": req.On})
}

// handleWS streams readbacks of every attached supply until the client
// goes away.
func (s *server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	// Drain control frames so pings and close are processed.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for range ticker.C {
		if err := conn.WriteJSON(s.snapshot()); err != nil {
			return
		}
	}
}

// snapshot reads back every supply, reporting per-supply errors inline
// so one faulted device does not silence the stream.
func (s *server) snapshot() []readbackReply {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.devices))
	for name := range s.devices {
		names = append(names, name)
	}
	sort.Strings(names)

	replies := make([]readbackReply, 0, len(names))
	for _, name := range names {
		reply, err := readback(name, s.devices[name])
		if err != nil {
			reply = readbackReply{Name: name, Error: err.Error()}
		}
		replies = append(replies, reply)
	}
	return replies
}

func readback(name string, p *psu.PSU) (readbackReply, error) {
	v, err := p.ReadVoltage()
	if err != nil {
		return readbackReply{}, err
	}
	c, err := p.ReadCurrent()
	if err != nil {
		return readbackReply{}, err
	}
	return readbackReply{
		Name:    name,
		Voltage: v,
		Current: c,
		RelayOn: p.IsRelayOn(),
	}, nil
}

// statusFor maps device errors onto HTTP status codes: caller mistakes
// are 4xx, hardware trouble is 502.
func statusFor(err error) int {
	var rng *psu.OutOfRangeError
	switch {
	case errors.As(err, &rng):
		return http.StatusUnprocessableEntity
	case errors.Is(err, psu.ErrNoRelay):
		return http.StatusConflict
	case errors.Is(err, psu.ErrDeviceFaulted), errors.Is(err, psu.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
