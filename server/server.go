// Package server exposes a locally spawned driver over WebSocket, so clients
// on other hosts can drive it with driver.Connect.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"github.com/microsoft/playwright-python-sub003/connection"
	"github.com/microsoft/playwright-python-sub003/driver"
)

// Server hosts driver sessions. Each WebSocket client gets its own driver
// subprocess; frames are relayed verbatim in both directions, so the server
// never parses protocol traffic.
type Server struct {
	logger *zap.SugaredLogger

	listenAddr string
	driverPath string

	httpServer *http.Server

	startMut sync.Mutex
	started  chan struct{}
	boundTo  net.Addr
}

type Option func(s *Server)

func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		s.logger = l.Named("pwserver").Sugar()
	}
}

func WithListenAddr(addr string) Option {
	return func(s *Server) {
		s.listenAddr = addr
	}
}

// WithDriverPath overrides driver executable discovery for spawned sessions.
func WithDriverPath(path string) Option {
	return func(s *Server) {
		s.driverPath = path
	}
}

// New constructs a driver server.
func New(opts ...Option) (*Server, error) {
	logger, err := zap.NewDevelopment()
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}
	s := &Server{
		logger:     logger.Named("pwserver").Sugar(),
		listenAddr: "127.0.0.1:4444",
		started:    make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Run serves until Stop is called and returns nil on a clean shutdown.
func (s *Server) Run() error {
	tcpListener, err := net.Listen("tcp", s.listenAddr)
	if err != nil {
		return fmt.Errorf("listening TCP: %w", err)
	}

	router := httprouter.New()
	router.GET("/health", s.health)
	router.GET("/connect", s.connect)

	server := http.Server{Handler: router}

	s.startMut.Lock()
	s.httpServer = &server
	s.boundTo = tcpListener.Addr()
	close(s.started)
	s.startMut.Unlock()

	err = server.Serve(tcpListener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Addr blocks until the listener is bound and returns its address. Useful
// with a ":0" listen address.
func (s *Server) Addr() net.Addr {
	<-s.started
	s.startMut.Lock()
	defer s.startMut.Unlock()
	return s.boundTo
}

func (s *Server) health(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	response := struct {
		Status string
		Time   string
	}{
		Status: "ok",
		Time:   time.Now().UTC().Format(time.RFC3339),
	}
	b, err := json.Marshal(response)
	if err != nil {
		s.logger.Debugf("error marshaling health response: %s", err)
	}
	w.Header().Add("Content-Type", "application/json")
	w.Write(b)
}

// connect spawns a driver subprocess and relays frames between it and the
// WebSocket client until either side hangs up.
func (s *Server) connect(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	sessionID := uuid.New().String()
	log := s.logger.With("Session", sessionID)

	wsConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		CompressionMode: websocket.CompressionContextTakeover,
	})
	if err != nil {
		// Accept has already written its own error response
		log.Debugf("connect WebSocket accept error: %s", err)
		return
	}

	var driverOpts []driver.Option
	if s.driverPath != "" {
		driverOpts = append(driverOpts, driver.WithDriverPath(s.driverPath))
	}
	proc, err := driver.Spawn(driverOpts...)
	if err != nil {
		log.Debugf("connect driver spawn error: %s", err)
		wsConn.Close(websocket.StatusInternalError, "driver spawn failed")
		return
	}
	log.Debugw("session started")

	pipe := connection.NewPipeTransport(proc.Stdout, proc.Stdin)
	ws := connection.NewWebSocketTransport(wsConn)

	// Either side ending tears down the other; both onClose callbacks fire
	// before the session is reaped.
	var wg sync.WaitGroup
	wg.Add(2)
	pipe.Start(func(msg json.RawMessage) {
		if err := ws.Send(msg); err != nil {
			log.Debugf("relaying driver frame: %s", err)
		}
	}, func(err error) {
		if err != nil {
			log.Debugf("driver pipe ended: %s", err)
		}
		ws.Close()
		wg.Done()
	})
	ws.Start(func(msg json.RawMessage) {
		if err := pipe.Send(msg); err != nil {
			log.Debugf("relaying client frame: %s", err)
		}
	}, func(err error) {
		if err != nil {
			log.Debugf("client WebSocket ended: %s", err)
		}
		pipe.Close()
		wg.Done()
	})

	wg.Wait()
	proc.Close()
	log.Debugw("session ended")
}

func (s *Server) Stop() error {
	s.startMut.Lock()
	server := s.httpServer
	s.startMut.Unlock()
	if server == nil {
		return nil
	}
	return server.Close()
}
