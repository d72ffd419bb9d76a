package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/moppy-project/moppy-go/pkg/bridge"
	"github.com/moppy-project/moppy-go/pkg/connection"
	"github.com/moppy-project/moppy-go/pkg/discovery"
	"github.com/moppy-project/moppy-go/pkg/log"
)

// session is an open bridge plus everything hanging off it.
type session struct {
	bridge  *bridge.Bridge
	manager *connection.Manager

	// protocol is the capture chain shared with anything relaying for
	// this bridge (the gateway).
	protocol log.Logger
	capture  *log.FileLogger
	logger   *slog.Logger
}

// newLogger builds the operational logger for level, writing to w.
func newLogger(w io.Writer, level string) *slog.Logger {
	lvl, err := parseLogLevel(level)
	if err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

// protocolLogger assembles the protocol capture chain: the .mlog file when
// configured, plus a debug-level mirror into the operational log.
func protocolLogger(cfg Config, logger *slog.Logger) (log.Logger, *log.FileLogger, error) {
	mirror := log.NewSlogAdapter(logger).WithLevel(slog.LevelDebug)
	if cfg.ProtocolLog == "" {
		return mirror, nil, nil
	}
	fl, err := log.NewFileLogger(cfg.ProtocolLog)
	if err != nil {
		return nil, nil, fmt.Errorf("open protocol log: %w", err)
	}
	return log.NewMultiLogger(fl, mirror), fl, nil
}

// openSession creates the bridge described by cfg and connects it. With
// Reconnect enabled a missing device is not fatal: the reconnect manager
// keeps trying in the background.
func openSession(ctx context.Context, cfg Config, logger *slog.Logger) (*session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if name, ok := strings.CutPrefix(cfg.Remote, mdnsScheme); ok {
		svc, err := resolveGateway(ctx, name)
		if err != nil {
			return nil, err
		}
		logger.Info("resolved gateway", "name", name, "address", svc.Address())
		cfg.Remote = svc.Address()
		cfg.StartByte = int(svc.Framing().StartByte)
	}

	plog, capture, err := protocolLogger(cfg, logger)
	if err != nil {
		return nil, err
	}

	bcfg := bridge.DefaultConfig()
	bcfg.Framing = cfg.Framing()
	bcfg.Logger = logger
	bcfg.ProtocolLogger = plog
	bcfg.StrictSend = cfg.StrictSend

	s := &session{
		bridge:   bridge.New(cfg.NewPort(), bcfg),
		protocol: plog,
		capture:  capture,
		logger:   logger,
	}

	if !cfg.Reconnect {
		if err := s.bridge.Connect(ctx); err != nil {
			s.close()
			return nil, err
		}
		return s, nil
	}

	mcfg := connection.DefaultConfig()
	mcfg.Backoff = cfg.Backoff
	mcfg.Logger = logger
	s.manager = connection.Supervise(s.bridge, mcfg)
	s.manager.OnReconnecting(func(attempt int, delay time.Duration) {
		logger.Info("reconnecting", "port", cfg.PortName(), "attempt", attempt, "delay", delay)
	})
	s.manager.OnConnected(func() {
		logger.Info("connected", "port", cfg.PortName(), "connection", s.bridge.ConnectionID())
	})
	if err := s.manager.ConnectOrRetry(ctx); err != nil {
		s.close()
		return nil, err
	}
	return s, nil
}

// mdnsScheme prefixes a -remote value naming a gateway instance.
const mdnsScheme = "mdns:"

// resolveGateway looks a gateway up by instance name over mDNS.
func resolveGateway(ctx context.Context, name string) (*discovery.GatewayService, error) {
	browser, err := discovery.NewMDNSBrowser(discovery.DefaultBrowserConfig())
	if err != nil {
		return nil, err
	}
	defer browser.Stop()

	svc, err := browser.FindByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("resolve gateway %q: %w", name, err)
	}
	return svc, nil
}

// close stops reconnection, closes the bridge and flushes the capture file.
func (s *session) close() {
	if s.manager != nil {
		s.manager.Close()
	}
	if err := s.bridge.Close(); err != nil {
		s.logger.Warn("close bridge", "error", err)
	}
	if s.capture != nil {
		if err := s.capture.Close(); err != nil {
			s.logger.Warn("close protocol log", "error", err)
		} else {
			s.logger.Info("protocol log written", "path", s.capture.Path(), "events", s.capture.Count())
		}
	}
}
