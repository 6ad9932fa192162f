package codebench

import (
	"context"
	"errors"
	"sync"

	"pkt.systems/codebench/core"
	"pkt.systems/codebench/httpapi"
	"pkt.systems/codebench/internal/eventbus"
	"pkt.systems/codebench/schema"
	"pkt.systems/pslog"
)

// Server composes the session service and its front ends.
type Server interface {
	Start(ctx context.Context) error
	Wait() error
	Stop(ctx context.Context) error
}

// ServerConfig configures the compositor.
type ServerConfig struct {
	Service schema.ServiceConfig
	HTTP    httpapi.Config
}

// ServerDeps captures dependencies required to build the server.
type ServerDeps struct {
	ServiceDeps core.ServiceDeps
	// Runtimes backs the runtime listing endpoint; nil disables it.
	Runtimes httpapi.RuntimeLister
}

// ServerOption toggles compositor components.
type ServerOption func(*serverOptions)

type serverOptions struct {
	enableHTTP bool
	bus        *eventbus.Bus
}

// WithHTTP enables the HTTP API server.
func WithHTTP() ServerOption {
	return func(o *serverOptions) { o.enableHTTP = true }
}

// WithEventBus publishes session events to bus in addition to the HTTP hub.
func WithEventBus(bus *eventbus.Bus) ServerOption {
	return func(o *serverOptions) { o.bus = bus }
}

// New constructs a composable codebench server.
func New(cfg ServerConfig, deps ServerDeps, opts ...ServerOption) (Server, error) {
	options := serverOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	if !options.enableHTTP {
		return nil, errors.New("no services enabled")
	}
	if deps.ServiceDeps.Executor == nil && deps.ServiceDeps.Generator == nil {
		return nil, errors.New("execution or generation dependency is required")
	}
	normalized, err := schema.NormalizeServiceConfig(cfg.Service)
	if err != nil {
		return nil, err
	}
	cfg.Service = normalized
	if cfg.HTTP.MaxImportBytes <= 0 {
		cfg.HTTP.MaxImportBytes = normalized.MaxImportBytes
	}

	hub := httpapi.NewHub(cfg.HTTP.StreamHistory)
	serviceDeps := deps.ServiceDeps
	var bus core.EventSink
	if options.bus != nil {
		bus = options.bus
	}
	serviceDeps.EventSink = combineSinks(serviceDeps.EventSink, hub, bus)

	service, err := core.NewService(cfg.Service, serviceDeps)
	if err != nil {
		return nil, err
	}
	return &compositeServer{
		cfg:     cfg,
		options: options,
		service: service,
		httpSrv: httpapi.NewServer(cfg.HTTP, service, hub, deps.Runtimes),
	}, nil
}

type compositeServer struct {
	cfg     ServerConfig
	options serverOptions
	service core.Service
	httpSrv *httpapi.Server
	logger  pslog.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	errCh   chan error
	started bool
}

func (s *compositeServer) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		pslog.Ctx(ctx).Warn("server start rejected", "reason", "already started")
		return errors.New("server already started")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.errCh = make(chan error, 1)
	s.started = true
	s.logger = pslog.Ctx(s.ctx)
	s.mu.Unlock()

	log := s.logger
	log.Info(
		"server start",
		"http", s.options.enableHTTP,
		"http_addr", s.cfg.HTTP.Addr,
		"http_base_path", s.cfg.HTTP.BasePath,
		"default_language", s.cfg.Service.DefaultLanguage,
		"operation_timeout", s.cfg.Service.OperationTimeout,
	)
	if s.options.enableHTTP && s.httpSrv != nil {
		s.httpSrv.SetBaseContext(s.ctx)
		go func() {
			if err := httpapi.ListenAndServe(s.ctx, s.cfg.HTTP.Addr, s.httpSrv.Handler()); err != nil {
				log.Error("http server failed", "err", err)
				s.errCh <- err
			}
		}()
	}
	return nil
}

func (s *compositeServer) Wait() error {
	s.mu.Lock()
	ctx := s.ctx
	errCh := s.errCh
	started := s.started
	s.mu.Unlock()
	if !started {
		return errors.New("server not started")
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		if err != nil {
			pslog.Ctx(ctx).Error("server stopped", "err", err)
			_ = s.Stop(context.Background())
			return err
		}
		return nil
	}
}

func (s *compositeServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel := s.cancel
	started := s.started
	log := s.logger
	s.mu.Unlock()
	if !started {
		return nil
	}
	if log == nil {
		log = pslog.Ctx(context.Background())
	}
	log.Info("server stop requested")
	if closed, err := closeSessions(context.Background(), s.service); err != nil {
		log.Warn("server session close failed", "closed", closed, "err", err)
	} else {
		log.Info("server session close ok", "closed", closed)
	}
	if cancel != nil {
		cancel()
	}
	if ctx == nil {
		log.Info("server stop completed")
		return nil
	}
	select {
	case <-ctx.Done():
		log.Warn("server stop timed out", "err", ctx.Err())
		return ctx.Err()
	case <-s.ctx.Done():
		log.Info("server stopped")
		return nil
	}
}

// closeSessions closes every open session, cancelling in-flight calls.
func closeSessions(ctx context.Context, service core.Service) (int, error) {
	if service == nil {
		return 0, nil
	}
	list, err := service.ListSessions(ctx, schema.ListSessionsRequest{})
	if err != nil {
		return 0, err
	}
	closed := 0
	var errs []error
	for _, id := range list.Sessions {
		if _, err := service.CloseSession(ctx, schema.CloseSessionRequest{SessionID: id}); err != nil {
			if !errors.Is(err, schema.ErrSessionNotFound) {
				errs = append(errs, err)
			}
			continue
		}
		closed++
	}
	return closed, errors.Join(errs...)
}
