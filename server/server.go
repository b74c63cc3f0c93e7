package server

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/wippyai/capture-bridge/binding"
	"github.com/wippyai/capture-bridge/bridge"
	"github.com/wippyai/capture-bridge/dispatch"
	"github.com/wippyai/capture-bridge/enroll"
)

// Event is one frame on /ws/events.
type Event struct {
	Time  time.Time `json:"time"`
	Code  *int32    `json:"code,omitempty"`
	Type  string    `json:"type"`
	Path  string    `json:"path,omitempty"`
	State string    `json:"state,omitempty"`
	Error string    `json:"error,omitempty"`
}

// Server exposes a Bridge over HTTP. Every call into the bridge runs on the
// dispatch worker, so requests never interleave driver calls.
type Server struct {
	app         *fiber.App
	bridge      *bridge.Bridge
	worker      *dispatch.Worker
	store       *enroll.Store
	events      *hub
	logger      *zap.Logger
	unsubscribe func()
	driverPath  string
	quality     int
	threshold   int
}

// Option configures a Server.
type Option func(*Server)

// WithStore enables the enrollment and match routes.
func WithStore(s *enroll.Store) Option {
	return func(srv *Server) { srv.store = s }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(srv *Server) {
		if l != nil {
			srv.logger = l
		}
	}
}

// WithDriverPath sets the module loaded when POST /api/module has no path.
func WithDriverPath(path string) Option {
	return func(srv *Server) { srv.driverPath = path }
}

// WithDefaultQuality sets the quality used when a request omits one.
func WithDefaultQuality(q int) Option {
	return func(srv *Server) { srv.quality = q }
}

// WithMatchThreshold sets the minimum score for POST /api/match.
func WithMatchThreshold(n int) Option {
	return func(srv *Server) { srv.threshold = n }
}

// New builds the server and starts its event hub. Call Shutdown to release it.
func New(b *bridge.Bridge, w *dispatch.Worker, opts ...Option) *Server {
	s := &Server{
		bridge:    b,
		worker:    w,
		logger:    zap.NewNop(),
		quality:   bridge.DefaultQuality,
		threshold: enroll.DefaultThreshold,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.events = newHub(s.logger)
	go s.events.run()

	s.unsubscribe = b.Table().Subscribe(binding.ObserverFunc(s.onBindingEvent))

	app := fiber.New(fiber.Config{
		AppName:               "capture-bridge",
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})
	app.Use(recover.New())
	app.Use(cors.New())

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Post("/module", s.handleLoad)
	api.Delete("/module", s.handleUnload)
	api.Post("/device/init", s.handleInit)
	api.Post("/device/uninit", s.handleUninit)
	api.Post("/device/capture", s.handleCapture)

	if s.store != nil {
		api.Post("/enrollments", s.handleEnroll)
		api.Get("/enrollments", s.handleListEnrollments)
		api.Delete("/enrollments/:id", s.handleDeleteEnrollment)
		api.Post("/match", s.handleMatch)
	}

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/events", websocket.New(s.handleEventsWS))

	s.app = app
	return s
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves on addr until Shutdown.
func (s *Server) Listen(addr string) error {
	s.logger.Info("listening", zap.String("addr", addr))
	return s.app.Listen(addr)
}

// Shutdown stops accepting requests, waits for in-flight ones and disconnects
// event clients. It does not close the worker, the store or the bridge.
func (s *Server) Shutdown(ctx context.Context) error {
	s.unsubscribe()
	s.events.close()
	return s.app.ShutdownWithContext(ctx)
}

// run executes fn on the worker with the request's context.
func (s *Server) run(c *fiber.Ctx, fn func(context.Context)) error {
	return s.worker.Do(c.UserContext(), fn)
}

func (s *Server) publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	s.events.broadcastJSON(e)
}

func (s *Server) onBindingEvent(e binding.Event) {
	ev := Event{Type: e.Type.String(), Path: e.Path}
	if e.Err != nil {
		ev.Error = e.Err.Error()
	}
	s.publish(ev)
}
