// Package http exposes issuance, reconciliation and transition push over
// REST and websockets.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/simaogato/lnmomo-backend/internal/domain"
	"github.com/simaogato/lnmomo-backend/internal/usecase/issuance"
	"github.com/simaogato/lnmomo-backend/internal/usecase/reconcile"
	"github.com/simaogato/lnmomo-backend/internal/usecase/sweep"
)

// Issuer creates invoices
type Issuer interface {
	Issue(ctx context.Context, input issuance.IssueInput) (*issuance.IssueResult, error)
}

// Reconciler is the on-demand driver
type Reconciler interface {
	Check(ctx context.Context, id uuid.UUID) (*reconcile.Outcome, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.Transaction, error)
}

// Sweeper is the batch driver
type Sweeper interface {
	Run(ctx context.Context) (*sweep.Report, error)
}

// Subscriber hands out transition event streams
type Subscriber interface {
	Subscribe(buffer int) (<-chan domain.TransitionEvent, func())
}

// Pinger reports store health
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators of the HTTP surface
type Deps struct {
	Issuer     Issuer
	Reconciler Reconciler
	Sweeper    Sweeper
	Catalog    domain.NetworkCatalog
	Events     Subscriber
	Store      Pinger
}

// Options tune the HTTP surface
type Options struct {
	APIToken       string   // protects POST /api/sweep when set
	AllowedOrigins []string // CORS; empty allows any origin
	RequestTimeout time.Duration // deadline of the short routes; zero means none
	CheckTimeout   time.Duration // deadline of GET /api/check-payment/:id
	SweepTimeout   time.Duration // deadline of POST /api/sweep
	Logger         *slog.Logger
	Now            func() time.Time
}

// Server is the REST and websocket front of the service
type Server struct {
	deps   Deps
	opts   Options
	router *gin.Engine
	logger *slog.Logger
}

// NewServer wires every route onto a fresh gin engine
func NewServer(deps Deps, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}

	router := gin.New()
	s := &Server{
		deps:   deps,
		opts:   opts,
		router: router,
		logger: opts.Logger,
	}

	router.Use(gin.Recovery(), requestLogger(s.logger), cors(opts.AllowedOrigins))

	short := deadline(opts.RequestTimeout)
	router.GET("/healthz", short, s.handleHealth)

	api := router.Group("/api")
	{
		api.POST("/invoices", short, s.handleIssue)
		api.GET("/transactions/:id", short, s.handleGetTransaction)
		api.GET("/transactions/:id/ws", s.handleWatch)
		api.GET("/check-payment/:id", deadline(opts.CheckTimeout), s.handleCheckPayment)
		api.POST("/sweep", bearerAuth(opts.APIToken), deadline(opts.SweepTimeout), s.handleSweep)
		api.GET("/networks", short, s.handleNetworks)
	}

	return s
}

// Handler returns the root http.Handler
func (s *Server) Handler() http.Handler {
	return s.router
}

func init() {
	gin.SetMode(gin.ReleaseMode)
}
