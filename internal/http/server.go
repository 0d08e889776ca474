// README: API gateway; registers HTTP routes and delegates to module services.
package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"cartpool/internal/geocode"
	"cartpool/internal/http/handlers"
	"cartpool/internal/http/middleware"
	"cartpool/internal/modules/catalog"
	"cartpool/internal/modules/lead"
	"cartpool/internal/modules/market"
	"cartpool/internal/modules/perm"
	"cartpool/internal/modules/users"
	"cartpool/internal/timeadj"
	"cartpool/internal/types"
)

// Sessions is the session manager surface the server needs. Satisfied
// by session.Manager; tests substitute a stub.
type Sessions interface {
	Create(ctx context.Context, userID types.UserID) (string, error)
	Resolve(ctx context.Context, token string) (types.UserID, error)
	Delete(ctx context.Context, token string) error
}

type ServerDeps struct {
	Store        *market.Store
	Catalog      *catalog.Catalog
	Users        *users.Directory
	Sessions     Sessions
	Leads        *lead.Store
	Perm         *perm.Checker
	TimeAdj      *timeadj.Adjuster
	Geocoder     *geocode.Geocoder // optional
	MinBasketSum float64
	Log          zerolog.Logger
}

type Server struct {
	deps ServerDeps
}

func NewServer(deps ServerDeps) *Server {
	return &Server{deps: deps}
}

func (s *Server) Routes() *gin.Engine {
	d := s.deps

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(middleware.Recovery(d.Log), middleware.Logging(d.Log))

	authHandler := handlers.NewAuthHandler(d.Users, d.Sessions, d.Log)
	rideHandler := handlers.NewRideHandler(d.Store, d.Perm, d.Users, d.TimeAdj, d.Geocoder, d.Log)
	orderHandler := handlers.NewOrderHandler(d.Store, d.Catalog, d.Perm, d.MinBasketSum, d.Log)
	catalogHandler := handlers.NewCatalogHandler(d.Catalog, d.Store, d.Perm, d.Log)
	dashHandler := handlers.NewDashHandler(d.Store, d.Users, d.TimeAdj, d.Log)
	leadHandler := handlers.NewLeadHandler(d.Leads, d.Log)

	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/v1")
	v1.POST("/auth/login", authHandler.Login)
	v1.POST("/leads", leadHandler.Register)

	authed := v1.Group("", middleware.Auth(d.Sessions))
	authed.POST("/auth/logout", authHandler.Logout)
	authed.GET("/auth/me", authHandler.UserInfo)

	authed.GET("/products", catalogHandler.Products)
	authed.GET("/shopping-lists/:id", catalogHandler.ShoppingList)

	authed.POST("/rides", rideHandler.Add)
	authed.GET("/rides/:id", rideHandler.Get)
	authed.POST("/rides/:id/cancel", rideHandler.Cancel)
	authed.GET("/rides/:id/requests", rideHandler.ShoppingRequests)

	authed.POST("/orders", orderHandler.Add)
	authed.POST("/orders/:id/accept", orderHandler.Accept)
	authed.POST("/orders/:id/decline", orderHandler.Decline)
	authed.POST("/orders/:id/delivered", orderHandler.MarkDelivered)
	authed.POST("/orders/:id/rating", orderHandler.Rate)

	authed.GET("/dash/user", dashHandler.User)
	authed.GET("/dash/shopper", dashHandler.Shopper)

	return r
}
