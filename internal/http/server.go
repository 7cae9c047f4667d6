// README: API gateway; registers HTTP routes and delegates to module services.
package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"caredispatch/internal/http/handlers"
	"caredispatch/internal/http/middleware"
	"caredispatch/internal/modules/area"
	"caredispatch/internal/modules/order"
	"caredispatch/internal/modules/worker"
)

type ServerDeps struct {
	Order     *order.Service
	Worker    *worker.Service
	Area      *area.Resolver
	JWTSecret string
	Log       *slog.Logger
}

type Server struct {
	deps ServerDeps
}

func NewServer(deps ServerDeps) *Server {
	return &Server{deps: deps}
}

func (s *Server) Routes() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(middleware.Recovery(s.deps.Log), middleware.Logging(s.deps.Log))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	orderHandler := handlers.NewOrderHandler(s.deps.Order, s.deps.Area)
	workerHandler := handlers.NewWorkerHandler(s.deps.Worker)

	api := r.Group("/api", middleware.Auth(s.deps.JWTSecret))

	orders := api.Group("/orders")
	{
		customer := middleware.RequireRole(middleware.RoleCustomer)
		workerOnly := middleware.RequireRole(middleware.RoleWorker)

		orders.POST("", customer, orderHandler.Create)
		orders.GET("", orderHandler.List)
		orders.GET("/active", customer, orderHandler.Active)
		orders.GET("/available", workerOnly, orderHandler.Available)
		orders.GET("/:id", orderHandler.Get)
		orders.GET("/:id/status", orderHandler.Status)

		orders.PATCH("/:id/cancel", customer, orderHandler.Cancel)
		orders.PATCH("/:id/finish", customer, orderHandler.Finish)
		orders.PATCH("/:id/complete", middleware.RequireRole(middleware.RoleCustomer, middleware.RoleWorker), orderHandler.Complete)

		orders.PATCH("/:id/accept", workerOnly, orderHandler.Accept)
		orders.PATCH("/:id/deny", workerOnly, orderHandler.Deny)
		orders.PATCH("/:id/start", workerOnly, orderHandler.Start)

		orders.PATCH("/:id/admin-update", middleware.RequireRole(middleware.RoleAdmin), orderHandler.AdminUpdate)
	}

	// Pool seeding is an ops concern; worker identities come from the
	// external profile service.
	api.POST("/workers", middleware.RequireRole(middleware.RoleAdmin), workerHandler.Register)

	workers := api.Group("/workers", middleware.RequireRole(middleware.RoleWorker))
	{
		workers.POST("/location", workerHandler.UpdateLocation)
		workers.POST("/availability", workerHandler.UpdateAvailability)
		workers.GET("/me", workerHandler.Me)
	}

	return r
}
