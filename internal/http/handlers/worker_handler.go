// README: Worker handlers: live location, availability and own profile.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"caredispatch/internal/modules/worker"
	"caredispatch/internal/types"
)

type WorkerHandler struct {
	workers *worker.Service
}

func NewWorkerHandler(svc *worker.Service) *WorkerHandler {
	return &WorkerHandler{workers: svc}
}

type workerView struct {
	WorkerID        types.ID            `json:"worker_id"`
	Name            string              `json:"name"`
	Phone           string              `json:"phone"`
	Specializations []string            `json:"specializations"`
	Availability    worker.Availability `json:"availability"`
	Active          bool                `json:"active"`
	Approved        bool                `json:"approved"`
	ServiceRadiusKm float64             `json:"service_radius_km"`
	Rating          float64             `json:"rating"`
	TotalOrders     int                 `json:"total_orders"`
	CompletedOrders int                 `json:"completed_orders"`
	Location        types.Point         `json:"location"`
	Address         string              `json:"address,omitempty"`
}

func workerViewOf(w *worker.Worker) workerView {
	return workerView{
		WorkerID:        w.ID,
		Name:            w.Name,
		Phone:           w.Phone,
		Specializations: w.Specializations,
		Availability:    w.Availability,
		Active:          w.Active,
		Approved:        w.Approved,
		ServiceRadiusKm: w.ServiceRadiusKm,
		Rating:          w.Rating,
		TotalOrders:     w.TotalOrders,
		CompletedOrders: w.CompletedOrders,
		Location:        w.Location,
		Address:         w.Address,
	}
}

type registerWorkerReq struct {
	WorkerID        types.ID            `json:"worker_id"`
	Name            string              `json:"name"`
	Phone           string              `json:"phone"`
	Specializations []string            `json:"specializations"`
	Availability    worker.Availability `json:"availability"`
	Active          bool                `json:"active"`
	Approved        bool                `json:"approved"`
	ServiceRadiusKm float64             `json:"service_radius_km"`
	Rating          float64             `json:"rating"`
	Location        locationReq         `json:"location"`
}

// Register seeds or updates a worker in the dispatch pool. Admin only;
// the worker id comes from the external identity/profile service.
func (h *WorkerHandler) Register(c *gin.Context) {
	var req registerWorkerReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	radius := req.ServiceRadiusKm
	if radius <= 0 {
		radius = 10
	}
	w := &worker.Worker{
		ID:              req.WorkerID,
		Name:            req.Name,
		Phone:           req.Phone,
		Specializations: req.Specializations,
		Availability:    req.Availability,
		Active:          req.Active,
		Approved:        req.Approved,
		ServiceRadiusKm: radius,
		Rating:          req.Rating,
		Location:        types.Point{Lat: req.Location.Lat, Lng: req.Location.Lng},
		Address:         req.Location.Address,
	}
	if err := h.workers.Register(c.Request.Context(), w); err != nil {
		writeWorkerError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, workerViewOf(w))
}

func (h *WorkerHandler) UpdateLocation(c *gin.Context) {
	userID, _ := caller(c)
	var req locationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	err := h.workers.UpdateLocation(c.Request.Context(), worker.LocationUpdate{
		WorkerID: userID,
		Position: types.Point{Lat: req.Lat, Lng: req.Lng},
		Address:  req.Address,
	})
	if err != nil {
		writeWorkerError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"updated": true})
}

func (h *WorkerHandler) UpdateAvailability(c *gin.Context) {
	userID, _ := caller(c)
	var req struct {
		Availability worker.Availability `json:"availability"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.workers.UpdateAvailability(c.Request.Context(), userID, req.Availability); err != nil {
		writeWorkerError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"availability": req.Availability})
}

func (h *WorkerHandler) Me(c *gin.Context) {
	userID, _ := caller(c)
	w, err := h.workers.Get(c.Request.Context(), userID)
	if err != nil {
		writeWorkerError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, workerViewOf(w))
}
