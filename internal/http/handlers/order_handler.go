// README: Order handlers: creation, lifecycle actions and worker offer flow.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"caredispatch/internal/http/middleware"
	"caredispatch/internal/modules/area"
	"caredispatch/internal/modules/order"
	"caredispatch/internal/types"
)

type OrderHandler struct {
	order *order.Service
	area  *area.Resolver
}

func NewOrderHandler(svc *order.Service, areas *area.Resolver) *OrderHandler {
	return &OrderHandler{order: svc, area: areas}
}

type locationReq struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Address string  `json:"address"`
}

type createOrderReq struct {
	Items         []order.LineItem `json:"items"`
	Location      locationReq      `json:"location"`
	Total         types.Money      `json:"total"`
	PaymentMethod string           `json:"payment_method"`
	PaymentRef    string           `json:"payment_ref"`
}

type orderView struct {
	OrderID            types.ID              `json:"order_id"`
	CustomerID         types.ID              `json:"customer_id"`
	Items              []order.LineItem      `json:"items"`
	Location           order.ServiceLocation `json:"location"`
	Total              types.Money           `json:"total"`
	PaymentMethod      string                `json:"payment_method"`
	PaymentRef         string                `json:"payment_ref,omitempty"`
	Status             order.Status          `json:"status"`
	AssignedWorker     *order.WorkerSnapshot `json:"assigned_worker,omitempty"`
	Offers             []order.Offer         `json:"offers,omitempty"`
	AcceptanceDeadline *time.Time            `json:"acceptance_deadline,omitempty"`
	AcceptedAt         *time.Time            `json:"accepted_at,omitempty"`
	CreatedAt          time.Time             `json:"created_at"`
	Area               *area.Info            `json:"area,omitempty"`
}

func viewOf(o *order.Order) orderView {
	return orderView{
		OrderID:            o.ID,
		CustomerID:         o.CustomerID,
		Items:              o.Items,
		Location:           o.Location,
		Total:              o.Total,
		PaymentMethod:      o.PaymentMethod,
		PaymentRef:         o.PaymentRef,
		Status:             o.Status,
		AssignedWorker:     o.AssignedWorker,
		Offers:             o.Offers,
		AcceptanceDeadline: o.AcceptanceDeadline,
		AcceptedAt:         o.AcceptedAt,
		CreatedAt:          o.CreatedAt,
	}
}

func caller(c *gin.Context) (types.ID, string) {
	return types.ID(c.GetString(middleware.CtxUserID)), c.GetString(middleware.CtxRole)
}

// canView enforces who may read an order: the ordering customer, a worker
// that was assigned or offered it, and admins.
func canView(o *order.Order, userID types.ID, role string) bool {
	switch role {
	case middleware.RoleAdmin:
		return true
	case middleware.RoleCustomer:
		return o.CustomerID == userID
	case middleware.RoleWorker:
		if o.AssignedWorker != nil && o.AssignedWorker.WorkerID == userID {
			return true
		}
		return o.OfferFor(userID) != nil
	}
	return false
}

func (h *OrderHandler) Create(c *gin.Context) {
	userID, _ := caller(c)
	var req createOrderReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	o, err := h.order.Create(c.Request.Context(), order.CreateCommand{
		CustomerID: userID,
		Items:      req.Items,
		Location: order.ServiceLocation{
			Position: types.Point{Lat: req.Location.Lat, Lng: req.Location.Lng},
			Address:  req.Location.Address,
		},
		Total:         req.Total,
		PaymentMethod: req.PaymentMethod,
		PaymentRef:    req.PaymentRef,
	})
	if err != nil {
		writeOrderError(c, err)
		return
	}
	v := viewOf(o)
	info := h.area.Resolve(c.Request.Context(), o.Location.Position)
	v.Area = &info
	writeJSON(c, http.StatusCreated, v)
}

func (h *OrderHandler) List(c *gin.Context) {
	userID, role := caller(c)
	var (
		orders []*order.Order
		err    error
	)
	switch role {
	case middleware.RoleWorker:
		orders, err = h.order.ListForWorker(c.Request.Context(), userID)
	default:
		orders, err = h.order.ListForCustomer(c.Request.Context(), userID)
	}
	if err != nil {
		writeOrderError(c, err)
		return
	}
	views := make([]orderView, len(orders))
	for i, o := range orders {
		views[i] = viewOf(o)
	}
	writeJSON(c, http.StatusOK, gin.H{"orders": views})
}

func (h *OrderHandler) Active(c *gin.Context) {
	userID, _ := caller(c)
	o, err := h.order.Active(c.Request.Context(), userID)
	if err != nil {
		writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, viewOf(o))
}

func (h *OrderHandler) Get(c *gin.Context) {
	userID, role := caller(c)
	o, err := h.order.Get(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeOrderError(c, err)
		return
	}
	if !canView(o, userID, role) {
		writeError(c, http.StatusForbidden, "access denied")
		return
	}
	writeJSON(c, http.StatusOK, viewOf(o))
}

// Status is the lightweight polling projection.
func (h *OrderHandler) Status(c *gin.Context) {
	userID, role := caller(c)
	o, err := h.order.Get(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeOrderError(c, err)
		return
	}
	if !canView(o, userID, role) {
		writeError(c, http.StatusForbidden, "access denied")
		return
	}
	resp := gin.H{"order_id": o.ID, "status": o.Status}
	if o.AssignedWorker != nil {
		resp["worker_id"] = o.AssignedWorker.WorkerID
		resp["eta_minutes"] = o.AssignedWorker.ETAMinutes
	}
	writeJSON(c, http.StatusOK, resp)
}

func (h *OrderHandler) Cancel(c *gin.Context) {
	userID, _ := caller(c)
	var req struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&req)
	err := h.order.Cancel(c.Request.Context(), order.CancelCommand{
		OrderID:    types.ID(c.Param("id")),
		CustomerID: userID,
		Reason:     req.Reason,
	})
	if err != nil {
		writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"status": order.StatusCancelled})
}

func (h *OrderHandler) Finish(c *gin.Context) {
	userID, _ := caller(c)
	err := h.order.Finish(c.Request.Context(), order.FinishCommand{
		OrderID:    types.ID(c.Param("id")),
		CustomerID: userID,
	})
	if err != nil {
		writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"status": order.StatusFinished})
}

func (h *OrderHandler) Complete(c *gin.Context) {
	userID, role := caller(c)
	err := h.order.Complete(c.Request.Context(), order.CompleteCommand{
		OrderID:   types.ID(c.Param("id")),
		ActorType: role,
		ActorID:   userID,
	})
	if err != nil {
		writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"status": order.StatusCompleted})
}

// Available lists orders with a live pending offer for the calling worker.
func (h *OrderHandler) Available(c *gin.Context) {
	userID, _ := caller(c)
	orders, err := h.order.AvailableForWorker(c.Request.Context(), userID)
	if err != nil {
		writeOrderError(c, err)
		return
	}
	views := make([]orderView, len(orders))
	for i, o := range orders {
		views[i] = viewOf(o)
	}
	writeJSON(c, http.StatusOK, gin.H{"orders": views})
}

func (h *OrderHandler) Accept(c *gin.Context) {
	userID, _ := caller(c)
	o, err := h.order.Accept(c.Request.Context(), order.AcceptCommand{
		OrderID:  types.ID(c.Param("id")),
		WorkerID: userID,
	})
	if err != nil {
		writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, viewOf(o))
}

func (h *OrderHandler) Deny(c *gin.Context) {
	userID, _ := caller(c)
	err := h.order.Deny(c.Request.Context(), order.DenyCommand{
		OrderID:  types.ID(c.Param("id")),
		WorkerID: userID,
	})
	if err != nil {
		writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"response": order.OfferDenied})
}

func (h *OrderHandler) Start(c *gin.Context) {
	userID, _ := caller(c)
	err := h.order.Start(c.Request.Context(), order.StartCommand{
		OrderID:  types.ID(c.Param("id")),
		WorkerID: userID,
	})
	if err != nil {
		writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"status": order.StatusInProgress})
}

type adminUpdateReq struct {
	Status         *order.Status         `json:"status"`
	AssignedWorker *order.WorkerSnapshot `json:"assigned_worker"`
}

func (h *OrderHandler) AdminUpdate(c *gin.Context) {
	var req adminUpdateReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	o, err := h.order.AdminUpdate(c.Request.Context(), order.AdminUpdateCommand{
		OrderID:        types.ID(c.Param("id")),
		Status:         req.Status,
		AssignedWorker: req.AssignedWorker,
	})
	if err != nil {
		writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, viewOf(o))
}
