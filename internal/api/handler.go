package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"tour-inventory/internal/models"
	"tour-inventory/internal/service"
	"tour-inventory/internal/util"
	"tour-inventory/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ReservationService is the hold lifecycle used by checkout and payment.
type ReservationService interface {
	Hold(ctx context.Context, req *service.HoldRequest) (*models.Reservation, error)
	Confirm(ctx context.Context, id string) (*models.Reservation, error)
	Release(ctx context.Context, id, reason string) (*models.Reservation, error)
	Get(ctx context.Context, id string) (*models.Reservation, error)
	ListByBooking(ctx context.Context, bookingID string) ([]models.Reservation, error)
}

// AvailabilityQueries is the browsing read side.
type AvailabilityQueries interface {
	CheckOne(ctx context.Context, tourID string, date models.Date, participants int) (*service.DateAvailability, error)
	CheckRange(ctx context.Context, tourID string, start, end models.Date, participants int) (*service.RangeAvailability, error)
	PricePreview(ctx context.Context, tourID string, start, end models.Date, participants int) ([]service.DatePrice, error)
	ListSlots(ctx context.Context, tourID string, start, end models.Date) ([]models.InventorySlot, error)
	GetSlot(ctx context.Context, tourID string, date models.Date) (*models.InventorySlot, error)
}

// InventoryEditor is the operator write side.
type InventoryEditor interface {
	UpsertSlot(ctx context.Context, tourID string, date models.Date, edit service.SlotEdit) (*models.InventorySlot, error)
	ApplyRange(ctx context.Context, tourID string, start, end models.Date, edit service.SlotEdit) (*service.RangeEditResult, error)
}

type PricingRules interface {
	CreateRule(ctx context.Context, req *service.CreateRuleRequest) (*models.SeasonalPricingRule, error)
	ListRules(ctx context.Context, tourID string) ([]models.SeasonalPricingRule, error)
	SetActive(ctx context.Context, ruleID string, active bool) (*models.SeasonalPricingRule, error)
}

// SweepRunner triggers an out-of-band sweep.
type SweepRunner interface {
	RunOnce(ctx context.Context) (int, bool)
	GetStats() *worker.SweepWorkerStats
}

// Handler contains HTTP handlers
type Handler struct {
	reservations ReservationService
	availability AvailabilityQueries
	editor       InventoryEditor
	rules        PricingRules
	sweeper      SweepRunner
	ready        func(ctx context.Context) error
}

// NewHandler creates a new HTTP handler. ready may be nil.
func NewHandler(
	reservations ReservationService,
	availability AvailabilityQueries,
	editor InventoryEditor,
	rules PricingRules,
	sweeper SweepRunner,
	ready func(ctx context.Context) error,
) *Handler {
	return &Handler{
		reservations: reservations,
		availability: availability,
		editor:       editor,
		rules:        rules,
		sweeper:      sweeper,
		ready:        ready,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		tours := v1.Group("/tours/:tourId")
		tours.GET("/slots", h.listSlots)
		tours.GET("/slots/:date", h.getSlot)
		tours.PUT("/slots/:date", h.upsertSlot)
		tours.POST("/slots/bulk", h.applyRange)
		tours.GET("/availability", h.checkRange)
		tours.GET("/availability/:date", h.checkOne)
		tours.GET("/pricing", h.pricePreview)
		tours.POST("/pricing-rules", h.createRule)
		tours.GET("/pricing-rules", h.listRules)

		v1.PATCH("/pricing-rules/:ruleId", h.setRuleActive)

		v1.POST("/reservations", h.holdReservation)
		v1.GET("/reservations/:id", h.getReservation)
		v1.GET("/bookings/:bookingId/reservations", h.listReservationsByBooking)
		v1.POST("/reservations/:id/confirm", h.confirmReservation)
		v1.POST("/reservations/:id/release", h.releaseReservation)

		v1.POST("/admin/sweep", h.runSweep)
		v1.GET("/admin/sweep", h.sweepStats)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck reports whether the backing stores answer
func (h *Handler) readinessCheck(c *gin.Context) {
	if h.ready != nil {
		if err := h.ready(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "not ready",
				"details": err.Error(),
			})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

func (h *Handler) listSlots(c *gin.Context) {
	start, end, ok := dateRange(c)
	if !ok {
		return
	}
	slots, err := h.availability.ListSlots(c.Request.Context(), c.Param("tourId"), start, end)
	if err != nil {
		respondError(c, err)
		return
	}
	if slots == nil {
		slots = []models.InventorySlot{}
	}
	c.JSON(http.StatusOK, gin.H{"slots": slots})
}

func (h *Handler) getSlot(c *gin.Context) {
	date, ok := pathDate(c)
	if !ok {
		return
	}
	slot, err := h.availability.GetSlot(c.Request.Context(), c.Param("tourId"), date)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, slot)
}

func (h *Handler) upsertSlot(c *gin.Context) {
	date, ok := pathDate(c)
	if !ok {
		return
	}
	var edit service.SlotEdit
	if err := c.ShouldBindJSON(&edit); err != nil {
		badRequest(c, err.Error())
		return
	}

	slot, err := h.editor.UpsertSlot(c.Request.Context(), c.Param("tourId"), date, edit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, slot)
}

// bulkEditRequest is the body of a range edit.
type bulkEditRequest struct {
	StartDate models.Date `json:"start_date"`
	EndDate   models.Date `json:"end_date"`
	service.SlotEdit
}

func (h *Handler) applyRange(c *gin.Context) {
	var req bulkEditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if req.StartDate.IsZero() || req.EndDate.IsZero() {
		badRequest(c, "start_date and end_date are required")
		return
	}

	result, err := h.editor.ApplyRange(c.Request.Context(), c.Param("tourId"), req.StartDate, req.EndDate, req.SlotEdit)
	if err != nil {
		respondError(c, err)
		return
	}

	status := http.StatusOK
	if len(result.Failed) > 0 {
		status = http.StatusMultiStatus
	}
	c.JSON(status, result)
}

func (h *Handler) checkOne(c *gin.Context) {
	date, ok := pathDate(c)
	if !ok {
		return
	}
	participants, ok := queryInt(c, "participants", 1)
	if !ok {
		return
	}

	result, err := h.availability.CheckOne(c.Request.Context(), c.Param("tourId"), date, participants)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) checkRange(c *gin.Context) {
	start, end, ok := dateRange(c)
	if !ok {
		return
	}
	participants, ok := queryInt(c, "participants", 1)
	if !ok {
		return
	}

	result, err := h.availability.CheckRange(c.Request.Context(), c.Param("tourId"), start, end, participants)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) pricePreview(c *gin.Context) {
	start, end, ok := dateRange(c)
	if !ok {
		return
	}
	participants, ok := queryInt(c, "participants", 0)
	if !ok {
		return
	}

	prices, err := h.availability.PricePreview(c.Request.Context(), c.Param("tourId"), start, end, participants)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"prices": prices})
}

func (h *Handler) createRule(c *gin.Context) {
	var req service.CreateRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	req.TourID = c.Param("tourId")

	rule, err := h.rules.CreateRule(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rule)
}

func (h *Handler) listRules(c *gin.Context) {
	rules, err := h.rules.ListRules(c.Request.Context(), c.Param("tourId"))
	if err != nil {
		respondError(c, err)
		return
	}
	if rules == nil {
		rules = []models.SeasonalPricingRule{}
	}
	c.JSON(http.StatusOK, gin.H{"rules": rules})
}

func (h *Handler) setRuleActive(c *gin.Context) {
	var req struct {
		IsActive *bool `json:"is_active"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if req.IsActive == nil {
		badRequest(c, "is_active is required")
		return
	}

	rule, err := h.rules.SetActive(c.Request.Context(), c.Param("ruleId"), *req.IsActive)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rule)
}

// holdReservation handles hold creation
func (h *Handler) holdReservation(c *gin.Context) {
	var req service.HoldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	reservation, err := h.reservations.Hold(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, reservation)
}

func (h *Handler) getReservation(c *gin.Context) {
	reservation, err := h.reservations.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, reservation)
}

func (h *Handler) listReservationsByBooking(c *gin.Context) {
	reservations, err := h.reservations.ListByBooking(c.Request.Context(), c.Param("bookingId"))
	if err != nil {
		respondError(c, err)
		return
	}
	if reservations == nil {
		reservations = []models.Reservation{}
	}
	c.JSON(http.StatusOK, gin.H{"reservations": reservations})
}

func (h *Handler) confirmReservation(c *gin.Context) {
	reservation, err := h.reservations.Confirm(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, reservation)
}

func (h *Handler) releaseReservation(c *gin.Context) {
	var req struct {
		Reason string `json:"reason"`
	}
	// The body is optional.
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
	}

	reservation, err := h.reservations.Release(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, reservation)
}

func (h *Handler) runSweep(c *gin.Context) {
	expired, ran := h.sweeper.RunOnce(c.Request.Context())
	if !ran {
		c.JSON(http.StatusConflict, gin.H{
			"error":   "SWEEP_IN_PROGRESS",
			"details": "another replica holds the sweep lock",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"expired": expired})
}

func (h *Handler) sweepStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.sweeper.GetStats())
}

func pathDate(c *gin.Context) (models.Date, bool) {
	date, err := models.ParseDate(c.Param("date"))
	if err != nil {
		badRequest(c, "date must be YYYY-MM-DD")
		return models.Date{}, false
	}
	return date, true
}

func dateRange(c *gin.Context) (models.Date, models.Date, bool) {
	start, err := models.ParseDate(c.Query("start"))
	if err != nil {
		badRequest(c, "start must be YYYY-MM-DD")
		return models.Date{}, models.Date{}, false
	}
	end, err := models.ParseDate(c.Query("end"))
	if err != nil {
		badRequest(c, "end must be YYYY-MM-DD")
		return models.Date{}, models.Date{}, false
	}
	return start, end, true
}

func queryInt(c *gin.Context, key string, defaultVal int) (int, bool) {
	raw := c.Query(key)
	if raw == "" {
		return defaultVal, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		badRequest(c, key+" must be an integer")
		return 0, false
	}
	return v, true
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
