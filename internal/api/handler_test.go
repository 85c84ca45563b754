package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"tour-inventory/internal/models"
	"tour-inventory/internal/service"
	"tour-inventory/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockReservations struct {
	HoldFunc          func(ctx context.Context, req *service.HoldRequest) (*models.Reservation, error)
	ConfirmFunc       func(ctx context.Context, id string) (*models.Reservation, error)
	ReleaseFunc       func(ctx context.Context, id, reason string) (*models.Reservation, error)
	GetFunc           func(ctx context.Context, id string) (*models.Reservation, error)
	ListByBookingFunc func(ctx context.Context, bookingID string) ([]models.Reservation, error)
}

func (m *mockReservations) Hold(ctx context.Context, req *service.HoldRequest) (*models.Reservation, error) {
	return m.HoldFunc(ctx, req)
}

func (m *mockReservations) Confirm(ctx context.Context, id string) (*models.Reservation, error) {
	return m.ConfirmFunc(ctx, id)
}

func (m *mockReservations) Release(ctx context.Context, id, reason string) (*models.Reservation, error) {
	return m.ReleaseFunc(ctx, id, reason)
}

func (m *mockReservations) Get(ctx context.Context, id string) (*models.Reservation, error) {
	return m.GetFunc(ctx, id)
}

func (m *mockReservations) ListByBooking(ctx context.Context, bookingID string) ([]models.Reservation, error) {
	return m.ListByBookingFunc(ctx, bookingID)
}

type mockAvailability struct {
	CheckOneFunc     func(ctx context.Context, tourID string, date models.Date, participants int) (*service.DateAvailability, error)
	CheckRangeFunc   func(ctx context.Context, tourID string, start, end models.Date, participants int) (*service.RangeAvailability, error)
	PricePreviewFunc func(ctx context.Context, tourID string, start, end models.Date, participants int) ([]service.DatePrice, error)
	ListSlotsFunc    func(ctx context.Context, tourID string, start, end models.Date) ([]models.InventorySlot, error)
	GetSlotFunc      func(ctx context.Context, tourID string, date models.Date) (*models.InventorySlot, error)
}

func (m *mockAvailability) CheckOne(ctx context.Context, tourID string, date models.Date, participants int) (*service.DateAvailability, error) {
	return m.CheckOneFunc(ctx, tourID, date, participants)
}

func (m *mockAvailability) CheckRange(ctx context.Context, tourID string, start, end models.Date, participants int) (*service.RangeAvailability, error) {
	return m.CheckRangeFunc(ctx, tourID, start, end, participants)
}

func (m *mockAvailability) PricePreview(ctx context.Context, tourID string, start, end models.Date, participants int) ([]service.DatePrice, error) {
	return m.PricePreviewFunc(ctx, tourID, start, end, participants)
}

func (m *mockAvailability) ListSlots(ctx context.Context, tourID string, start, end models.Date) ([]models.InventorySlot, error) {
	return m.ListSlotsFunc(ctx, tourID, start, end)
}

func (m *mockAvailability) GetSlot(ctx context.Context, tourID string, date models.Date) (*models.InventorySlot, error) {
	return m.GetSlotFunc(ctx, tourID, date)
}

type mockEditor struct {
	UpsertSlotFunc func(ctx context.Context, tourID string, date models.Date, edit service.SlotEdit) (*models.InventorySlot, error)
	ApplyRangeFunc func(ctx context.Context, tourID string, start, end models.Date, edit service.SlotEdit) (*service.RangeEditResult, error)
}

func (m *mockEditor) UpsertSlot(ctx context.Context, tourID string, date models.Date, edit service.SlotEdit) (*models.InventorySlot, error) {
	return m.UpsertSlotFunc(ctx, tourID, date, edit)
}

func (m *mockEditor) ApplyRange(ctx context.Context, tourID string, start, end models.Date, edit service.SlotEdit) (*service.RangeEditResult, error) {
	return m.ApplyRangeFunc(ctx, tourID, start, end, edit)
}

type mockRules struct {
	CreateRuleFunc func(ctx context.Context, req *service.CreateRuleRequest) (*models.SeasonalPricingRule, error)
	ListRulesFunc  func(ctx context.Context, tourID string) ([]models.SeasonalPricingRule, error)
	SetActiveFunc  func(ctx context.Context, ruleID string, active bool) (*models.SeasonalPricingRule, error)
}

func (m *mockRules) CreateRule(ctx context.Context, req *service.CreateRuleRequest) (*models.SeasonalPricingRule, error) {
	return m.CreateRuleFunc(ctx, req)
}

func (m *mockRules) ListRules(ctx context.Context, tourID string) ([]models.SeasonalPricingRule, error) {
	return m.ListRulesFunc(ctx, tourID)
}

func (m *mockRules) SetActive(ctx context.Context, ruleID string, active bool) (*models.SeasonalPricingRule, error) {
	return m.SetActiveFunc(ctx, ruleID, active)
}

type mockSweeper struct {
	expired int
	ran     bool
}

func (m *mockSweeper) RunOnce(context.Context) (int, bool) { return m.expired, m.ran }

func (m *mockSweeper) GetStats() *worker.SweepWorkerStats {
	return &worker.SweepWorkerStats{IsRunning: true, Runs: 4}
}

type testDeps struct {
	reservations *mockReservations
	availability *mockAvailability
	editor       *mockEditor
	rules        *mockRules
	sweeper      *mockSweeper
	ready        func(ctx context.Context) error
}

func newTestDeps() *testDeps {
	return &testDeps{
		reservations: &mockReservations{},
		availability: &mockAvailability{},
		editor:       &mockEditor{},
		rules:        &mockRules{},
		sweeper:      &mockSweeper{ran: true},
	}
}

func setupTestRouter(d *testDeps) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()

	handler := NewHandler(d.reservations, d.availability, d.editor, d.rules, d.sweeper, d.ready)
	handler.SetupRoutes(router)
	return router
}

func doRequest(router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		payload, _ := json.Marshal(body)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Error
}

func TestHoldReservation(t *testing.T) {
	d := newTestDeps()
	var got *service.HoldRequest
	d.reservations.HoldFunc = func(ctx context.Context, req *service.HoldRequest) (*models.Reservation, error) {
		got = req
		return &models.Reservation{ID: "res-1", BookingID: req.BookingID, State: models.ReservationStateReserved}, nil
	}
	router := setupTestRouter(d)

	w := doRequest(router, http.MethodPost, "/api/v1/reservations", map[string]interface{}{
		"booking_id":   "bk-1",
		"tour_id":      "tour-1",
		"date":         "2026-07-01",
		"participants": 3,
	})

	assert.Equal(t, http.StatusCreated, w.Code)
	require.NotNil(t, got)
	assert.Equal(t, "2026-07-01", got.Date.String())
	assert.Equal(t, 3, got.Participants)

	var resp models.Reservation
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "res-1", resp.ID)
}

func TestHoldReservationBadBody(t *testing.T) {
	router := setupTestRouter(newTestDeps())

	w := doRequest(router, http.MethodPost, "/api/v1/reservations", map[string]interface{}{"tour_id": "tour-1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, models.CodeValidation, decodeError(t, w))

	w = doRequest(router, http.MethodPost, "/api/v1/reservations", map[string]interface{}{
		"booking_id": "bk-1", "tour_id": "tour-1", "date": "01/07/2026",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestErrorStatusMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{models.Errorf(models.CodeInsufficientCapacity, "only 2 left"), http.StatusConflict, models.CodeInsufficientCapacity},
		{models.Errorf(models.CodeSlotUnavailable, "closed"), http.StatusConflict, models.CodeSlotUnavailable},
		{models.Errorf(models.CodeDateInPast, "past"), http.StatusUnprocessableEntity, models.CodeDateInPast},
		{models.Errorf(models.CodeInventoryNotFound, "none"), http.StatusNotFound, models.CodeInventoryNotFound},
		{models.Errorf(models.CodeValidation, "bad"), http.StatusBadRequest, models.CodeValidation},
		{errors.New("pq: connection refused"), http.StatusInternalServerError, models.CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			d := newTestDeps()
			d.reservations.HoldFunc = func(ctx context.Context, req *service.HoldRequest) (*models.Reservation, error) {
				return nil, tt.err
			}
			router := setupTestRouter(d)

			w := doRequest(router, http.MethodPost, "/api/v1/reservations", map[string]interface{}{
				"booking_id": "bk-1", "tour_id": "tour-1", "date": "2026-07-01", "participants": 1,
			})
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, decodeError(t, w))
		})
	}
}

func TestConfirmExpiredReservation(t *testing.T) {
	d := newTestDeps()
	d.reservations.ConfirmFunc = func(ctx context.Context, id string) (*models.Reservation, error) {
		return nil, models.Errorf(models.CodeReservationExpired, "reservation %s expired", id)
	}
	router := setupTestRouter(d)

	w := doRequest(router, http.MethodPost, "/api/v1/reservations/res-1/confirm", nil)
	assert.Equal(t, http.StatusGone, w.Code)
	assert.Equal(t, models.CodeReservationExpired, decodeError(t, w))
}

func TestReleaseReservation(t *testing.T) {
	d := newTestDeps()
	var gotReason string
	d.reservations.ReleaseFunc = func(ctx context.Context, id, reason string) (*models.Reservation, error) {
		gotReason = reason
		return &models.Reservation{ID: id, State: models.ReservationStateCancelled}, nil
	}
	router := setupTestRouter(d)

	w := doRequest(router, http.MethodPost, "/api/v1/reservations/res-1/release", map[string]string{"reason": "abandoned"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "abandoned", gotReason)

	w = doRequest(router, http.MethodPost, "/api/v1/reservations/res-1/release", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "", gotReason)
}

func TestListReservationsByBooking(t *testing.T) {
	d := newTestDeps()
	d.reservations.ListByBookingFunc = func(ctx context.Context, bookingID string) ([]models.Reservation, error) {
		return nil, nil
	}
	router := setupTestRouter(d)

	w := doRequest(router, http.MethodGet, "/api/v1/bookings/bk-1/reservations", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"reservations":[]}`, w.Body.String())
}

func TestCheckOne(t *testing.T) {
	d := newTestDeps()
	d.availability.CheckOneFunc = func(ctx context.Context, tourID string, date models.Date, participants int) (*service.DateAvailability, error) {
		return &service.DateAvailability{TourID: tourID, Date: date, Available: participants <= 4, RemainingSpots: 4}, nil
	}
	router := setupTestRouter(d)

	w := doRequest(router, http.MethodGet, "/api/v1/tours/tour-1/availability/2026-07-01?participants=2", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp service.DateAvailability
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Available)
	assert.Equal(t, "tour-1", resp.TourID)

	w = doRequest(router, http.MethodGet, "/api/v1/tours/tour-1/availability/2026-07-01?participants=two", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(router, http.MethodGet, "/api/v1/tours/tour-1/availability/tomorrow", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCheckRange(t *testing.T) {
	d := newTestDeps()
	d.availability.CheckRangeFunc = func(ctx context.Context, tourID string, start, end models.Date, participants int) (*service.RangeAvailability, error) {
		return &service.RangeAvailability{
			TourID:    tourID,
			StartDate: start,
			EndDate:   end,
			Summary:   service.RangeSummary{TotalDates: models.DaysInRange(start, end)},
		}, nil
	}
	router := setupTestRouter(d)

	w := doRequest(router, http.MethodGet, "/api/v1/tours/tour-1/availability?start=2026-07-01&end=2026-07-10", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp service.RangeAvailability
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 10, resp.Summary.TotalDates)

	w = doRequest(router, http.MethodGet, "/api/v1/tours/tour-1/availability?start=2026-07-01", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestApplyRange(t *testing.T) {
	d := newTestDeps()
	var gotEdit service.SlotEdit
	d.editor.ApplyRangeFunc = func(ctx context.Context, tourID string, start, end models.Date, edit service.SlotEdit) (*service.RangeEditResult, error) {
		gotEdit = edit
		if models.DaysInRange(start, end) > 365 {
			return nil, models.Errorf(models.CodeBulkUpdateLimitExceeded, "too wide")
		}
		return &service.RangeEditResult{
			Updated: []models.InventorySlot{{TourID: tourID, Date: start}},
			Failed:  []service.DateFailure{{Date: end, Code: models.CodeInvalidCapacity, Error: "below held"}},
		}, nil
	}
	router := setupTestRouter(d)

	w := doRequest(router, http.MethodPost, "/api/v1/tours/tour-1/slots/bulk", map[string]interface{}{
		"start_date":   "2026-07-01",
		"end_date":     "2026-07-02",
		"max_capacity": 8,
		"updated_by":   "ops",
	})
	assert.Equal(t, http.StatusMultiStatus, w.Code)
	require.NotNil(t, gotEdit.MaxCapacity)
	assert.Equal(t, 8, *gotEdit.MaxCapacity)
	assert.Equal(t, "ops", gotEdit.UpdatedBy)

	w = doRequest(router, http.MethodPost, "/api/v1/tours/tour-1/slots/bulk", map[string]interface{}{
		"start_date":   "2026-01-01",
		"end_date":     "2027-02-04",
		"max_capacity": 8,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, models.CodeBulkUpdateLimitExceeded, decodeError(t, w))

	w = doRequest(router, http.MethodPost, "/api/v1/tours/tour-1/slots/bulk", map[string]interface{}{"max_capacity": 8})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpsertSlot(t *testing.T) {
	d := newTestDeps()
	d.editor.UpsertSlotFunc = func(ctx context.Context, tourID string, date models.Date, edit service.SlotEdit) (*models.InventorySlot, error) {
		return &models.InventorySlot{TourID: tourID, Date: date, MaxCapacity: *edit.MaxCapacity, AvailableCount: *edit.MaxCapacity}, nil
	}
	router := setupTestRouter(d)

	w := doRequest(router, http.MethodPut, "/api/v1/tours/tour-1/slots/2026-07-01", map[string]interface{}{"max_capacity": 12})
	assert.Equal(t, http.StatusOK, w.Code)

	var slot models.InventorySlot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &slot))
	assert.Equal(t, 12, slot.AvailableCount)
}

func TestPricingRules(t *testing.T) {
	d := newTestDeps()
	d.rules.CreateRuleFunc = func(ctx context.Context, req *service.CreateRuleRequest) (*models.SeasonalPricingRule, error) {
		if req.Name == "dup" {
			return nil, models.Errorf(models.CodeSeasonalPricingConflict, "exists")
		}
		return &models.SeasonalPricingRule{ID: "rule-1", TourID: req.TourID, Name: req.Name, IsActive: true}, nil
	}
	d.rules.SetActiveFunc = func(ctx context.Context, ruleID string, active bool) (*models.SeasonalPricingRule, error) {
		return &models.SeasonalPricingRule{ID: ruleID, IsActive: active}, nil
	}
	router := setupTestRouter(d)

	body := map[string]interface{}{
		"name": "summer", "start_date": "2026-07-01", "end_date": "2026-08-31", "price_modifier": 20,
	}
	w := doRequest(router, http.MethodPost, "/api/v1/tours/tour-1/pricing-rules", body)
	assert.Equal(t, http.StatusCreated, w.Code)

	var rule models.SeasonalPricingRule
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rule))
	assert.Equal(t, "tour-1", rule.TourID)

	body["name"] = "dup"
	w = doRequest(router, http.MethodPost, "/api/v1/tours/tour-1/pricing-rules", body)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doRequest(router, http.MethodPatch, "/api/v1/pricing-rules/rule-1", map[string]bool{"is_active": false})
	assert.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rule))
	assert.False(t, rule.IsActive)

	w = doRequest(router, http.MethodPatch, "/api/v1/pricing-rules/rule-1", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminSweep(t *testing.T) {
	d := newTestDeps()
	d.sweeper.expired = 3
	router := setupTestRouter(d)

	w := doRequest(router, http.MethodPost, "/api/v1/admin/sweep", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"expired":3}`, w.Body.String())

	d.sweeper.ran = false
	w = doRequest(router, http.MethodPost, "/api/v1/admin/sweep", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doRequest(router, http.MethodGet, "/api/v1/admin/sweep", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestReadiness(t *testing.T) {
	d := newTestDeps()
	d.ready = func(ctx context.Context) error { return errors.New("database unreachable") }
	router := setupTestRouter(d)

	w := doRequest(router, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = doRequest(router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
