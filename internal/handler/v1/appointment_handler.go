package v1

import (
	"net/http"
	"time"

	"github.com/dmehra2102/prod-golang-projects/medbook/internal/domain/appointment"
	"github.com/dmehra2102/prod-golang-projects/medbook/internal/domain/schedule"
	"github.com/dmehra2102/prod-golang-projects/medbook/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type AppointmentHandler struct {
	svc *service.AppointmentService
	log *zap.Logger
}

func NewAppointmentHandler(svc *service.AppointmentService, log *zap.Logger) *AppointmentHandler {
	return &AppointmentHandler{svc: svc, log: log}
}

type createAppointmentRequest struct {
	PatientID    *uuid.UUID                  `json:"patient_id"`
	DoctorID     uuid.UUID                   `json:"doctor_id" binding:"required"`
	WorkplaceID  uuid.UUID                   `json:"workplace_id" binding:"required"`
	Date         string                      `json:"date" binding:"required"`
	Time         string                      `json:"time" binding:"required"`
	DurationMins int                         `json:"duration_mins"`
	Type         appointment.AppointmentType `json:"type"`
	Reason       string                      `json:"reason" binding:"required"`
	Notes        string                      `json:"notes"`
}

type transitionRequest struct {
	Status appointment.AppointmentStatus `json:"status" binding:"required"`
	Notes  *string                       `json:"notes"`
	Reason string                        `json:"reason"`
}

type updateAppointmentRequest struct {
	Type   *appointment.AppointmentType `json:"type"`
	Reason *string                      `json:"reason"`
	Notes  *string                      `json:"notes"`
}

type cancelRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// appointmentView adds the derived flags to the stored record.
type appointmentView struct {
	*appointment.Appointment
	IsUpcoming     bool `json:"is_upcoming"`
	CanBeCancelled bool `json:"can_be_cancelled"`
}

func (h *AppointmentHandler) view(a *appointment.Appointment) appointmentView {
	return appointmentView{
		Appointment:    a,
		IsUpcoming:     h.svc.IsUpcoming(a),
		CanBeCancelled: h.svc.CanBeCancelled(a),
	}
}

func (h *AppointmentHandler) Create(c *gin.Context) {
	var req createAppointmentRequest
	if !bindJSON(c, &req) {
		return
	}

	cmd := &appointment.CreateAppointmentCommand{
		DoctorID:     req.DoctorID,
		WorkplaceID:  req.WorkplaceID,
		Date:         req.Date,
		Time:         req.Time,
		DurationMins: req.DurationMins,
		Type:         req.Type,
		Reason:       req.Reason,
		Notes:        req.Notes,
	}
	if req.PatientID != nil {
		cmd.PatientID = *req.PatientID
	}

	a, err := h.svc.CreateAppointment(c.Request.Context(), mustActor(c), cmd, requestMeta(c))
	if err != nil {
		respondServiceError(c, h.log, err)
		return
	}
	respondCreated(c, h.view(a))
}

func (h *AppointmentHandler) Get(c *gin.Context) {
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}
	a, err := h.svc.GetAppointment(c.Request.Context(), mustActor(c), id, requestMeta(c))
	if err != nil {
		respondServiceError(c, h.log, err)
		return
	}
	respondOK(c, h.view(a))
}

func (h *AppointmentHandler) List(c *gin.Context) {
	q := &appointment.ListAppointmentsQuery{
		Page:     parseQueryInt(c, "page", 1),
		PageSize: parseQueryInt(c, "page_size", 20),
	}

	var ok bool
	if q.PatientID, ok = parseQueryUUID(c, "patient_id"); !ok {
		return
	}
	if q.DoctorID, ok = parseQueryUUID(c, "doctor_id"); !ok {
		return
	}
	if q.WorkplaceID, ok = parseQueryUUID(c, "workplace_id"); !ok {
		return
	}
	if raw := c.Query("status"); raw != "" {
		st := appointment.AppointmentStatus(raw)
		q.Status = &st
	}
	if q.DateFrom, ok = parseQueryDate(c, "date_from"); !ok {
		return
	}
	if q.DateTo, ok = parseQueryDate(c, "date_to"); !ok {
		return
	}

	page, err := h.svc.ListAppointments(c.Request.Context(), mustActor(c), q)
	if err != nil {
		respondServiceError(c, h.log, err)
		return
	}
	respondOK(c, page)
}

func (h *AppointmentHandler) Update(c *gin.Context) {
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}
	var req updateAppointmentRequest
	if !bindJSON(c, &req) {
		return
	}

	a, err := h.svc.UpdateAppointment(c.Request.Context(), mustActor(c), id, &appointment.UpdateAppointmentCommand{
		Type:   req.Type,
		Reason: req.Reason,
		Notes:  req.Notes,
	}, requestMeta(c))
	if err != nil {
		respondServiceError(c, h.log, err)
		return
	}
	respondOK(c, h.view(a))
}

func (h *AppointmentHandler) Transition(c *gin.Context) {
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}
	var req transitionRequest
	if !bindJSON(c, &req) {
		return
	}

	a, err := h.svc.TransitionAppointment(c.Request.Context(), mustActor(c), id, &appointment.TransitionCommand{
		Status: req.Status,
		Notes:  req.Notes,
		Reason: req.Reason,
	}, requestMeta(c))
	if err != nil {
		respondServiceError(c, h.log, err)
		return
	}
	respondOK(c, h.view(a))
}

func (h *AppointmentHandler) Cancel(c *gin.Context) {
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}
	var req cancelRequest
	if !bindJSON(c, &req) {
		return
	}

	a, err := h.svc.CancelAppointment(c.Request.Context(), mustActor(c), id, &appointment.CancelAppointmentCommand{
		Reason: req.Reason,
	}, requestMeta(c))
	if err != nil {
		respondServiceError(c, h.log, err)
		return
	}
	respondOK(c, h.view(a))
}

func parseQueryDate(c *gin.Context, key string) (*time.Time, bool) {
	raw := c.Query(key)
	if raw == "" {
		return nil, true
	}
	d, err := schedule.ParseDate(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid " + key + ": expected YYYY-MM-DD"})
		return nil, false
	}
	return &d, true
}
