package v1

import (
	"net/http"

	"github.com/dmehra2102/prod-golang-projects/medbook/internal/domain/schedule"
	"github.com/dmehra2102/prod-golang-projects/medbook/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ScheduleHandler struct {
	svc *service.AvailabilityService
	log *zap.Logger
}

func NewScheduleHandler(svc *service.AvailabilityService, log *zap.Logger) *ScheduleHandler {
	return &ScheduleHandler{svc: svc, log: log}
}

// Slots answers GET /doctors/:id/workplaces/:workplaceId/slots?date=YYYY-MM-DD.
func (h *ScheduleHandler) Slots(c *gin.Context) {
	doctorID, ok := parseUUID(c, "id")
	if !ok {
		return
	}
	workplaceID, ok := parseUUID(c, "workplaceId")
	if !ok {
		return
	}
	date, err := schedule.ParseDate(c.Query("date"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid date: expected YYYY-MM-DD")
		return
	}

	slots, err := h.svc.GetAvailableSlots(c.Request.Context(), doctorID, workplaceID, date)
	if err != nil {
		respondServiceError(c, h.log, err)
		return
	}
	respondOK(c, slots)
}
