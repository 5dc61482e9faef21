package v1

import (
	"github.com/dmehra2102/prod-golang-projects/medbook/internal/domain/directory"
	"github.com/dmehra2102/prod-golang-projects/medbook/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ProfileHandler struct {
	svc *service.ProfileService
	log *zap.Logger
}

func NewProfileHandler(svc *service.ProfileService, log *zap.Logger) *ProfileHandler {
	return &ProfileHandler{svc: svc, log: log}
}

type updateProfileRequest struct {
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Phone     *string `json:"phone"`
	Specialty *string `json:"specialty"`
	Bio       *string `json:"bio"`
}

func (r updateProfileRequest) command() *directory.UpdateProfileCommand {
	return &directory.UpdateProfileCommand{
		FirstName: r.FirstName,
		LastName:  r.LastName,
		Phone:     r.Phone,
		Specialty: r.Specialty,
		Bio:       r.Bio,
	}
}

func (h *ProfileHandler) GetPatient(c *gin.Context) {
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}
	p, err := h.svc.GetPatient(c.Request.Context(), mustActor(c), id, requestMeta(c))
	if err != nil {
		respondServiceError(c, h.log, err)
		return
	}
	respondOK(c, p)
}

func (h *ProfileHandler) UpdatePatient(c *gin.Context) {
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}
	var req updateProfileRequest
	if !bindJSON(c, &req) {
		return
	}
	p, err := h.svc.UpdatePatient(c.Request.Context(), mustActor(c), id, req.command(), requestMeta(c))
	if err != nil {
		respondServiceError(c, h.log, err)
		return
	}
	respondOK(c, p)
}

func (h *ProfileHandler) GetDoctor(c *gin.Context) {
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}
	p, err := h.svc.GetDoctor(c.Request.Context(), mustActor(c), id)
	if err != nil {
		respondServiceError(c, h.log, err)
		return
	}
	respondOK(c, p)
}

func (h *ProfileHandler) UpdateDoctor(c *gin.Context) {
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}
	var req updateProfileRequest
	if !bindJSON(c, &req) {
		return
	}
	p, err := h.svc.UpdateDoctor(c.Request.Context(), mustActor(c), id, req.command(), requestMeta(c))
	if err != nil {
		respondServiceError(c, h.log, err)
		return
	}
	respondOK(c, p)
}
