package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/halaqa-api/internal/dto"
	"github.com/noah-isme/halaqa-api/internal/models"
	appErrors "github.com/noah-isme/halaqa-api/pkg/errors"
	"github.com/noah-isme/halaqa-api/pkg/response"
)

type joinRequestService interface {
	Submit(ctx context.Context, req dto.CreateJoinRequestRequest, actor models.Actor) (*models.JoinRequest, error)
	Approve(ctx context.Context, id, halaqaID string, actor models.Actor) (*models.JoinRequest, error)
	Respond(ctx context.Context, id string, req dto.RespondJoinRequestRequest, actor models.Actor) (*models.JoinRequest, error)
	Cancel(ctx context.Context, id string, actor models.Actor) error
	Delete(ctx context.Context, id string, actor models.Actor) error
	Get(ctx context.Context, id string, actor models.Actor) (*models.JoinRequest, error)
	List(ctx context.Context, query dto.JoinRequestQuery, actor models.Actor) ([]models.JoinRequest, error)
	Eligibility(ctx context.Context, id, halaqaID string, actor models.Actor) (*dto.EligibilityResponse, error)
}

// JoinRequestHandler exposes the join request workflow.
type JoinRequestHandler struct {
	service joinRequestService
}

// NewJoinRequestHandler builds a new handler.
func NewJoinRequestHandler(service joinRequestService) *JoinRequestHandler {
	return &JoinRequestHandler{service: service}
}

// Submit godoc
// @Summary Submit a join request
// @Tags JoinRequests
// @Accept json
// @Produce json
// @Param payload body dto.CreateJoinRequestRequest true "Join request payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /join-requests [post]
func (h *JoinRequestHandler) Submit(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.CreateJoinRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid join request payload"))
		return
	}
	req.Type = models.JoinRequestType(strings.ToUpper(string(req.Type)))

	request, err := h.service.Submit(c.Request.Context(), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, request)
}

// List godoc
// @Summary List join requests
// @Tags JoinRequests
// @Produce json
// @Param status query string false "Comma separated statuses"
// @Param type query string false "Request type"
// @Param role query string false "View as role (admin only)"
// @Param userId query string false "View as user (admin only)"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Router /join-requests [get]
func (h *JoinRequestHandler) List(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	query, err := parseJoinRequestQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	items, err := h.service.List(c.Request.Context(), query, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil, map[string]interface{}{
		"count":  len(items),
		"limit":  query.Limit,
		"offset": query.Offset,
	})
}

// Get godoc
// @Summary Get a join request
// @Tags JoinRequests
// @Produce json
// @Param id path string true "Join request ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /join-requests/{id} [get]
func (h *JoinRequestHandler) Get(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	request, err := h.service.Get(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// Eligibility godoc
// @Summary Preview whether a join request can be approved
// @Tags JoinRequests
// @Produce json
// @Param id path string true "Join request ID"
// @Param halaqaId query string false "Halaqa to check (defaults to the requested one)"
// @Success 200 {object} response.Envelope
// @Router /join-requests/{id}/eligibility [get]
func (h *JoinRequestHandler) Eligibility(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	result, err := h.service.Eligibility(c.Request.Context(), c.Param("id"), c.Query("halaqaId"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Approve godoc
// @Summary Approve a join request and enroll the student
// @Tags JoinRequests
// @Accept json
// @Produce json
// @Param id path string true "Join request ID"
// @Param payload body dto.ApproveJoinRequestRequest true "Target halaqa"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /join-requests/{id}/approve [post]
func (h *JoinRequestHandler) Approve(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.ApproveJoinRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid approval payload"))
		return
	}

	request, err := h.service.Approve(c.Request.Context(), c.Param("id"), req.HalaqaID, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// Respond godoc
// @Summary Reject or reassign a join request
// @Tags JoinRequests
// @Accept json
// @Produce json
// @Param id path string true "Join request ID"
// @Param payload body dto.RespondJoinRequestRequest true "Decision"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /join-requests/{id} [patch]
func (h *JoinRequestHandler) Respond(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.RespondJoinRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid response payload"))
		return
	}

	request, err := h.service.Respond(c.Request.Context(), c.Param("id"), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// Remove godoc
// @Summary Cancel a pending join request (student) or delete one (admin)
// @Tags JoinRequests
// @Param id path string true "Join request ID"
// @Success 204
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /join-requests/{id} [delete]
func (h *JoinRequestHandler) Remove(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var err error
	if actor.Role == models.RoleAdmin {
		err = h.service.Delete(c.Request.Context(), c.Param("id"), actor)
	} else {
		err = h.service.Cancel(c.Request.Context(), c.Param("id"), actor)
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

func parseJoinRequestQuery(c *gin.Context) (dto.JoinRequestQuery, error) {
	query := dto.JoinRequestQuery{
		Type:   models.JoinRequestType(strings.ToUpper(strings.TrimSpace(c.Query("type")))),
		Role:   models.UserRole(strings.ToUpper(strings.TrimSpace(c.Query("role")))),
		UserID: strings.TrimSpace(c.Query("userId")),
	}
	for _, raw := range c.QueryArray("status") {
		for _, part := range strings.Split(raw, ",") {
			part = strings.ToUpper(strings.TrimSpace(part))
			if part == "" {
				continue
			}
			status := models.JoinRequestStatus(part)
			if !status.Valid() {
				return query, appErrors.Clone(appErrors.ErrValidation, "unknown status "+part)
			}
			query.Status = append(query.Status, status)
		}
	}
	if query.Type != "" && !query.Type.Valid() {
		return query, appErrors.Clone(appErrors.ErrValidation, "unknown join request type")
	}

	var err error
	if query.Limit, err = queryInt(c, "limit"); err != nil {
		return query, err
	}
	if query.Offset, err = queryInt(c, "offset"); err != nil {
		return query, err
	}
	return query, nil
}
