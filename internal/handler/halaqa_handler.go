package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/halaqa-api/internal/dto"
	"github.com/noah-isme/halaqa-api/internal/models"
	appErrors "github.com/noah-isme/halaqa-api/pkg/errors"
	"github.com/noah-isme/halaqa-api/pkg/export"
	"github.com/noah-isme/halaqa-api/pkg/response"
)

type halaqaDirectory interface {
	Get(ctx context.Context, id string) (*models.Halaqa, error)
	List(ctx context.Context, filter models.HalaqaFilter) ([]models.Halaqa, *models.Pagination, error)
}

type rosterService interface {
	Roster(ctx context.Context, halaqaID string, actor models.Actor) (*models.Halaqa, []models.RosterEntry, error)
	ExportRoster(ctx context.Context, halaqaID string, format export.Format, actor models.Actor) (*dto.RosterExport, error)
}

// HalaqaHandler serves the halaqa directory and rosters.
type HalaqaHandler struct {
	halaqas halaqaDirectory
	rosters rosterService
}

// NewHalaqaHandler constructs HalaqaHandler.
func NewHalaqaHandler(halaqas halaqaDirectory, rosters rosterService) *HalaqaHandler {
	return &HalaqaHandler{halaqas: halaqas, rosters: rosters}
}

// List godoc
// @Summary List halaqas
// @Tags Halaqas
// @Produce json
// @Param academyId query string false "Filter by academy"
// @Param teacherId query string false "Filter by teacher"
// @Param type query string false "GENERAL or PRIVATE"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /halaqas [get]
func (h *HalaqaHandler) List(c *gin.Context) {
	filter := models.HalaqaFilter{
		AcademyID: c.Query("academyId"),
		TeacherID: c.Query("teacherId"),
		Type:      models.HalaqaType(strings.ToUpper(c.Query("type"))),
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}

	halaqas, pagination, err := h.halaqas.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, halaqas, pagination)
}

// Get godoc
// @Summary Get a halaqa
// @Tags Halaqas
// @Produce json
// @Param id path string true "Halaqa ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /halaqas/{id} [get]
func (h *HalaqaHandler) Get(c *gin.Context) {
	halaqa, err := h.halaqas.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, halaqa, nil)
}

// Roster godoc
// @Summary Active roster of a halaqa
// @Tags Halaqas
// @Produce json
// @Produce text/csv
// @Produce application/pdf
// @Param id path string true "Halaqa ID"
// @Param format query string false "json, csv or pdf"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /halaqas/{id}/roster [get]
func (h *HalaqaHandler) Roster(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	format, err := export.ParseFormat(c.Query("format"))
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, err.Error()))
		return
	}

	if format == export.FormatJSON {
		halaqa, roster, err := h.rosters.Roster(c.Request.Context(), c.Param("id"), actor)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.JSON(c, http.StatusOK, roster, nil, map[string]interface{}{
			"halaqaId": halaqa.ID,
			"name":     halaqa.Name,
			"count":    len(roster),
		})
		return
	}

	file, err := h.rosters.ExportRoster(c.Request.Context(), c.Param("id"), format, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Content)
}
