package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"bookcatalog-backend/internal/domains/book/model"
	"bookcatalog-backend/internal/domains/book/service"
	"bookcatalog-backend/internal/shared/middleware"
	"bookcatalog-backend/internal/shared/response"
)

// Importer is the part of the import service the HTTP layer uses
type Importer interface {
	ExecuteTracked(ctx context.Context, req service.RunRequest) (*model.ImportJob, *model.ImportResult, error)
	Enqueue(ctx context.Context, req service.RunRequest) (*model.ImportJob, error)
	GetJob(ctx context.Context, id uuid.UUID) (*model.ImportJob, error)
	SearchEntities(ctx context.Context, kind model.EntityKind, query string, page, pageSize int) ([]string, error)
	DiscoverISBNs(ctx context.Context, kind model.EntityKind, name string) ([]string, error)
}

type ImportHandler struct {
	service  Importer
	maxISBNs int
}

func NewImportHandler(service Importer, maxISBNs int) *ImportHandler {
	return &ImportHandler{
		service:  service,
		maxISBNs: maxISBNs,
	}
}

// ImportISBNs - POST /v1/admin/imports/isbns
func (h *ImportHandler) ImportISBNs(c *gin.Context) {
	var req model.ImportISBNsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid JSON body")
		return
	}
	if err := req.Validate(h.maxISBNs); err != nil {
		response.ValidationError(c, err)
		return
	}

	h.dispatch(c, service.RunRequest{
		Kind:    model.ImportKindISBNs,
		ISBNs:   req.ISBNs,
		ActorID: actorFor(c, req.ActorID),
	}, req.Async)
}

// ImportISBNFile - POST /v1/admin/imports/isbns/file (multipart: file, async, actor_id)
func (h *ImportHandler) ImportISBNFile(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.BadRequest(c, "file is required (multipart/form-data)")
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		log.Error().Err(err).Str("file_name", fileHeader.Filename).Msg("Failed to open uploaded file")
		response.BadRequest(c, "Cannot read uploaded file")
		return
	}
	defer file.Close()

	isbns, err := ParseISBNFile(fileHeader.Filename, file)
	if err != nil {
		if errors.Is(err, model.ErrUnsupportedFile) || errors.Is(err, model.ErrEmptyImport) {
			model.HandleImportError(c, err)
			return
		}
		response.BadRequest(c, err.Error())
		return
	}

	req := model.ImportISBNsRequest{
		ISBNs:   isbns,
		ActorID: c.PostForm("actor_id"),
	}
	req.Async, _ = strconv.ParseBool(c.DefaultPostForm("async", "false"))
	if err := req.Validate(h.maxISBNs); err != nil {
		response.ValidationError(c, err)
		return
	}

	log.Info().
		Str("file_name", fileHeader.Filename).
		Int64("file_size", fileHeader.Size).
		Int("isbns", len(isbns)).
		Msg("Received ISBN file import")

	h.dispatch(c, service.RunRequest{
		Kind:    model.ImportKindISBNs,
		ISBNs:   req.ISBNs,
		ActorID: actorFor(c, req.ActorID),
	}, req.Async)
}

// ImportEntity - POST /v1/admin/imports/entity
func (h *ImportHandler) ImportEntity(c *gin.Context) {
	var req model.EntityImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid JSON body")
		return
	}
	if err := req.Validate(h.maxISBNs); err != nil {
		response.ValidationError(c, err)
		return
	}

	kind := model.ImportKindAuthor
	if req.EntityType == model.EntityPublisher {
		kind = model.ImportKindPublisher
	}

	h.dispatch(c, service.RunRequest{
		Kind:       kind,
		EntityName: strings.TrimSpace(req.EntityName),
		ISBNs:      req.ISBNs,
		ActorID:    actorFor(c, req.ActorID),
	}, req.Async)
}

func (h *ImportHandler) dispatch(c *gin.Context, req service.RunRequest, async bool) {
	ctx := c.Request.Context()

	if async {
		job, err := h.service.Enqueue(ctx, req)
		if err != nil {
			model.HandleImportError(c, err)
			return
		}
		response.Accepted(c, model.ImportJobResponse{
			JobID:  job.ID,
			Status: job.Status,
			Total:  len(req.ISBNs),
		})
		return
	}

	job, result, err := h.service.ExecuteTracked(ctx, req)
	if err != nil {
		model.HandleImportError(c, err)
		return
	}

	resp := model.ImportRunResponse{Status: result.Status(), Result: result}
	if job != nil {
		resp.JobID = &job.ID
	}
	response.Success(c, http.StatusOK, resp)
}

// actorFor prefers the body's actor_id over the X-Actor-ID header
func actorFor(c *gin.Context, raw string) *uuid.UUID {
	if id := model.ParseActorID(raw); id != nil {
		return id
	}
	if id, ok := middleware.ActorID(c); ok {
		return &id
	}
	return nil
}

// GetImportJob - GET /v1/admin/imports/:id
func (h *ImportHandler) GetImportJob(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "Invalid job id")
		return
	}

	job, err := h.service.GetJob(c.Request.Context(), id)
	if err != nil {
		model.HandleImportError(c, err)
		return
	}

	response.Success(c, http.StatusOK, job)
}

// SearchEntities - GET /v1/admin/catalog/:kind/search?q=&page=&page_size=
func (h *ImportHandler) SearchEntities(c *gin.Context) {
	kind := model.EntityKind(c.Param("kind"))
	query := c.Query("q")
	if query == "" {
		response.BadRequest(c, "q is required")
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	names, err := h.service.SearchEntities(c.Request.Context(), kind, query, page, pageSize)
	if err != nil {
		model.HandleImportError(c, err)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, names, &response.Meta{Page: page, Limit: pageSize, Total: len(names)})
}

// EntityISBNs - GET /v1/admin/catalog/:kind/isbns?name=
func (h *ImportHandler) EntityISBNs(c *gin.Context) {
	kind := model.EntityKind(c.Param("kind"))
	name := c.Query("name")
	if name == "" {
		response.BadRequest(c, "name is required")
		return
	}

	isbns, err := h.service.DiscoverISBNs(c.Request.Context(), kind, name)
	if err != nil {
		model.HandleImportError(c, err)
		return
	}

	response.Success(c, http.StatusOK, model.EntityISBNsResponse{
		EntityType: kind,
		EntityName: name,
		ISBNs:      isbns,
	})
}
