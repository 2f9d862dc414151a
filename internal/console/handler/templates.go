package handler

import (
	"context"
	"fmt"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/xela07ax/compliance-audit-engine/internal/console/service"
	"github.com/xela07ax/compliance-audit-engine/internal/domain"
	"github.com/xela07ax/compliance-audit-engine/internal/ingest"
	"go.uber.org/zap"
)

// TemplateService Описываем, что нам нужно от сервиса шаблонов
type TemplateService interface {
	ListTemplates(ctx context.Context) []domain.AuditTemplate
	GetTemplate(ctx context.Context, id string) (*domain.AuditTemplate, error)
	BuildTemplate(ctx context.Context, req service.BuildTemplateRequest) (*domain.AuditTemplate, error)
	ReviseTemplate(ctx context.Context, id string, req service.BuildTemplateRequest) (*domain.AuditTemplate, error)
}

type TemplateHandler struct {
	service TemplateService
	logger  *zap.Logger
}

func NewTemplateHandler(s TemplateService, logger *zap.Logger) *TemplateHandler {
	return &TemplateHandler{service: s, logger: logger.Named("templates-api")}
}

// List — каталог опубликованных шаблонов.
// GET /v1/templates
func (h *TemplateHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.ListTemplates(r.Context()))
}

// GET /v1/templates/{id}
func (h *TemplateHandler) Get(w http.ResponseWriter, r *http.Request) {
	tpl, err := h.service.GetTemplate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, tpl)
}

// Create публикует шаблон. Тело — JSON {name, rows|questions}, либо таблица text/csv
// (имя в ?name=), либо YAML-кандидат.
// POST /v1/templates
func (h *TemplateHandler) Create(w http.ResponseWriter, r *http.Request) {
	req, err := readBuildRequest(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}

	tpl, err := h.service.BuildTemplate(r.Context(), req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, tpl)
}

// Revise публикует новую версию шаблона {id}.
// POST /v1/templates/{id}/revisions
func (h *TemplateHandler) Revise(w http.ResponseWriter, r *http.Request) {
	req, err := readBuildRequest(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}

	tpl, err := h.service.ReviseTemplate(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, tpl)
}

func readBuildRequest(r *http.Request) (service.BuildTemplateRequest, error) {
	mediaType := "application/json"
	if ct := r.Header.Get("Content-Type"); ct != "" {
		mt, _, err := mime.ParseMediaType(ct)
		if err != nil {
			return service.BuildTemplateRequest{}, fmt.Errorf("invalid content type: %w", err)
		}
		mediaType = mt
	}

	switch mediaType {
	case "application/json":
		var req service.BuildTemplateRequest
		if err := decodeJSON(r, &req); err != nil {
			return req, fmt.Errorf("invalid request body: %w", err)
		}
		return req, nil
	case "text/csv":
		c, err := ingest.DecodeCSV(r.URL.Query().Get("name"), r.Body)
		if err != nil {
			return service.BuildTemplateRequest{}, err
		}
		return service.BuildTemplateRequest{Name: c.Name, Rows: c.Questions}, nil
	case "application/yaml", "application/x-yaml", "text/yaml":
		c, err := ingest.DecodeYAML(r.Body)
		if err != nil {
			return service.BuildTemplateRequest{}, err
		}
		return service.BuildTemplateRequest{Name: c.Name, Rows: c.Questions}, nil
	default:
		return service.BuildTemplateRequest{}, fmt.Errorf("%w: %s", ingest.ErrUnsupportedFormat, mediaType)
	}
}
