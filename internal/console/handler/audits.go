package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/xela07ax/compliance-audit-engine/internal/console/service"
	"github.com/xela07ax/compliance-audit-engine/internal/domain"
	"github.com/xela07ax/compliance-audit-engine/internal/engine"
	"go.uber.org/zap"
)

// AuditService Описываем, что нам нужно от сервиса аудитов
type AuditService interface {
	StartAudit(ctx context.Context, req service.StartAuditRequest) (*domain.AuditSimulation, error)
	SetAnswer(ctx context.Context, sessionID, questionID string, patch domain.AnswerPatch) (*service.AnswerResult, error)
	Finalize(ctx context.Context, sessionID string, sig engine.SignatureInput) (*engine.FinalizeResult, error)
	ListAudits(ctx context.Context, f service.AuditFilter) []domain.AuditSimulation
	GetAudit(ctx context.Context, id string) (*service.AuditDetail, error)
	DiscardAudit(ctx context.Context, id string) error
}

type AuditHandler struct {
	service AuditService
	logger  *zap.Logger
}

func NewAuditHandler(s AuditService, logger *zap.Logger) *AuditHandler {
	return &AuditHandler{service: s, logger: logger.Named("audits-api")}
}

// Start создаёт черновик аудита по шаблону.
// POST /v1/audits
func (h *AuditHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req service.StartAuditRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}
	if req.TemplateID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "template_id is required"})
		return
	}

	a, err := h.service.StartAudit(r.Context(), req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

// List возвращает историю аудитов с фильтрацией
// GET /v1/audits?unit_id=...&template_id=...&status=DRAFT
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := service.AuditFilter{
		UnitID:     q.Get("unit_id"),
		TemplateID: q.Get("template_id"),
		Status:     domain.AuditStatus(q.Get("status")),
	}
	writeJSON(w, http.StatusOK, h.service.ListAudits(r.Context(), f))
}

// GET /v1/audits/{id}
func (h *AuditHandler) Get(w http.ResponseWriter, r *http.Request) {
	detail, err := h.service.GetAudit(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// DELETE /v1/audits/{id}
func (h *AuditHandler) Discard(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DiscardAudit(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Answer меняет ответ одного вопроса; в ответе — аудит с пересчитанным баллом.
// PATCH /v1/audits/{id}/questions/{qid}
func (h *AuditHandler) Answer(w http.ResponseWriter, r *http.Request) {
	var patch domain.AnswerPatch
	if err := decodeJSON(r, &patch); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}

	res, err := h.service.SetAnswer(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "qid"), patch)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type FinalizeRequest struct {
	Signature string `json:"signature"` // Изображение подписи (data URL или base64)
	SignedBy  string `json:"signed_by,omitempty"`
}

// Finalize подписывает аудит и возвращает выпущенные заявки на устранение.
// POST /v1/audits/{id}/finalize
func (h *AuditHandler) Finalize(w http.ResponseWriter, r *http.Request) {
	var req FinalizeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}

	res, err := h.service.Finalize(r.Context(), chi.URLParam(r, "id"), engine.SignatureInput{
		Data:     req.Signature,
		SignedBy: req.SignedBy,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
