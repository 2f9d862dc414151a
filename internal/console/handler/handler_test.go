package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/compliance-audit-engine/internal/console/service"
	"github.com/xela07ax/compliance-audit-engine/internal/domain"
	"github.com/xela07ax/compliance-audit-engine/internal/engine"
	"go.uber.org/zap"
)

type fakeTemplates struct {
	built   service.BuildTemplateRequest
	buildFn func(service.BuildTemplateRequest) (*domain.AuditTemplate, error)
}

func (f *fakeTemplates) ListTemplates(context.Context) []domain.AuditTemplate {
	return []domain.AuditTemplate{{ID: "t1", Name: "EPI", Version: 1}}
}

func (f *fakeTemplates) GetTemplate(_ context.Context, id string) (*domain.AuditTemplate, error) {
	if id != "t1" {
		return nil, fmt.Errorf("template %s: %w", id, domain.ErrTemplateNotFound)
	}
	return &domain.AuditTemplate{ID: "t1", Name: "EPI", Version: 1}, nil
}

func (f *fakeTemplates) BuildTemplate(_ context.Context, req service.BuildTemplateRequest) (*domain.AuditTemplate, error) {
	f.built = req
	return f.buildFn(req)
}

func (f *fakeTemplates) ReviseTemplate(_ context.Context, id string, req service.BuildTemplateRequest) (*domain.AuditTemplate, error) {
	f.built = req
	return &domain.AuditTemplate{ID: "t2", Name: req.Name, Version: 2, PreviousID: id}, nil
}

type fakeAudits struct {
	err       error
	lastPatch domain.AnswerPatch
	lastSig   engine.SignatureInput
	filter    service.AuditFilter
}

func (f *fakeAudits) StartAudit(_ context.Context, req service.StartAuditRequest) (*domain.AuditSimulation, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.AuditSimulation{ID: "a1", TemplateID: req.TemplateID, Status: domain.StatusDraft, FinalScore: 100}, nil
}

func (f *fakeAudits) SetAnswer(_ context.Context, id, qid string, patch domain.AnswerPatch) (*service.AnswerResult, error) {
	f.lastPatch = patch
	if f.err != nil {
		return nil, f.err
	}
	return &service.AnswerResult{Session: &domain.AuditSimulation{ID: id, FinalScore: 17}, Applied: qid == "q1"}, nil
}

func (f *fakeAudits) Finalize(_ context.Context, id string, sig engine.SignatureInput) (*engine.FinalizeResult, error) {
	f.lastSig = sig
	if f.err != nil {
		return nil, f.err
	}
	return &engine.FinalizeResult{
		Session:      &domain.AuditSimulation{ID: id, Status: domain.StatusCompleted},
		Remediations: []domain.RemediationRequest{{ID: "r1", Origin: domain.OriginAudit}},
	}, nil
}

func (f *fakeAudits) ListAudits(_ context.Context, filter service.AuditFilter) []domain.AuditSimulation {
	f.filter = filter
	return []domain.AuditSimulation{{ID: "a1"}}
}

func (f *fakeAudits) GetAudit(_ context.Context, id string) (*service.AuditDetail, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &service.AuditDetail{Session: &domain.AuditSimulation{ID: id}}, nil
}

func (f *fakeAudits) DiscardAudit(context.Context, string) error {
	return f.err
}

func newRouter(th *TemplateHandler, ah *AuditHandler) http.Handler {
	r := chi.NewRouter()
	r.Get("/v1/templates", th.List)
	r.Post("/v1/templates", th.Create)
	r.Get("/v1/templates/{id}", th.Get)
	r.Post("/v1/templates/{id}/revisions", th.Revise)
	r.Get("/v1/audits", ah.List)
	r.Post("/v1/audits", ah.Start)
	r.Get("/v1/audits/{id}", ah.Get)
	r.Delete("/v1/audits/{id}", ah.Discard)
	r.Patch("/v1/audits/{id}/questions/{qid}", ah.Answer)
	r.Post("/v1/audits/{id}/finalize", ah.Finalize)
	return r
}

func do(h http.Handler, method, target, contentType, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestTemplateHandler(t *testing.T) {
	tpls := &fakeTemplates{buildFn: func(req service.BuildTemplateRequest) (*domain.AuditTemplate, error) {
		return &domain.AuditTemplate{ID: "t9", Name: req.Name, Version: 1}, nil
	}}
	h := newRouter(NewTemplateHandler(tpls, zap.NewNop()), NewAuditHandler(&fakeAudits{}, zap.NewNop()))

	t.Run("list", func(t *testing.T) {
		rec := do(h, http.MethodGet, "/v1/templates", "", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"id":"t1"`)
	})

	t.Run("get missing", func(t *testing.T) {
		rec := do(h, http.MethodGet, "/v1/templates/nope", "", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("create from json", func(t *testing.T) {
		body := `{"name":"EPI","rows":[{"category":"EPI","text":"Capacete","weight":5,"options":[{"label":"Sim","value":10}]}]}`
		rec := do(h, http.MethodPost, "/v1/templates", "application/json", body)
		require.Equal(t, http.StatusCreated, rec.Code)
		require.Len(t, tpls.built.Rows, 1)
		assert.Equal(t, 5.0, tpls.built.Rows[0].Weight)
	})

	t.Run("create from csv", func(t *testing.T) {
		body := "category,text,weight,options\nEPI,Capacete,5,Sim=10|Não=0\n"
		rec := do(h, http.MethodPost, "/v1/templates?name=Planilha", "text/csv; charset=utf-8", body)
		require.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, "Planilha", tpls.built.Name)
		require.Len(t, tpls.built.Rows, 1)
		assert.Len(t, tpls.built.Rows[0].Options, 2)
	})

	t.Run("unsupported content type", func(t *testing.T) {
		rec := do(h, http.MethodPost, "/v1/templates", "application/xml", "<x/>")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("revise", func(t *testing.T) {
		rec := do(h, http.MethodPost, "/v1/templates/t1/revisions", "application/json", `{"name":"EPI v2"}`)
		require.Equal(t, http.StatusCreated, rec.Code)
		assert.Contains(t, rec.Body.String(), `"previous_id":"t1"`)
	})
}

func TestTemplateHandler_ValidationErrors(t *testing.T) {
	tpls := &fakeTemplates{buildFn: func(service.BuildTemplateRequest) (*domain.AuditTemplate, error) {
		return nil, domain.ValidationErrors{
			{Field: "questions[0].text", Index: 0, Code: "notblank", Message: "must not be blank"},
			{Field: "questions[1].weight", Index: 1, Code: "whole", Message: "must be a whole number"},
		}
	}}
	h := newRouter(NewTemplateHandler(tpls, zap.NewNop()), NewAuditHandler(&fakeAudits{}, zap.NewNop()))

	rec := do(h, http.MethodPost, "/v1/templates", "application/json", `{"name":"x"}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Violations, 2)
	assert.Equal(t, "whole", body.Violations[1].Code)
	assert.Equal(t, 1, body.Violations[1].Index)
}

func TestAuditHandler(t *testing.T) {
	audits := &fakeAudits{}
	h := newRouter(NewTemplateHandler(&fakeTemplates{}, zap.NewNop()), NewAuditHandler(audits, zap.NewNop()))

	t.Run("start requires template", func(t *testing.T) {
		rec := do(h, http.MethodPost, "/v1/audits", "application/json", `{"unit_id":"u1"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("start", func(t *testing.T) {
		rec := do(h, http.MethodPost, "/v1/audits", "application/json", `{"template_id":"t1","unit_id":"u1"}`)
		require.Equal(t, http.StatusCreated, rec.Code)
		assert.Contains(t, rec.Body.String(), `"final_score":100`)
	})

	t.Run("list filters", func(t *testing.T) {
		rec := do(h, http.MethodGet, "/v1/audits?unit_id=u1&status=COMPLETED", "", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "u1", audits.filter.UnitID)
		assert.Equal(t, domain.StatusCompleted, audits.filter.Status)
	})

	t.Run("answer", func(t *testing.T) {
		rec := do(h, http.MethodPatch, "/v1/audits/a1/questions/q1", "application/json", `{"score":0,"na":false}`)
		require.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, audits.lastPatch.Score)
		assert.Equal(t, 0.0, *audits.lastPatch.Score)
		assert.Contains(t, rec.Body.String(), `"applied":true`)
	})

	t.Run("finalize", func(t *testing.T) {
		rec := do(h, http.MethodPost, "/v1/audits/a1/finalize", "application/json", `{"signature":"data:image/png;base64,AA"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "data:image/png;base64,AA", audits.lastSig.Data)
		assert.Contains(t, rec.Body.String(), `"origin":"AUDIT"`)
	})

	t.Run("discard", func(t *testing.T) {
		rec := do(h, http.MethodDelete, "/v1/audits/a1", "", "")
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})
}

func TestAuditHandler_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", fmt.Errorf("audit x: %w", domain.ErrSessionNotFound), http.StatusNotFound},
		{"finalized", &domain.SessionFinalizedError{SessionID: "a1"}, http.StatusConflict},
		{"locked", domain.ErrSessionLocked, http.StatusConflict},
		{"missing signature", &domain.MissingSignatureError{SessionID: "a1"}, http.StatusUnprocessableEntity},
		{"invalid score", fmt.Errorf("question q1: %w", domain.ErrInvalidScore), http.StatusBadRequest},
		{"unit forbidden", fmt.Errorf("unit u9: %w", service.ErrUnitForbidden), http.StatusForbidden},
		{"storage", errors.New("disk full"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			audits := &fakeAudits{err: tt.err}
			h := newRouter(NewTemplateHandler(&fakeTemplates{}, zap.NewNop()), NewAuditHandler(audits, zap.NewNop()))

			rec := do(h, http.MethodPost, "/v1/audits/a1/finalize", "application/json", `{"signature":"x"}`)

			assert.Equal(t, tt.want, rec.Code)
			if tt.want == http.StatusInternalServerError {
				assert.NotContains(t, rec.Body.String(), "disk full")
			}
		})
	}
}
