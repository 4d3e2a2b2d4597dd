package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/ecotek/binderlab/internal/compliance"
	"github.com/ecotek/binderlab/internal/model"
	"github.com/ecotek/binderlab/internal/store"
)

// errBadRequest marks client input errors.
var errBadRequest = eris.New("bad request")

// testView is a test plus the fields that still need attention.
type testView struct {
	*model.BinderTest
	Missing []string `json:"missing"`
}

func viewOf(t *model.BinderTest) testView {
	return testView{BinderTest: t, Missing: model.FieldNames(model.FindMissing(t.Fields))}
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if err := s.catalog.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type createTestRequest struct {
	Name         string `json:"name"`
	BinderSource string `json:"binderSource"`
	Lab          string `json:"lab"`
	FolderName   string `json:"folderName"`
}

func (s *Server) createTest(w http.ResponseWriter, r *http.Request) {
	var req createTestRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, eris.Wrap(errBadRequest, "name is required"))
		return
	}

	t := &model.BinderTest{
		Name:         req.Name,
		BinderSource: strings.TrimSpace(req.BinderSource),
		Lab:          strings.TrimSpace(req.Lab),
		FolderName:   strings.TrimSpace(req.FolderName),
	}
	if err := s.tests.CreateTest(r.Context(), t); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewOf(t))
}

func (s *Server) listTests(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.TestFilter{
		Status: model.Status(q.Get("status")),
		Search: q.Get("q"),
	}
	switch filter.Status {
	case "", model.StatusPendingReview, model.StatusReady:
	default:
		writeError(w, eris.Wrapf(errBadRequest, "unknown status %q", filter.Status))
		return
	}
	var err error
	if filter.Limit, err = intParam(q.Get("limit")); err != nil {
		writeError(w, err)
		return
	}
	if filter.Offset, err = intParam(q.Get("offset")); err != nil {
		writeError(w, err)
		return
	}

	tests, err := s.catalog.ListTests(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	views := make([]testView, len(tests))
	for i := range tests {
		views[i] = viewOf(&tests[i])
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) getTest(w http.ResponseWriter, r *http.Request) {
	t, err := s.tests.GetTest(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(t))
}

func (s *Server) listDocuments(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.tests.GetTest(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	docs, err := s.catalog.ListDocuments(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if docs == nil {
		docs = []model.SourceDocument{}
	}
	writeJSON(w, http.StatusOK, docs)
}

type extractResponse struct {
	Test     testView `json:"test"`
	UsedAI   bool     `json:"usedAi"`
	Degraded []string `json:"degraded,omitempty"`
}

func (s *Server) extract(w http.ResponseWriter, r *http.Request) {
	res, err := s.tests.Extract(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if res == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	resp := extractResponse{Test: viewOf(res.Test), UsedAI: res.Outcome.UsedAI}
	for _, e := range res.Outcome.Degraded {
		resp.Degraded = append(resp.Degraded, e.Error())
	}
	writeJSON(w, http.StatusOK, resp)
}

type reviewResponse struct {
	Test     testView           `json:"test"`
	NewEdits []model.ManualEdit `json:"newEdits"`
}

func (s *Server) review(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, eris.Wrap(errBadRequest, err.Error()))
		return
	}
	submitted, err := model.DecodeObject(body)
	if err != nil {
		writeError(w, eris.Wrap(errBadRequest, "body must be a JSON object of field values"))
		return
	}

	res, err := s.tests.Review(r.Context(), chi.URLParam(r, "id"), submitted)
	if err != nil {
		writeError(w, err)
		return
	}
	if res == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	edits := res.NewEdits
	if edits == nil {
		edits = []model.ManualEdit{}
	}
	writeJSON(w, http.StatusOK, reviewResponse{Test: viewOf(res.Test), NewEdits: edits})
}

func (s *Server) audit(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.tests.GetTest(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	edits, err := s.catalog.ListEdits(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, edits)
}

type complianceResponse struct {
	Standard string           `json:"standard"`
	Name     string           `json:"name"`
	Rows     []compliance.Row `json:"rows"`
	Overall  *bool            `json:"overall"`
}

func (s *Server) compliance(w http.ResponseWriter, r *http.Request) {
	t, err := s.tests.GetTest(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	std, err := s.standards.Standard(r.URL.Query().Get("standard"))
	if err != nil {
		writeError(w, err)
		return
	}
	rows := compliance.Evaluate(t.Fields, std)
	if rows == nil {
		rows = []compliance.Row{}
	}
	writeJSON(w, http.StatusOK, complianceResponse{
		Standard: std.Code,
		Name:     std.Name,
		Rows:     rows,
		Overall:  compliance.Overall(rows),
	})
}

func (s *Server) listStandards(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"standards": s.standards.Codes()})
}

func (s *Server) reloadStandards(w http.ResponseWriter, _ *http.Request) {
	if err := s.standards.Reload(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"standards": s.standards.Codes()})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return eris.Wrap(errBadRequest, "invalid request body: "+err.Error())
	}
	return nil
}

func intParam(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, eris.Wrapf(errBadRequest, "invalid number %q", s)
	}
	return n, nil
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound), errors.Is(err, compliance.ErrUnknownStandard):
		return http.StatusNotFound
	case errors.Is(err, store.ErrVersionConflict):
		return http.StatusConflict
	case errors.Is(err, compliance.ErrNotLoaded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		zap.L().Error("api: request failed", zap.Error(err))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}
