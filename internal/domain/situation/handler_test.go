package situation

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func newTestHandler() (*Handler, *echo.Echo) {
	return NewHandler(NewService(NewSeededMemoryRepo(), nil)), echo.New()
}

func TestHandler_GetSituation(t *testing.T) {
	h, e := newTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("50")

	if err := h.GetSituation(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	var s Situation
	json.Unmarshal(rec.Body.Bytes(), &s)
	if s.Code != "T17" || s.GroupID != 2 {
		t.Errorf("unexpected situation: %+v", s)
	}
}

func TestHandler_GetSituation_NotFound(t *testing.T) {
	h, e := newTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("99")

	err := h.GetSituation(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %v", err)
	}
}

func TestHandler_GetSituation_InvalidID(t *testing.T) {
	h, e := newTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("abc")

	err := h.GetSituation(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}

func TestHandler_ListSituations_ByGroup(t *testing.T) {
	h, e := newTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/?group=1", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.ListSituations(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var items []Situation
	json.Unmarshal(rec.Body.Bytes(), &items)
	if len(items) != 33 {
		t.Errorf("expected 33 situations, got %d", len(items))
	}
}

func TestHandler_ListSituations_BadGroup(t *testing.T) {
	h, e := newTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/?group=x", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.ListSituations(c); err == nil {
		t.Error("expected error for non-numeric group")
	}
}

func TestHandler_Classify(t *testing.T) {
	h, e := newTestHandler()

	body := `{"pth":350,"previous_pth":320,"calcium":9.5,"albumin":4.0,"phosphate":4.0,"echo_positive":false,"lateral_radiography":3}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/classifications", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.Classify(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var out Classification
	json.Unmarshal(rec.Body.Bytes(), &out)
	if out.Result.SituationCode != "T17" || out.Situation == nil || out.Situation.ID != 50 {
		t.Errorf("unexpected classification: %+v", out)
	}
}

func TestHandler_Classify_MissingCatalogRow(t *testing.T) {
	repo := NewSeededMemoryRepo()
	repo.Delete(50)
	h, e := NewHandler(NewService(repo, nil)), echo.New()

	body := `{"pth":350,"calcium":9.5,"albumin":4.0,"phosphate":4.0,"lateral_radiography":3}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c := e.NewContext(req, httptest.NewRecorder())

	he, ok := h.Classify(c).(*echo.HTTPError)
	if !ok || he.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %v", he)
	}
}
