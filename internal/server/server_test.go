package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"vintagevision/internal/directory"
	"vintagevision/internal/domain"
	"vintagevision/internal/escalation"
	"vintagevision/internal/integrations/llm"
	"vintagevision/internal/requests"
	"vintagevision/internal/store"
)

var testNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

var chairAnalysis = domain.AnalysisResult{
	ID:                "an-chair",
	Name:              "Georgian oak Windsor armchair",
	Maker:             "unknown",
	Era:               "circa 1790",
	DomainExpert:      domain.DomainFurniture,
	EstimatedValueMin: 200_000,
	EstimatedValueMax: 400_000,
	Confidence:        0.9,
	AuthenticityRisk:  domain.RiskLow,
}

func newTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	cfg := escalation.DefaultConfig()
	mgr := &requests.Manager{
		Store: st,
		Experts: directory.Static{
			{ID: "e-furniture", Name: "Margaret Hale", Specializations: []domain.Domain{domain.DomainFurniture}, Rating: 4.8, CompletedReviews: 120, AverageTurnaround: 20, IsActive: true},
			{ID: "e-watches", Name: "Sam Kirk", Specializations: []domain.Domain{domain.DomainWatches}, Rating: 5, CompletedReviews: 300, AverageTurnaround: 10, IsActive: true},
		},
		Sink:   st,
		Config: cfg,
		Now:    func() time.Time { return testNow },
	}
	return &Server{Manager: mgr, Config: cfg, History: st}, st
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestTiersAndHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	if rec := doJSON(t, h, http.MethodGet, "/healthz", nil); rec.Code != http.StatusOK {
		t.Fatalf("healthz status = %d", rec.Code)
	}
	rec := doJSON(t, h, http.MethodGet, "/api/tiers", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("tiers status = %d", rec.Code)
	}
	got := decode[struct {
		Tiers []domain.ExpertServiceTier `json:"tiers"`
	}](t, rec)
	if len(got.Tiers) != 3 || got.Tiers[0].ID != escalation.TierQuickReview {
		t.Fatalf("unexpected tiers: %+v", got.Tiers)
	}
}

func TestEvaluateRecordsHistory(t *testing.T) {
	srv, st := newTestServer(t)
	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/escalation/evaluate", chairAnalysis)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body)
	}
	ev := decode[escalation.Evaluation](t, rec)
	if !ev.ShouldOffer || ev.ValueRange.Mid != 300_000 {
		t.Fatalf("unexpected evaluation: %+v", ev)
	}

	stats, err := st.GetEscalationStats(context.Background(), time.Time{})
	if err != nil {
		t.Fatalf("GetEscalationStats failed: %v", err)
	}
	if stats.TotalEvaluations != 1 || stats.Offered != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestEvaluateNormalizesEnumSpellings(t *testing.T) {
	srv, _ := newTestServer(t)
	body := `{"id":"an-ring","domainExpert":"Jewelry","confidence":0.99,"authenticityRisk":"VERY_HIGH","estimatedValueMin":0,"estimatedValueMax":0}`
	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/escalation/evaluate", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body)
	}
	ev := decode[escalation.Evaluation](t, rec)
	if !ev.ShouldOffer || ev.Urgency != domain.UrgencyCritical {
		t.Fatalf("expected critical offer, got offer=%t urgency=%s", ev.ShouldOffer, ev.Urgency)
	}
	want := []escalation.Trigger{escalation.TriggerAuthenticity, escalation.TriggerHighRiskDomain}
	if diff := cmp.Diff(want, ev.Triggers); diff != "" {
		t.Fatalf("triggers mismatch (-want +got):\n%s", diff)
	}
}

func TestCreateRequestRejectsUnknownDomain(t *testing.T) {
	srv, st := newTestServer(t)
	body := `{"userId":"user-1","tierId":"quick_review","analysis":{"id":"an-x","name":"Mystery box","domainExpert":"not-a-domain","confidence":0.9}}`
	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/expert-requests", body)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 (body=%s)", rec.Code, rec.Body)
	}
	if !strings.Contains(rec.Body.String(), "not-a-domain") {
		t.Fatalf("error should name the rejected value: %s", rec.Body)
	}
	stored, err := st.ListOpenExpertRequests(context.Background())
	if err != nil {
		t.Fatalf("ListOpenExpertRequests failed: %v", err)
	}
	if len(stored) != 0 {
		t.Fatalf("nothing should be stored, got %d requests", len(stored))
	}
}

func TestExpertRequestLifecycle(t *testing.T) {
	srv, st := newTestServer(t)
	h := srv.Handler()

	rec := doJSON(t, h, http.MethodPost, "/api/expert-requests", requests.CreateInput{
		UserID:   "user-1",
		TierID:   escalation.TierFullAuthentication,
		Analysis: chairAnalysis,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d body=%s", rec.Code, rec.Body)
	}
	created := decode[domain.ExpertRequest](t, rec)
	if created.Status != domain.StatusPendingPayment || created.AnalysisID != "an-chair" || created.Price != 14_900 {
		t.Fatalf("unexpected request: %+v", created)
	}
	base := "/api/expert-requests/" + created.ID

	if rec := doJSON(t, h, http.MethodPost, base+"/assign", nil); rec.Code != http.StatusConflict {
		t.Fatalf("assign before payment status = %d", rec.Code)
	}
	if rec := doJSON(t, h, http.MethodPost, base+"/pay", nil); rec.Code != http.StatusOK {
		t.Fatalf("pay status = %d body=%s", rec.Code, rec.Body)
	}

	rec = doJSON(t, h, http.MethodPost, base+"/assign", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("assign status = %d body=%s", rec.Code, rec.Body)
	}
	assigned := decode[assignResponse](t, rec)
	if !assigned.Matched || assigned.Match == nil || assigned.Match.Expert.ID != "e-furniture" {
		t.Fatalf("unexpected assignment: %+v", assigned)
	}
	if assigned.Request.Status != domain.StatusAssigned {
		t.Fatalf("status after assign = %s", assigned.Request.Status)
	}

	if rec := doJSON(t, h, http.MethodPost, base+"/start", nil); rec.Code != http.StatusOK {
		t.Fatalf("start status = %d body=%s", rec.Code, rec.Body)
	}

	rec = doJSON(t, h, http.MethodPost, base+"/feedback", requests.Feedback{
		ExpertNotes: "Later than the AI thought.",
		Corrections: []domain.Correction{{Field: "era", OriginalValue: "circa 1790", CorrectedValue: "circa 1830"}},
		FinalReport: "Regency-period Windsor armchair.",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("feedback status = %d body=%s", rec.Code, rec.Body)
	}
	fb := decode[feedbackResponse](t, rec)
	if !fb.Result.HadCorrections || fb.Result.CorrectionCount != 1 || fb.Request.Status != domain.StatusCompleted {
		t.Fatalf("unexpected feedback response: %+v", fb)
	}

	rec = doJSON(t, h, http.MethodGet, base, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	if got := decode[domain.ExpertRequest](t, rec); got.Status != domain.StatusCompleted || got.AssignedExpertID != "e-furniture" {
		t.Fatalf("unexpected stored request: %+v", got)
	}

	corrections, err := st.GetRecentCorrections(context.Background(), time.Time{}, 10)
	if err != nil {
		t.Fatalf("GetRecentCorrections failed: %v", err)
	}
	if len(corrections) != 1 || corrections[0].CorrectedValue != "circa 1830" {
		t.Fatalf("unexpected corrections: %+v", corrections)
	}

	if rec := doJSON(t, h, http.MethodPost, base+"/cancel", nil); rec.Code != http.StatusConflict {
		t.Fatalf("cancel after completion status = %d", rec.Code)
	}
}

func TestErrorMapping(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{name: "unknown request", method: http.MethodGet, path: "/api/expert-requests/missing", want: http.StatusNotFound},
		{name: "pay unknown request", method: http.MethodPost, path: "/api/expert-requests/missing/pay", want: http.StatusNotFound},
		{name: "unknown tier", method: http.MethodPost, path: "/api/expert-requests", body: requests.CreateInput{TierID: "platinum"}, want: http.StatusBadRequest},
		{name: "bad json", method: http.MethodPost, path: "/api/escalation/evaluate", body: "{not json", want: http.StatusBadRequest},
		{name: "unknown domain on evaluate", method: http.MethodPost, path: "/api/escalation/evaluate", body: `{"id":"an-x","domainExpert":"spaceship","confidence":0.9}`, want: http.StatusBadRequest},
		{name: "unknown risk on evaluate", method: http.MethodPost, path: "/api/escalation/evaluate", body: `{"id":"an-x","domainExpert":"jewelry","confidence":0.9,"authenticityRisk":"extreme"}`, want: http.StatusBadRequest},
		{name: "correction without field", method: http.MethodPost, path: "/api/expert-requests/any/feedback", body: requests.Feedback{Corrections: []domain.Correction{{CorrectedValue: "x"}}}, want: http.StatusBadRequest},
		{name: "analyze without analyzer", method: http.MethodPost, path: "/api/analyze", want: http.StatusServiceUnavailable},
		{name: "wrong method", method: http.MethodDelete, path: "/api/tiers", want: http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, h, tt.method, tt.path, tt.body)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d (body=%s)", rec.Code, tt.want, rec.Body)
			}
		})
	}
}

type fakeAnalyzer struct {
	gotHint  string
	gotBytes int
}

func (f *fakeAnalyzer) Analyze(_ context.Context, img llm.Image, hint string) (domain.AnalysisResult, llm.Usage, error) {
	f.gotHint = hint
	f.gotBytes = len(img.Data)
	return chairAnalysis, llm.Usage{InputTokens: 1500, OutputTokens: 200}, nil
}

func TestAnalyzeUpload(t *testing.T) {
	srv, _ := newTestServer(t)
	fa := &fakeAnalyzer{}
	srv.Analyzer = fa

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("image", "chair.png")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	_, _ = part.Write([]byte("\x89PNG\r\n\x1a\nfake"))
	_ = mw.WriteField("hint", "grandma's chair")
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/analyze", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body)
	}
	got := decode[analyzeResponse](t, rec)
	if got.Analysis.ID != "an-chair" || !got.Escalation.ShouldOffer || got.Usage.InputTokens != 1500 {
		t.Fatalf("unexpected response: %+v", got)
	}
	if fa.gotHint != "grandma's chair" || fa.gotBytes != 12 {
		t.Fatalf("analyzer got hint=%q bytes=%d", fa.gotHint, fa.gotBytes)
	}
}

func TestAnalyzeRejectsMissingImage(t *testing.T) {
	srv, _ := newTestServer(t)
	srv.Analyzer = &fakeAnalyzer{}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	_ = mw.WriteField("hint", "no photo")
	_ = mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/api/analyze", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "missing image") {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body)
	}
}
