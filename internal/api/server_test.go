package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/mbolshakov/gotrial/internal/experiment"
	"github.com/mbolshakov/gotrial/internal/resolver"
	"github.com/mbolshakov/gotrial/internal/store"
)

const testAdminKey = "test-admin-key"

// staticResolver serves a fixed list for handler tests.
type staticResolver struct{ ids []string }

func (s *staticResolver) GetItems(_ context.Context, p resolver.Params) ([]resolver.Item, error) {
	n := p.NumResults
	if n <= 0 || n > len(s.ids) {
		n = len(s.ids)
	}
	items := make([]resolver.Item, n)
	for i := 0; i < n; i++ {
		items[i] = resolver.Item{ItemID: s.ids[i]}
	}
	return items, nil
}

func newTestServer(t *testing.T) (*httptest.Server, store.Store) {
	t.Helper()

	st := store.NewMemoryStore()
	factory := resolver.NewFactory(resolver.Endpoints{})
	factory.Register("static", func(cfg resolver.Config) (resolver.Resolver, error) {
		return &staticResolver{ids: strings.Split(cfg.BaseURL, ",")}, nil
	})

	m := experiment.NewManager(experiment.ManagerOptions{
		Store:   st,
		Factory: factory,
		Logger:  zerolog.Nop(),
	})

	srv := httptest.NewServer(NewServer(m, st, factory, testAdminKey, zerolog.Nop()).Router())
	t.Cleanup(srv.Close)
	return srv, st
}

func adminReq(t *testing.T, method, url string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+testAdminKey)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// activeExperiment is seeded directly into the store for serving tests; the
// static resolver type is registered on the test factory only.
func activeExperiment(id string) store.Experiment {
	return store.Experiment{
		ID:      id,
		Feature: "home_recs",
		Name:    "layout-test",
		Type:    store.TypeAB,
		Status:  store.StatusActive,
		Variations: []store.Variation{
			{Config: resolver.Config{Type: "static", BaseURL: "c1,c2,c3"}},
			{Config: resolver.Config{Type: "static", BaseURL: "t1,t2,t3"}},
		},
	}
}

// adminExperiment passes definition validation, so it can go through the
// admin endpoints.
func adminExperiment() store.Experiment {
	return store.Experiment{
		Feature: "home_recs",
		Name:    "layout-test",
		Type:    store.TypeAB,
		Status:  store.StatusActive,
		Variations: []store.Variation{
			{Config: resolver.Config{Type: resolver.TypeProduct}},
			{Config: resolver.Config{Type: resolver.TypeSimilar}},
		},
	}
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
}

func TestAdmin_RequiresAuth(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/v1/experiments")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/v1/experiments", nil)
	req.Header.Set("Authorization", "Bearer wrong-key")
	resp2, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403 with bad token, got %d", resp2.StatusCode)
	}
}

func TestAdmin_CreateAndGet(t *testing.T) {
	srv, _ := newTestServer(t)

	exp := adminExperiment()
	resp, err := http.DefaultClient.Do(adminReq(t, http.MethodPost, srv.URL+"/v1/experiments", exp))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	var created store.Experiment
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created.ID == "" {
		t.Error("expected a server-assigned id")
	}

	resp2, err := http.DefaultClient.Do(adminReq(t, http.MethodGet, srv.URL+"/v1/experiments/"+created.ID, nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp2.StatusCode)
	}
}

func TestAdmin_CreateInvalid(t *testing.T) {
	srv, _ := newTestServer(t)

	exp := adminExperiment()
	exp.Variations = exp.Variations[:1] // too few for ab

	resp, err := http.DefaultClient.Do(adminReq(t, http.MethodPost, srv.URL+"/v1/experiments", exp))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

func TestAdmin_SecondActiveConflicts(t *testing.T) {
	srv, st := newTestServer(t)
	_ = st.Create(context.Background(), activeExperiment("e1"))

	resp, err := http.DefaultClient.Do(adminReq(t, http.MethodPost, srv.URL+"/v1/experiments", adminExperiment()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("expected 409, got %d", resp.StatusCode)
	}
}

func TestAdmin_SetStatus(t *testing.T) {
	srv, st := newTestServer(t)
	exp := activeExperiment("e1")
	exp.Status = store.StatusDraft
	_ = st.Create(context.Background(), exp)

	resp, err := http.DefaultClient.Do(adminReq(t, http.MethodPut, srv.URL+"/v1/experiments/e1/status",
		map[string]string{"status": store.StatusActive}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}

	got, _ := st.GetByID(context.Background(), "e1")
	if got.Status != store.StatusActive {
		t.Errorf("expected ACTIVE, got %s", got.Status)
	}

	// Bogus status value rejected.
	resp2, err := http.DefaultClient.Do(adminReq(t, http.MethodPut, srv.URL+"/v1/experiments/e1/status",
		map[string]string{"status": "PAUSED"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp2.StatusCode)
	}
}

func TestRecommendations_ServesActiveExperiment(t *testing.T) {
	srv, st := newTestServer(t)
	_ = st.Create(context.Background(), activeExperiment("e1"))

	resp, err := http.Get(srv.URL + "/v1/recommendations?feature=home_recs&userId=u1&numResults=3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var items []resolver.Item
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}
	for _, item := range items {
		if item.Experiment == nil {
			t.Fatal("expected experiment metadata on items")
		}
		if item.Experiment.CorrelationID == "" {
			t.Error("expected a correlation token")
		}
	}
}

func TestRecommendations_MissingParams(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, _ := http.Get(srv.URL + "/v1/recommendations?userId=u1")
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 without feature, got %d", resp.StatusCode)
	}

	resp2, _ := http.Get(srv.URL + "/v1/recommendations?feature=home_recs")
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 without userId, got %d", resp2.StatusCode)
	}
}

func TestRerank_DefaultPreservesOrder(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/v1/rerank?feature=cart_recs&userId=u1&itemIds=i3,i1,i2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var items []resolver.Item
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"i3", "i1", "i2"}
	if len(items) != len(want) {
		t.Fatalf("expected %d items, got %d", len(want), len(items))
	}
	for i, item := range items {
		if item.ItemID != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], item.ItemID)
		}
		if item.Experiment != nil {
			t.Error("default rerank must not carry experiment metadata")
		}
	}
}

func TestServer_ExperimentationNotConfigured(t *testing.T) {
	factory := resolver.NewFactory(resolver.Endpoints{})
	m := experiment.NewManager(experiment.ManagerOptions{Factory: factory, Logger: zerolog.Nop()})
	srv := httptest.NewServer(NewServer(m, nil, factory, testAdminKey, zerolog.Nop()).Router())
	defer srv.Close()

	// Admin surface is unavailable, even with a valid token.
	resp, err := http.DefaultClient.Do(adminReq(t, http.MethodGet, srv.URL+"/v1/experiments", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503 without an experiment store, got %d", resp.StatusCode)
	}

	// Public resolution still serves the default path.
	resp2, err := http.Get(srv.URL + "/v1/rerank?feature=cart_recs&userId=u1&itemIds=i1,i2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from default rerank, got %d", resp2.StatusCode)
	}
	var items []resolver.Item
	if err := json.NewDecoder(resp2.Body).Decode(&items); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 2 || items[0].Experiment != nil {
		t.Errorf("expected 2 plain default items, got %+v", items)
	}

	// A well-formed token cannot match any experiment.
	token := experiment.Correlation{ExperimentID: "e1", UserID: "u1", VariationKey: "0", ResultRank: 1}.Encode()
	payload, _ := json.Marshal(map[string]string{"correlationId": token})
	resp3, err := http.Post(srv.URL+"/v1/outcome", "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp3.Body.Close()
	if resp3.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 for outcome without a store, got %d", resp3.StatusCode)
	}
}

func TestOutcome_InvalidToken(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/v1/outcome", "application/json",
		strings.NewReader(`{"correlationId": "garbage!!"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}

	var body map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&body)
	if body["message"] != "correlationId is invalid" {
		t.Errorf("expected invalid-correlation message, got %v", body["message"])
	}
}

func TestOutcome_RoundTrip(t *testing.T) {
	srv, st := newTestServer(t)
	_ = st.Create(context.Background(), activeExperiment("e1"))

	resp, err := http.Get(srv.URL + "/v1/recommendations?feature=home_recs&userId=u1&numResults=1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var items []resolver.Item
	_ = json.NewDecoder(resp.Body).Decode(&items)
	resp.Body.Close()
	if len(items) == 0 || items[0].Experiment == nil {
		t.Fatal("expected annotated recommendation")
	}

	payload, _ := json.Marshal(map[string]any{
		"correlationId": items[0].Experiment.CorrelationID,
		"timestamp":     "2026-08-28T10:15:00Z",
	})
	resp2, err := http.Post(srv.URL+"/v1/outcome", "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp2.StatusCode)
	}

	var out outcomeResponse
	if err := json.NewDecoder(resp2.Body).Decode(&out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Conversions != 1 {
		t.Errorf("expected 1 conversion, got %d", out.Conversions)
	}

	// Exactly one variation moved.
	stored, _ := st.GetByID(context.Background(), "e1")
	var total int64
	for _, v := range stored.Variations {
		total += v.Conversions
	}
	if total != 1 {
		t.Errorf("expected exactly 1 conversion recorded, got %d", total)
	}
}
