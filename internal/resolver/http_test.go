package resolver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPResolver_DefaultParams(t *testing.T) {
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = map[string]string{
			"userId":     r.URL.Query().Get("userId"),
			"itemId":     r.URL.Query().Get("itemId"),
			"numResults": r.URL.Query().Get("numResults"),
		}
		_ = json.NewEncoder(w).Encode([]map[string]string{
			{"id": "p1"}, {"id": "p2"},
		})
	}))
	defer srv.Close()

	r, err := NewHTTPResolver(Config{Type: TypeHTTP, BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	items, err := r.GetItems(context.Background(), Params{UserID: "u1", CurrentItemID: "p9", NumResults: 5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].ItemID != "p1" || items[1].ItemID != "p2" {
		t.Errorf("unexpected items: %+v", items)
	}
	if gotQuery["userId"] != "u1" || gotQuery["itemId"] != "p9" || gotQuery["numResults"] != "5" {
		t.Errorf("unexpected query params: %v", gotQuery)
	}
}

func TestHTTPResolver_CustomParamsAndTruncation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("uid") != "u1" {
			t.Errorf("expected uid=u1, got %q", r.URL.Query().Get("uid"))
		}
		_ = json.NewEncoder(w).Encode([]map[string]string{
			{"id": "a"}, {"id": "b"}, {"id": "c"}, {"id": "d"},
		})
	}))
	defer srv.Close()

	r, err := NewHTTPResolver(Config{Type: TypeHTTP, BaseURL: srv.URL, UserParam: "uid"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	items, err := r.GetItems(context.Background(), Params{UserID: "u1", NumResults: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 2 {
		t.Errorf("expected truncation to 2 items, got %d", len(items))
	}
}

func TestHTTPResolver_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	r, err := NewHTTPResolver(Config{Type: TypeHTTP, BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := r.GetItems(context.Background(), Params{UserID: "u1"}); err == nil {
		t.Error("expected error for upstream 500")
	}
}

func TestProductResolver_CategoryListing(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/products/id/p1", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(catalogProduct{ID: "p1", Category: "shoes"})
	})
	mux.HandleFunc("/products/category/shoes", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]catalogProduct{
			{ID: "p1", Category: "shoes"},
			{ID: "p2", Category: "shoes"},
			{ID: "p3", Category: "shoes"},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	r := NewProductResolver(srv.URL)
	items, err := r.GetItems(context.Background(), Params{UserID: "u1", CurrentItemID: "p1", NumResults: 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The current item must be excluded from its own category listing.
	for _, item := range items {
		if item.ItemID == "p1" {
			t.Error("current item should be excluded from results")
		}
	}
	if len(items) != 2 {
		t.Errorf("expected 2 items, got %d", len(items))
	}
}

func TestProductResolver_FeaturedWithoutCurrentItem(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/products/featured", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]catalogProduct{{ID: "f1"}, {ID: "f2"}})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	r := NewProductResolver(srv.URL)
	items, err := r.GetItems(context.Background(), Params{UserID: "u1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 2 {
		t.Errorf("expected 2 featured items, got %d", len(items))
	}
}
