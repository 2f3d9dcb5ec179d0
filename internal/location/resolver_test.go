package location

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testResolver(srv *httptest.Server) *Resolver {
	return &Resolver{client: srv.Client(), base: srv.URL}
}

func TestReverseResolvesArea(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("format") != "json" {
			t.Errorf("missing format=json query param")
		}
		if r.Header.Get("User-Agent") == "" {
			t.Errorf("request must carry a user agent")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"address":{"suburb":"Navrangpura","city":"Ahmedabad","state":"Gujarat"}}`))
	}))
	defer srv.Close()

	area, err := testResolver(srv).Reverse(context.Background(), 23.03, 72.58)
	if err != nil {
		t.Fatalf("Reverse: %v", err)
	}
	if area.AreaName != "Navrangpura" || area.City != "Ahmedabad" || area.State != "Gujarat" {
		t.Fatalf("area = %+v", area)
	}
}

func TestReverseFallsBackThroughAddressFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"address":{"village":"Dholka","town":"Dholka Town","state":"Gujarat"}}`))
	}))
	defer srv.Close()

	area, err := testResolver(srv).Reverse(context.Background(), 22.72, 72.44)
	if err != nil {
		t.Fatalf("Reverse: %v", err)
	}
	if area.AreaName != "Dholka" {
		t.Fatalf("AreaName = %q, want village fallback", area.AreaName)
	}
	if area.City != "Dholka Town" {
		t.Fatalf("City = %q, want town fallback", area.City)
	}
}

func TestReverseErrorsOnBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	if _, err := testResolver(srv).Reverse(context.Background(), 1, 1); err == nil {
		t.Fatalf("non-200 response must error")
	}
}

func TestReverseHonorsTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	if _, err := testResolver(srv).Reverse(ctx, 1, 1); err == nil {
		t.Fatalf("a hanging geocoder must error")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("resolver blocked for %s; must respect the context deadline", elapsed)
	}
}
