package sunat

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestLookupRUCValidatesFormat(t *testing.T) {
	client := New("", "")

	if _, err := client.LookupRUC(context.Background(), "12345"); err == nil {
		t.Fatalf("expected short RUC to be rejected")
	}
	if _, err := client.LookupRUC(context.Background(), "2010003814X"); err == nil {
		t.Fatalf("expected non-numeric RUC to be rejected")
	}
}

func TestLookupRUCDemoFallback(t *testing.T) {
	client := New("", "")

	info, err := client.LookupRUC(context.Background(), "20100038146")
	if err != nil {
		t.Fatalf("demo lookup failed: %v", err)
	}
	if info.RUC != "20100038146" || info.Name == "" {
		t.Fatalf("expected demo record, got %+v", info)
	}
}

func TestLookupRUCParsesProviderAliases(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("expected bearer token header, got %q", got)
		}
		if got := r.URL.Query().Get("numero"); got != "20512345678" {
			t.Errorf("unexpected numero param %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"razonSocial":"Ferretería El Tornillo S.A.C.","domicilioFiscal":"Av. Colonial 900, Lima","estado":"ACTIVO"}`))
	}))
	defer server.Close()

	client := New(server.URL, "test-token")

	info, err := client.LookupRUC(context.Background(), "20512345678")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if info.Name != "Ferretería El Tornillo S.A.C." {
		t.Fatalf("unexpected name %q", info.Name)
	}
	if info.Address != "Av. Colonial 900, Lima" {
		t.Fatalf("unexpected address %q", info.Address)
	}
	if info.Status != "ACTIVO" {
		t.Fatalf("unexpected status %q", info.Status)
	}
}

func TestLookupRUCReportsUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := New(server.URL, "test-token")

	if _, err := client.LookupRUC(context.Background(), "20512345678"); err == nil {
		t.Fatalf("expected upstream failure to surface")
	}
}
