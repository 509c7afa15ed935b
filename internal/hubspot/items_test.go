package hubspot

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/router-for-me/HubConnect/internal/config"
	"github.com/tidwall/gjson"
)

func TestItemFromRecordNames(t *testing.T) {
	tests := []struct {
		name     string
		record   string
		itemType string
		wantName string
		wantID   string
	}{
		{"contact full name", `{"id":"1","properties":{"firstname":"Ada","lastname":"Lovelace","email":"ada@example.com"}}`, "Contact", "Ada Lovelace", "1_Contact"},
		{"contact falls back to email", `{"id":"2","properties":{"firstname":"","email":"x@example.com"}}`, "Contact", "x@example.com", "2_Contact"},
		{"company name", `{"id":"3","properties":{"name":"Acme","domain":"acme.test"}}`, "Company", "Acme", "3_Company"},
		{"company domain", `{"id":"4","properties":{"domain":"acme.test"}}`, "Company", "acme.test", "4_Company"},
		{"deal", `{"id":"5","properties":{"dealname":"Renewal"}}`, "Deal", "Renewal", "5_Deal"},
		{"other falls back to id", `{"id":"6","properties":"broken"}`, "Ticket", "6", "6_Ticket"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := ItemFromRecord(gjson.Parse(tt.record), tt.itemType)
			if item.ID != tt.wantID {
				t.Fatalf("ID = %q, want %q", item.ID, tt.wantID)
			}
			if item.Name == nil || *item.Name != tt.wantName {
				t.Fatalf("Name = %v, want %q", item.Name, tt.wantName)
			}
			if item.Type != tt.itemType || item.Directory {
				t.Fatalf("unexpected item: %+v", item)
			}
		})
	}
}

func TestItemFromRecordKeepsTimestamps(t *testing.T) {
	item := ItemFromRecord(gjson.Parse(`{"id":"9","createdAt":"2024-01-01T00:00:00Z","updatedAt":"2024-02-01T00:00:00Z","properties":{"dealname":""}}`), "Deal")
	if item.Name != nil {
		t.Fatalf("expected nil name, got %q", *item.Name)
	}
	if item.CreationTime == nil || *item.CreationTime != "2024-01-01T00:00:00Z" {
		t.Fatalf("CreationTime = %v", item.CreationTime)
	}
	if item.LastModifiedTime == nil || *item.LastModifiedTime != "2024-02-01T00:00:00Z" {
		t.Fatalf("LastModifiedTime = %v", item.LastModifiedTime)
	}
}

func TestLoaderItemsPaginatesAndOrders(t *testing.T) {
	var mu sync.Mutex
	afters := map[string][]string{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer at" {
			t.Errorf("Authorization = %q", got)
		}
		if got := r.URL.Query().Get("limit"); got != "100" {
			t.Errorf("limit = %q", got)
		}
		after := r.URL.Query().Get("after")
		mu.Lock()
		afters[r.URL.Path] = append(afters[r.URL.Path], after)
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/crm/v3/objects/contacts":
			if after == "" {
				fmt.Fprint(w, `{"results":[{"id":"c1","properties":{"firstname":"A","lastname":"B"}}],"paging":{"next":{"after":"cur1"}}}`)
				return
			}
			fmt.Fprint(w, `{"results":[{"id":"c2","properties":{"email":"c2@example.com"}}]}`)
		case "/crm/v3/objects/companies":
			fmt.Fprint(w, `{"results":[{"id":"co1","properties":{"name":"Acme"}}]}`)
		case "/crm/v3/objects/deals":
			w.WriteHeader(http.StatusForbidden)
			fmt.Fprint(w, `{"status":"error"}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	cfg := &config.Config{HubSpot: config.HubSpotConfig{APIBaseURL: srv.URL}}
	cfg.SanitizeDefaults()
	items, err := NewLoader(cfg).Items(context.Background(), "at")
	if err != nil {
		t.Fatalf("Items() error = %v", err)
	}

	var ids []string
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	want := []string{"c1_Contact", "c2_Contact", "co1_Company"}
	if fmt.Sprint(ids) != fmt.Sprint(want) {
		t.Fatalf("item ids = %v, want %v", ids, want)
	}
	if got := afters["/crm/v3/objects/contacts"]; fmt.Sprint(got) != fmt.Sprint([]string{"", "cur1"}) {
		t.Fatalf("contacts cursors = %v", got)
	}
}

func TestLoaderItemsRequiresToken(t *testing.T) {
	cfg := &config.Config{}
	cfg.SanitizeDefaults()
	if _, err := NewLoader(cfg).Items(context.Background(), " "); err == nil {
		t.Fatalf("expected error for empty token")
	}
}

func TestAccessToken(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`{"access_token":"at"}`, "at"},
		{`"{\"access_token\":\"nested\"}"`, "nested"},
		{`{"token":"abc"}`, ""},
		{`garbage`, ""},
	}
	for _, tt := range tests {
		if got := AccessToken(tt.in); got != tt.want {
			t.Errorf("AccessToken(%s) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
