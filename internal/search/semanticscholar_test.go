package search

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dohr-michael/quill/internal/config"
)

func TestSemanticScholar_Search(t *testing.T) {
	var gotQuery, gotKey, gotLimit string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/paper/search" {
			t.Errorf("path = %s", r.URL.Path)
		}
		gotQuery = r.URL.Query().Get("query")
		gotLimit = r.URL.Query().Get("limit")
		gotKey = r.Header.Get("x-api-key")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"total":1,"data":[{"title":"Surface Codes","abstract":"We study codes.","year":2012,"url":"https://s2/1","authors":[{"name":"A. Fowler"},{"name":"J. Martinis"}]}]}`))
	}))
	defer srv.Close()

	st := NewSemanticScholarTool(config.AcademicSearchConfig{BaseURL: srv.URL + "/", APIKey: "k1", MaxResults: 2})
	s := NewToolSearcher("semanticscholar", st)

	out, err := s.Search(context.Background(), "surface codes")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if gotQuery != "surface codes" || gotKey != "k1" || gotLimit != "2" {
		t.Fatalf("request: query=%q key=%q limit=%q", gotQuery, gotKey, gotLimit)
	}
	for _, want := range []string{"Published year: 2012", "Title: Surface Codes", "Authors: A. Fowler, J. Martinis", "Abstract: We study codes."} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestSemanticScholar_NoResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "" {
			t.Error("api key header should be omitted when unset")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"total":0,"data":[]}`))
	}))
	defer srv.Close()

	st := NewSemanticScholarTool(config.AcademicSearchConfig{BaseURL: srv.URL})
	out, err := st.InvokableRun(context.Background(), `{"query":"nothing"}`)
	if err != nil {
		t.Fatalf("InvokableRun: %v", err)
	}
	if out != NoResults {
		t.Fatalf("out = %q, want %q", out, NoResults)
	}
}

func TestSemanticScholar_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte("Too Many Requests"))
	}))
	defer srv.Close()

	st := NewSemanticScholarTool(config.AcademicSearchConfig{BaseURL: srv.URL})
	_, err := st.InvokableRun(context.Background(), `{"query":"q"}`)
	if err == nil || !strings.Contains(err.Error(), "status 429") {
		t.Fatalf("expected status 429 error, got %v", err)
	}
}

func TestSemanticScholar_BadInput(t *testing.T) {
	st := NewSemanticScholarTool(config.AcademicSearchConfig{})
	if _, err := st.InvokableRun(context.Background(), `{"query":"  "}`); err == nil {
		t.Fatal("expected error for empty query")
	}
	if _, err := st.InvokableRun(context.Background(), `nope`); err == nil {
		t.Fatal("expected error for invalid json")
	}
	info, err := st.Info(context.Background())
	if err != nil || info.Name != "academic_search" {
		t.Fatalf("Info = %+v, %v", info, err)
	}
}

func TestRenderPapers_TruncatesAbstract(t *testing.T) {
	long := strings.Repeat("é", abstractLimit+10)
	out := renderPapers([]paper{{Title: "T", Abstract: long}})
	if !strings.HasSuffix(out, "...") {
		t.Fatalf("expected truncated abstract, got suffix %q", out[len(out)-5:])
	}
	if strings.Contains(out, "Published year") {
		t.Fatal("zero year should be omitted")
	}
}
