package httpapi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSwagger_DisabledByDefault(t *testing.T) {
	w := httptest.NewRecorder()
	NewMux(&mockService{}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/swagger/doc.json", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestSwagger_ServesDocument(t *testing.T) {
	SetSwaggerEnabled(true)
	defer SetSwaggerEnabled(false)

	w := httptest.NewRecorder()
	NewMux(&mockService{}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/swagger/doc.json", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{`"title": "llmgate API"`, `"/chat/{id}/abort"`} {
		if !strings.Contains(body, want) {
			t.Fatalf("doc missing %s", want)
		}
	}
}
