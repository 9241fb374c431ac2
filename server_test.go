package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func TestRouter_HealthzAndNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	r := newRouter(logger)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusNoContent {
		t.Fatalf("healthz: got %d", w.Code)
	}

	// no database connected yet
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/internal/ops/low-stock", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("ops before readiness: got %d", w.Code)
	}
}

func TestSplitAndTrim(t *testing.T) {
	got := splitAndTrim(" https://a.example , ,https://b.example")
	if len(got) != 2 || got[0] != "https://a.example" || got[1] != "https://b.example" {
		t.Fatalf("splitAndTrim: %v", got)
	}
	if splitAndTrim("  ") != nil {
		t.Fatalf("blank list should be nil")
	}
}
