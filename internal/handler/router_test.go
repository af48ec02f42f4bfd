package handler

import (
	"fmt"
	"net/http"
	"testing"

	"smsdispatch/internal/middleware"
)

func TestRouter_UnknownRoute(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/nowhere", nil)
	AssertStatusCode(t, rec, http.StatusNotFound)
	AssertErrorCode(t, rec, CodeNotFound)
}

func TestRouter_SetsRequestID(t *testing.T) {
	s := newTestServer(t)
	a := s.account(t, 0)

	rec := s.do(t, http.MethodGet, fmt.Sprintf("/accounts/%d/ledger", a.ID), nil)
	AssertStatusCode(t, rec, http.StatusOK)
	if rec.Header().Get(middleware.RequestIDHeader) == "" {
		t.Error("expected a request id header")
	}
}
