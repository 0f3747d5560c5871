package vitecsync

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/proaktivadmin/dokumenthub_backend/utils"
)

func TestRespondError_StatusMapping(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		err    error
		status int
	}{
		{&utils.NotFoundError{Resource: "sync session", ID: "abc"}, http.StatusNotFound},
		// Expired sessions surface through this path only on decision and
		// commit requests, where they are a state conflict; reads report 410
		// from the status check in GetSessionHandler instead.
		{&utils.ExpiredSessionError{SessionId: "abc", ExpiredAt: time.Now()}, http.StatusConflict},
		{&utils.InvalidTransitionError{SessionId: "abc", Status: "committed", Attempted: "commit"}, http.StatusConflict},
		{&utils.ValidationError{Field: "field_name", Message: "unknown field"}, http.StatusUnprocessableEntity},
		{&utils.UpstreamFetchError{Collection: "offices", Err: errors.New("boom")}, http.StatusBadGateway},
		{errors.New("plain failure"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		recorder := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(recorder)
		c.Request = httptest.NewRequest(http.MethodPost, "/sync/sessions/abc/commit", nil)
		respondError(c, tc.err)
		if recorder.Code != tc.status {
			t.Fatalf("respondError(%T) expected %d, got %d", tc.err, tc.status, recorder.Code)
		}
	}
}

func TestDecisionKey(t *testing.T) {
	if got := decisionKey(RecordTypeOffice, "dep-1", "name"); got != "office|dep-1|name" {
		t.Fatalf("unexpected decision key %q", got)
	}
}

func TestUpdateDecisionHandler_RejectsIncompleteBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(recorder)
	c.Request = httptest.NewRequest(http.MethodPatch, "/sync/sessions/abc/decisions",
		strings.NewReader(`{"record_type":"office"}`))
	c.Request.Header.Set("Content-Type", "application/json")

	// Binding fails before the service is touched, so no database is needed.
	UpdateDecisionHandler(testService())(c)
	if recorder.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for incomplete body, got %d", recorder.Code)
	}
}

func TestUpdateDecisionHandler_RejectsUnknownDecisionValue(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(recorder)
	c.Request = httptest.NewRequest(http.MethodPatch, "/sync/sessions/abc/decisions",
		strings.NewReader(`{"record_type":"office","record_id":"dep-1","field_name":"name","decision":"maybe"}`))
	c.Request.Header.Set("Content-Type", "application/json")

	UpdateDecisionHandler(testService())(c)
	if recorder.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for unknown decision value, got %d", recorder.Code)
	}
}
