package vitecsync

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/proaktivadmin/dokumenthub_backend/models"
	"github.com/proaktivadmin/dokumenthub_backend/utils"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

type fakeDirectoryClient struct {
	offices      []VitecOffice
	employees    []VitecEmployee
	officesErr   error
	employeesErr error
}

func (f *fakeDirectoryClient) ListOffices(ctx context.Context) ([]VitecOffice, error) {
	return f.offices, f.officesErr
}

func (f *fakeDirectoryClient) ListEmployees(ctx context.Context) ([]VitecEmployee, error) {
	return f.employees, f.employeesErr
}

func testService() *Service {
	return NewService(nil, &fakeDirectoryClient{}, DefaultConfig(), nil)
}

func TestGeneratePreview_UpstreamFailureAbortsWithoutSession(t *testing.T) {
	svc := NewService(nil, &fakeDirectoryClient{
		officesErr: errors.New("upstream 500"),
	}, DefaultConfig(), nil)

	_, _, err := svc.GeneratePreview(context.Background())
	if err == nil {
		t.Fatal("expected an error")
	}
	if !utils.IsUpstreamFetch(err) {
		t.Fatalf("expected UpstreamFetchError, got %T: %v", err, err)
	}
}

func TestBuildPreview_ClassifiesAllThreeKinds(t *testing.T) {
	snap := newLocalSnapshot([]models.Office{
		{ID: 1, Name: "Proaktiv Trondheim", VitecOfficeId: "dep-1"},
		{ID: 2, Name: "Nedlagt Kontor"},
	}, []models.Employee{
		{ID: 10, FirstName: "Kari", LastName: "Nordmann", VitecEmployeeId: "emp-1"},
		{ID: 11, FirstName: "Ola", LastName: "Hansen"},
	})

	preview := testService().buildPreview(
		[]VitecOffice{
			{ID: "dep-1", Name: "Proaktiv Trondheim", City: "Trondheim"},
			{ID: "dep-2", Name: "Proaktiv Oslo"},
		},
		[]VitecEmployee{
			{ID: "emp-1", FirstName: "Kari", LastName: "Nordmann"},
			{ID: "emp-2", FirstName: "Per", LastName: "Olsen"},
		},
		snap,
	)

	if got := preview.Summary.Offices; got.Matched != 1 || got.New != 1 || got.NotInExternal != 1 {
		t.Fatalf("unexpected office counts: %+v", got)
	}
	if got := preview.Summary.Employees; got.Matched != 1 || got.New != 1 || got.NotInExternal != 1 {
		t.Fatalf("unexpected employee counts: %+v", got)
	}

	// External records keep their external id as the stable record key.
	if preview.Offices[0].RecordId != "dep-1" || preview.Offices[0].MatchType != MatchTypeMatched {
		t.Fatalf("unexpected first office diff: %+v", preview.Offices[0])
	}
	if preview.Offices[1].MatchType != MatchTypeNew || preview.Offices[1].LocalId != nil {
		t.Fatalf("unexpected second office diff: %+v", preview.Offices[1])
	}

	// The orphaned local office trails the external records.
	orphan := preview.Offices[2]
	if orphan.MatchType != MatchTypeNotInExternal || orphan.LocalId == nil || *orphan.LocalId != 2 {
		t.Fatalf("unexpected orphan office diff: %+v", orphan)
	}
	if len(orphan.Fields) != 0 {
		t.Fatalf("orphaned records carry no field diffs, got %+v", orphan.Fields)
	}
}

func TestBuildPreview_DeterministicAcrossWorkers(t *testing.T) {
	snap := newLocalSnapshot([]models.Office{
		{ID: 1, Name: "Proaktiv Trondheim", VitecOfficeId: "dep-1"},
	}, nil)

	offices := make([]VitecOffice, 40)
	for i := range offices {
		offices[i] = VitecOffice{ID: "dep-" + string(rune('a'+i%26)) + string(rune('a'+i/26)), Name: "Kontor"}
	}

	svc := testService()
	first, err := json.Marshal(svc.buildPreview(offices, nil, snap))
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		next, err := json.Marshal(svc.buildPreview(offices, nil, snap))
		if err != nil {
			t.Fatal(err)
		}
		if string(first) != string(next) {
			t.Fatal("preview must be deterministic for identical inputs")
		}
	}
}

func TestBuildPreview_EmployeeDepartmentScopedToMatchedOffice(t *testing.T) {
	office := models.Office{ID: 7, Name: "Proaktiv Trondheim", VitecOfficeId: "dep-1"}
	snap := newLocalSnapshot([]models.Office{office}, []models.Employee{
		{ID: 20, FirstName: "Kari", LastName: "Nordmann", OfficeId: uintPtr(7)},
	})

	preview := testService().buildPreview(
		[]VitecOffice{{ID: "dep-1", Name: "Proaktiv Trondheim"}},
		[]VitecEmployee{{ID: "emp-9", FirstName: "Kari", LastName: "Nordmann", DepartmentId: "dep-1"}},
		snap,
	)

	employee := preview.Employees[0]
	if employee.MatchType != MatchTypeMatched || employee.LocalId == nil || *employee.LocalId != 20 {
		t.Fatalf("expected name_in_department match via office chain, got %+v", employee)
	}
	if employee.MatchMethod != MatchMethodNameInDepartment {
		t.Fatalf("unexpected match method %s", employee.MatchMethod)
	}
}

func TestValidateDecisionTarget(t *testing.T) {
	preview := &SyncPreview{
		Offices: []RecordDiff{
			{RecordId: "dep-1", MatchType: MatchTypeMatched, Fields: []FieldDiff{{FieldName: "name"}}},
		},
	}

	ok := DecisionRequest{RecordType: RecordTypeOffice, RecordId: "dep-1", FieldName: "name", Decision: DecisionAccept}
	if err := validateDecisionTarget(preview, ok); err != nil {
		t.Fatalf("expected valid decision, got %v", err)
	}

	badField := ok
	badField.FieldName = "city"
	if err := validateDecisionTarget(preview, badField); !utils.IsValidation(err) {
		t.Fatalf("expected ValidationError for unknown field, got %v", err)
	}

	badRecord := ok
	badRecord.RecordId = "dep-404"
	if err := validateDecisionTarget(preview, badRecord); !utils.IsValidation(err) {
		t.Fatalf("expected ValidationError for unknown record, got %v", err)
	}
}

func TestSessionToResponse_FoldsDecisionsOntoPreview(t *testing.T) {
	preview := SyncPreview{
		SchemaVersion: models.SyncSessionSchemaVersion,
		Offices: []RecordDiff{
			{RecordId: "dep-1", MatchType: MatchTypeMatched, Fields: []FieldDiff{
				{FieldName: "name"},
				{FieldName: "city"},
			}},
		},
	}
	previewJSON, err := json.Marshal(preview)
	if err != nil {
		t.Fatal(err)
	}

	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	session := &models.SyncSession{
		ID:          "abc",
		Status:      models.SyncSessionStatusPending,
		PreviewJSON: previewJSON,
		DecisionsJSON: models.EncodeDecisions(map[string]string{
			decisionKey(RecordTypeOffice, "dep-1", "name"): DecisionAccept,
		}),
		CreatedAt: now,
		ExpiresAt: now.Add(24 * time.Hour),
	}

	resp, err := SessionToResponse(session)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Offices[0].Fields[0].Decision != DecisionAccept {
		t.Fatalf("expected accept folded onto name field, got %+v", resp.Offices[0].Fields[0])
	}
	if resp.Offices[0].Fields[1].Decision != "" {
		t.Fatalf("undecided field must stay blank, got %+v", resp.Offices[0].Fields[1])
	}
	if resp.ExpiresAt != "2026-08-02T12:00:00Z" {
		t.Fatalf("unexpected expires_at %s", resp.ExpiresAt)
	}
}

func TestSyncSessionTerminalStates(t *testing.T) {
	cases := []struct {
		status   string
		terminal bool
	}{
		{models.SyncSessionStatusPending, false},
		{models.SyncSessionStatusCommitted, true},
		{models.SyncSessionStatusCancelled, true},
		{models.SyncSessionStatusExpired, true},
	}
	for _, tc := range cases {
		s := models.SyncSession{Status: tc.status}
		if s.IsTerminal() != tc.terminal {
			t.Fatalf("IsTerminal(%s) expected %v", tc.status, tc.terminal)
		}
	}
}

func TestIsOverdue_OnlyPendingPastDeadline(t *testing.T) {
	deadline := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		status  string
		now     time.Time
		overdue bool
	}{
		{models.SyncSessionStatusPending, deadline.Add(-time.Minute), false},
		{models.SyncSessionStatusPending, deadline.Add(time.Minute), true},
		{models.SyncSessionStatusCommitted, deadline.Add(time.Minute), false},
		{models.SyncSessionStatusCancelled, deadline.Add(time.Minute), false},
		{models.SyncSessionStatusExpired, deadline.Add(time.Minute), false},
	}
	for _, tc := range cases {
		session := models.SyncSession{Status: tc.status, ExpiresAt: deadline}
		if got := isOverdue(&session, tc.now); got != tc.overdue {
			t.Fatalf("isOverdue(%s at %s) expected %v, got %v", tc.status, tc.now, tc.overdue, got)
		}
	}
}

func TestMutationGate_OverduePendingExpires(t *testing.T) {
	deadline := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	session := models.SyncSession{
		ID:        "sess-1",
		Status:    models.SyncSessionStatusPending,
		ExpiresAt: deadline,
	}

	expired, err := mutationGate(&session, deadline.Add(time.Second), "commit")
	if !expired {
		t.Fatal("expected the gate to demand an expiry flip")
	}
	if !utils.IsExpired(err) {
		t.Fatalf("expected expired session error, got %v", err)
	}
	var expiredErr *utils.ExpiredSessionError
	if !errors.As(err, &expiredErr) || !expiredErr.ExpiredAt.Equal(deadline) {
		t.Fatalf("expected deadline %s carried on the error, got %+v", deadline, err)
	}
}

func TestMutationGate_PendingBeforeDeadlinePasses(t *testing.T) {
	deadline := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	session := models.SyncSession{
		ID:        "sess-1",
		Status:    models.SyncSessionStatusPending,
		ExpiresAt: deadline,
	}

	expired, err := mutationGate(&session, deadline.Add(-time.Second), "update decision")
	if expired || err != nil {
		t.Fatalf("expected the gate to pass, got expired=%v err=%v", expired, err)
	}
}

func TestMutationGate_TerminalStatesConflict(t *testing.T) {
	deadline := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for _, status := range []string{
		models.SyncSessionStatusCommitted,
		models.SyncSessionStatusCancelled,
		models.SyncSessionStatusExpired,
	} {
		session := models.SyncSession{ID: "sess-1", Status: status, ExpiresAt: deadline}
		// Past the deadline too: a terminal status must win over expiry, so
		// an already-expired row reports a transition conflict, not a fresh
		// expiry, and is never flipped twice.
		expired, err := mutationGate(&session, deadline.Add(time.Hour), "commit")
		if expired {
			t.Fatalf("gate demanded an expiry flip on %s", status)
		}
		if !utils.IsInvalidTransition(err) {
			t.Fatalf("expected invalid transition on %s, got %v", status, err)
		}
	}
}
