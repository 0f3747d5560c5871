package vitecsync

import (
	"testing"

	"github.com/proaktivadmin/dokumenthub_backend/models"
)

func TestBuildCommitPlan_MatchedOnlyAppliesAcceptedFields(t *testing.T) {
	preview := &SyncPreview{
		Offices: []RecordDiff{
			{
				RecordId:  "dep-1",
				MatchType: MatchTypeMatched,
				LocalId:   uintPtr(3),
				Fields: []FieldDiff{
					{FieldName: "name", LocalValue: strPtr("Gammelt Navn"), ExternalValue: strPtr("Proaktiv Trondheim"), HasConflict: true},
					{FieldName: "city", ExternalValue: strPtr("Trondheim")},
					{FieldName: "email", LocalValue: strPtr("gammel@proaktiv.no"), ExternalValue: strPtr("post@proaktiv.no"), HasConflict: true},
				},
			},
		},
	}
	decisions := map[string]string{
		decisionKey(RecordTypeOffice, "dep-1", "name"):  DecisionAccept,
		decisionKey(RecordTypeOffice, "dep-1", "email"): DecisionReject,
		// city has no decision at all.
	}

	plan := buildCommitPlan(preview, decisions)
	if len(plan.officeUpdates) != 1 {
		t.Fatalf("expected one office update, got %d", len(plan.officeUpdates))
	}
	update := plan.officeUpdates[0]
	if update.localId != 3 {
		t.Fatalf("expected update against local id 3, got %d", update.localId)
	}
	if got, ok := update.updates["name"]; !ok || got != "Proaktiv Trondheim" {
		t.Fatalf("expected accepted name applied, got %v", update.updates)
	}
	// Rejected and undecided fields never reach the database.
	if _, ok := update.updates["email"]; ok {
		t.Fatal("rejected field must not be applied")
	}
	if _, ok := update.updates["city"]; ok {
		t.Fatal("undecided field must not be applied")
	}
	if plan.fieldsApplied != 1 || plan.fieldsSkipped != 2 {
		t.Fatalf("expected 1 applied / 2 skipped, got %d / %d", plan.fieldsApplied, plan.fieldsSkipped)
	}
}

func TestBuildCommitPlan_MatchedWithoutAcceptsProducesNoUpdate(t *testing.T) {
	preview := &SyncPreview{
		Offices: []RecordDiff{
			{
				RecordId:  "dep-1",
				MatchType: MatchTypeMatched,
				LocalId:   uintPtr(3),
				Fields: []FieldDiff{
					{FieldName: "name", LocalValue: strPtr("Gammelt Navn"), ExternalValue: strPtr("Proaktiv Trondheim"), HasConflict: true},
				},
			},
		},
	}

	plan := buildCommitPlan(preview, map[string]string{})
	if len(plan.officeUpdates) != 0 {
		t.Fatalf("a record with zero accepted fields must not be touched, got %+v", plan.officeUpdates)
	}
	if plan.fieldsSkipped != 1 {
		t.Fatalf("expected 1 skipped field, got %d", plan.fieldsSkipped)
	}
}

func TestBuildCommitPlan_NewOfficeSeededExceptRejected(t *testing.T) {
	preview := &SyncPreview{
		Offices: []RecordDiff{
			{
				RecordId:   "dep-2",
				MatchType:  MatchTypeNew,
				ExternalId: strPtr("dep-2"),
				Fields: []FieldDiff{
					{FieldName: "name", ExternalValue: strPtr("Proaktiv Oslo")},
					{FieldName: "city", ExternalValue: strPtr("Oslo")},
					{FieldName: "phone", ExternalValue: strPtr("+4722000000")},
				},
			},
		},
	}
	decisions := map[string]string{
		decisionKey(RecordTypeOffice, "dep-2", "phone"): DecisionReject,
	}

	plan := buildCommitPlan(preview, decisions)
	if len(plan.officeCreates) != 1 {
		t.Fatalf("expected one office create, got %d", len(plan.officeCreates))
	}
	office := plan.officeCreates[0].office
	if office.Name != "Proaktiv Oslo" || office.City != "Oslo" {
		t.Fatalf("expected present fields seeded, got %+v", office)
	}
	if office.Phone != "" {
		t.Fatalf("rejected field must stay empty on create, got %q", office.Phone)
	}
	if office.VitecOfficeId != "dep-2" {
		t.Fatalf("expected the external id stored for future matching, got %q", office.VitecOfficeId)
	}
	if !office.IsActive {
		t.Fatal("created offices start active")
	}
}

func TestBuildCommitPlan_NotInExternalIsInformational(t *testing.T) {
	preview := &SyncPreview{
		Offices: []RecordDiff{
			{RecordId: "local-office-9", MatchType: MatchTypeNotInExternal, LocalId: uintPtr(9)},
		},
		Employees: []RecordDiff{
			{RecordId: "local-employee-4", MatchType: MatchTypeNotInExternal, LocalId: uintPtr(4)},
		},
	}

	plan := buildCommitPlan(preview, map[string]string{})
	if len(plan.officeUpdates)+len(plan.officeCreates)+len(plan.employeeUpdates)+len(plan.employeeCreates) != 0 {
		t.Fatalf("orphaned records must produce no writes, got %+v", plan)
	}
}

func TestBuildCommitPlan_EmployeeRolesAndDepartment(t *testing.T) {
	preview := &SyncPreview{
		Employees: []RecordDiff{
			{
				RecordId:  "emp-1",
				MatchType: MatchTypeMatched,
				LocalId:   uintPtr(12),
				Fields: []FieldDiff{
					{FieldName: "system_roles", ExternalValues: []string{"megler", "fagansvarlig"}},
					{FieldName: "department_id", LocalValue: strPtr("dep-old"), ExternalValue: strPtr("dep-1"), HasConflict: true},
				},
			},
			{
				RecordId:   "emp-2",
				MatchType:  MatchTypeNew,
				ExternalId: strPtr("emp-2"),
				Fields: []FieldDiff{
					{FieldName: "first_name", ExternalValue: strPtr("Per")},
					{FieldName: "last_name", ExternalValue: strPtr("Olsen")},
					{FieldName: "department_id", ExternalValue: strPtr("dep-2")},
				},
			},
		},
	}
	decisions := map[string]string{
		decisionKey(RecordTypeEmployee, "emp-1", "system_roles"):  DecisionAccept,
		decisionKey(RecordTypeEmployee, "emp-1", "department_id"): DecisionAccept,
	}

	plan := buildCommitPlan(preview, decisions)

	update := plan.employeeUpdates[0]
	roles := models.DecodeSystemRoles(update.updates["system_roles_json"].([]byte))
	if len(roles) != 2 || roles[0] != "megler" {
		t.Fatalf("expected roles encoded to JSON column, got %+v", roles)
	}
	if update.departmentId != "dep-1" {
		t.Fatalf("expected department change carried for office resolution, got %q", update.departmentId)
	}
	if update.updates["department_id"] != "dep-1" {
		t.Fatalf("expected department_id column applied, got %v", update.updates)
	}

	create := plan.employeeCreates[0]
	if create.employee.FirstName != "Per" || create.employee.LastName != "Olsen" {
		t.Fatalf("expected new employee seeded, got %+v", create.employee)
	}
	if create.employee.VitecEmployeeId != "emp-2" {
		t.Fatalf("expected external id stored, got %q", create.employee.VitecEmployeeId)
	}
	if create.departmentId != "dep-2" {
		t.Fatalf("expected create department carried, got %q", create.departmentId)
	}
}

func TestBuildCommitPlan_CountsAreRecordIndependent(t *testing.T) {
	preview := &SyncPreview{
		Offices: []RecordDiff{
			{
				RecordId:  "dep-1",
				MatchType: MatchTypeMatched,
				LocalId:   uintPtr(1),
				Fields:    []FieldDiff{{FieldName: "name", ExternalValue: strPtr("A")}},
			},
			{
				RecordId:   "dep-2",
				MatchType:  MatchTypeNew,
				ExternalId: strPtr("dep-2"),
				Fields:     []FieldDiff{{FieldName: "name", ExternalValue: strPtr("B")}},
			},
		},
	}
	decisions := map[string]string{
		decisionKey(RecordTypeOffice, "dep-1", "name"): DecisionAccept,
	}

	plan := buildCommitPlan(preview, decisions)
	if plan.fieldsApplied != 2 {
		t.Fatalf("expected accepted update + seeded create field, got %d", plan.fieldsApplied)
	}
	if len(plan.officeUpdates) != 1 || len(plan.officeCreates) != 1 {
		t.Fatalf("expected one update and one create, got %+v", plan)
	}
}
