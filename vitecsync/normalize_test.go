package vitecsync

import "testing"

func TestNormalizeOffice_BlankFieldsStayNil(t *testing.T) {
	rec := NormalizeOffice(VitecOffice{
		ID:    " dep-1 ",
		Name:  "Proaktiv Trondheim",
		Email: "   ",
	})
	if rec.ExternalId != "dep-1" {
		t.Fatalf("expected trimmed external id, got %q", rec.ExternalId)
	}
	if rec.Email != nil {
		t.Fatalf("blank email must normalize to nil, got %q", *rec.Email)
	}
	if rec.LegalName != nil || rec.City != nil {
		t.Fatal("missing fields must stay nil")
	}
	if rec.Name == nil || *rec.Name != "Proaktiv Trondheim" {
		t.Fatalf("unexpected name %+v", rec.Name)
	}
}

func TestNormalizeOffice_OrgnrCanonicalized(t *testing.T) {
	rec := NormalizeOffice(VitecOffice{ID: "dep-1", OrganizationNumber: "NO 987 654 321 MVA"})
	if rec.OrganizationNumber == nil || *rec.OrganizationNumber != "987654321" {
		t.Fatalf("expected canonical orgnr, got %+v", rec.OrganizationNumber)
	}
}

func TestNormalizeEmployee_RolesDedupedAndTrimmed(t *testing.T) {
	rec := NormalizeEmployee(VitecEmployee{
		ID:    "emp-1",
		Roles: []string{" megler ", "megler", "", "fagansvarlig"},
	})
	if len(rec.SystemRoles) != 2 {
		t.Fatalf("expected 2 roles, got %+v", rec.SystemRoles)
	}
	if rec.SystemRoles[0] != "megler" || rec.SystemRoles[1] != "fagansvarlig" {
		t.Fatalf("unexpected roles %+v", rec.SystemRoles)
	}
}

func TestNormalizeEmployee_IdDoublesAsVitecEmployeeId(t *testing.T) {
	rec := NormalizeEmployee(VitecEmployee{ID: "emp-1"})
	if rec.VitecEmployeeId == nil || *rec.VitecEmployeeId != "emp-1" {
		t.Fatalf("expected record id carried as vitec_employee_id, got %+v", rec.VitecEmployeeId)
	}
	if rec.SystemRoles != nil {
		t.Fatalf("expected nil roles for empty list, got %+v", rec.SystemRoles)
	}
}

func TestNormalizeEmployee_InvalidEmailTreatedAsAbsent(t *testing.T) {
	rec := NormalizeEmployee(VitecEmployee{ID: "emp-1", Email: "ikke en adresse"})
	if rec.Email != nil {
		t.Fatalf("invalid email must normalize to nil, got %q", *rec.Email)
	}

	rec = NormalizeEmployee(VitecEmployee{ID: "emp-1", Email: " Kari.Nordmann@proaktiv.no "})
	if rec.Email == nil || *rec.Email != "Kari.Nordmann@proaktiv.no" {
		t.Fatalf("expected trimmed valid email, got %+v", rec.Email)
	}
}
