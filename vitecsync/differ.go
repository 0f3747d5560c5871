package vitecsync

import (
	"strings"

	"github.com/proaktivadmin/dokumenthub_backend/models"
	"github.com/proaktivadmin/dokumenthub_backend/utils"
)

// Fixed field sets per entity kind. The differencer and the committer both
// iterate these names; anything outside them never reaches a session.
var (
	OfficeFieldSet = []string{
		"name", "legal_name", "organization_number", "email", "phone",
		"street_address", "postal_code", "city",
	}
	EmployeeFieldSet = []string{
		"first_name", "last_name", "title", "email", "phone",
		"system_roles", "vitec_employee_id", "department_id",
	}
)

func identityNorm(v string) string { return strings.TrimSpace(v) }

func emailNorm(v string) string { return strings.ToLower(strings.TrimSpace(v)) }

// DiffOffice emits one FieldDiff per field where the external side holds a
// present, differing value. An absent external value is no opinion and never
// clears a local field.
func DiffOffice(local *models.Office, rec NormalizedOffice) []FieldDiff {
	var localOffice models.Office
	if local != nil {
		localOffice = *local
	}

	var diffs []FieldDiff
	appendScalar(&diffs, "name", localOffice.Name, rec.Name, identityNorm)
	appendScalar(&diffs, "legal_name", localOffice.LegalName, rec.LegalName, identityNorm)
	appendScalar(&diffs, "organization_number", localOffice.OrganizationNumber, rec.OrganizationNumber, utils.NormalizeOrgNumber)
	appendScalar(&diffs, "email", localOffice.Email, rec.Email, emailNorm)
	appendScalar(&diffs, "phone", localOffice.Phone, rec.Phone, utils.NormalizePhone)
	appendScalar(&diffs, "street_address", localOffice.StreetAddress, rec.StreetAddress, identityNorm)
	appendScalar(&diffs, "postal_code", localOffice.PostalCode, rec.PostalCode, identityNorm)
	appendScalar(&diffs, "city", localOffice.City, rec.City, identityNorm)
	return diffs
}

// DiffEmployee is DiffOffice for the employee field set. system_roles is
// list-valued and compares order-insensitively.
func DiffEmployee(local *models.Employee, rec NormalizedEmployee) []FieldDiff {
	var localEmployee models.Employee
	if local != nil {
		localEmployee = *local
	}

	var diffs []FieldDiff
	appendScalar(&diffs, "first_name", localEmployee.FirstName, rec.FirstName, identityNorm)
	appendScalar(&diffs, "last_name", localEmployee.LastName, rec.LastName, identityNorm)
	appendScalar(&diffs, "title", localEmployee.Title, rec.Title, identityNorm)
	appendScalar(&diffs, "email", localEmployee.Email, rec.Email, emailNorm)
	appendScalar(&diffs, "phone", localEmployee.Phone, rec.Phone, utils.NormalizePhone)
	appendList(&diffs, "system_roles", localEmployee.SystemRoles(), rec.SystemRoles)
	appendScalar(&diffs, "vitec_employee_id", localEmployee.VitecEmployeeId, rec.VitecEmployeeId, identityNorm)
	appendScalar(&diffs, "department_id", localEmployee.DepartmentId, rec.DepartmentId, identityNorm)
	return diffs
}

func appendScalar(diffs *[]FieldDiff, fieldName string, localRaw string, external *string, norm func(string) string) {
	if external == nil {
		return
	}
	localPresent := strings.TrimSpace(localRaw) != ""
	if localPresent && norm(localRaw) == norm(*external) {
		return
	}

	diff := FieldDiff{
		FieldName:     fieldName,
		ExternalValue: external,
		HasConflict:   localPresent,
	}
	if localPresent {
		localCopy := localRaw
		diff.LocalValue = &localCopy
	}
	*diffs = append(*diffs, diff)
}

func appendList(diffs *[]FieldDiff, fieldName string, localValues, externalValues []string) {
	if len(externalValues) == 0 {
		return
	}
	localPresent := len(localValues) > 0
	if localPresent && utils.EqualUnordered(localValues, externalValues) {
		return
	}

	*diffs = append(*diffs, FieldDiff{
		FieldName:      fieldName,
		LocalValues:    localValues,
		ExternalValues: externalValues,
		HasConflict:    localPresent,
	})
}
