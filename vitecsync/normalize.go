package vitecsync

import (
	"strings"

	"github.com/proaktivadmin/dokumenthub_backend/utils"
)

// NormalizeOffice maps a raw Vitec department onto the fixed office field
// set. Blank values stay nil so the differencer can tell "no data" from
// "cleared value".
func NormalizeOffice(raw VitecOffice) NormalizedOffice {
	return NormalizedOffice{
		ExternalId:         strings.TrimSpace(raw.ID),
		Name:               presentString(raw.Name),
		LegalName:          presentString(raw.LegalName),
		OrganizationNumber: presentOrgNumber(raw.OrganizationNumber),
		Email:              presentEmail(raw.Email),
		Phone:              presentPhone(raw.Phone),
		StreetAddress:      presentString(raw.StreetAddress),
		PostalCode:         presentString(raw.PostalCode),
		City:               presentString(raw.City),
	}
}

// NormalizeEmployee maps a raw Vitec employee onto the fixed employee field
// set. The external record's own id doubles as the vitec_employee_id field.
func NormalizeEmployee(raw VitecEmployee) NormalizedEmployee {
	roles := make([]string, 0, len(raw.Roles))
	for _, role := range raw.Roles {
		role = strings.TrimSpace(role)
		if role != "" {
			roles = append(roles, role)
		}
	}
	roles = utils.UniqueSlice(roles)
	if len(roles) == 0 {
		roles = nil
	}

	return NormalizedEmployee{
		ExternalId:      strings.TrimSpace(raw.ID),
		FirstName:       presentString(raw.FirstName),
		LastName:        presentString(raw.LastName),
		Title:           presentString(raw.Title),
		Email:           presentEmail(raw.Email),
		Phone:           presentPhone(raw.Phone),
		SystemRoles:     roles,
		VitecEmployeeId: presentString(raw.ID),
		DepartmentId:    presentString(raw.DepartmentId),
	}
}

func presentString(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}

// presentEmail treats a syntactically invalid external address as absent,
// so garbage upstream data never shows up as a proposed change.
func presentEmail(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" || !utils.IsValidEmail(v) {
		return nil
	}
	return &v
}

func presentPhone(v string) *string {
	normalized := utils.NormalizePhone(v)
	if normalized == "" {
		return nil
	}
	return &normalized
}

func presentOrgNumber(v string) *string {
	normalized := utils.NormalizeOrgNumber(v)
	if normalized == "" {
		return nil
	}
	return &normalized
}
