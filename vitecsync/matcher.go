package vitecsync

import (
	"strings"

	"github.com/proaktivadmin/dokumenthub_backend/models"
	"github.com/proaktivadmin/dokumenthub_backend/utils"
)

const unknownRecordName = "(ukjent)"

// localSnapshot is the immutable view of the local collections, loaded once
// at the start of a preview. Matching never reads the database.
type localSnapshot struct {
	offices   []models.Office
	employees []models.Employee

	officesByOrgnr     map[string]*models.Office
	officesByVitecId   map[string]*models.Office
	officesByName      map[string]*models.Office
	employeesByVitecId map[string]*models.Employee
	employeesByEmail   map[string]*models.Employee
}

func newLocalSnapshot(offices []models.Office, employees []models.Employee) *localSnapshot {
	snap := &localSnapshot{
		offices:            offices,
		employees:          employees,
		officesByOrgnr:     make(map[string]*models.Office, len(offices)),
		officesByVitecId:   make(map[string]*models.Office, len(offices)),
		officesByName:      make(map[string]*models.Office, len(offices)),
		employeesByVitecId: make(map[string]*models.Employee, len(employees)),
		employeesByEmail:   make(map[string]*models.Employee, len(employees)),
	}
	for i := range offices {
		office := &offices[i]
		if orgnr := utils.NormalizeOrgNumber(office.OrganizationNumber); orgnr != "" {
			if _, taken := snap.officesByOrgnr[orgnr]; !taken {
				snap.officesByOrgnr[orgnr] = office
			}
		}
		if vid := strings.TrimSpace(office.VitecOfficeId); vid != "" {
			if _, taken := snap.officesByVitecId[vid]; !taken {
				snap.officesByVitecId[vid] = office
			}
		}
		if name := strings.ToLower(strings.TrimSpace(office.Name)); name != "" {
			if _, taken := snap.officesByName[name]; !taken {
				snap.officesByName[name] = office
			}
		}
	}
	for i := range employees {
		employee := &employees[i]
		if vid := strings.TrimSpace(employee.VitecEmployeeId); vid != "" {
			if _, taken := snap.employeesByVitecId[vid]; !taken {
				snap.employeesByVitecId[vid] = employee
			}
		}
		if email := strings.ToLower(strings.TrimSpace(employee.Email)); email != "" {
			if _, taken := snap.employeesByEmail[email]; !taken {
				snap.employeesByEmail[email] = employee
			}
		}
	}
	return snap
}

// Matcher runs the ordered strategy chains. The first strategy that hits
// wins; confidences are fixed per strategy, never blended.
type Matcher struct {
	scorer          SimilarityScorer
	fuzzyThreshold  float64
	fuzzyConfidence float64
}

func NewMatcher(scorer SimilarityScorer, cfg Config) *Matcher {
	return &Matcher{
		scorer:          scorer,
		fuzzyThreshold:  cfg.FuzzyThreshold,
		fuzzyConfidence: cfg.FuzzyConfidence,
	}
}

// MatchOffice resolves at most one local office for an external record.
// A nil office means match_type=new.
func (m *Matcher) MatchOffice(rec NormalizedOffice, snap *localSnapshot) (*models.Office, string, float64) {
	if rec.OrganizationNumber != nil {
		if office, ok := snap.officesByOrgnr[*rec.OrganizationNumber]; ok {
			return office, MatchMethodOrganizationNumber, 1.0
		}
	}
	if rec.ExternalId != "" {
		if office, ok := snap.officesByVitecId[rec.ExternalId]; ok {
			return office, MatchMethodExternalId, 1.0
		}
	}
	if rec.Name != nil {
		if office, ok := snap.officesByName[strings.ToLower(*rec.Name)]; ok {
			return office, MatchMethodNameExact, 0.9
		}
		if office := m.bestFuzzyOffice(*rec.Name, snap); office != nil {
			return office, MatchMethodNameFuzzy, m.fuzzyConfidence
		}
	}
	return nil, "", 0
}

// bestFuzzyOffice scans every local office and keeps the single highest
// scorer at or above the threshold. Equal top scores resolve to the lowest
// local id so the verdict never depends on iteration order.
func (m *Matcher) bestFuzzyOffice(name string, snap *localSnapshot) *models.Office {
	var best *models.Office
	bestScore := 0.0
	for i := range snap.offices {
		office := &snap.offices[i]
		score := m.scorer.Score(name, office.Name)
		if score < m.fuzzyThreshold {
			continue
		}
		if best == nil || score > bestScore || (score == bestScore && office.ID < best.ID) {
			best = office
			bestScore = score
		}
	}
	return best
}

// MatchEmployee resolves at most one local employee for an external record.
// officeByDepartment maps external department ids onto local offices already
// resolved by the office chain for this preview.
func (m *Matcher) MatchEmployee(rec NormalizedEmployee, snap *localSnapshot, officeByDepartment map[string]*models.Office) (*models.Employee, string, float64) {
	if rec.VitecEmployeeId != nil {
		if employee, ok := snap.employeesByVitecId[*rec.VitecEmployeeId]; ok {
			return employee, MatchMethodVitecEmployeeId, 1.0
		}
	}
	if rec.Email != nil {
		if employee, ok := snap.employeesByEmail[strings.ToLower(*rec.Email)]; ok {
			return employee, MatchMethodEmail, 0.95
		}
	}
	if rec.FirstName != nil && rec.LastName != nil && rec.DepartmentId != nil {
		if office, ok := officeByDepartment[*rec.DepartmentId]; ok && office != nil {
			if employee := findEmployeeByName(snap, office.ID, *rec.FirstName, *rec.LastName); employee != nil {
				return employee, MatchMethodNameInDepartment, 0.8
			}
		}
	}
	return nil, "", 0
}

func findEmployeeByName(snap *localSnapshot, officeId uint, firstName, lastName string) *models.Employee {
	var found *models.Employee
	for i := range snap.employees {
		employee := &snap.employees[i]
		if employee.OfficeId == nil || *employee.OfficeId != officeId {
			continue
		}
		if strings.TrimSpace(employee.FirstName) != firstName || strings.TrimSpace(employee.LastName) != lastName {
			continue
		}
		if found == nil || employee.ID < found.ID {
			found = employee
		}
	}
	return found
}

// officeDisplayName prefers the external record's name, then the matched
// local entity's, then a literal placeholder.
func officeDisplayName(rec NormalizedOffice, local *models.Office) string {
	if rec.Name != nil {
		return *rec.Name
	}
	if local != nil && strings.TrimSpace(local.Name) != "" {
		return local.Name
	}
	return unknownRecordName
}

func employeeDisplayName(rec NormalizedEmployee, local *models.Employee) string {
	var parts []string
	if rec.FirstName != nil {
		parts = append(parts, *rec.FirstName)
	}
	if rec.LastName != nil {
		parts = append(parts, *rec.LastName)
	}
	if len(parts) > 0 {
		return strings.Join(parts, " ")
	}
	if local != nil {
		name := strings.TrimSpace(local.FirstName + " " + local.LastName)
		if name != "" {
			return name
		}
	}
	return unknownRecordName
}
