package vitecsync

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/proaktivadmin/dokumenthub_backend/config"
	"github.com/proaktivadmin/dokumenthub_backend/models"
	"github.com/proaktivadmin/dokumenthub_backend/utils"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// commitPlan is the pure translation of a frozen preview plus its decision
// ledger into database writes. Building it never touches the database, so
// the apply semantics are testable without one.
type commitPlan struct {
	officeUpdates   []recordUpdate
	officeCreates   []officeCreate
	employeeUpdates []recordUpdate
	employeeCreates []employeeCreate

	fieldsApplied int
	fieldsSkipped int
}

type recordUpdate struct {
	localId uint
	updates map[string]interface{}
	// departmentId carries an accepted department change for employees so
	// the committer can re-point the office foreign key inside the tx.
	departmentId string
}

type officeCreate struct {
	office     models.Office
	externalId string
}

type employeeCreate struct {
	employee     models.Employee
	departmentId string
}

// buildCommitPlan applies the decision policy: on matched records only
// explicitly accepted fields are written and a missing decision counts as
// reject; new records are seeded with every present field except the ones
// explicitly rejected. Records flagged not_in_external are informational and
// produce no writes.
func buildCommitPlan(preview *SyncPreview, decisions map[string]string) commitPlan {
	var plan commitPlan

	for i := range preview.Offices {
		diff := &preview.Offices[i]
		switch diff.MatchType {
		case MatchTypeMatched:
			update := recordUpdate{localId: *diff.LocalId, updates: map[string]interface{}{}}
			for j := range diff.Fields {
				field := &diff.Fields[j]
				if decisions[decisionKey(RecordTypeOffice, diff.RecordId, field.FieldName)] != DecisionAccept {
					plan.fieldsSkipped++
					continue
				}
				applyOfficeColumn(update.updates, field)
				plan.fieldsApplied++
			}
			if len(update.updates) > 0 {
				plan.officeUpdates = append(plan.officeUpdates, update)
			}
		case MatchTypeNew:
			create := officeCreate{office: models.Office{IsActive: true}}
			if diff.ExternalId != nil {
				create.externalId = *diff.ExternalId
				create.office.VitecOfficeId = *diff.ExternalId
			}
			for j := range diff.Fields {
				field := &diff.Fields[j]
				if decisions[decisionKey(RecordTypeOffice, diff.RecordId, field.FieldName)] == DecisionReject {
					plan.fieldsSkipped++
					continue
				}
				setOfficeField(&create.office, field)
				plan.fieldsApplied++
			}
			plan.officeCreates = append(plan.officeCreates, create)
		}
	}

	for i := range preview.Employees {
		diff := &preview.Employees[i]
		switch diff.MatchType {
		case MatchTypeMatched:
			update := recordUpdate{localId: *diff.LocalId, updates: map[string]interface{}{}}
			for j := range diff.Fields {
				field := &diff.Fields[j]
				if decisions[decisionKey(RecordTypeEmployee, diff.RecordId, field.FieldName)] != DecisionAccept {
					plan.fieldsSkipped++
					continue
				}
				applyEmployeeColumn(update.updates, field)
				if field.FieldName == "department_id" && field.ExternalValue != nil {
					update.departmentId = *field.ExternalValue
				}
				plan.fieldsApplied++
			}
			if len(update.updates) > 0 {
				plan.employeeUpdates = append(plan.employeeUpdates, update)
			}
		case MatchTypeNew:
			create := employeeCreate{employee: models.Employee{IsActive: true}}
			if diff.ExternalId != nil {
				create.employee.VitecEmployeeId = *diff.ExternalId
			}
			for j := range diff.Fields {
				field := &diff.Fields[j]
				if decisions[decisionKey(RecordTypeEmployee, diff.RecordId, field.FieldName)] == DecisionReject {
					plan.fieldsSkipped++
					continue
				}
				setEmployeeField(&create.employee, field)
				if field.FieldName == "department_id" && field.ExternalValue != nil {
					create.departmentId = *field.ExternalValue
				}
				plan.fieldsApplied++
			}
			plan.employeeCreates = append(plan.employeeCreates, create)
		}
	}

	return plan
}

func applyOfficeColumn(updates map[string]interface{}, field *FieldDiff) {
	if field.ExternalValue != nil {
		updates[field.FieldName] = *field.ExternalValue
	}
}

func applyEmployeeColumn(updates map[string]interface{}, field *FieldDiff) {
	if field.FieldName == "system_roles" {
		updates["system_roles_json"] = models.EncodeSystemRoles(field.ExternalValues)
		return
	}
	if field.ExternalValue != nil {
		updates[field.FieldName] = *field.ExternalValue
	}
}

func setOfficeField(office *models.Office, field *FieldDiff) {
	if field.ExternalValue == nil {
		return
	}
	value := *field.ExternalValue
	switch field.FieldName {
	case "name":
		office.Name = value
	case "legal_name":
		office.LegalName = value
	case "organization_number":
		office.OrganizationNumber = value
	case "email":
		office.Email = value
	case "phone":
		office.Phone = value
	case "street_address":
		office.StreetAddress = value
	case "postal_code":
		office.PostalCode = value
	case "city":
		office.City = value
	}
}

func setEmployeeField(employee *models.Employee, field *FieldDiff) {
	if field.FieldName == "system_roles" {
		employee.SystemRolesJSON = models.EncodeSystemRoles(field.ExternalValues)
		return
	}
	if field.ExternalValue == nil {
		return
	}
	value := *field.ExternalValue
	switch field.FieldName {
	case "first_name":
		employee.FirstName = value
	case "last_name":
		employee.LastName = value
	case "title":
		employee.Title = value
	case "email":
		employee.Email = value
	case "phone":
		employee.Phone = value
	case "vitec_employee_id":
		employee.VitecEmployeeId = value
	case "department_id":
		employee.DepartmentId = value
	}
}

// CommitSession applies every accepted change in one transaction and marks
// the session committed. Any write failure rolls the whole commit back and
// leaves the session pending, so a retry sees the same frozen preview.
func (s *Service) CommitSession(ctx context.Context, id string) (*SyncCommitResult, error) {
	ctx, span := tracer.Start(ctx, "vitecsync.CommitSession", trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()

	release := s.acquireSessionLock(ctx, id, "CommitSession")
	defer release()

	var result SyncCommitResult
	var expiredErr error
	err := s.database().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var session models.SyncSession
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Take(&session, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &utils.NotFoundError{Resource: "sync session", ID: id}
			}
			return err
		}
		now := s.clock.Now()
		expired, gateErr := mutationGate(&session, now, "commit")
		if gateErr != nil {
			if !expired {
				return gateErr
			}
			// Return nil so the transaction commits the expiry flip; a
			// returned error would roll it back and leave the row pending.
			expiredErr = gateErr
			return expireInTx(tx, &session, now)
		}

		var preview SyncPreview
		if err := json.Unmarshal(session.PreviewJSON, &preview); err != nil {
			return err
		}
		plan := buildCommitPlan(&preview, session.Decisions())

		applied, err := s.applyPlan(tx, &preview, plan)
		if err != nil {
			return err
		}
		applied.SessionId = id
		result = applied

		resultJSON, err := json.Marshal(result)
		if err != nil {
			return err
		}
		return tx.Model(&session).Updates(map[string]interface{}{
			"status":       models.SyncSessionStatusCommitted,
			"result_json":  resultJSON,
			"finalized_at": now,
			"version":      gorm.Expr("version + 1"),
		}).Error
	})
	if err != nil {
		return nil, err
	}
	if expiredErr != nil {
		return nil, expiredErr
	}

	s.publishCommitted(ctx, result)
	return &result, nil
}

// applyPlan writes offices first so employee department changes in the same
// commit can resolve against offices created moments earlier.
func (s *Service) applyPlan(tx *gorm.DB, preview *SyncPreview, plan commitPlan) (SyncCommitResult, error) {
	result := SyncCommitResult{
		FieldsApplied: plan.fieldsApplied,
		FieldsSkipped: plan.fieldsSkipped,
	}

	officeIdByExternal := make(map[string]uint)
	for i := range preview.Offices {
		diff := &preview.Offices[i]
		if diff.MatchType == MatchTypeMatched && diff.ExternalId != nil && diff.LocalId != nil {
			officeIdByExternal[*diff.ExternalId] = *diff.LocalId
		}
	}

	for _, update := range plan.officeUpdates {
		if err := tx.Model(&models.Office{}).Where("id = ?", update.localId).Updates(update.updates).Error; err != nil {
			return result, err
		}
		result.OfficesUpdated++
	}
	for i := range plan.officeCreates {
		create := &plan.officeCreates[i]
		if err := tx.Create(&create.office).Error; err != nil {
			return result, err
		}
		if create.externalId != "" {
			officeIdByExternal[create.externalId] = create.office.ID
		}
		result.OfficesCreated++
	}

	for _, update := range plan.employeeUpdates {
		if update.departmentId != "" {
			if officeId, ok := s.resolveOfficeId(tx, officeIdByExternal, update.departmentId); ok {
				update.updates["office_id"] = officeId
			}
		}
		if err := tx.Model(&models.Employee{}).Where("id = ?", update.localId).Updates(update.updates).Error; err != nil {
			return result, err
		}
		result.EmployeesUpdated++
	}
	for i := range plan.employeeCreates {
		create := &plan.employeeCreates[i]
		if create.departmentId != "" {
			if officeId, ok := s.resolveOfficeId(tx, officeIdByExternal, create.departmentId); ok {
				officeIdCopy := officeId
				create.employee.OfficeId = &officeIdCopy
			}
		}
		if err := tx.Create(&create.employee).Error; err != nil {
			return result, err
		}
		result.EmployeesCreated++
	}

	return result, nil
}

func (s *Service) resolveOfficeId(tx *gorm.DB, officeIdByExternal map[string]uint, departmentId string) (uint, bool) {
	if officeId, ok := officeIdByExternal[departmentId]; ok {
		return officeId, true
	}
	var office models.Office
	if err := tx.Select("id").Take(&office, "vitec_office_id = ?", departmentId).Error; err != nil {
		return 0, false
	}
	officeIdByExternal[departmentId] = office.ID
	return office.ID, true
}

// publishCommitted emits the committed event. Delivery is best-effort; a
// missing topic or unreachable broker only logs a warning.
func (s *Service) publishCommitted(ctx context.Context, result SyncCommitResult) {
	if s.cfg.CommittedTopic == "" {
		return
	}
	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)
	event := CommittedEvent{
		SessionId:     result.SessionId,
		CommittedAt:   s.clock.Now().UTC(),
		Result:        result,
		CorrelationId: correlationId,
	}
	if err := config.PublishJSON(s.cfg.CommittedTopic, event); err != nil && s.logger != nil {
		config.LogError(s.logger, "vitecsync", "publishCommitted", "session "+result.SessionId, nil, err)
	}
}
