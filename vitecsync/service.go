package vitecsync

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/google/uuid"
	"github.com/proaktivadmin/dokumenthub_backend/config"
	"github.com/proaktivadmin/dokumenthub_backend/models"
	"github.com/proaktivadmin/dokumenthub_backend/utils"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var tracer = otel.Tracer("dokumenthub-backend/vitecsync")

// Service owns the preview/decision/commit lifecycle. Construct once in
// main and share; all mutable state lives in the database.
type Service struct {
	db      *gorm.DB
	client  DirectoryClient
	cfg     Config
	logger  *logrus.Logger
	clock   Clock
	matcher *Matcher
	locker  *redislock.Client
}

func NewService(db *gorm.DB, client DirectoryClient, cfg Config, logger *logrus.Logger) *Service {
	return &Service{
		db:      db,
		client:  client,
		cfg:     cfg,
		logger:  logger,
		clock:   SystemClock{},
		matcher: NewMatcher(NewTokenSortScorer(), cfg),
	}
}

func (s *Service) WithClock(clock Clock) *Service {
	s.clock = clock
	return s
}

func (s *Service) WithScorer(scorer SimilarityScorer) *Service {
	s.matcher = NewMatcher(scorer, s.cfg)
	return s
}

func (s *Service) WithLocker(locker *redislock.Client) *Service {
	s.locker = locker
	return s
}

// database resolves lazily so main can register routes before the database
// has connected; the readiness gate keeps requests out until it has.
func (s *Service) database() *gorm.DB {
	if s.db != nil {
		return s.db
	}
	return config.GetDB()
}

func (s *Service) lockClient() *redislock.Client {
	if s.locker != nil {
		return s.locker
	}
	return config.GetRedisLock()
}

// GeneratePreview fetches both external collections, reconciles them against
// an immutable local snapshot and persists a new pending session. Any fetch
// failure aborts the whole operation; no partial session is ever written.
func (s *Service) GeneratePreview(ctx context.Context) (*models.SyncSession, *SyncPreview, error) {
	if s.client == nil {
		return nil, nil, &utils.UpstreamFetchError{Collection: "offices", Err: errors.New("directory client not configured")}
	}
	ctx, span := tracer.Start(ctx, "vitecsync.GeneratePreview", trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()

	var (
		extOffices   []VitecOffice
		extEmployees []VitecEmployee
		officesErr   error
		employeesErr error
	)
	// The two collections are independent; fetch them concurrently.
	var fetchWg sync.WaitGroup
	fetchWg.Add(2)
	go func() {
		defer fetchWg.Done()
		extOffices, officesErr = s.client.ListOffices(ctx)
	}()
	go func() {
		defer fetchWg.Done()
		extEmployees, employeesErr = s.client.ListEmployees(ctx)
	}()
	fetchWg.Wait()

	if officesErr != nil {
		if s.logger != nil {
			config.LogError(s.logger, "vitecsync", "GeneratePreview", "fetch offices", nil, officesErr)
		}
		return nil, nil, &utils.UpstreamFetchError{Collection: "offices", Err: officesErr}
	}
	if employeesErr != nil {
		if s.logger != nil {
			config.LogError(s.logger, "vitecsync", "GeneratePreview", "fetch employees", nil, employeesErr)
		}
		return nil, nil, &utils.UpstreamFetchError{Collection: "employees", Err: employeesErr}
	}

	localOffices, err := models.ListOffices(ctx, s.database())
	if err != nil {
		return nil, nil, err
	}
	localEmployees, err := models.ListEmployees(ctx, s.database())
	if err != nil {
		return nil, nil, err
	}
	snap := newLocalSnapshot(localOffices, localEmployees)

	preview := s.buildPreview(extOffices, extEmployees, snap)

	previewJSON, err := json.Marshal(preview)
	if err != nil {
		return nil, nil, err
	}

	now := s.clock.Now()
	session := models.SyncSession{
		ID:            uuid.NewString(),
		Status:        models.SyncSessionStatusPending,
		SchemaVersion: models.SyncSessionSchemaVersion,
		PreviewJSON:   previewJSON,
		DecisionsJSON: models.EncodeDecisions(map[string]string{}),
		CreatedAt:     now,
		ExpiresAt:     now.Add(s.cfg.SessionTTL),
	}
	if err := s.database().WithContext(ctx).Create(&session).Error; err != nil {
		return nil, nil, err
	}
	return &session, &preview, nil
}

// buildPreview is pure: matching and diffing never touch the database, so
// per-record work fans out over a bounded worker pool.
func (s *Service) buildPreview(extOffices []VitecOffice, extEmployees []VitecEmployee, snap *localSnapshot) SyncPreview {
	officeDiffs := make([]RecordDiff, len(extOffices))
	officeLocals := make([]*models.Office, len(extOffices))
	normalizedOffices := make([]NormalizedOffice, len(extOffices))

	s.forEachRecord(len(extOffices), func(i int) {
		rec := NormalizeOffice(extOffices[i])
		local, method, confidence := s.matcher.MatchOffice(rec, snap)
		normalizedOffices[i] = rec
		officeLocals[i] = local
		officeDiffs[i] = buildOfficeRecordDiff(i, rec, local, method, confidence)
	})

	// Offices resolve first; the employee name strategy is scoped to the
	// local office matched for the employee's department.
	officeByDepartment := make(map[string]*models.Office, len(extOffices))
	for i := range normalizedOffices {
		if id := normalizedOffices[i].ExternalId; id != "" && officeLocals[i] != nil {
			officeByDepartment[id] = officeLocals[i]
		}
	}

	employeeDiffs := make([]RecordDiff, len(extEmployees))
	employeeLocals := make([]*models.Employee, len(extEmployees))

	s.forEachRecord(len(extEmployees), func(i int) {
		rec := NormalizeEmployee(extEmployees[i])
		local, method, confidence := s.matcher.MatchEmployee(rec, snap, officeByDepartment)
		employeeLocals[i] = local
		employeeDiffs[i] = buildEmployeeRecordDiff(i, rec, local, method, confidence)
	})

	officeDiffs = append(officeDiffs, orphanedOffices(snap, officeLocals)...)
	employeeDiffs = append(employeeDiffs, orphanedEmployees(snap, employeeLocals)...)

	return SyncPreview{
		SchemaVersion: models.SyncSessionSchemaVersion,
		Offices:       officeDiffs,
		Employees:     employeeDiffs,
		Summary: SyncSummary{
			Offices:   tally(officeDiffs),
			Employees: tally(employeeDiffs),
		},
	}
}

func (s *Service) forEachRecord(n int, fn func(i int)) {
	workers := s.cfg.MatchWorkers
	if workers < 1 {
		workers = 1
	}
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			fn(i)
		}(i)
	}
	wg.Wait()
}

func buildOfficeRecordDiff(index int, rec NormalizedOffice, local *models.Office, method string, confidence float64) RecordDiff {
	diff := RecordDiff{
		RecordId:        recordKey(RecordTypeOffice, rec.ExternalId, index),
		MatchType:       MatchTypeNew,
		DisplayName:     officeDisplayName(rec, local),
		Fields:          DiffOffice(local, rec),
		MatchConfidence: confidence,
		MatchMethod:     method,
	}
	if rec.ExternalId != "" {
		externalId := rec.ExternalId
		diff.ExternalId = &externalId
	}
	if local != nil {
		diff.MatchType = MatchTypeMatched
		localId := local.ID
		diff.LocalId = &localId
	}
	return diff
}

func buildEmployeeRecordDiff(index int, rec NormalizedEmployee, local *models.Employee, method string, confidence float64) RecordDiff {
	diff := RecordDiff{
		RecordId:        recordKey(RecordTypeEmployee, rec.ExternalId, index),
		MatchType:       MatchTypeNew,
		DisplayName:     employeeDisplayName(rec, local),
		Fields:          DiffEmployee(local, rec),
		MatchConfidence: confidence,
		MatchMethod:     method,
	}
	if rec.ExternalId != "" {
		externalId := rec.ExternalId
		diff.ExternalId = &externalId
	}
	if local != nil {
		diff.MatchType = MatchTypeMatched
		localId := local.ID
		diff.LocalId = &localId
	}
	return diff
}

// recordKey prefers the external id; a record without one falls back to its
// position in the frozen preview, which stays stable for the session's life.
func recordKey(recordType, externalId string, index int) string {
	if externalId != "" {
		return externalId
	}
	return recordType + "-" + strconv.Itoa(index)
}

func orphanedOffices(snap *localSnapshot, matched []*models.Office) []RecordDiff {
	taken := make(map[uint]bool, len(matched))
	for _, office := range matched {
		if office != nil {
			taken[office.ID] = true
		}
	}
	var diffs []RecordDiff
	for i := range snap.offices {
		office := &snap.offices[i]
		if taken[office.ID] {
			continue
		}
		localId := office.ID
		diffs = append(diffs, RecordDiff{
			RecordId:    "local-office-" + strconv.FormatUint(uint64(office.ID), 10),
			MatchType:   MatchTypeNotInExternal,
			LocalId:     &localId,
			DisplayName: office.Name,
		})
	}
	return diffs
}

func orphanedEmployees(snap *localSnapshot, matched []*models.Employee) []RecordDiff {
	taken := make(map[uint]bool, len(matched))
	for _, employee := range matched {
		if employee != nil {
			taken[employee.ID] = true
		}
	}
	var diffs []RecordDiff
	for i := range snap.employees {
		employee := &snap.employees[i]
		if taken[employee.ID] {
			continue
		}
		localId := employee.ID
		diffs = append(diffs, RecordDiff{
			RecordId:    "local-employee-" + strconv.FormatUint(uint64(employee.ID), 10),
			MatchType:   MatchTypeNotInExternal,
			LocalId:     &localId,
			DisplayName: employee.FirstName + " " + employee.LastName,
		})
	}
	return diffs
}

func tally(diffs []RecordDiff) MatchCounts {
	var counts MatchCounts
	for _, diff := range diffs {
		switch diff.MatchType {
		case MatchTypeNew:
			counts.New++
		case MatchTypeMatched:
			counts.Matched++
		case MatchTypeNotInExternal:
			counts.NotInExternal++
		}
	}
	return counts
}

// GetSession loads a session, lazily transitioning an overdue pending row to
// expired. Expiry is checked on read, never swept eagerly.
func (s *Service) GetSession(ctx context.Context, id string) (*models.SyncSession, error) {
	var session models.SyncSession
	if err := s.database().WithContext(ctx).Take(&session, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &utils.NotFoundError{Resource: "sync session", ID: id}
		}
		return nil, err
	}
	if isOverdue(&session, s.clock.Now()) {
		if err := s.expireSession(ctx, &session); err != nil {
			return nil, err
		}
	}
	return &session, nil
}

// isOverdue reports whether a pending session has outlived its deadline.
// Terminal sessions are never overdue; their status already tells the story.
func isOverdue(session *models.SyncSession, now time.Time) bool {
	return session.Status == models.SyncSessionStatusPending && now.After(session.ExpiresAt)
}

// mutationGate decides whether a decision or commit may proceed. When
// expired is true the caller must flip the row to expired in a transaction
// that COMMITS before the error is returned, so the store and the caller
// agree on the terminal state.
func mutationGate(session *models.SyncSession, now time.Time, attempted string) (expired bool, err error) {
	if session.Status != models.SyncSessionStatusPending {
		return false, &utils.InvalidTransitionError{SessionId: session.ID, Status: session.Status, Attempted: attempted}
	}
	if now.After(session.ExpiresAt) {
		return true, &utils.ExpiredSessionError{SessionId: session.ID, ExpiredAt: session.ExpiresAt}
	}
	return false, nil
}

func expireInTx(tx *gorm.DB, session *models.SyncSession, now time.Time) error {
	return tx.Model(session).Updates(map[string]interface{}{
		"status":       models.SyncSessionStatusExpired,
		"finalized_at": now,
		"version":      gorm.Expr("version + 1"),
	}).Error
}

func (s *Service) expireSession(ctx context.Context, session *models.SyncSession) error {
	now := s.clock.Now()
	result := s.database().WithContext(ctx).
		Model(&models.SyncSession{}).
		Where("id = ? AND status = ?", session.ID, models.SyncSessionStatusPending).
		Updates(map[string]interface{}{
			"status":       models.SyncSessionStatusExpired,
			"finalized_at": now,
			"version":      gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return result.Error
	}
	// Losing the guarded update race means another reader expired it first;
	// either way the row is terminal now.
	session.Status = models.SyncSessionStatusExpired
	session.FinalizedAt = &now
	return nil
}

// CancelSession flips a pending session to cancelled. Calling it on a
// terminal session is a no-op.
func (s *Service) CancelSession(ctx context.Context, id string) error {
	return s.database().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var session models.SyncSession
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Take(&session, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &utils.NotFoundError{Resource: "sync session", ID: id}
			}
			return err
		}
		if session.IsTerminal() {
			return nil
		}

		now := s.clock.Now()
		target := models.SyncSessionStatusCancelled
		if now.After(session.ExpiresAt) {
			target = models.SyncSessionStatusExpired
		}
		return tx.Model(&session).Updates(map[string]interface{}{
			"status":       target,
			"finalized_at": now,
			"version":      gorm.Expr("version + 1"),
		}).Error
	})
}

// UpdateDecision records one accept/reject, overwriting any prior decision
// for the same (record, field). Only pending, unexpired sessions accept
// decisions; the row lock re-checks status so a concurrent cancel or commit
// wins cleanly.
func (s *Service) UpdateDecision(ctx context.Context, id string, req DecisionRequest) error {
	release := s.acquireSessionLock(ctx, id, "UpdateDecision")
	defer release()

	var expiredErr error
	err := s.database().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var session models.SyncSession
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Take(&session, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &utils.NotFoundError{Resource: "sync session", ID: id}
			}
			return err
		}
		expired, gateErr := mutationGate(&session, s.clock.Now(), "update decision")
		if gateErr != nil {
			if !expired {
				return gateErr
			}
			// Return nil so the transaction commits the expiry flip; a
			// returned error would roll it back and leave the row pending.
			expiredErr = gateErr
			return expireInTx(tx, &session, s.clock.Now())
		}

		var preview SyncPreview
		if err := json.Unmarshal(session.PreviewJSON, &preview); err != nil {
			return err
		}
		if err := validateDecisionTarget(&preview, req); err != nil {
			return err
		}

		decisions := session.Decisions()
		decisions[decisionKey(req.RecordType, req.RecordId, req.FieldName)] = req.Decision
		if err := tx.Model(&session).Updates(map[string]interface{}{
			"decisions_json": models.EncodeDecisions(decisions),
			"version":        gorm.Expr("version + 1"),
		}).Error; err != nil {
			return err
		}
		if s.logger != nil {
			operator, _ := utils.GetOperatorFromContext(ctx)
			s.logger.WithFields(logrus.Fields{
				"session_id":  id,
				"operator":    operator,
				"record_type": req.RecordType,
				"record_id":   req.RecordId,
				"field_name":  req.FieldName,
				"decision":    req.Decision,
			}).Info("sync decision recorded")
		}
		return nil
	})
	if err != nil {
		return err
	}
	return expiredErr
}

// validateDecisionTarget checks the decision refers to a record and field
// that exist in the frozen preview.
func validateDecisionTarget(preview *SyncPreview, req DecisionRequest) error {
	records := preview.Offices
	if req.RecordType == RecordTypeEmployee {
		records = preview.Employees
	}
	for i := range records {
		if records[i].RecordId != req.RecordId {
			continue
		}
		for j := range records[i].Fields {
			if records[i].Fields[j].FieldName == req.FieldName {
				return nil
			}
		}
		return &utils.ValidationError{
			Field:   req.FieldName,
			Message: "field is not part of the " + req.RecordType + " record " + req.RecordId,
		}
	}
	return &utils.ValidationError{
		Field:   "record_id",
		Message: "unknown " + req.RecordType + " record " + req.RecordId,
	}
}

// acquireSessionLock serializes cross-instance access to one session.
// Redis is a best-effort optimization: the SELECT ... FOR UPDATE row lock
// inside each transaction remains the authority, so an unavailable Redis
// never blocks the operation.
func (s *Service) acquireSessionLock(ctx context.Context, id string, funcName string) func() {
	locker := s.lockClient()
	if locker == nil {
		return func() {}
	}
	lock, err := locker.Obtain(ctx, "lock:sync-session:"+id, s.cfg.CommitLockTTL, nil)
	if err != nil {
		if s.logger != nil {
			s.logger.WithFields(logrus.Fields{
				"funcName":   funcName,
				"session_id": id,
			}).Warn("could not obtain redis lock; proceeding with row lock only: " + err.Error())
		}
		return func() {}
	}
	return func() {
		if releaseErr := lock.Release(context.Background()); releaseErr != nil && s.logger != nil {
			s.logger.WithFields(logrus.Fields{
				"funcName":   funcName,
				"session_id": id,
			}).Warn("failed to release redis lock: " + releaseErr.Error())
		}
	}
}

// SessionToResponse renders a session row back into the API shape with the
// decision ledger folded onto the frozen preview.
func SessionToResponse(session *models.SyncSession) (SessionResponse, error) {
	var preview SyncPreview
	if err := json.Unmarshal(session.PreviewJSON, &preview); err != nil {
		return SessionResponse{}, err
	}
	decisions := session.Decisions()
	applyDecisions(RecordTypeOffice, preview.Offices, decisions)
	applyDecisions(RecordTypeEmployee, preview.Employees, decisions)

	return SessionResponse{
		SessionId: session.ID,
		Status:    session.Status,
		CreatedAt: session.CreatedAt.UTC().Format(time.RFC3339),
		ExpiresAt: session.ExpiresAt.UTC().Format(time.RFC3339),
		Offices:   preview.Offices,
		Employees: preview.Employees,
		Summary:   preview.Summary,
	}, nil
}

func applyDecisions(recordType string, records []RecordDiff, decisions map[string]string) {
	for i := range records {
		for j := range records[i].Fields {
			key := decisionKey(recordType, records[i].RecordId, records[i].Fields[j].FieldName)
			if decision, ok := decisions[key]; ok {
				records[i].Fields[j].Decision = decision
			}
		}
	}
}
