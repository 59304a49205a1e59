// Package registry coordinates business operations across the five
// stores: credentials, sessions, patients, history, and audit logs.
//
// There are no cross-store transactions. Each operation is a fixed,
// documented sequence of independently-committing writes ordered
// record -> history -> data-change -> access-log, so a partial failure
// always fails late relative to the primary effect: the primary record
// is immediately consistent, the audit trail is eventually complete.
package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"strokeregistry/pkg/auth"
	"strokeregistry/pkg/domain"
	"strokeregistry/pkg/security"
	"strokeregistry/pkg/store"
)

// Config wires the registry's dependencies.
type Config struct {
	Store store.Store
	// Now overrides the clock in tests. Defaults to time.Now.
	Now func() time.Time
}

// Registry is a stateless orchestrator over the store handle. It owns
// no records itself and re-reads current state on every call.
type Registry struct {
	store store.Store
	now   func() time.Time
}

// New constructs a Registry. The store handle is required.
func New(cfg Config) (*Registry, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("registry: store is required")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Registry{store: cfg.Store, now: func() time.Time { return now().UTC() }}, nil
}

// Login verifies credentials and opens a session.
//
// On success exactly two writes happen: the session row and a "login"
// access-log entry. On a credential mismatch exactly one write happens:
// a "failed_login" entry recording the attempted address under the
// anonymous actor.
func (r *Registry) Login(email, password string) (string, error) {
	email = normalizeEmail(email)
	user, found, err := r.store.GetUserByEmail(email)
	if err != nil {
		return "", fmt.Errorf("fetch user: %w", err)
	}
	if !found || !auth.CheckPassword(password, user.PasswordHash) {
		failed := domain.AccessLog{
			UserEmail: domain.AnonymousActor,
			Action:    domain.ActionFailedLogin,
			Resource:  "system",
			Timestamp: r.now(),
			Details:   map[string]any{"attempted_email": email},
		}
		if logErr := r.store.AppendAccessLog(failed); logErr != nil {
			slog.Error("failed-login audit write failed", "err", logErr)
		}
		return "", ErrInvalidCredentials
	}

	token, err := auth.NewSessionToken()
	if err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	now := r.now()
	session := domain.Session{
		UserEmail:    email,
		Token:        token,
		LoginTime:    now,
		LastActivity: now,
		Active:       true,
	}
	if err := r.store.CreateSession(session); err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	if err := r.recordAccess(email, domain.ActionLogin, "system", map[string]any{"session_token": token}); err != nil {
		return "", err
	}
	return token, nil
}

// Logout closes the matching active session and logs it. Idempotent:
// when no active session matches, nothing is written and no error is
// returned.
func (r *Registry) Logout(email, token string) error {
	email = normalizeEmail(email)
	changed, err := r.store.EndSession(email, token, r.now())
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	if !changed {
		return nil
	}
	return r.recordAccess(email, domain.ActionLogout, "system", map[string]any{"session_token": token})
}

// Register creates a credential record and audits the creation under
// the system actor. Role values outside the closed enum default to
// user. The duplicate check is a plain lookup; its timing side-channel
// is a documented limitation of this design.
func (r *Registry) Register(email, password, displayName, role string) (domain.User, error) {
	email, err := security.ValidateEmail(email)
	if err != nil {
		return domain.User{}, validationErr(err.Error())
	}
	displayName = security.SanitizeText(displayName)
	if displayName == "" {
		return domain.User{}, validationErr("display name is required")
	}
	if err := auth.ValidatePassword(password); err != nil {
		return domain.User{}, validationErr(err.Error())
	}
	exists, err := r.store.HasUserEmail(email)
	if err != nil {
		return domain.User{}, fmt.Errorf("check email: %w", err)
	}
	if exists {
		return domain.User{}, ErrEmailTaken
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return domain.User{}, err
	}
	user := domain.User{
		Email:        email,
		PasswordHash: hash,
		DisplayName:  displayName,
		Role:         domain.ParseRole(security.SanitizeText(role)),
		CreatedAt:    r.now(),
	}
	if err := r.store.SaveUser(user); err != nil {
		return domain.User{}, fmt.Errorf("save user: %w", err)
	}
	change := domain.DataChange{
		UserEmail:  domain.SystemActor,
		Operation:  domain.OpCreate,
		Database:   domain.UserDatabase,
		Collection: domain.UsersCollection,
		RecordID:   email,
		NewData: map[string]any{
			"email":       email,
			"displayName": displayName,
			"role":        string(user.Role),
		},
		Timestamp: r.now(),
	}
	if err := r.store.AppendDataChange(change); err != nil {
		return domain.User{}, fmt.Errorf("audit registration: %w", err)
	}
	return user, nil
}

// CreatePatient validates and inserts a patient record, then writes the
// CREATE data-change entry and the create_patient access entry.
// Duplicate ids surface from the store's uniqueness constraint, so two
// concurrent creates for the same id cannot both succeed.
func (r *Registry) CreatePatient(actor string, p domain.Patient) (domain.Patient, error) {
	if err := security.ValidatePatient(&p); err != nil {
		return domain.Patient{}, validationErr(err.Error())
	}
	if err := r.store.InsertPatient(p); err != nil {
		if errors.Is(err, store.ErrDuplicateID) {
			return domain.Patient{}, ErrDuplicateID
		}
		return domain.Patient{}, fmt.Errorf("insert patient: %w", err)
	}
	if err := r.auditPatientChange(actor, domain.OpCreate, p.ID, nil, p.Snapshot()); err != nil {
		return domain.Patient{}, err
	}
	if err := r.recordAccess(actor, domain.ActionCreatePatient, patientResource(p.ID), nil); err != nil {
		return domain.Patient{}, err
	}
	return p, nil
}

// UpdatePatient replaces the record, then appends the history snapshot,
// the UPDATE data-change entry and the update_patient access entry.
// Four sequential writes; a failure after the first leaves the record
// correct but the audit trail short.
func (r *Registry) UpdatePatient(actor string, id int, p domain.Patient) error {
	p.ID = id
	if err := security.ValidatePatient(&p); err != nil {
		return validationErr(err.Error())
	}
	old, found, err := r.store.GetPatient(id)
	if err != nil {
		return fmt.Errorf("fetch patient: %w", err)
	}
	if !found {
		return ErrPatientNotFound
	}
	if err := r.store.UpdatePatient(p); err != nil {
		return fmt.Errorf("update patient: %w", err)
	}
	entry := domain.HistoryEntry{
		PatientID:  id,
		ModifiedBy: actor,
		ModifiedAt: r.now(),
		OldData:    old,
		NewData:    p,
	}
	if err := r.store.AppendHistory(entry); err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	if err := r.auditPatientChange(actor, domain.OpUpdate, id, old.Snapshot(), p.Snapshot()); err != nil {
		return err
	}
	return r.recordAccess(actor, domain.ActionUpdatePatient, patientResource(id), nil)
}

// DeletePatient reads the record first so the deleted state survives in
// the audit trail, then deletes and writes the DELETE data-change entry
// and the delete_patient access entry. Absent records produce no writes.
func (r *Registry) DeletePatient(actor string, id int) error {
	old, found, err := r.store.GetPatient(id)
	if err != nil {
		return fmt.Errorf("fetch patient: %w", err)
	}
	if !found {
		return ErrPatientNotFound
	}
	if err := r.store.DeletePatient(id); err != nil {
		return fmt.Errorf("delete patient: %w", err)
	}
	if err := r.auditPatientChange(actor, domain.OpDelete, id, old.Snapshot(), nil); err != nil {
		return err
	}
	return r.recordAccess(actor, domain.ActionDeletePatient, patientResource(id), nil)
}

// ActivityReport composes a user's credential, sessions and capped
// audit logs from four independent reads.
type ActivityReport struct {
	User        *domain.User        `json:"user"`
	Sessions    []domain.Session    `json:"sessions"`
	AccessLogs  []domain.AccessLog  `json:"accessLogs"`
	DataChanges []domain.DataChange `json:"dataChanges"`
}

const activityReportCap = 50

// UserActivityReport joins user, session and audit data for one actor.
func (r *Registry) UserActivityReport(email string) (ActivityReport, error) {
	email = normalizeEmail(email)
	report := ActivityReport{}
	user, found, err := r.store.GetUserByEmail(email)
	if err != nil {
		return report, fmt.Errorf("fetch user: %w", err)
	}
	if found {
		report.User = &user
	}
	if report.Sessions, err = r.store.ListSessionsByUser(email); err != nil {
		return report, fmt.Errorf("list sessions: %w", err)
	}
	if report.AccessLogs, err = r.store.ListAccessLogsByUser(email, activityReportCap); err != nil {
		return report, fmt.Errorf("list access logs: %w", err)
	}
	if report.DataChanges, err = r.store.ListDataChangesByUser(email, activityReportCap); err != nil {
		return report, fmt.Errorf("list data changes: %w", err)
	}
	return report, nil
}

// FullHistory composes the current record (nil once deleted) with its
// mutation history and patient-store audit trail, both newest-first.
type FullHistory struct {
	Current    *domain.Patient       `json:"current"`
	History    []domain.HistoryEntry `json:"history"`
	AuditTrail []domain.DataChange   `json:"auditTrail"`
}

// PatientFullHistory returns the cross-store view of one patient and
// logs the access. History and audit trail remain retrievable after the
// record itself has been deleted.
func (r *Registry) PatientFullHistory(actor string, id int) (FullHistory, error) {
	if err := r.recordAccess(actor, domain.ActionViewPatientHistory, patientResource(id), nil); err != nil {
		return FullHistory{}, err
	}
	res := FullHistory{}
	current, found, err := r.store.GetPatient(id)
	if err != nil {
		return res, fmt.Errorf("fetch patient: %w", err)
	}
	if found {
		res.Current = &current
	}
	if res.History, err = r.store.ListHistoryByPatient(id); err != nil {
		return res, fmt.Errorf("list history: %w", err)
	}
	if res.AuditTrail, err = r.store.ListDataChangesByRecord(strconv.Itoa(id), domain.PatientDatabase); err != nil {
		return res, fmt.Errorf("list audit trail: %w", err)
	}
	return res, nil
}

// ListPatients returns every live record and logs the access.
func (r *Registry) ListPatients(actor string) ([]domain.Patient, error) {
	if err := r.recordAccess(actor, domain.ActionViewPatientList, "patient_page", nil); err != nil {
		return nil, err
	}
	patients, err := r.store.ListPatients()
	if err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}
	return patients, nil
}

// DashboardStats aggregates the dashboard counters.
type DashboardStats struct {
	TotalPatients      int64            `json:"totalPatients"`
	StrokeCases        int64            `json:"strokeCases"`
	HighRisk           int64            `json:"highRisk"`
	AvgAge             float64          `json:"avgAge"`
	GenderDistribution map[string]int64 `json:"genderDistribution"`
}

// Dashboard computes aggregate statistics and logs the access. High
// risk means hypertension with heart disease, or age 65+ with
// hypertension.
func (r *Registry) Dashboard(actor string) (DashboardStats, error) {
	if err := r.recordAccess(actor, domain.ActionViewDashboard, "dashboard", nil); err != nil {
		return DashboardStats{}, err
	}
	stats := DashboardStats{}
	var err error
	if stats.TotalPatients, err = r.store.PatientCount(); err != nil {
		return stats, fmt.Errorf("count patients: %w", err)
	}
	if stats.StrokeCases, err = r.store.StrokeCount(); err != nil {
		return stats, fmt.Errorf("count stroke cases: %w", err)
	}
	if stats.HighRisk, err = r.store.HighRiskCount(); err != nil {
		return stats, fmt.Errorf("count high risk: %w", err)
	}
	avg, err := r.store.AverageAge()
	if err != nil {
		return stats, fmt.Errorf("average age: %w", err)
	}
	stats.AvgAge = math.Round(avg*10) / 10
	if stats.GenderDistribution, err = r.store.GenderCounts(); err != nil {
		return stats, fmt.Errorf("gender counts: %w", err)
	}
	return stats, nil
}

// RecordAccess writes one access-log entry. Exposed so the transport
// layer can log page views it handles itself.
func (r *Registry) RecordAccess(email, action, resource string, details map[string]any) error {
	return r.recordAccess(normalizeEmail(email), action, resource, details)
}

// Health reports the reachability of the five stores.
type Health struct {
	Status  string            `json:"status"`
	Message string            `json:"message"`
	Stores  map[string]string `json:"stores,omitempty"`
}

// VerifyConnections count-probes every store. Success is reported only
// when all probes succeed; a failing probe yields an error status with
// a safe, fixed message (internal store errors go to the log only).
func (r *Registry) VerifyConnections() Health {
	probes := []struct {
		name  string
		probe func() (int64, error)
	}{
		{domain.UsersCollection, r.store.UserCount},
		{domain.SessionsCollection, r.store.SessionCount},
		{domain.PatientsCollection, r.store.PatientCount},
		{domain.HistoryCollection, r.store.HistoryCount},
		{domain.AccessLogsCollection, r.store.AccessLogCount},
		{domain.DataChangesCollection, r.store.DataChangeCount},
	}
	stores := make(map[string]string, len(probes))
	for _, p := range probes {
		if _, err := p.probe(); err != nil {
			slog.Error("store probe failed", "store", p.name, "err", err)
			return Health{
				Status:  "error",
				Message: fmt.Sprintf("store probe failed: %s", p.name),
			}
		}
		stores[p.name] = "connected"
	}
	return Health{
		Status:  "success",
		Message: "all stores connected",
		Stores:  stores,
	}
}

// UserFromToken resolves an active session token to its user, stamping
// last_activity best-effort.
func (r *Registry) UserFromToken(token string) (domain.User, bool) {
	if token == "" {
		return domain.User{}, false
	}
	session, found, err := r.store.GetSessionByToken(token)
	if err != nil || !found || !session.Active {
		return domain.User{}, false
	}
	if err := r.store.TouchSession(token, r.now()); err != nil {
		slog.Warn("touch session failed", "err", err)
	}
	user, found, err := r.store.GetUserByEmail(session.UserEmail)
	if err != nil || !found {
		return domain.User{}, false
	}
	return user, true
}

func (r *Registry) recordAccess(email, action, resource string, details map[string]any) error {
	entry := domain.AccessLog{
		UserEmail: email,
		Action:    action,
		Resource:  resource,
		Timestamp: r.now(),
		Details:   details,
	}
	if err := r.store.AppendAccessLog(entry); err != nil {
		return fmt.Errorf("append access log: %w", err)
	}
	return nil
}

func (r *Registry) auditPatientChange(actor, op string, id int, oldData, newData map[string]any) error {
	change := domain.DataChange{
		UserEmail:  actor,
		Operation:  op,
		Database:   domain.PatientDatabase,
		Collection: domain.PatientsCollection,
		RecordID:   strconv.Itoa(id),
		OldData:    oldData,
		NewData:    newData,
		Timestamp:  r.now(),
	}
	if err := r.store.AppendDataChange(change); err != nil {
		return fmt.Errorf("audit %s: %w", op, err)
	}
	return nil
}

func patientResource(id int) string {
	return "patient_id:" + strconv.Itoa(id)
}

func normalizeEmail(email string) string {
	normalized, err := security.ValidateEmail(email)
	if err != nil {
		// Keep the raw (sanitized) input for audit attribution.
		return security.SanitizeText(email)
	}
	return normalized
}
