package store

import (
	"errors"
	"time"

	"strokeregistry/pkg/domain"
)

// ErrDuplicateID is returned by InsertPatient when the unique index on
// the patient id rejects the row. The constraint lives at the store
// layer so concurrent inserts cannot both pass an existence check.
var ErrDuplicateID = errors.New("duplicate patient id")

// UserStore holds credential records. No delete path exists.
type UserStore interface {
	SaveUser(domain.User) error
	GetUserByEmail(email string) (domain.User, bool, error)
	HasUserEmail(email string) (bool, error)
	UserCount() (int64, error)
}

// SessionStore holds one row per login lifetime.
type SessionStore interface {
	CreateSession(domain.Session) error
	GetSessionByToken(token string) (domain.Session, bool, error)
	// EndSession marks the matching active session inactive and stamps
	// logout_time. Returns false when no active session matched.
	EndSession(email, token string, at time.Time) (bool, error)
	TouchSession(token string, at time.Time) error
	ListSessionsByUser(email string) ([]domain.Session, error)
	SessionCount() (int64, error)
}

// PatientStore is the primary table of live patient records.
type PatientStore interface {
	InsertPatient(domain.Patient) error
	GetPatient(id int) (domain.Patient, bool, error)
	UpdatePatient(domain.Patient) error
	DeletePatient(id int) error
	ListPatients() ([]domain.Patient, error)
	PatientCount() (int64, error)
	StrokeCount() (int64, error)
	HighRiskCount() (int64, error)
	AverageAge() (float64, error)
	GenderCounts() (map[string]int64, error)
}

// HistoryStore is the append-only snapshot log of patient mutations.
type HistoryStore interface {
	AppendHistory(domain.HistoryEntry) error
	// ListHistoryByPatient returns entries newest-first.
	ListHistoryByPatient(id int) ([]domain.HistoryEntry, error)
	HistoryCount() (int64, error)
}

// AuditStore holds the two append-only compliance logs.
type AuditStore interface {
	AppendAccessLog(domain.AccessLog) error
	AppendDataChange(domain.DataChange) error
	// List methods return entries newest-first; limit <= 0 means no cap.
	ListAccessLogsByUser(email string, limit int) ([]domain.AccessLog, error)
	ListDataChangesByUser(email string, limit int) ([]domain.DataChange, error)
	ListDataChangesByRecord(recordID, database string) ([]domain.DataChange, error)
	AccessLogCount() (int64, error)
	DataChangeCount() (int64, error)
}

// Store aggregates the five logical stores behind one handle.
type Store interface {
	UserStore
	SessionStore
	PatientStore
	HistoryStore
	AuditStore
}
