package domain

import "time"

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// ParseRole maps a free-form role value onto the closed enum.
// Anything unrecognized becomes RoleUser.
func ParseRole(raw string) Role {
	switch Role(raw) {
	case RoleAdmin:
		return RoleAdmin
	default:
		return RoleUser
	}
}

// Access-log action tags.
const (
	ActionLogin              = "login"
	ActionLogout             = "logout"
	ActionFailedLogin        = "failed_login"
	ActionViewDashboard      = "view_dashboard"
	ActionViewPatientList    = "view_patient_list"
	ActionCreatePatient      = "create_patient"
	ActionUpdatePatient      = "update_patient"
	ActionDeletePatient      = "delete_patient"
	ActionViewPatientHistory = "view_patient_history"
)

// Data-change operations.
const (
	OpCreate = "CREATE"
	OpUpdate = "UPDATE"
	OpDelete = "DELETE"
)

// Logical store and collection tags recorded in the audit trail.
const (
	UserDatabase    = "user_management_db"
	PatientDatabase = "stroke_patient_db"
	AuditDatabase   = "audit_logs_db"

	UsersCollection       = "users"
	SessionsCollection    = "sessions"
	PatientsCollection    = "patients"
	HistoryCollection     = "patient_history"
	AccessLogsCollection  = "access_logs"
	DataChangesCollection = "data_changes"
)

// SystemActor attributes bootstrap and registration audit entries.
const SystemActor = "system"

// AnonymousActor attributes failed-login audit entries.
const AnonymousActor = "anonymous"

// User is a credential record. Never deleted.
type User struct {
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	DisplayName  string    `json:"displayName"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Session tracks one login lifetime. Rows are closed on logout,
// never physically deleted.
type Session struct {
	UserEmail    string     `json:"userEmail"`
	Token        string     `json:"-"`
	LoginTime    time.Time  `json:"loginTime"`
	LastActivity time.Time  `json:"lastActivity"`
	Active       bool       `json:"active"`
	LogoutTime   *time.Time `json:"logoutTime,omitempty"`
}

// Patient is a live medical record, keyed by an application-assigned id.
type Patient struct {
	ID              int     `json:"id"`
	Gender          string  `json:"gender"`
	Age             float64 `json:"age"`
	Hypertension    int     `json:"hypertension"`
	HeartDisease    int     `json:"heart_disease"`
	EverMarried     string  `json:"ever_married"`
	WorkType        string  `json:"work_type"`
	ResidenceType   string  `json:"residence_type"`
	AvgGlucoseLevel float64 `json:"avg_glucose_level"`
	BMI             float64 `json:"bmi"`
	SmokingStatus   string  `json:"smoking_status"`
	Stroke          int     `json:"stroke"`
}

// Snapshot returns the record as a field map for audit payloads.
func (p Patient) Snapshot() map[string]any {
	return map[string]any{
		"id":                p.ID,
		"gender":            p.Gender,
		"age":               p.Age,
		"hypertension":      p.Hypertension,
		"heart_disease":     p.HeartDisease,
		"ever_married":      p.EverMarried,
		"work_type":         p.WorkType,
		"residence_type":    p.ResidenceType,
		"avg_glucose_level": p.AvgGlucoseLevel,
		"bmi":               p.BMI,
		"smoking_status":    p.SmokingStatus,
		"stroke":            p.Stroke,
	}
}

// HistoryEntry is an append-only prior-state snapshot written on every
// patient update. PatientID may reference a since-deleted record.
type HistoryEntry struct {
	PatientID  int       `json:"patientId"`
	ModifiedBy string    `json:"modifiedBy"`
	ModifiedAt time.Time `json:"modifiedAt"`
	OldData    Patient   `json:"oldData"`
	NewData    Patient   `json:"newData"`
}

// AccessLog records who did what, when. Append-only.
type AccessLog struct {
	UserEmail string         `json:"userEmail"`
	Action    string         `json:"action"`
	Resource  string         `json:"resource"`
	Timestamp time.Time      `json:"timestamp"`
	Details   map[string]any `json:"details,omitempty"`
}

// DataChange records one CRUD mutation with old/new values. Append-only.
// OldData is absent for CREATE, NewData for DELETE.
type DataChange struct {
	UserEmail  string         `json:"userEmail"`
	Operation  string         `json:"operation"`
	Database   string         `json:"database"`
	Collection string         `json:"collection"`
	RecordID   string         `json:"recordId"`
	OldData    map[string]any `json:"oldData,omitempty"`
	NewData    map[string]any `json:"newData,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}
