package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence. Index tags back the sorted,
// filtered scans the report queries depend on.
type UserModel struct {
	Email        string `gorm:"primaryKey"`
	PasswordHash string `gorm:"not null"`
	DisplayName  string
	Role         string    `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
}

type SessionModel struct {
	ID           uint   `gorm:"primaryKey"`
	UserEmail    string `gorm:"not null;index"`
	Token        string `gorm:"uniqueIndex;not null"`
	LoginTime    time.Time
	LastActivity time.Time
	Active       bool
	LogoutTime   *time.Time
}

type PatientModel struct {
	ID              int `gorm:"primaryKey"`
	Gender          string
	Age             float64
	Hypertension    int
	HeartDisease    int
	EverMarried     string
	WorkType        string
	ResidenceType   string
	AvgGlucoseLevel float64
	BMI             float64 `gorm:"column:bmi"`
	SmokingStatus   string
	Stroke          int
}

type HistoryModel struct {
	ID         uint           `gorm:"primaryKey"`
	PatientID  int            `gorm:"not null;index"`
	ModifiedBy string         `gorm:"not null"`
	ModifiedAt time.Time      `gorm:"not null;index"`
	OldData    datatypes.JSON `gorm:"not null"`
	NewData    datatypes.JSON `gorm:"not null"`
}

type AccessLogModel struct {
	ID        uint   `gorm:"primaryKey"`
	UserEmail string `gorm:"not null;index"`
	Action    string `gorm:"not null"`
	Resource  string
	Timestamp time.Time `gorm:"not null;index"`
	Details   datatypes.JSONMap
}

type DataChangeModel struct {
	ID         uint      `gorm:"primaryKey"`
	UserEmail  string    `gorm:"not null;index"`
	Operation  string    `gorm:"not null"`
	Database   string    `gorm:"not null"`
	Collection string    `gorm:"not null"`
	RecordID   string    `gorm:"not null;index"`
	OldData    datatypes.JSONMap
	NewData    datatypes.JSONMap
	Timestamp  time.Time `gorm:"not null;index"`
}
