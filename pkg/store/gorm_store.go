package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"strokeregistry/pkg/domain"
)

// GormStore implements Store on GORM with Postgres or SQLite.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the database and runs auto-migrations, which create
// the unique and secondary indexes declared on the models.
func NewGormStore(driver, dsn string) (*GormStore, error) {
	var dialector gorm.Dialector
	switch driver {
	case "", "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.AutoMigrate(
		&UserModel{}, &SessionModel{}, &PatientModel{},
		&HistoryModel{}, &AccessLogModel{}, &DataChangeModel{},
	); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

// --- users ---

func (s *GormStore) SaveUser(u domain.User) error {
	model := UserModel{
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		DisplayName:  u.DisplayName,
		Role:         string(u.Role),
		CreatedAt:    u.CreatedAt,
	}
	return s.db.Create(&model).Error
}

func (s *GormStore) GetUserByEmail(email string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.First(&model, "email = ?", email).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return domain.User{
		Email:        model.Email,
		PasswordHash: model.PasswordHash,
		DisplayName:  model.DisplayName,
		Role:         domain.Role(model.Role),
		CreatedAt:    model.CreatedAt,
	}, true, nil
}

func (s *GormStore) HasUserEmail(email string) (bool, error) {
	var count int64
	if err := s.db.Model(&UserModel{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *GormStore) UserCount() (int64, error) {
	var count int64
	err := s.db.Model(&UserModel{}).Count(&count).Error
	return count, err
}

// --- sessions ---

func (s *GormStore) CreateSession(sess domain.Session) error {
	model := sessionToModel(sess)
	return s.db.Create(&model).Error
}

func (s *GormStore) GetSessionByToken(token string) (domain.Session, bool, error) {
	var model SessionModel
	if err := s.db.First(&model, "token = ?", token).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Session{}, false, nil
		}
		return domain.Session{}, false, err
	}
	return sessionFromModel(model), true, nil
}

func (s *GormStore) EndSession(email, token string, at time.Time) (bool, error) {
	res := s.db.Model(&SessionModel{}).
		Where("user_email = ? AND token = ? AND active", email, token).
		Updates(map[string]any{"active": false, "logout_time": at})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *GormStore) TouchSession(token string, at time.Time) error {
	return s.db.Model(&SessionModel{}).
		Where("token = ? AND active", token).
		Update("last_activity", at).Error
}

func (s *GormStore) ListSessionsByUser(email string) ([]domain.Session, error) {
	var models []SessionModel
	if err := s.db.Where("user_email = ?", email).Order("login_time DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Session, 0, len(models))
	for _, m := range models {
		res = append(res, sessionFromModel(m))
	}
	return res, nil
}

func (s *GormStore) SessionCount() (int64, error) {
	var count int64
	err := s.db.Model(&SessionModel{}).Count(&count).Error
	return count, err
}

// --- patients ---

func (s *GormStore) InsertPatient(p domain.Patient) error {
	model := patientToModel(p)
	if err := s.db.Create(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateID
		}
		return err
	}
	return nil
}

func (s *GormStore) GetPatient(id int) (domain.Patient, bool, error) {
	var model PatientModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Patient{}, false, nil
		}
		return domain.Patient{}, false, err
	}
	return patientFromModel(model), true, nil
}

func (s *GormStore) UpdatePatient(p domain.Patient) error {
	model := patientToModel(p)
	// Full-document replace, zero values included.
	return s.db.Model(&PatientModel{}).Where("id = ?", p.ID).
		Select("*").Omit("id").Updates(model).Error
}

func (s *GormStore) DeletePatient(id int) error {
	return s.db.Delete(&PatientModel{}, "id = ?", id).Error
}

func (s *GormStore) ListPatients() ([]domain.Patient, error) {
	var models []PatientModel
	if err := s.db.Order("id ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Patient, 0, len(models))
	for _, m := range models {
		res = append(res, patientFromModel(m))
	}
	return res, nil
}

func (s *GormStore) PatientCount() (int64, error) {
	var count int64
	err := s.db.Model(&PatientModel{}).Count(&count).Error
	return count, err
}

func (s *GormStore) StrokeCount() (int64, error) {
	var count int64
	err := s.db.Model(&PatientModel{}).Where("stroke = 1").Count(&count).Error
	return count, err
}

func (s *GormStore) HighRiskCount() (int64, error) {
	var count int64
	err := s.db.Model(&PatientModel{}).
		Where("(hypertension = 1 AND heart_disease = 1) OR (age >= 65 AND hypertension = 1)").
		Count(&count).Error
	return count, err
}

func (s *GormStore) AverageAge() (float64, error) {
	var avg float64
	err := s.db.Model(&PatientModel{}).Select("COALESCE(AVG(age), 0)").Scan(&avg).Error
	return avg, err
}

func (s *GormStore) GenderCounts() (map[string]int64, error) {
	var rows []struct {
		Gender string
		Count  int64
	}
	if err := s.db.Model(&PatientModel{}).
		Select("gender, COUNT(*) AS count").Group("gender").Scan(&rows).Error; err != nil {
		return nil, err
	}
	res := make(map[string]int64, len(rows))
	for _, row := range rows {
		res[row.Gender] = row.Count
	}
	return res, nil
}

// --- history ---

func (s *GormStore) AppendHistory(entry domain.HistoryEntry) error {
	oldData, err := json.Marshal(entry.OldData)
	if err != nil {
		return fmt.Errorf("marshal old data: %w", err)
	}
	newData, err := json.Marshal(entry.NewData)
	if err != nil {
		return fmt.Errorf("marshal new data: %w", err)
	}
	model := HistoryModel{
		PatientID:  entry.PatientID,
		ModifiedBy: entry.ModifiedBy,
		ModifiedAt: entry.ModifiedAt,
		OldData:    oldData,
		NewData:    newData,
	}
	return s.db.Create(&model).Error
}

func (s *GormStore) ListHistoryByPatient(id int) ([]domain.HistoryEntry, error) {
	var models []HistoryModel
	if err := s.db.Where("patient_id = ?", id).
		Order("modified_at DESC, id DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.HistoryEntry, 0, len(models))
	for _, m := range models {
		entry := domain.HistoryEntry{
			PatientID:  m.PatientID,
			ModifiedBy: m.ModifiedBy,
			ModifiedAt: m.ModifiedAt,
		}
		if err := json.Unmarshal(m.OldData, &entry.OldData); err != nil {
			return nil, fmt.Errorf("unmarshal old data: %w", err)
		}
		if err := json.Unmarshal(m.NewData, &entry.NewData); err != nil {
			return nil, fmt.Errorf("unmarshal new data: %w", err)
		}
		res = append(res, entry)
	}
	return res, nil
}

func (s *GormStore) HistoryCount() (int64, error) {
	var count int64
	err := s.db.Model(&HistoryModel{}).Count(&count).Error
	return count, err
}

// --- audit ---

func (s *GormStore) AppendAccessLog(entry domain.AccessLog) error {
	model := AccessLogModel{
		UserEmail: entry.UserEmail,
		Action:    entry.Action,
		Resource:  entry.Resource,
		Timestamp: entry.Timestamp,
		Details:   entry.Details,
	}
	return s.db.Create(&model).Error
}

func (s *GormStore) AppendDataChange(entry domain.DataChange) error {
	model := DataChangeModel{
		UserEmail:  entry.UserEmail,
		Operation:  entry.Operation,
		Database:   entry.Database,
		Collection: entry.Collection,
		RecordID:   entry.RecordID,
		OldData:    entry.OldData,
		NewData:    entry.NewData,
		Timestamp:  entry.Timestamp,
	}
	return s.db.Create(&model).Error
}

func (s *GormStore) ListAccessLogsByUser(email string, limit int) ([]domain.AccessLog, error) {
	var models []AccessLogModel
	tx := s.db.Where("user_email = ?", email).Order("timestamp DESC, id DESC")
	if limit > 0 {
		tx = tx.Limit(limit)
	}
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.AccessLog, 0, len(models))
	for _, m := range models {
		res = append(res, domain.AccessLog{
			UserEmail: m.UserEmail,
			Action:    m.Action,
			Resource:  m.Resource,
			Timestamp: m.Timestamp,
			Details:   m.Details,
		})
	}
	return res, nil
}

func (s *GormStore) ListDataChangesByUser(email string, limit int) ([]domain.DataChange, error) {
	tx := s.db.Where("user_email = ?", email).Order("timestamp DESC, id DESC")
	if limit > 0 {
		tx = tx.Limit(limit)
	}
	return s.findDataChanges(tx)
}

func (s *GormStore) ListDataChangesByRecord(recordID, database string) ([]domain.DataChange, error) {
	tx := s.db.Where("record_id = ? AND database = ?", recordID, database).
		Order("timestamp DESC, id DESC")
	return s.findDataChanges(tx)
}

func (s *GormStore) findDataChanges(tx *gorm.DB) ([]domain.DataChange, error) {
	var models []DataChangeModel
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.DataChange, 0, len(models))
	for _, m := range models {
		res = append(res, domain.DataChange{
			UserEmail:  m.UserEmail,
			Operation:  m.Operation,
			Database:   m.Database,
			Collection: m.Collection,
			RecordID:   m.RecordID,
			OldData:    m.OldData,
			NewData:    m.NewData,
			Timestamp:  m.Timestamp,
		})
	}
	return res, nil
}

func (s *GormStore) AccessLogCount() (int64, error) {
	var count int64
	err := s.db.Model(&AccessLogModel{}).Count(&count).Error
	return count, err
}

func (s *GormStore) DataChangeCount() (int64, error) {
	var count int64
	err := s.db.Model(&DataChangeModel{}).Count(&count).Error
	return count, err
}

// --- model conversion ---

func sessionToModel(s domain.Session) SessionModel {
	return SessionModel{
		UserEmail:    s.UserEmail,
		Token:        s.Token,
		LoginTime:    s.LoginTime,
		LastActivity: s.LastActivity,
		Active:       s.Active,
		LogoutTime:   s.LogoutTime,
	}
}

func sessionFromModel(m SessionModel) domain.Session {
	return domain.Session{
		UserEmail:    m.UserEmail,
		Token:        m.Token,
		LoginTime:    m.LoginTime,
		LastActivity: m.LastActivity,
		Active:       m.Active,
		LogoutTime:   m.LogoutTime,
	}
}

func patientToModel(p domain.Patient) PatientModel {
	return PatientModel{
		ID:              p.ID,
		Gender:          p.Gender,
		Age:             p.Age,
		Hypertension:    p.Hypertension,
		HeartDisease:    p.HeartDisease,
		EverMarried:     p.EverMarried,
		WorkType:        p.WorkType,
		ResidenceType:   p.ResidenceType,
		AvgGlucoseLevel: p.AvgGlucoseLevel,
		BMI:             p.BMI,
		SmokingStatus:   p.SmokingStatus,
		Stroke:          p.Stroke,
	}
}

func patientFromModel(m PatientModel) domain.Patient {
	return domain.Patient{
		ID:              m.ID,
		Gender:          m.Gender,
		Age:             m.Age,
		Hypertension:    m.Hypertension,
		HeartDisease:    m.HeartDisease,
		EverMarried:     m.EverMarried,
		WorkType:        m.WorkType,
		ResidenceType:   m.ResidenceType,
		AvgGlucoseLevel: m.AvgGlucoseLevel,
		BMI:             m.BMI,
		SmokingStatus:   m.SmokingStatus,
		Stroke:          m.Stroke,
	}
}
