package store

import (
	"sort"
	"sync"
	"time"

	"strokeregistry/pkg/domain"
)

// MemoryStore is an in-process Store used by tests and local tooling.
// It mirrors the GormStore semantics, including the unique patient id
// constraint and newest-first log ordering.
type MemoryStore struct {
	mu       sync.RWMutex
	users    map[string]domain.User
	sessions []domain.Session
	patients map[int]domain.Patient
	history  []domain.HistoryEntry
	access   []domain.AccessLog
	changes  []domain.DataChange
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[string]domain.User),
		patients: make(map[int]domain.Patient),
	}
}

// --- users ---

func (m *MemoryStore) SaveUser(u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.Email] = u
	return nil
}

func (m *MemoryStore) GetUserByEmail(email string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[email]
	return u, ok, nil
}

func (m *MemoryStore) HasUserEmail(email string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.users[email]
	return ok, nil
}

func (m *MemoryStore) UserCount() (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.users)), nil
}

// --- sessions ---

func (m *MemoryStore) CreateSession(s domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = append(m.sessions, s)
	return nil
}

func (m *MemoryStore) GetSessionByToken(token string) (domain.Session, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.sessions {
		if s.Token == token {
			return s, true, nil
		}
	}
	return domain.Session{}, false, nil
}

func (m *MemoryStore) EndSession(email, token string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.sessions {
		s := &m.sessions[i]
		if s.UserEmail == email && s.Token == token && s.Active {
			s.Active = false
			logout := at
			s.LogoutTime = &logout
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStore) TouchSession(token string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.sessions {
		if m.sessions[i].Token == token && m.sessions[i].Active {
			m.sessions[i].LastActivity = at
		}
	}
	return nil
}

func (m *MemoryStore) ListSessionsByUser(email string) ([]domain.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var res []domain.Session
	for i := len(m.sessions) - 1; i >= 0; i-- {
		if m.sessions[i].UserEmail == email {
			res = append(res, m.sessions[i])
		}
	}
	return res, nil
}

func (m *MemoryStore) SessionCount() (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.sessions)), nil
}

// --- patients ---

func (m *MemoryStore) InsertPatient(p domain.Patient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.patients[p.ID]; exists {
		return ErrDuplicateID
	}
	m.patients[p.ID] = p
	return nil
}

func (m *MemoryStore) GetPatient(id int) (domain.Patient, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.patients[id]
	return p, ok, nil
}

func (m *MemoryStore) UpdatePatient(p domain.Patient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.patients[p.ID] = p
	return nil
}

func (m *MemoryStore) DeletePatient(id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.patients, id)
	return nil
}

func (m *MemoryStore) ListPatients() ([]domain.Patient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Patient, 0, len(m.patients))
	for _, p := range m.patients {
		res = append(res, p)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

func (m *MemoryStore) PatientCount() (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.patients)), nil
}

func (m *MemoryStore) StrokeCount() (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var count int64
	for _, p := range m.patients {
		if p.Stroke == 1 {
			count++
		}
	}
	return count, nil
}

func (m *MemoryStore) HighRiskCount() (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var count int64
	for _, p := range m.patients {
		if (p.Hypertension == 1 && p.HeartDisease == 1) ||
			(p.Age >= 65 && p.Hypertension == 1) {
			count++
		}
	}
	return count, nil
}

func (m *MemoryStore) AverageAge() (float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.patients) == 0 {
		return 0, nil
	}
	var sum float64
	for _, p := range m.patients {
		sum += p.Age
	}
	return sum / float64(len(m.patients)), nil
}

func (m *MemoryStore) GenderCounts() (map[string]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make(map[string]int64)
	for _, p := range m.patients {
		res[p.Gender]++
	}
	return res, nil
}

// --- history ---

func (m *MemoryStore) AppendHistory(entry domain.HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, entry)
	return nil
}

func (m *MemoryStore) ListHistoryByPatient(id int) ([]domain.HistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var res []domain.HistoryEntry
	for i := len(m.history) - 1; i >= 0; i-- {
		if m.history[i].PatientID == id {
			res = append(res, m.history[i])
		}
	}
	return res, nil
}

func (m *MemoryStore) HistoryCount() (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.history)), nil
}

// --- audit ---

func (m *MemoryStore) AppendAccessLog(entry domain.AccessLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.access = append(m.access, entry)
	return nil
}

func (m *MemoryStore) AppendDataChange(entry domain.DataChange) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.changes = append(m.changes, entry)
	return nil
}

func (m *MemoryStore) ListAccessLogsByUser(email string, limit int) ([]domain.AccessLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var res []domain.AccessLog
	for i := len(m.access) - 1; i >= 0; i-- {
		if m.access[i].UserEmail == email {
			res = append(res, m.access[i])
			if limit > 0 && len(res) == limit {
				break
			}
		}
	}
	return res, nil
}

func (m *MemoryStore) ListDataChangesByUser(email string, limit int) ([]domain.DataChange, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var res []domain.DataChange
	for i := len(m.changes) - 1; i >= 0; i-- {
		if m.changes[i].UserEmail == email {
			res = append(res, m.changes[i])
			if limit > 0 && len(res) == limit {
				break
			}
		}
	}
	return res, nil
}

func (m *MemoryStore) ListDataChangesByRecord(recordID, database string) ([]domain.DataChange, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var res []domain.DataChange
	for i := len(m.changes) - 1; i >= 0; i-- {
		if m.changes[i].RecordID == recordID && m.changes[i].Database == database {
			res = append(res, m.changes[i])
		}
	}
	return res, nil
}

func (m *MemoryStore) AccessLogCount() (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.access)), nil
}

func (m *MemoryStore) DataChangeCount() (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.changes)), nil
}

var _ Store = (*MemoryStore)(nil)
var _ Store = (*GormStore)(nil)
