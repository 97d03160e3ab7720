package mock

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/jon4hz/chartwise/internal/database"
	"gorm.io/gorm"
)

var _ database.DB = (*MockDB)(nil)

// MockDB is a mock implementation of database.DB for testing.
type MockDB struct {
	mu sync.RWMutex

	// User storage
	users      map[uint]*database.User
	nextUserID uint

	// Chart storage
	charts      map[uint]*database.Chart
	nextChartID uint

	// clock for CreatedAt/UpdatedAt, advanced by one second per write
	now time.Time

	// Error simulation
	CreateUserError              error
	GetUserByIDError             error
	GetUserByEmailError          error
	GetAllUsersError             error
	UpdateUserError              error
	DeleteUserError              error
	GetUserByResetTokenError     error
	ClearExpiredResetTokensError error
	CreateChartError             error
	GetChartError                error
	GetChartsError               error
	UpdateChartError             error
	DeleteChartError             error
	StatsError                   error

	// Calls counts every store call by method name.
	Calls map[string]int
}

// NewMockDB creates a new MockDB instance.
func NewMockDB() *MockDB {
	m := &MockDB{}
	m.Reset()
	return m
}

// Reset clears all data and errors from the mock database.
func (m *MockDB) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.users = make(map[uint]*database.User)
	m.nextUserID = 1
	m.charts = make(map[uint]*database.Chart)
	m.nextChartID = 1
	m.now = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m.Calls = make(map[string]int)

	m.CreateUserError = nil
	m.GetUserByIDError = nil
	m.GetUserByEmailError = nil
	m.GetAllUsersError = nil
	m.UpdateUserError = nil
	m.DeleteUserError = nil
	m.GetUserByResetTokenError = nil
	m.ClearExpiredResetTokensError = nil
	m.CreateChartError = nil
	m.GetChartError = nil
	m.GetChartsError = nil
	m.UpdateChartError = nil
	m.DeleteChartError = nil
	m.StatsError = nil
}

// CallCount returns how often the named method was called.
func (m *MockDB) CallCount(method string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.Calls[method]
}

// TotalCalls returns the number of store calls made so far.
func (m *MockDB) TotalCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var n int
	for _, c := range m.Calls {
		n += c
	}
	return n
}

func (m *MockDB) track(method string) {
	m.mu.Lock()
	m.Calls[method]++
	m.mu.Unlock()
}

func (m *MockDB) tick() time.Time {
	m.now = m.now.Add(time.Second)
	return m.now
}

func (m *MockDB) Close() error { return nil }

// User operations

func (m *MockDB) CreateUser(ctx context.Context, user *database.User) error {
	m.track("CreateUser")
	if m.CreateUserError != nil {
		return m.CreateUserError
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if u.Email == user.Email {
			return gorm.ErrDuplicatedKey
		}
	}
	if user.Role == "" {
		user.Role = database.RoleUser
	}
	user.ID = m.nextUserID
	m.nextUserID++
	user.CreatedAt = m.tick()
	user.UpdatedAt = user.CreatedAt

	stored := *user
	m.users[user.ID] = &stored
	return nil
}

func (m *MockDB) GetUserByID(ctx context.Context, id uint) (*database.User, error) {
	m.track("GetUserByID")
	if m.GetUserByIDError != nil {
		return nil, m.GetUserByIDError
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	user, ok := m.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	u := *user
	return &u, nil
}

func (m *MockDB) GetUserByEmail(ctx context.Context, email string) (*database.User, error) {
	m.track("GetUserByEmail")
	if m.GetUserByEmailError != nil {
		return nil, m.GetUserByEmailError
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, user := range m.users {
		if user.Email == email {
			u := *user
			return &u, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *MockDB) GetAllUsers(ctx context.Context) ([]database.User, error) {
	m.track("GetAllUsers")
	if m.GetAllUsersError != nil {
		return nil, m.GetAllUsersError
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	users := make([]database.User, 0, len(m.users))
	for _, u := range m.users {
		users = append(users, *u)
	}
	slices.SortFunc(users, func(a, b database.User) int { return cmp.Compare(a.ID, b.ID) })
	return users, nil
}

func (m *MockDB) updateUser(method string, id uint, fn func(u *database.User)) error {
	m.track(method)
	if m.UpdateUserError != nil {
		return m.UpdateUserError
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	fn(user)
	user.UpdatedAt = m.tick()
	return nil
}

func (m *MockDB) UpdateUserRole(ctx context.Context, id uint, role database.Role) error {
	return m.updateUser("UpdateUserRole", id, func(u *database.User) { u.Role = role })
}

func (m *MockDB) SetUserBlocked(ctx context.Context, id uint, blocked bool) error {
	return m.updateUser("SetUserBlocked", id, func(u *database.User) { u.IsBlocked = blocked })
}

func (m *MockDB) UpdateUserPassword(ctx context.Context, id uint, passwordHash string) error {
	return m.updateUser("UpdateUserPassword", id, func(u *database.User) {
		u.Password = passwordHash
		u.ResetTokenHash = nil
		u.ResetTokenExpiresAt = nil
	})
}

func (m *MockDB) SetResetToken(ctx context.Context, id uint, tokenHash string, expiresAt time.Time) error {
	return m.updateUser("SetResetToken", id, func(u *database.User) {
		u.ResetTokenHash = &tokenHash
		u.ResetTokenExpiresAt = &expiresAt
	})
}

func (m *MockDB) DeleteUser(ctx context.Context, id uint) error {
	m.track("DeleteUser")
	if m.DeleteUserError != nil {
		return m.DeleteUserError
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(m.users, id)
	return nil
}

func (m *MockDB) GetUserByResetToken(ctx context.Context, tokenHash string, now time.Time) (*database.User, error) {
	m.track("GetUserByResetToken")
	if m.GetUserByResetTokenError != nil {
		return nil, m.GetUserByResetTokenError
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, user := range m.users {
		if user.ResetTokenHash != nil && *user.ResetTokenHash == tokenHash &&
			user.ResetTokenExpiresAt != nil && user.ResetTokenExpiresAt.After(now) {
			u := *user
			return &u, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *MockDB) ClearExpiredResetTokens(ctx context.Context, now time.Time) (int64, error) {
	m.track("ClearExpiredResetTokens")
	if m.ClearExpiredResetTokensError != nil {
		return 0, m.ClearExpiredResetTokensError
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for _, user := range m.users {
		if user.ResetTokenExpiresAt != nil && !user.ResetTokenExpiresAt.After(now) {
			user.ResetTokenHash = nil
			user.ResetTokenExpiresAt = nil
			n++
		}
	}
	return n, nil
}

// Chart operations

func (m *MockDB) CreateChart(ctx context.Context, chart *database.Chart) error {
	m.track("CreateChart")
	if m.CreateChartError != nil {
		return m.CreateChartError
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	chart.ID = m.nextChartID
	m.nextChartID++
	chart.CreatedAt = m.tick()
	chart.UpdatedAt = chart.CreatedAt

	stored := *chart
	m.charts[chart.ID] = &stored
	return nil
}

func (m *MockDB) GetChart(ctx context.Context, id, userID uint) (*database.Chart, error) {
	m.track("GetChart")
	if m.GetChartError != nil {
		return nil, m.GetChartError
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	chart, ok := m.charts[id]
	if !ok || chart.UserID != userID {
		return nil, gorm.ErrRecordNotFound
	}
	c := *chart
	return &c, nil
}

func (m *MockDB) GetCharts(ctx context.Context, userID uint, pinned bool) ([]database.Chart, error) {
	m.track("GetCharts")
	if m.GetChartsError != nil {
		return nil, m.GetChartsError
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	charts := []database.Chart{}
	for _, c := range m.charts {
		if c.UserID == userID && c.IsPinned == pinned {
			charts = append(charts, *c)
		}
	}
	slices.SortFunc(charts, func(a, b database.Chart) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return charts, nil
}

func (m *MockDB) UpdateChart(ctx context.Context, id, userID uint, update database.ChartUpdate) (*database.Chart, error) {
	m.track("UpdateChart")
	if m.UpdateChartError != nil {
		return nil, m.UpdateChartError
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	chart, ok := m.charts[id]
	if !ok || chart.UserID != userID {
		return nil, gorm.ErrRecordNotFound
	}
	if update.ChartType != nil {
		chart.ChartType = *update.ChartType
	}
	if update.XKey != nil {
		chart.XKey = *update.XKey
	}
	if update.YKey != nil {
		chart.YKey = *update.YKey
	}
	if update.Title != nil {
		chart.Title = *update.Title
	}
	if update.IsPinned != nil {
		chart.IsPinned = *update.IsPinned
	}
	if update.Data != nil {
		chart.Data = *update.Data
	}
	chart.UpdatedAt = m.tick()

	c := *chart
	return &c, nil
}

func (m *MockDB) DeleteChart(ctx context.Context, id, userID uint) error {
	m.track("DeleteChart")
	if m.DeleteChartError != nil {
		return m.DeleteChartError
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	chart, ok := m.charts[id]
	if !ok || chart.UserID != userID {
		return gorm.ErrRecordNotFound
	}
	delete(m.charts, id)
	return nil
}

// Stats operations

func (m *MockDB) CountUsers(ctx context.Context) (int64, error) {
	m.track("CountUsers")
	if m.StatsError != nil {
		return 0, m.StatsError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.users)), nil
}

func (m *MockDB) CountBlockedUsers(ctx context.Context) (int64, error) {
	m.track("CountBlockedUsers")
	if m.StatsError != nil {
		return 0, m.StatsError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var n int64
	for _, u := range m.users {
		if u.IsBlocked {
			n++
		}
	}
	return n, nil
}

func (m *MockDB) CountCharts(ctx context.Context) (int64, error) {
	m.track("CountCharts")
	if m.StatsError != nil {
		return 0, m.StatsError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.charts)), nil
}

func (m *MockDB) MostUsedChartType(ctx context.Context) (string, error) {
	m.track("MostUsedChartType")
	if m.StatsError != nil {
		return "", m.StatsError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[string]int)
	for _, c := range m.charts {
		counts[c.ChartType]++
	}
	var (
		best  string
		total int
	)
	for typ, n := range counts {
		if n > total || (n == total && typ < best) {
			best, total = typ, n
		}
	}
	return best, nil
}

// Helper methods for testing

// AddUser stores a user as is, assigning an ID if it has none.
func (m *MockDB) AddUser(user database.User) *database.User {
	m.mu.Lock()
	defer m.mu.Unlock()

	if user.ID == 0 {
		user.ID = m.nextUserID
		m.nextUserID++
	} else if user.ID >= m.nextUserID {
		m.nextUserID = user.ID + 1
	}
	m.users[user.ID] = &user
	u := user
	return &u
}
