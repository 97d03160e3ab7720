package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jon4hz/chartwise/internal/api/auth"
	"github.com/jon4hz/chartwise/internal/api/models"
	"github.com/jon4hz/chartwise/internal/apperr"
	"github.com/jon4hz/chartwise/internal/config"
	"github.com/jon4hz/chartwise/internal/database"
	"github.com/jon4hz/chartwise/internal/database/mock"
	"github.com/jon4hz/chartwise/internal/insight"
	"github.com/jon4hz/chartwise/internal/notify/email"
	"github.com/jon4hz/chartwise/internal/sheet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"
)

type fakeSummarizer struct {
	answer string
	err    error
	got    []insight.Request
}

func (f *fakeSummarizer) Summarize(_ context.Context, req insight.Request) (string, error) {
	f.got = append(f.got, req)
	return f.answer, f.err
}

type fakeMailer struct {
	mu     sync.Mutex
	resets []email.PasswordReset
	err    error
}

func (f *fakeMailer) SendPasswordReset(reset email.PasswordReset) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets = append(f.resets, reset)
	return f.err
}

type fakeVerifier struct {
	identity *auth.FederatedIdentity
	err      error
}

func (f *fakeVerifier) Verify(_ context.Context, _ string) (*auth.FederatedIdentity, error) {
	return f.identity, f.err
}

func testConfig() *config.Config {
	return &config.Config{
		ClientURL: "http://client.test",
		Database:  &config.DatabaseConfig{Driver: config.DatabaseDriverSQLite, Path: ":memory:"},
		Auth: &config.AuthConfig{
			JWTSecret:     "0123456789abcdef0123",
			TokenTTL:      time.Hour,
			ResetTokenTTL: time.Hour,
		},
		Upload:   &config.UploadConfig{MaxSize: 1 << 20},
		Insight:  &config.InsightConfig{Timeout: time.Second, MaxRows: config.MaxInsightRows},
		Email:    &config.EmailConfig{},
		Gravatar: &config.GravatarConfig{},
		Janitor:  &config.JanitorConfig{Schedule: "0 * * * *"},
	}
}

type EngineTestSuite struct {
	suite.Suite
	ctx        context.Context
	db         *mock.MockDB
	cfg        *config.Config
	summarizer *fakeSummarizer
	mailer     *fakeMailer
	verifier   *fakeVerifier
	now        time.Time
	engine     *Engine

	admin *models.Identity
	alice *models.Identity
	bob   *models.Identity
}

func (s *EngineTestSuite) SetupSuite() {
	auth.BcryptCost = bcrypt.MinCost
}

func (s *EngineTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.db = mock.NewMockDB()
	s.cfg = testConfig()
	s.summarizer = &fakeSummarizer{answer: "Sales grow steadily."}
	s.mailer = &fakeMailer{}
	s.verifier = &fakeVerifier{}
	s.now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	e, err := New(s.ctx, s.cfg, s.db,
		WithSummarizer(s.summarizer),
		WithMailer(s.mailer),
		WithIDTokenVerifier(s.verifier),
		WithClock(func() time.Time { return s.now }),
	)
	s.Require().NoError(err)
	s.engine = e

	admin := s.db.AddUser(database.User{Name: "Admin", Email: "admin@example.com", Role: database.RoleAdmin})
	alice := s.db.AddUser(database.User{Name: "Alice", Email: "alice@example.com", Role: database.RoleUser})
	bob := s.db.AddUser(database.User{Name: "Bob", Email: "bob@example.com", Role: database.RoleUser})
	s.admin = &models.Identity{ID: admin.ID, Role: admin.Role}
	s.alice = &models.Identity{ID: alice.ID, Role: alice.Role}
	s.bob = &models.Identity{ID: bob.ID, Role: bob.Role}
}

func (s *EngineTestSuite) TearDownTest() {
	s.NoError(s.engine.Close())
}

func TestEngineTestSuite(t *testing.T) {
	suite.Run(t, new(EngineTestSuite))
}

func sampleRows() sheet.Rows {
	return sheet.Rows{
		{"month": sheet.String("Jan"), "sales": sheet.Number(100)},
		{"month": sheet.String("Feb"), "sales": sheet.Number(150)},
	}
}

func (s *EngineTestSuite) assertKind(err error, kind apperr.Kind) {
	s.T().Helper()
	s.Require().Error(err)
	s.Equal(kind, apperr.KindOf(err), "error: %v", err)
}

// Upload

func (s *EngineTestSuite) TestUploadInfersConfig() {
	csv := "month,sales,cost\nJan,100,80\nFeb,150,90\n"
	res, err := s.engine.Upload(s.ctx, s.alice, UploadFile{Name: "sales.csv", Content: []byte(csv)}, sheet.Config{})
	s.Require().NoError(err)

	s.Equal("File parsed and chart auto-saved", res.Message)
	s.Len(res.Data, 2)
	s.Equal("bar", res.Chart.ChartType)
	s.Equal("sales", res.Chart.XKey)
	s.Equal("cost", res.Chart.YKey)
	s.Equal("cost vs sales", res.Chart.Title)
	s.Equal("sales.csv", res.Chart.FileName)
	s.False(res.Chart.IsPinned)
	s.NotEmpty(res.FileID)
	s.Equal(res.FileID, res.Chart.FileID)
	s.Equal(s.alice.ID, res.Chart.UserID)

	history, err := s.engine.ChartHistory(s.ctx, s.alice)
	s.Require().NoError(err)
	s.Len(history, 1)
}

func (s *EngineTestSuite) TestUploadOverride() {
	csv := "month,sales,cost\nJan,100,80\n"
	res, err := s.engine.Upload(s.ctx, s.alice, UploadFile{Name: "sales.csv", Content: []byte(csv)},
		sheet.Config{ChartType: "line", XKey: "month", YKey: "sales"})
	s.Require().NoError(err)
	s.Equal("line", res.Chart.ChartType)
	s.Equal("month", res.Chart.XKey)
	s.Equal("sales vs month", res.Chart.Title)
}

func (s *EngineTestSuite) TestUploadRejectsWithoutSaving() {
	tests := []struct {
		name string
		file UploadFile
		kind apperr.Kind
	}{
		{"empty", UploadFile{Name: "a.csv"}, apperr.KindValidation},
		{"extension", UploadFile{Name: "a.txt", Content: []byte("a,b\n1,2\n")}, apperr.KindValidation},
		{"one numeric column", UploadFile{Name: "a.csv", Content: []byte("name,score\nann,1\n")}, apperr.KindValidation},
		{"corrupt workbook", UploadFile{Name: "a.xlsx", Content: []byte("PK\x03\x04garbage")}, apperr.KindParse},
		{"too large", UploadFile{Name: "a.csv", Content: []byte(strings.Repeat("1,2\n", 1<<19))}, apperr.KindValidation},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			_, err := s.engine.Upload(s.ctx, s.alice, tt.file, sheet.Config{})
			s.assertKind(err, tt.kind)
		})
	}
	s.Zero(s.db.CallCount("CreateChart"))
}

func (s *EngineTestSuite) TestUploadStorageFailure() {
	s.db.CreateChartError = errors.New("disk full")
	_, err := s.engine.Upload(s.ctx, s.alice, UploadFile{Name: "a.csv", Content: []byte("a,b\n1,2\n")}, sheet.Config{})
	s.ErrorIs(err, apperr.ErrStorage)
	s.Equal("internal server error", apperr.PublicMessage(err))
}

// Charts

func (s *EngineTestSuite) TestSaveChartRequiresData() {
	_, err := s.engine.SaveChart(s.ctx, s.alice, models.SaveChartRequest{ChartType: "bar"})
	s.assertKind(err, apperr.KindValidation)
	s.Zero(s.db.TotalCalls())
}

func (s *EngineTestSuite) TestChartOwnership() {
	chart, err := s.engine.SaveChart(s.ctx, s.alice, models.SaveChartRequest{
		ChartType: "bar", XKey: "month", YKey: "sales", Title: "Sales", Data: sampleRows(),
	})
	s.Require().NoError(err)

	_, err = s.engine.GetChart(s.ctx, s.bob, chart.ID)
	s.assertKind(err, apperr.KindNotFound)

	title := "stolen"
	_, err = s.engine.UpdateChart(s.ctx, s.bob, chart.ID, models.UpdateChartRequest{Title: &title})
	s.assertKind(err, apperr.KindNotFound)

	s.assertKind(s.engine.DeleteChart(s.ctx, s.bob, chart.ID), apperr.KindNotFound)

	got, err := s.engine.GetChart(s.ctx, s.alice, chart.ID)
	s.Require().NoError(err)
	s.Equal("Sales", got.Title)
}

func (s *EngineTestSuite) TestPinToggleMovesChart() {
	chart, err := s.engine.SaveChart(s.ctx, s.alice, models.SaveChartRequest{
		ChartType: "line", XKey: "month", YKey: "sales", Data: sampleRows(),
	})
	s.Require().NoError(err)

	pinned := true
	updated, err := s.engine.UpdateChart(s.ctx, s.alice, chart.ID, models.UpdateChartRequest{IsPinned: &pinned})
	s.Require().NoError(err)
	s.True(updated.IsPinned)
	s.Equal("line", updated.ChartType)

	saved, err := s.engine.SavedCharts(s.ctx, s.alice)
	s.Require().NoError(err)
	s.Len(saved, 1)
	history, err := s.engine.ChartHistory(s.ctx, s.alice)
	s.Require().NoError(err)
	s.Empty(history)

	pinned = false
	_, err = s.engine.UpdateChart(s.ctx, s.alice, chart.ID, models.UpdateChartRequest{IsPinned: &pinned})
	s.Require().NoError(err)
	saved, err = s.engine.SavedCharts(s.ctx, s.alice)
	s.Require().NoError(err)
	s.Empty(saved)
}

func (s *EngineTestSuite) TestUpdateChartRejectsEmptyData() {
	empty := sheet.Rows{}
	_, err := s.engine.UpdateChart(s.ctx, s.alice, 1, models.UpdateChartRequest{Data: &empty})
	s.assertKind(err, apperr.KindValidation)
}

func (s *EngineTestSuite) TestChartListsNeverNil() {
	history, err := s.engine.ChartHistory(s.ctx, s.bob)
	s.Require().NoError(err)
	s.NotNil(history)
	s.Empty(history)
}

func (s *EngineTestSuite) TestSummarize() {
	got, err := s.engine.Summarize(s.ctx, models.InsightRequest{ChartType: "bar", XKey: "month", YKey: "sales", Data: sampleRows()})
	s.Require().NoError(err)
	s.Equal("Sales grow steadily.", got)
	s.Require().Len(s.summarizer.got, 1)
	s.Equal("month", s.summarizer.got[0].XKey)

	s.summarizer.err = apperr.Upstream("insight request failed", errors.New("quota"))
	_, err = s.engine.Summarize(s.ctx, models.InsightRequest{})
	s.assertKind(err, apperr.KindUpstream)
	s.Zero(s.db.TotalCalls())
}

// Accounts

func (s *EngineTestSuite) TestRegisterAndLogin() {
	err := s.engine.Register(s.ctx, models.RegisterRequest{Name: "Carol", Email: " Carol@Example.com ", Password: "secret1"})
	s.Require().NoError(err)

	session, err := s.engine.Login(s.ctx, models.LoginRequest{Email: "carol@example.com", Password: "secret1"})
	s.Require().NoError(err)
	s.Equal(database.RoleUser, session.Role)

	identity, err := s.engine.Tokens().Verify(session.Token)
	s.Require().NoError(err)
	s.Equal(database.RoleUser, identity.Role)

	_, err = s.engine.Login(s.ctx, models.LoginRequest{Email: "carol@example.com", Password: "wrong"})
	s.ErrorIs(err, apperr.ErrUnauthenticated)
	_, err = s.engine.Login(s.ctx, models.LoginRequest{Email: "nobody@example.com", Password: "secret1"})
	s.assertKind(err, apperr.KindUnauthenticated)
}

func (s *EngineTestSuite) TestRegisterValidation() {
	tests := []struct {
		name string
		req  models.RegisterRequest
	}{
		{"bad email", models.RegisterRequest{Email: "not-an-email", Password: "secret1"}},
		{"short password", models.RegisterRequest{Email: "c@example.com", Password: "123"}},
		{"long password", models.RegisterRequest{Email: "c@example.com", Password: strings.Repeat("x", 73)}},
		{"unknown role", models.RegisterRequest{Email: "c@example.com", Password: "secret1", Role: "root"}},
		{"admin signup disabled", models.RegisterRequest{Email: "c@example.com", Password: "secret1", Role: database.RoleAdmin}},
		{"duplicate", models.RegisterRequest{Email: "alice@example.com", Password: "secret1"}},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.assertKind(s.engine.Register(s.ctx, tt.req), apperr.KindValidation)
		})
	}
}

func (s *EngineTestSuite) TestRegisterAdminWhenAllowed() {
	s.cfg.Auth.AllowAdminSignup = true
	s.Require().NoError(s.engine.Register(s.ctx, models.RegisterRequest{Email: "boss@example.com", Password: "secret1", Role: database.RoleAdmin}))
	user, err := s.db.GetUserByEmail(s.ctx, "boss@example.com")
	s.Require().NoError(err)
	s.Equal(database.RoleAdmin, user.Role)
}

func (s *EngineTestSuite) TestBlockedUserCannotLogin() {
	s.Require().NoError(s.engine.Register(s.ctx, models.RegisterRequest{Email: "dave@example.com", Password: "secret1"}))
	user, err := s.db.GetUserByEmail(s.ctx, "dave@example.com")
	s.Require().NoError(err)
	s.Require().NoError(s.db.SetUserBlocked(s.ctx, user.ID, true))

	_, err = s.engine.Login(s.ctx, models.LoginRequest{Email: "dave@example.com", Password: "secret1"})
	s.assertKind(err, apperr.KindForbidden)
}

func (s *EngineTestSuite) TestFederatedLogin() {
	s.verifier.identity = &auth.FederatedIdentity{Subject: "sub-1", Email: "Erin@Example.com", Name: "Erin"}

	session, err := s.engine.FederatedLogin(s.ctx, "id-token")
	s.Require().NoError(err)
	s.Equal(database.RoleUser, session.Role)
	s.Equal(1, s.db.CallCount("CreateUser"))

	// second login reuses the account
	_, err = s.engine.FederatedLogin(s.ctx, "id-token")
	s.Require().NoError(err)
	s.Equal(1, s.db.CallCount("CreateUser"))

	user, err := s.db.GetUserByEmail(s.ctx, "erin@example.com")
	s.Require().NoError(err)
	s.Equal("Erin", user.Name)
}

func (s *EngineTestSuite) TestFederatedLoginFailures() {
	_, err := s.engine.FederatedLogin(s.ctx, "")
	s.assertKind(err, apperr.KindValidation)

	s.verifier.err = errors.New("bad signature")
	_, err = s.engine.FederatedLogin(s.ctx, "id-token")
	s.assertKind(err, apperr.KindUnauthenticated)

	s.engine.federated = nil
	_, err = s.engine.FederatedLogin(s.ctx, "id-token")
	s.assertKind(err, apperr.KindNotFound)
}

func (s *EngineTestSuite) TestPasswordResetFlow() {
	s.Require().NoError(s.engine.Register(s.ctx, models.RegisterRequest{Name: "Frank", Email: "frank@example.com", Password: "secret1"}))
	s.Require().NoError(s.engine.ForgotPassword(s.ctx, "frank@example.com"))

	s.Require().Len(s.mailer.resets, 1)
	reset := s.mailer.resets[0]
	s.Equal("frank@example.com", reset.UserEmail)
	s.Equal(time.Hour, reset.ExpiresIn)
	s.Require().True(strings.HasPrefix(reset.ResetURL, "http://client.test/reset-password/"))
	token := strings.TrimPrefix(reset.ResetURL, "http://client.test/reset-password/")

	// only the hash is stored
	user, err := s.db.GetUserByEmail(s.ctx, "frank@example.com")
	s.Require().NoError(err)
	s.Require().NotNil(user.ResetTokenHash)
	s.NotEqual(token, *user.ResetTokenHash)

	s.assertKind(s.engine.ResetPassword(s.ctx, token, "123"), apperr.KindValidation)
	s.assertKind(s.engine.ResetPassword(s.ctx, "wrong", "newsecret"), apperr.KindValidation)
	s.Require().NoError(s.engine.ResetPassword(s.ctx, token, "newsecret"))

	// single use
	s.assertKind(s.engine.ResetPassword(s.ctx, token, "another1"), apperr.KindValidation)

	_, err = s.engine.Login(s.ctx, models.LoginRequest{Email: "frank@example.com", Password: "newsecret"})
	s.NoError(err)
}

func (s *EngineTestSuite) TestResetTokenExpires() {
	s.Require().NoError(s.engine.ForgotPassword(s.ctx, "alice@example.com"))
	s.Require().Len(s.mailer.resets, 1)
	token := strings.TrimPrefix(s.mailer.resets[0].ResetURL, "http://client.test/reset-password/")

	s.now = s.now.Add(2 * time.Hour)
	s.assertKind(s.engine.ResetPassword(s.ctx, token, "newsecret"), apperr.KindValidation)
}

func (s *EngineTestSuite) TestForgotPasswordHidesAccounts() {
	s.NoError(s.engine.ForgotPassword(s.ctx, "nobody@example.com"))
	s.Empty(s.mailer.resets)

	s.mailer.err = errors.New("smtp down")
	s.NoError(s.engine.ForgotPassword(s.ctx, "alice@example.com"))
	s.Len(s.mailer.resets, 1)

	s.assertKind(s.engine.ForgotPassword(s.ctx, "nope"), apperr.KindValidation)
}

func (s *EngineTestSuite) TestEnsureAdmin() {
	user, err := s.engine.EnsureAdmin(s.ctx, "Root", "root@example.com", "rootpass")
	s.Require().NoError(err)
	s.Equal(database.RoleAdmin, user.Role)

	promoted, err := s.engine.EnsureAdmin(s.ctx, "", "alice@example.com", "alicepass")
	s.Require().NoError(err)
	s.Equal(s.alice.ID, promoted.ID)

	session, err := s.engine.Login(s.ctx, models.LoginRequest{Email: "alice@example.com", Password: "alicepass"})
	s.Require().NoError(err)
	s.Equal(database.RoleAdmin, session.Role)
}

func (s *EngineTestSuite) TestClearExpiredResetTokens() {
	s.Require().NoError(s.engine.ForgotPassword(s.ctx, "alice@example.com"))

	msg, err := s.engine.clearExpiredResetTokens(s.ctx)
	s.Require().NoError(err)
	s.Equal("cleared 0 expired reset tokens", msg)

	s.now = s.now.Add(2 * time.Hour)
	msg, err = s.engine.clearExpiredResetTokens(s.ctx)
	s.Require().NoError(err)
	s.Equal("cleared 1 expired reset tokens", msg)

	jobs := s.engine.Jobs()
	s.Require().Len(jobs, 1)
	s.Equal("reset_token_janitor", jobs[0].ID)
}

// Admin

func (s *EngineTestSuite) TestAdminCannotTargetSelf() {
	s.assertKind(s.engine.UpdateUserRole(s.ctx, s.admin, s.admin.ID, database.RoleUser), apperr.KindForbidden)
	_, err := s.engine.ToggleUserBlock(s.ctx, s.admin, s.admin.ID)
	s.assertKind(err, apperr.KindForbidden)
	s.assertKind(s.engine.DeleteUser(s.ctx, s.admin, s.admin.ID), apperr.KindForbidden)
	s.Zero(s.db.TotalCalls())
}

func (s *EngineTestSuite) TestUpdateUserRole() {
	s.Require().NoError(s.engine.UpdateUserRole(s.ctx, s.admin, s.alice.ID, database.RoleAdmin))
	user, err := s.db.GetUserByID(s.ctx, s.alice.ID)
	s.Require().NoError(err)
	s.Equal(database.RoleAdmin, user.Role)

	s.assertKind(s.engine.UpdateUserRole(s.ctx, s.admin, s.alice.ID, "owner"), apperr.KindValidation)
	s.assertKind(s.engine.UpdateUserRole(s.ctx, s.admin, 999, database.RoleUser), apperr.KindNotFound)
}

func (s *EngineTestSuite) TestToggleUserBlock() {
	blocked, err := s.engine.ToggleUserBlock(s.ctx, s.admin, s.bob.ID)
	s.Require().NoError(err)
	s.True(blocked)

	blocked, err = s.engine.ToggleUserBlock(s.ctx, s.admin, s.bob.ID)
	s.Require().NoError(err)
	s.False(blocked)

	_, err = s.engine.ToggleUserBlock(s.ctx, s.admin, 999)
	s.assertKind(err, apperr.KindNotFound)
}

func (s *EngineTestSuite) TestDeleteUserKeepsCharts() {
	_, err := s.engine.SaveChart(s.ctx, s.bob, models.SaveChartRequest{ChartType: "pie", Data: sampleRows()})
	s.Require().NoError(err)

	s.Require().NoError(s.engine.DeleteUser(s.ctx, s.admin, s.bob.ID))
	s.assertKind(s.engine.DeleteUser(s.ctx, s.admin, s.bob.ID), apperr.KindNotFound)

	stats, err := s.engine.Stats(s.ctx)
	s.Require().NoError(err)
	s.EqualValues(2, stats.TotalUsers)
	s.EqualValues(1, stats.TotalCharts)
}

func (s *EngineTestSuite) TestListUsers() {
	users, err := s.engine.ListUsers(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(users, 3)
	s.Equal("admin@example.com", users[0].Email)
	s.Empty(users[0].AvatarURL)
}

func (s *EngineTestSuite) TestStats() {
	stats, err := s.engine.Stats(s.ctx)
	s.Require().NoError(err)
	s.Equal(&models.Stats{TotalUsers: 3, MostUsedChartType: "N/A"}, stats)

	for _, t := range []string{"bar", "line", "line"} {
		_, err := s.engine.SaveChart(s.ctx, s.alice, models.SaveChartRequest{ChartType: t, Data: sampleRows()})
		s.Require().NoError(err)
	}
	_, err = s.engine.ToggleUserBlock(s.ctx, s.admin, s.bob.ID)
	s.Require().NoError(err)

	stats, err = s.engine.Stats(s.ctx)
	s.Require().NoError(err)
	s.EqualValues(3, stats.TotalUsers)
	s.EqualValues(1, stats.BlockedUsers)
	s.EqualValues(3, stats.TotalCharts)
	s.Equal("line", stats.MostUsedChartType)

	s.db.StatsError = errors.New("boom")
	_, err = s.engine.Stats(s.ctx)
	s.assertKind(err, apperr.KindStorage)
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "a@b.com", NormalizeEmail("  A@B.com "))
	require.NoError(t, validateEmail("a@b.com"))
	require.Error(t, validateEmail("Alice <a@b.com>"))
}
