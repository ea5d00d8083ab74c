package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/ia-marketing/internal/auth"
	"github.com/hugh/ia-marketing/internal/database"
	"github.com/hugh/ia-marketing/internal/database/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const TestJWTSecret = "test-secret-key-for-testing"

// SetupTestDB creates an in-memory SQLite database for testing. The pool is
// pinned to one connection so every query sees the same in-memory database;
// concurrent transactions therefore run one after another.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
		NowFunc:        database.NowUTC,
	})
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	return db
}

// Logger discards everything below error.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// CreateTestOrg creates an active organization with an empty wallet.
func CreateTestOrg(t *testing.T, db *gorm.DB) *models.Organization {
	t.Helper()

	org := &models.Organization{
		Name:   "Test Organization " + uuid.New().String()[:8],
		Plan:   models.PlanFree,
		Status: models.OrganizationActive,
	}
	if err := db.Create(org).Error; err != nil {
		t.Fatalf("failed to create test organization: %v", err)
	}
	if err := db.Create(&models.Wallet{OrganizationID: org.ID}).Error; err != nil {
		t.Fatalf("failed to create test wallet: %v", err)
	}

	return org
}

// CreateTestProfile creates a profile for a fresh user id.
func CreateTestProfile(t *testing.T, db *gorm.DB, platformRole models.PlatformRole) *models.Profile {
	t.Helper()

	email := "user-" + uuid.New().String()[:8] + "@example.com"
	profile := &models.Profile{
		UserID:       uuid.New(),
		Email:        email,
		FullName:     email,
		Timezone:     models.DefaultProfileTimezone,
		PlatformRole: platformRole,
	}
	if err := db.Create(profile).Error; err != nil {
		t.Fatalf("failed to create test profile: %v", err)
	}

	return profile
}

func AddTestMember(t *testing.T, db *gorm.DB, orgID, userID uuid.UUID, role models.Role) {
	t.Helper()

	m := &models.Membership{OrganizationID: orgID, UserID: userID, Role: role}
	if err := db.Create(m).Error; err != nil {
		t.Fatalf("failed to add test member: %v", err)
	}
}

func CreateTestProject(t *testing.T, db *gorm.DB, orgID uuid.UUID) *models.Project {
	t.Helper()

	project := &models.Project{
		OrganizationID: orgID,
		Name:           "Campaign " + uuid.New().String()[:8],
		IsActive:       true,
	}
	if err := db.Create(project).Error; err != nil {
		t.Fatalf("failed to create test project: %v", err)
	}

	return project
}

// FundTestWallet posts an allocation and moves the wallet with it.
func FundTestWallet(t *testing.T, db *gorm.DB, orgID uuid.UUID, amount int64) {
	t.Helper()

	var wallet models.Wallet
	if err := db.First(&wallet, "organization_id = ?", orgID).Error; err != nil {
		t.Fatalf("failed to load wallet: %v", err)
	}
	wallet.Balance += amount

	entry := &models.LedgerEntry{
		OrganizationID: orgID,
		Delta:          amount,
		Source:         models.SourceAllocation,
		Reason:         "test allocation",
		BalanceAfter:   wallet.Balance,
	}
	if err := db.Create(entry).Error; err != nil {
		t.Fatalf("failed to create ledger entry: %v", err)
	}
	if err := db.Save(&wallet).Error; err != nil {
		t.Fatalf("failed to update wallet: %v", err)
	}
}

// SetTestCap writes the cap row for the current month.
func SetTestCap(t *testing.T, db *gorm.DB, projectID uuid.UUID, cap, used int64) *models.ProjectCreditLimit {
	t.Helper()

	limit := &models.ProjectCreditLimit{
		ProjectID:     projectID,
		MonthKey:      time.Now().UTC().Format("2006-01"),
		MonthlyCap:    &cap,
		UsedThisMonth: used,
	}
	if err := db.Create(limit).Error; err != nil {
		t.Fatalf("failed to create cap row: %v", err)
	}

	return limit
}

func CreateTestPrompt(t *testing.T, db *gorm.DB, orgID *uuid.UUID, published bool) *models.Prompt {
	t.Helper()

	scope := models.PromptScopeGlobal
	if orgID != nil {
		scope = models.PromptScopeOrganization
	}
	id := uuid.New()
	prompt := &models.Prompt{
		Base:           models.Base{ID: id},
		LineageID:      id,
		Version:        1,
		Scope:          scope,
		OrganizationID: orgID,
		Title:          "Product teaser",
		Content:        "A 10 second teaser for {{product}}",
		IsPublished:    published,
	}
	if err := db.Create(prompt).Error; err != nil {
		t.Fatalf("failed to create test prompt: %v", err)
	}

	return prompt
}

func CreateTestJWTService() *auth.JWTService {
	return auth.NewJWTService(TestJWTSecret, 24*time.Hour)
}

// GenerateTestToken generates a valid bearer token for the given profile.
func GenerateTestToken(t *testing.T, jwtService *auth.JWTService, profile *models.Profile) string {
	t.Helper()

	token, err := jwtService.GenerateToken(profile.UserID, profile.Email)
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}

	return token
}

// AuthenticatedRequest creates an HTTP request with authentication
func AuthenticatedRequest(t *testing.T, method, path string, body interface{}, token string) *http.Request {
	t.Helper()

	var reqBody *bytes.Buffer
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return req
}

// UnauthenticatedRequest creates an HTTP request without authentication
func UnauthenticatedRequest(t *testing.T, method, path string, body interface{}) *http.Request {
	t.Helper()
	return AuthenticatedRequest(t, method, path, body, "")
}

// AssertStatus checks if the response has the expected status code
func AssertStatus(t *testing.T, rr *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if rr.Code != expected {
		t.Errorf("expected status %d, got %d. Body: %s", expected, rr.Code, rr.Body.String())
	}
}

// ParseJSONResponse parses the response body into the given struct
func ParseJSONResponse(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()

	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to parse response body: %v. Body: %s", err, rr.Body.String())
	}
}

// TestContext returns a context cancelled when the test ends.
func TestContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// TestSetup bundles a database, an organization, an admin member and a
// platform superadmin with their tokens.
type TestSetup struct {
	DB         *gorm.DB
	Tx         *database.TxManager
	JWTService *auth.JWTService
	Org        *models.Organization
	User       *models.Profile
	Token      string
	Super      *models.Profile
	SuperToken string
}

// NewTestContext creates a complete test setup with DB, org, users and tokens
func NewTestContext(t *testing.T) *TestSetup {
	t.Helper()

	db := SetupTestDB(t)
	jwtService := CreateTestJWTService()
	org := CreateTestOrg(t, db)
	user := CreateTestProfile(t, db, models.PlatformRoleNone)
	AddTestMember(t, db, org.ID, user.UserID, models.RoleAdmin)
	super := CreateTestProfile(t, db, models.PlatformRoleSuperadmin)

	return &TestSetup{
		DB:         db,
		Tx:         database.NewTxManager(db),
		JWTService: jwtService,
		Org:        org,
		User:       user,
		Token:      GenerateTestToken(t, jwtService, user),
		Super:      super,
		SuperToken: GenerateTestToken(t, jwtService, super),
	}
}

// NewMember adds a user with role to the setup's organization and returns a token.
func (ts *TestSetup) NewMember(t *testing.T, role models.Role) (*models.Profile, string) {
	t.Helper()

	profile := CreateTestProfile(t, ts.DB, models.PlatformRoleNone)
	AddTestMember(t, ts.DB, ts.Org.ID, profile.UserID, role)
	return profile, GenerateTestToken(t, ts.JWTService, profile)
}

// Cleanup closes the test database
func (ts *TestSetup) Cleanup() {
	if ts.DB != nil {
		sqlDB, err := ts.DB.DB()
		if err == nil {
			sqlDB.Close()
		}
	}
}
