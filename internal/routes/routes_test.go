package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"debt-tracker-backend/internal/auth"
	"debt-tracker-backend/internal/clock"
	"debt-tracker-backend/internal/config"
	"debt-tracker-backend/internal/database"
	"debt-tracker-backend/internal/mailer"
	"debt-tracker-backend/internal/models"
	"debt-tracker-backend/internal/sweep"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var today = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

type recordingSender struct {
	mu   sync.Mutex
	sent []mailer.Message
}

func (s *recordingSender) Send(_ context.Context, msg mailer.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	return nil
}

type testEnv struct {
	app             *fiber.App
	cfg             *config.Config
	sender          *recordingSender
	defaultCategory models.Category
}

func setupApp(t *testing.T, journal *sweep.Journal) testEnv {
	t.Helper()

	db, err := database.Open("sqlite", "file:"+t.Name()+"?mode=memory&cache=shared", zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() { _ = database.Close(db) })
	database.DB = db

	cat, err := database.EnsureDefaultCategory(db, "Others")
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.JWT.Secret = strings.Repeat("k", 32)
	cfg.JWT.TTL = time.Hour
	cfg.CORS.AllowedOrigins = "http://localhost:5173"

	sender := &recordingSender{}
	app := New(Deps{
		Config:            cfg,
		Clock:             clock.Fixed(today),
		Mailer:            sender,
		DefaultCategoryID: cat.ID,
		Journal:           journal,
	})
	return testEnv{app: app, cfg: cfg, sender: sender, defaultCategory: cat}
}

func (e testEnv) user(t *testing.T, email string, role models.UserRole) string {
	t.Helper()
	u := models.User{Name: "Test", Email: email, PasswordHash: "x", Role: role}
	require.NoError(t, database.DB.Create(&u).Error)
	token, err := auth.GenerateToken(e.cfg.JWT.Secret, e.cfg.JWT.TTL, &u)
	require.NoError(t, err)
	return token
}

func (e testEnv) do(t *testing.T, method, path, token string, body any) (int, []byte) {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, raw
}

func decode[T any](t *testing.T, raw []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v), string(raw))
	return v
}

type errorBody struct {
	Error string `json:"error"`
}

type debtBody struct {
	ID                  uint   `json:"id"`
	Title               string `json:"title"`
	Amount              string `json:"amount"`
	DueDate             string `json:"due_date"`
	Status              string `json:"status"`
	CategoryID          uint   `json:"category_id"`
	Category            string `json:"category"`
	EmailSentForDueSoon bool   `json:"email_sent_for_due_soon"`
}

type listBody struct {
	Count    int64      `json:"count"`
	Page     int        `json:"page"`
	PageSize int        `json:"page_size"`
	Results  []debtBody `json:"results"`
}

func TestHealth(t *testing.T) {
	env := setupApp(t, nil)
	status, _ := env.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, status)
}

func TestRegisterLoginMe(t *testing.T) {
	env := setupApp(t, nil)

	status, raw := env.do(t, http.MethodPost, "/api/auth/register", "", fiber.Map{
		"name": "Ana", "email": "Ana@Test.com", "password": "secret123",
	})
	require.Equal(t, http.StatusCreated, status, string(raw))
	created := decode[auth.UserResponse](t, raw)
	require.Equal(t, "ana@test.com", created.Email)
	require.Equal(t, models.RoleUser, created.Role)

	require.Len(t, env.sender.sent, 1)
	require.Equal(t, "ana@test.com", env.sender.sent[0].To)

	status, _ = env.do(t, http.MethodPost, "/api/auth/register", "", fiber.Map{
		"name": "Ana", "email": "ana@test.com", "password": "secret123",
	})
	require.Equal(t, http.StatusConflict, status)

	status, _ = env.do(t, http.MethodPost, "/api/auth/register", "", fiber.Map{
		"name": "Bo", "email": "bo@test.com", "password": "short",
	})
	require.Equal(t, http.StatusBadRequest, status)

	status, _ = env.do(t, http.MethodPost, "/api/auth/login", "", fiber.Map{
		"email": "ana@test.com", "password": "wrong-password",
	})
	require.Equal(t, http.StatusUnauthorized, status)

	status, raw = env.do(t, http.MethodPost, "/api/auth/login", "", fiber.Map{
		"email": "ana@test.com", "password": "secret123",
	})
	require.Equal(t, http.StatusOK, status, string(raw))
	login := decode[auth.LoginResponse](t, raw)
	require.NotEmpty(t, login.Token)

	status, raw = env.do(t, http.MethodGet, "/api/auth/me", login.Token, nil)
	require.Equal(t, http.StatusOK, status, string(raw))
	me := decode[map[string]map[string]any](t, raw)
	require.Equal(t, "ana@test.com", me["user"]["email"])
	require.EqualValues(t, 0, me["summary"]["total_debts"])
	require.Equal(t, "0.00", me["summary"]["total_debts_amount_sum"])
}

func TestRegisterAdminOnlyOnce(t *testing.T) {
	env := setupApp(t, nil)
	body := fiber.Map{"name": "Root", "email": "root@test.com", "password": "secret123"}

	status, raw := env.do(t, http.MethodPost, "/api/auth/register-admin", "", body)
	require.Equal(t, http.StatusCreated, status, string(raw))
	require.Equal(t, models.RoleAdmin, decode[auth.UserResponse](t, raw).Role)

	body["email"] = "root2@test.com"
	status, _ = env.do(t, http.MethodPost, "/api/auth/register-admin", "", body)
	require.Equal(t, http.StatusForbidden, status)
}

func TestProtectedRoutesNeedToken(t *testing.T) {
	env := setupApp(t, nil)

	status, _ := env.do(t, http.MethodGet, "/api/debts", "", nil)
	require.Equal(t, http.StatusUnauthorized, status)

	status, _ = env.do(t, http.MethodGet, "/api/debts", "not-a-jwt", nil)
	require.Equal(t, http.StatusUnauthorized, status)
}

func TestDebtLifecycle(t *testing.T) {
	env := setupApp(t, nil)
	token := env.user(t, "owner@test.com", models.RoleUser)

	status, raw := env.do(t, http.MethodPost, "/api/debts", token, fiber.Map{
		"title": "Rent", "amount": "1200.50", "due_date": "2025-03-20",
	})
	require.Equal(t, http.StatusCreated, status, string(raw))
	rent := decode[debtBody](t, raw)
	require.Equal(t, "Pending", rent.Status)
	require.Equal(t, "1200.50", rent.Amount)
	require.Equal(t, "2025-03-20", rent.DueDate)
	require.Equal(t, env.defaultCategory.ID, rent.CategoryID)
	require.Equal(t, "Others", rent.Category)
	require.False(t, rent.EmailSentForDueSoon)

	status, raw = env.do(t, http.MethodPost, "/api/debts", token, fiber.Map{
		"title": "Phone", "amount": 40, "due_date": "2025-03-01", "status": "Overdue",
	})
	require.Equal(t, http.StatusCreated, status, string(raw))
	phone := decode[debtBody](t, raw)

	// Overdue needs a past due date.
	status, raw = env.do(t, http.MethodPost, "/api/debts", token, fiber.Map{
		"title": "Gym", "amount": 30, "due_date": "2025-03-10", "status": "Overdue",
	})
	require.Equal(t, http.StatusBadRequest, status, string(raw))

	status, raw = env.do(t, http.MethodGet, "/api/debts", token, nil)
	require.Equal(t, http.StatusOK, status, string(raw))
	list := decode[listBody](t, raw)
	require.Equal(t, int64(2), list.Count)
	require.Equal(t, 1, list.Page)
	require.Equal(t, 10, list.PageSize)
	require.Equal(t, phone.ID, list.Results[0].ID)
	require.Equal(t, rent.ID, list.Results[1].ID)

	// Overdue never goes back to Pending, not even with a later due date.
	status, raw = env.do(t, http.MethodPut, "/api/debts/"+itoa(phone.ID), token, fiber.Map{
		"status": "Pending", "due_date": "2025-04-01",
	})
	require.Equal(t, http.StatusBadRequest, status, string(raw))
	status, raw = env.do(t, http.MethodPut, "/api/debts/"+itoa(phone.ID), token, fiber.Map{"status": "Pending"})
	require.Equal(t, http.StatusBadRequest, status, string(raw))

	status, raw = env.do(t, http.MethodGet, "/api/debts/"+itoa(phone.ID), token, nil)
	require.Equal(t, http.StatusOK, status, string(raw))
	unchanged := decode[debtBody](t, raw)
	require.Equal(t, "Overdue", unchanged.Status)
	require.Equal(t, "2025-03-01", unchanged.DueDate)

	status, raw = env.do(t, http.MethodPut, "/api/debts/"+itoa(phone.ID), token, fiber.Map{"status": "Paid"})
	require.Equal(t, http.StatusOK, status, string(raw))
	require.Equal(t, "Paid", decode[debtBody](t, raw).Status)

	status, raw = env.do(t, http.MethodPut, "/api/debts/"+itoa(rent.ID), token, fiber.Map{"amount": "-1"})
	require.Equal(t, http.StatusBadRequest, status, string(raw))

	status, _ = env.do(t, http.MethodDelete, "/api/debts/"+itoa(rent.ID), token, nil)
	require.Equal(t, http.StatusNoContent, status)

	status, _ = env.do(t, http.MethodGet, "/api/debts/"+itoa(rent.ID), token, nil)
	require.Equal(t, http.StatusNotFound, status)
}

func TestPastDuePendingIsSweptToOverdue(t *testing.T) {
	env := setupApp(t, nil)
	token := env.user(t, "owner@test.com", models.RoleUser)

	status, raw := env.do(t, http.MethodPost, "/api/debts", token, fiber.Map{
		"title": "Water", "amount": "25", "due_date": "2025-03-01",
	})
	require.Equal(t, http.StatusCreated, status, string(raw))
	water := decode[debtBody](t, raw)
	require.Equal(t, "Pending", water.Status)

	s := &sweep.Sweeper{DB: database.DB, Mailer: env.sender, Clock: clock.Fixed(today), Workers: 1, Log: zap.NewNop()}
	r, err := s.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(1), r.MarkedOverdue)

	status, raw = env.do(t, http.MethodGet, "/api/debts/"+itoa(water.ID), token, nil)
	require.Equal(t, http.StatusOK, status, string(raw))
	require.Equal(t, "Overdue", decode[debtBody](t, raw).Status)

	require.Len(t, env.sender.sent, 1)
	require.Equal(t, "Debt overdue!", env.sender.sent[0].Subject)
}

func TestDebtsOfOthersAreNotFound(t *testing.T) {
	env := setupApp(t, nil)
	owner := env.user(t, "owner@test.com", models.RoleUser)
	intruder := env.user(t, "intruder@test.com", models.RoleUser)

	status, raw := env.do(t, http.MethodPost, "/api/debts", owner, fiber.Map{
		"title": "Rent", "amount": "10", "due_date": "2025-04-01",
	})
	require.Equal(t, http.StatusCreated, status, string(raw))
	path := "/api/debts/" + itoa(decode[debtBody](t, raw).ID)

	status, _ = env.do(t, http.MethodGet, path, intruder, nil)
	require.Equal(t, http.StatusNotFound, status)
	status, _ = env.do(t, http.MethodPut, path, intruder, fiber.Map{"status": "Paid"})
	require.Equal(t, http.StatusNotFound, status)
	status, _ = env.do(t, http.MethodDelete, path, intruder, nil)
	require.Equal(t, http.StatusNotFound, status)

	status, raw = env.do(t, http.MethodGet, "/api/debts", intruder, nil)
	require.Equal(t, http.StatusOK, status)
	require.Zero(t, decode[listBody](t, raw).Count)
}

func TestListRejectsBadQuery(t *testing.T) {
	env := setupApp(t, nil)
	token := env.user(t, "owner@test.com", models.RoleUser)

	status, raw := env.do(t, http.MethodGet, "/api/debts?start_date=not-a-date", token, nil)
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, "invalid start_date format, use YYYY-MM-DD", decode[errorBody](t, raw).Error)

	status, _ = env.do(t, http.MethodGet, "/api/debts?status=Late", token, nil)
	require.Equal(t, http.StatusBadRequest, status)

	status, _ = env.do(t, http.MethodGet, "/api/debts?page_size=500", token, nil)
	require.Equal(t, http.StatusBadRequest, status)
}

func TestSummaryAndExport(t *testing.T) {
	env := setupApp(t, nil)
	token := env.user(t, "owner@test.com", models.RoleUser)

	for _, d := range []fiber.Map{
		{"title": "A", "amount": "10.10", "due_date": "2025-03-20"},
		{"title": "B", "amount": "5", "due_date": "2025-01-01", "status": "Paid"},
	} {
		status, raw := env.do(t, http.MethodPost, "/api/debts", token, d)
		require.Equal(t, http.StatusCreated, status, string(raw))
	}

	status, raw := env.do(t, http.MethodGet, "/api/debts/summary", token, nil)
	require.Equal(t, http.StatusOK, status)
	summary := decode[map[string]any](t, raw)
	require.EqualValues(t, 2, summary["total_debts"])
	require.Equal(t, "15.10", summary["total_debts_amount_sum"])
	require.EqualValues(t, 1, summary["total_pending_debts"])
	require.Equal(t, "10.10", summary["total_pending_debts_sum"])
	require.Equal(t, "0.00", summary["total_overdue_debts_sum"])

	req := httptest.NewRequest(http.MethodGet, "/api/debts/export?status=Paid", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := env.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", resp.Header.Get("Content-Type"))
	require.Contains(t, resp.Header.Get("Content-Disposition"), "debts.xlsx")
}

func TestCategoryRoutes(t *testing.T) {
	env := setupApp(t, nil)
	admin := env.user(t, "admin@test.com", models.RoleAdmin)
	user := env.user(t, "user@test.com", models.RoleUser)

	status, _ := env.do(t, http.MethodPost, "/api/admin/categories", user, fiber.Map{"name": "Home"})
	require.Equal(t, http.StatusForbidden, status)

	status, raw := env.do(t, http.MethodPost, "/api/admin/categories", admin, fiber.Map{"name": "Home"})
	require.Equal(t, http.StatusCreated, status, string(raw))
	home := decode[map[string]any](t, raw)
	homeID := uint(home["id"].(float64))

	status, _ = env.do(t, http.MethodPost, "/api/admin/categories", admin, fiber.Map{"name": "Home"})
	require.Equal(t, http.StatusConflict, status)

	status, raw = env.do(t, http.MethodGet, "/api/categories", user, nil)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, decode[[]map[string]any](t, raw), 2)

	status, _ = env.do(t, http.MethodPost, "/api/debts", user, fiber.Map{
		"title": "Rent", "amount": "10", "due_date": "2025-04-01", "category_id": 999,
	})
	require.Equal(t, http.StatusNotFound, status)

	status, raw = env.do(t, http.MethodPost, "/api/debts", user, fiber.Map{
		"title": "Rent", "amount": "10", "due_date": "2025-04-01", "category_id": homeID,
	})
	require.Equal(t, http.StatusCreated, status, string(raw))
	rent := decode[debtBody](t, raw)
	require.Equal(t, "Home", rent.Category)

	status, raw = env.do(t, http.MethodPut, "/api/admin/categories/"+itoa(homeID), admin, fiber.Map{"name": "House"})
	require.Equal(t, http.StatusOK, status, string(raw))
	require.Equal(t, "House", decode[map[string]any](t, raw)["name"])

	status, _ = env.do(t, http.MethodDelete, "/api/admin/categories/"+itoa(env.defaultCategory.ID), admin, nil)
	require.Equal(t, http.StatusConflict, status)

	// Deleting a category takes its debts with it.
	status, _ = env.do(t, http.MethodDelete, "/api/admin/categories/"+itoa(homeID), admin, nil)
	require.Equal(t, http.StatusNoContent, status)
	status, _ = env.do(t, http.MethodGet, "/api/debts/"+itoa(rent.ID), user, nil)
	require.Equal(t, http.StatusNotFound, status)

	status, _ = env.do(t, http.MethodGet, "/api/admin/categories/"+itoa(homeID), admin, nil)
	require.Equal(t, http.StatusNotFound, status)
}

func TestSweepRunsRoute(t *testing.T) {
	journal, err := sweep.OpenJournal(filepath.Join(t.TempDir(), "sweep.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = journal.Close() })

	env := setupApp(t, journal)
	admin := env.user(t, "admin@test.com", models.RoleAdmin)
	user := env.user(t, "user@test.com", models.RoleUser)

	require.NoError(t, journal.Record(sweep.Report{RunID: "r1", StartedAt: today, MarkedOverdue: 2}))

	status, _ := env.do(t, http.MethodGet, "/api/admin/sweep/runs", user, nil)
	require.Equal(t, http.StatusForbidden, status)

	status, raw := env.do(t, http.MethodGet, "/api/admin/sweep/runs?limit=5", admin, nil)
	require.Equal(t, http.StatusOK, status, string(raw))
	runs := decode[[]sweep.Report](t, raw)
	require.Len(t, runs, 1)
	require.Equal(t, "r1", runs[0].RunID)

	status, _ = env.do(t, http.MethodGet, "/api/admin/sweep/runs?limit=0", admin, nil)
	require.Equal(t, http.StatusBadRequest, status)
}

func TestSweepRunsHiddenWithoutJournal(t *testing.T) {
	env := setupApp(t, nil)
	admin := env.user(t, "admin@test.com", models.RoleAdmin)

	status, _ := env.do(t, http.MethodGet, "/api/admin/sweep/runs", admin, nil)
	require.Equal(t, http.StatusNotFound, status)
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
