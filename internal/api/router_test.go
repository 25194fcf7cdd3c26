package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/gigescrow/internal/api/middleware"
	"github.com/timmy/gigescrow/internal/chain"
	"github.com/timmy/gigescrow/internal/config"
	"github.com/timmy/gigescrow/internal/domain"
	"github.com/timmy/gigescrow/internal/logger"
	"github.com/timmy/gigescrow/internal/repository"
	"github.com/timmy/gigescrow/internal/service"
)

const (
	clientAddr     = "0x70997970c51812dc3a010c7d01b50e0d17dc79c8"
	freelancerAddr = "0x3c44cdddb6a900fa2b585dd299e03d12fa4293bc"
	jwtSecret      = "test-secret"
	adminToken     = "ops"
)

type testServer struct {
	router *gin.Engine
	store  *repository.Store
}

// newTestServer wires the full stack over sqlite with the chain gateway
// unconfigured, so every on-chain read degrades to the persisted view.
func newTestServer(t *testing.T, auth config.AuthConfig) *testServer {
	t.Helper()
	db, err := repository.InitDB(&config.DatabaseConfig{
		Driver:       "sqlite",
		Path:         filepath.Join(t.TempDir(), "api.db"),
		MaxIdleConns: 2,
		MaxOpenConns: 4,
		AutoMigrate:  true,
		LogLevel:     "silent",
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	log := logger.GetDefault()
	store := repository.NewStore(db)
	gateway, err := chain.NewGateway(chain.Config{})
	require.NoError(t, err)
	reconciler := service.NewReconcileService(store, gateway, log, 2)
	notifier := service.NewNotificationService(store, log)
	release := service.NewPaymentRelease(gateway, log)
	acceptance := service.NewAcceptanceService(store, gateway, notifier, log)

	svc := &Services{
		Store: store,
		Jobs: service.NewJobService(service.JobServiceConfig{
			Store:      store,
			Chain:      gateway,
			Reconciler: reconciler,
			Notifier:   notifier,
			Logger:     log,
		}),
		Confirmation:  service.NewConfirmationService(store, release, notifier, log),
		Acceptance:    acceptance,
		Escrow:        service.NewEscrowService(store, gateway, reconciler, release, notifier, log),
		Proposals:     service.NewProposalService(store, notifier, log),
		Users:         service.NewUserService(store, log),
		Notifications: notifier,
		SavedJobs:     service.NewSavedJobService(store, reconciler),
		Chat:          service.NewChatService(store, nil, notifier, 0, log),
		Sweep:         service.NewSweepService(store, reconciler, acceptance, log, nil),
	}
	cfg := &config.Config{
		Server: config.ServerConfig{Mode: "test", CORS: config.CORSConfig{AllowedOrigins: []string{"http://localhost:3000"}}},
		Auth:   auth,
	}
	return &testServer{router: SetupRouter(svc, cfg, log), store: store}
}

func (s *testServer) do(t *testing.T, method, path string, body any, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func (s *testServer) createJob(t *testing.T) domain.Job {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/v1/jobs?client_address="+clientAddr, domain.JobInput{
		Title:    "Logo design",
		Budget:   1.5,
		Tags:     []string{"Branding", "print"},
		Deadline: time.Now().Add(72 * time.Hour).UTC(),
	}, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[domain.Job](t, w)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, config.AuthConfig{})
	w := s.do(t, http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decode[map[string]any](t, w)
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestJobRoutes(t *testing.T) {
	s := newTestServer(t, config.AuthConfig{})
	job := s.createJob(t)
	assert.Equal(t, domain.JobStatusOpen, job.Status)
	assert.Equal(t, clientAddr, job.ClientAddress)

	w := s.do(t, http.MethodGet, "/api/v1/jobs/"+job.ID, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, job.ID, decode[domain.Job](t, w).ID)

	w = s.do(t, http.MethodGet, "/api/v1/jobs?status=open&limit=5", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	page := decode[struct {
		Jobs  []domain.Job `json:"jobs"`
		Total int64        `json:"total"`
		Limit int          `json:"limit"`
	}](t, w)
	assert.Equal(t, int64(1), page.Total)
	assert.Equal(t, 5, page.Limit)

	w = s.do(t, http.MethodGet, "/api/v1/jobs/search?q=logo", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/search/jobs", nil, nil)
	require.Equal(t, http.StatusOK, w.Code, "a search without a query lists open jobs")
	type searchPage struct {
		Jobs  []domain.Job `json:"jobs"`
		Total int          `json:"total"`
	}
	assert.Equal(t, 1, decode[searchPage](t, w).Total)

	w = s.do(t, http.MethodGet, "/api/v1/search/jobs?tags=print,video&category=", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, decode[searchPage](t, w).Total)

	w = s.do(t, http.MethodGet, "/api/v1/search/jobs?tags=video", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, decode[searchPage](t, w).Total)

	w = s.do(t, http.MethodGet, "/api/v1/search/jobs?status=bogus", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/search/tags", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"branding", "print"}, decode[struct {
		Tags []string `json:"tags"`
	}](t, w).Tags)

	w = s.do(t, http.MethodGet, "/api/v1/jobs/client/"+clientAddr, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestErrorMapping(t *testing.T) {
	s := newTestServer(t, config.AuthConfig{})
	job := s.createJob(t)
	title := "Renamed"

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"missing actor", http.MethodPost, "/api/v1/jobs", domain.JobInput{Title: "x"}, http.StatusUnauthorized},
		{"unknown job", http.MethodGet, "/api/v1/jobs/missing", nil, http.StatusNotFound},
		{"wrong client", http.MethodPut, "/api/v1/jobs/" + job.ID + "?client_address=" + freelancerAddr, domain.JobPatch{Title: &title}, http.StatusForbidden},
		{"invalid input", http.MethodPost, "/api/v1/jobs?client_address=" + clientAddr, domain.JobInput{}, http.StatusBadRequest},
		{"unknown status filter", http.MethodGet, "/api/v1/jobs?status=paused", nil, http.StatusBadRequest},
		{"bad role", http.MethodPost, "/api/v1/jobs/" + job.ID + "/confirm-completion?role=admin&user_address=" + clientAddr, nil, http.StatusBadRequest},
		{"confirm open job", http.MethodPost, "/api/v1/jobs/" + job.ID + "/confirm-completion?role=client&client_address=" + clientAddr, nil, http.StatusConflict},
		{"tx status without chain", http.MethodGet, "/api/v1/transactions/0xabc", nil, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, tt.method, tt.path, tt.body, nil)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestProposalToCompletionFlow(t *testing.T) {
	s := newTestServer(t, config.AuthConfig{})
	job := s.createJob(t)

	w := s.do(t, http.MethodPost, "/api/v1/proposals?freelancer_address="+freelancerAddr,
		domain.ProposalInput{JobID: job.ID, CoverLetter: "Happy to help"}, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	proposal := decode[domain.Proposal](t, w)

	w = s.do(t, http.MethodPut, "/api/v1/proposals/"+proposal.ID+"/accept?client_address="+clientAddr, nil, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	accepted := decode[service.AcceptResult](t, w)
	assert.Equal(t, domain.JobStatusInProgress, accepted.Job.Status)
	assert.Equal(t, freelancerAddr, accepted.Job.Freelancer())
	assert.Nil(t, accepted.Transaction, "job is not on chain")

	w = s.do(t, http.MethodPost, "/api/v1/jobs/"+job.ID+"/confirm-completion?role=freelancer&freelancer_address="+freelancerAddr, nil, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	first := decode[service.ConfirmationResult](t, w)
	assert.False(t, first.BothConfirmed)
	assert.Equal(t, service.ActionWaitForOtherParty, first.NeededAction)

	w = s.do(t, http.MethodPost, "/api/v1/jobs/"+job.ID+"/confirm-completion?role=client&client_address="+clientAddr, nil, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	second := decode[service.ConfirmationResult](t, w)
	assert.True(t, second.BothConfirmed)
	assert.Equal(t, domain.JobStatusCompleted, second.Job.Status)

	w = s.do(t, http.MethodGet, "/api/v1/notifications/count?user_address="+freelancerAddr, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	count := decode[domain.NotificationCount](t, w)
	assert.Positive(t, count.UnreadCount)
}

func TestAuthenticatedActor(t *testing.T) {
	s := newTestServer(t, config.AuthConfig{Enabled: true, JWTSecret: jwtSecret})
	token, err := middleware.IssueToken(jwtSecret, clientAddr, time.Hour)
	require.NoError(t, err)
	bearer := http.Header{"Authorization": {"Bearer " + token}}
	in := domain.JobInput{Title: "Audit"}

	w := s.do(t, http.MethodPost, "/api/v1/jobs", in, bearer)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, clientAddr, decode[domain.Job](t, w).ClientAddress)

	w = s.do(t, http.MethodPost, "/api/v1/jobs?client_address="+clientAddr, in, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code, "query actors are ignored once auth is on")

	w = s.do(t, http.MethodPost, "/api/v1/jobs", in, http.Header{"Authorization": {"Bearer nope"}})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	forged, err := middleware.IssueToken("other-secret", clientAddr, time.Hour)
	require.NoError(t, err)
	w = s.do(t, http.MethodPost, "/api/v1/jobs", in, http.Header{"Authorization": {"Bearer " + forged}})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdminSweep(t *testing.T) {
	s := newTestServer(t, config.AuthConfig{AdminToken: adminToken})
	s.createJob(t)

	w := s.do(t, http.MethodPost, "/api/v1/admin/reconcile", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	admin := http.Header{"X-Admin-Token": {adminToken}}
	w = s.do(t, http.MethodPost, "/api/v1/admin/reconcile", map[string]any{"repair": true}, admin)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[struct {
		Stats service.SweepStats `json:"stats"`
	}](t, w)
	assert.Equal(t, int64(1), resp.Stats.TotalJobs)

	w = s.do(t, http.MethodGet, "/api/v1/admin/reconcile/status", nil, admin)
	require.Equal(t, http.StatusOK, w.Code)
	status := decode[map[string]any](t, w)
	assert.Equal(t, false, status["is_running"])
	assert.Equal(t, "success", status["last_run_status"])
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t, config.AuthConfig{})

	w := s.do(t, http.MethodOptions, "/api/v1/jobs", nil, http.Header{"Origin": {"http://localhost:3000"}})
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))

	w = s.do(t, http.MethodGet, "/health", nil, http.Header{"Origin": {"https://evil.example"}})
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
