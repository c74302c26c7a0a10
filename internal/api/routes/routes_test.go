package routes

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/emberbrowser/sentinel/internal/audit"
	"github.com/emberbrowser/sentinel/internal/config"
	"github.com/emberbrowser/sentinel/internal/database"
	"github.com/emberbrowser/sentinel/internal/enforcer"
	"github.com/emberbrowser/sentinel/internal/models"
	"github.com/emberbrowser/sentinel/internal/ratelimit"
	"github.com/emberbrowser/sentinel/internal/store"
	"github.com/emberbrowser/sentinel/internal/template"
)

func setupRouter(t *testing.T, mutate func(*config.Config)) (*gin.Engine, *store.PolicyStore) {
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	cfg := config.Default(t.TempDir())
	cfg.AuditLog.LogPath = filepath.Join(t.TempDir(), "audit.log")
	if mutate != nil {
		mutate(&cfg)
	}

	st := store.NewPolicyStore(db, cfg.PolicyCacheSize)
	limiter := ratelimit.New(cfg.RateLimit)
	auditLog, err := audit.New(cfg.AuditLog)
	require.NoError(t, err)
	t.Cleanup(func() { auditLog.Close() })

	engine := template.NewEngine(st)
	require.NoError(t, engine.SeedBuiltins())

	router := gin.New()
	Register(router, Deps{
		Config:   cfg,
		Store:    st,
		Limiter:  limiter,
		Audit:    auditLog,
		Enforcer: enforcer.New(cfg, st, limiter, auditLog, nil),
		Engine:   engine,
	})
	return router, st
}

func doJSON(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHealthRoute(t *testing.T) {
	router, _ := setupRouter(t, nil)
	w := doJSON(router, http.MethodGet, "/api/sentinel/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestEvaluateRoute(t *testing.T) {
	router, st := setupRouter(t, nil)

	t.Run("policy hit", func(t *testing.T) {
		_, err := st.CreatePolicy(&models.Policy{
			RuleName:   "block-evil",
			URLPattern: "*://evil.example/*",
			Action:     models.ActionBlock,
		})
		require.NoError(t, err)

		w := doJSON(router, http.MethodPost, "/api/sentinel/evaluate", `{"url":"https://evil.example/x"}`)
		require.Equal(t, http.StatusOK, w.Code)

		var decision map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decision))
		assert.Equal(t, "Block", decision["action"])
		assert.Equal(t, "policy", decision["source"])
	})

	t.Run("score fallback", func(t *testing.T) {
		w := doJSON(router, http.MethodPost, "/api/sentinel/evaluate", `{"url":"https://faceboook.tk/login"}`)
		require.Equal(t, http.StatusOK, w.Code)

		var decision map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decision))
		assert.Equal(t, "WarnUser", decision["action"])
		assert.Equal(t, "score", decision["source"])
		assert.InDelta(t, 0.45, decision["score"].(float64), 1e-9)
	})

	t.Run("empty body rejected", func(t *testing.T) {
		w := doJSON(router, http.MethodPost, "/api/sentinel/evaluate", `{}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("rate limit surfaces as 429", func(t *testing.T) {
		limited, _ := setupRouter(t, func(cfg *config.Config) {
			cfg.RateLimit.ScanBurstCapacity = 1
			cfg.RateLimit.ScanRequestsPerSecond = 1
			cfg.RateLimit.FailClosed = true
		})
		first := doJSON(limited, http.MethodPost, "/api/sentinel/evaluate", `{"url":"https://example.org/"}`)
		require.Equal(t, http.StatusOK, first.Code)
		second := doJSON(limited, http.MethodPost, "/api/sentinel/evaluate", `{"url":"https://example.org/"}`)
		assert.Equal(t, http.StatusTooManyRequests, second.Code)
	})
}

func TestPolicyRoutes(t *testing.T) {
	router, _ := setupRouter(t, nil)

	t.Run("create returns wire-format policy", func(t *testing.T) {
		w := doJSON(router, http.MethodPost, "/api/sentinel/policies",
			`{"ruleName":"block-evil","urlPattern":"*://evil.example/*","action":"Block"}`)
		require.Equal(t, http.StatusCreated, w.Code)

		var wire map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &wire))
		for _, key := range []string{"id", "ruleName", "urlPattern", "action", "createdAt", "createdBy", "hitCount"} {
			assert.Contains(t, wire, key)
		}
		// Millisecond epoch integer, not a formatted string.
		assert.IsType(t, float64(0), wire["createdAt"])
	})

	t.Run("invalid action rejected", func(t *testing.T) {
		w := doJSON(router, http.MethodPost, "/api/sentinel/policies",
			`{"ruleName":"x","urlPattern":"*","action":"Nuke"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("list and delete", func(t *testing.T) {
		w := doJSON(router, http.MethodGet, "/api/sentinel/policies", "")
		require.Equal(t, http.StatusOK, w.Code)

		var policies []models.Policy
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &policies))
		require.NotEmpty(t, policies)

		id := policies[0].ID
		del := doJSON(router, http.MethodDelete, "/api/sentinel/policies/"+int64String(id), "")
		assert.Equal(t, http.StatusOK, del.Code)

		again := doJSON(router, http.MethodDelete, "/api/sentinel/policies/"+int64String(id), "")
		assert.Equal(t, http.StatusNotFound, again.Code)
	})

	t.Run("invalid id", func(t *testing.T) {
		w := doJSON(router, http.MethodGet, "/api/sentinel/policies/banana", "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestThreatRoutes(t *testing.T) {
	router, st := setupRouter(t, nil)

	old := models.FromMillis(1000)
	_, err := st.RecordThreat(&models.ThreatRecord{RuleName: "r", URL: "https://a.example/", Severity: "low", DetectedAt: old})
	require.NoError(t, err)
	recent := models.FromMillis(5000)
	_, err = st.RecordThreat(&models.ThreatRecord{RuleName: "r", URL: "https://b.example/", Severity: "high", DetectedAt: recent})
	require.NoError(t, err)

	t.Run("since filters", func(t *testing.T) {
		w := doJSON(router, http.MethodGet, "/api/sentinel/threats?since=2000", "")
		require.Equal(t, http.StatusOK, w.Code)

		var body struct {
			Threats []models.ThreatRecord `json:"threats"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		require.Len(t, body.Threats, 1)
		assert.Equal(t, "https://b.example/", body.Threats[0].URL)
	})

	t.Run("empty history is an empty list", func(t *testing.T) {
		w := doJSON(router, http.MethodGet, "/api/sentinel/threats?since=9000", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"threats":[]}`, w.Body.String())
	})

	t.Run("bad since rejected", func(t *testing.T) {
		w := doJSON(router, http.MethodGet, "/api/sentinel/threats?since=yesterday", "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestTemplateRoutes(t *testing.T) {
	router, _ := setupRouter(t, nil)

	w := doJSON(router, http.MethodGet, "/api/sentinel/templates", "")
	require.Equal(t, http.StatusOK, w.Code)

	var templates []models.PolicyTemplate
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &templates))
	require.NotEmpty(t, templates)

	var hashTemplate models.PolicyTemplate
	for _, tmpl := range templates {
		if tmpl.Name == "Quarantine File Hash" {
			hashTemplate = tmpl
		}
	}
	require.NotZero(t, hashTemplate.ID)

	t.Run("instantiate preview", func(t *testing.T) {
		w := doJSON(router, http.MethodPost,
			"/api/sentinel/templates/"+int64String(hashTemplate.ID)+"/instantiate",
			`{"variables":{"hash":"abc123"}}`)
		require.Equal(t, http.StatusOK, w.Code)

		var policy models.Policy
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &policy))
		assert.Equal(t, "abc123", policy.FileHash)
		assert.Equal(t, models.ActionQuarantine, policy.Action)
	})

	t.Run("instantiate and persist", func(t *testing.T) {
		w := doJSON(router, http.MethodPost,
			"/api/sentinel/templates/"+int64String(hashTemplate.ID)+"/instantiate",
			`{"variables":{"hash":"def456"},"persist":true}`)
		require.Equal(t, http.StatusCreated, w.Code)
	})

	t.Run("export import round trip", func(t *testing.T) {
		exported := doJSON(router, http.MethodGet, "/api/sentinel/templates/export", "")
		require.Equal(t, http.StatusOK, exported.Code)

		fresh, _ := setupRouter(t, nil)
		imported := doJSON(fresh, http.MethodPost, "/api/sentinel/templates/import", exported.Body.String())
		require.Equal(t, http.StatusOK, imported.Code)
		// Builtins already exist in the fresh instance, so everything is a
		// name collision.
		assert.Contains(t, imported.Body.String(), `"imported":0`)
	})
}

func TestNetworkPolicyRoutes(t *testing.T) {
	router, _ := setupRouter(t, nil)

	t.Run("upsert and list", func(t *testing.T) {
		w := doJSON(router, http.MethodPut, "/api/sentinel/network-policies",
			`{"domain":"beacon.example","policy":"block","threatType":"beaconing","confidence":0.9}`)
		require.Equal(t, http.StatusOK, w.Code)

		list := doJSON(router, http.MethodGet, "/api/sentinel/network-policies", "")
		require.Equal(t, http.StatusOK, list.Code)
		assert.Contains(t, list.Body.String(), "beacon.example")
	})

	t.Run("invalid verdict rejected", func(t *testing.T) {
		w := doJSON(router, http.MethodPut, "/api/sentinel/network-policies",
			`{"domain":"x.example","policy":"maybe"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestStatsRoute(t *testing.T) {
	router, _ := setupRouter(t, nil)
	w := doJSON(router, http.MethodGet, "/api/sentinel/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"policies"`)
	assert.Contains(t, w.Body.String(), `"cache"`)
}

func TestAdminAuth(t *testing.T) {
	const secret = "test-secret"
	router, _ := setupRouter(t, func(cfg *config.Config) {
		cfg.AdminToken = secret
	})

	t.Run("evaluate stays open", func(t *testing.T) {
		w := doJSON(router, http.MethodPost, "/api/sentinel/evaluate", `{"url":"https://example.org/"}`)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("admin routes require a token", func(t *testing.T) {
		w := doJSON(router, http.MethodGet, "/api/sentinel/policies", "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("valid token admits", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"sub": "admin",
			"exp": time.Now().Add(time.Hour).Unix(),
		})
		signed, err := token.SignedString([]byte(secret))
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/api/sentinel/policies", nil)
		req.Header.Set("Authorization", "Bearer "+signed)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("garbage token refused", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/sentinel/policies", nil)
		req.Header.Set("Authorization", "Bearer not.a.token")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func int64String(id int64) string {
	return strconv.FormatInt(id, 10)
}
