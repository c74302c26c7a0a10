package template

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/emberbrowser/sentinel/internal/database"
	"github.com/emberbrowser/sentinel/internal/models"
	"github.com/emberbrowser/sentinel/internal/store"
)

func setupEngine(t *testing.T) (*Engine, *store.PolicyStore) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	st := store.NewPolicyStore(db, 100)
	return NewEngine(st), st
}

func createTemplate(t *testing.T, st *store.PolicyStore, name string, skel models.PolicySkeleton) int64 {
	body, err := json.Marshal(models.TemplateBody{Policies: []models.PolicySkeleton{skel}})
	require.NoError(t, err)

	tmpl := models.PolicyTemplate{
		Name:         name,
		Category:     "test",
		TemplateJSON: string(body),
	}
	id, err := st.CreateTemplate(&tmpl)
	require.NoError(t, err)
	return id
}

func TestEngine_Instantiate(t *testing.T) {
	engine, st := setupEngine(t)

	id := createTemplate(t, st, "domain-block", models.PolicySkeleton{
		RuleName:   "Block ${domain}",
		URLPattern: "*://*.${domain}/*",
		Action:     string(models.ActionBlock),
	})

	t.Run("substitutes variables", func(t *testing.T) {
		policy, err := engine.Instantiate(id, map[string]string{"domain": "evil.example"})
		require.NoError(t, err)
		assert.Equal(t, "Block evil.example", policy.RuleName)
		assert.Equal(t, "*://*.evil.example/*", policy.URLPattern)
		assert.Equal(t, models.ActionBlock, policy.Action)
		assert.Equal(t, "template:domain-block", policy.CreatedBy)
	})

	t.Run("result is not persisted", func(t *testing.T) {
		before, err := st.PolicyCount()
		require.NoError(t, err)
		_, err = engine.Instantiate(id, map[string]string{"domain": "evil.example"})
		require.NoError(t, err)
		after, err := st.PolicyCount()
		require.NoError(t, err)
		assert.Equal(t, before, after)
	})

	t.Run("unresolved placeholders stay verbatim", func(t *testing.T) {
		policy, err := engine.Instantiate(id, map[string]string{"other": "x"})
		require.NoError(t, err)
		assert.Equal(t, "Block ${domain}", policy.RuleName)
		assert.Equal(t, "*://*.${domain}/*", policy.URLPattern)
	})

	t.Run("unknown template id", func(t *testing.T) {
		_, err := engine.Instantiate(99999, nil)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("skeleton with bad action fails", func(t *testing.T) {
		badID := createTemplate(t, st, "bad-action", models.PolicySkeleton{
			RuleName:   "Broken",
			URLPattern: "*",
			Action:     "Obliterate",
		})
		_, err := engine.Instantiate(badID, nil)
		assert.Error(t, err)
	})
}

func TestEngine_ExportImport(t *testing.T) {
	engine, st := setupEngine(t)

	createTemplate(t, st, "first", models.PolicySkeleton{
		RuleName: "First ${x}", URLPattern: "*", Action: string(models.ActionBlock),
	})
	createTemplate(t, st, "second", models.PolicySkeleton{
		RuleName: "Second", MimeType: "application/x-executable", Action: string(models.ActionWarnUser),
	})

	doc, err := engine.ExportJSON()
	require.NoError(t, err)

	t.Run("import into a fresh store", func(t *testing.T) {
		fresh, _ := setupEngine(t)
		result, err := fresh.ImportJSON(doc)
		require.NoError(t, err)
		assert.Equal(t, 2, result.Imported)
		assert.Equal(t, 0, result.Skipped)

		restored, err := fresh.List("")
		require.NoError(t, err)
		assert.Len(t, restored, 2)
	})

	t.Run("name collisions are skipped", func(t *testing.T) {
		result, err := engine.ImportJSON(doc)
		require.NoError(t, err)
		assert.Equal(t, 0, result.Imported)
		assert.Equal(t, 2, result.Skipped)
	})

	t.Run("malformed entries are skipped, valid ones land", func(t *testing.T) {
		fresh, _ := setupEngine(t)
		mixed := fmt.Sprintf(`{"version":1,"exportedAt":0,"templates":[
			{"name":"","templateJson":{"policies":[]}},
			{"name":"broken","templateJson":{"policies":[]}},
			{"name":"good","category":"test","templateJson":{"policies":[{"ruleName":"R","urlPattern":"*","action":%q}]}}
		]}`, string(models.ActionBlock))

		result, err := fresh.ImportJSON(mixed)
		require.NoError(t, err)
		assert.Equal(t, 1, result.Imported)
		assert.Equal(t, 2, result.Skipped)
	})

	t.Run("unparseable document errors", func(t *testing.T) {
		_, err := engine.ImportJSON("{not json")
		assert.Error(t, err)
	})
}

func TestEngine_Builtins(t *testing.T) {
	engine, st := setupEngine(t)
	require.NoError(t, engine.SeedBuiltins())

	templates, err := engine.List("")
	require.NoError(t, err)
	assert.Len(t, templates, len(builtinTemplates()))

	t.Run("seeding is idempotent", func(t *testing.T) {
		require.NoError(t, engine.SeedBuiltins())
		again, err := engine.List("")
		require.NoError(t, err)
		assert.Len(t, again, len(templates))
	})

	t.Run("builtins are immutable", func(t *testing.T) {
		tmpl, err := st.GetTemplateByName("Quarantine File Hash")
		require.NoError(t, err)
		assert.Error(t, st.UpdateTemplate(tmpl.ID, tmpl))
		assert.Error(t, st.DeleteTemplate(tmpl.ID))
	})

	t.Run("every builtin instantiates", func(t *testing.T) {
		vars := map[string]string{
			"domain":          "evil.example",
			"hash":            "abc123",
			"form_origin":     "login.example",
			"pattern":         "*://lookalike.example/*",
			"tracking_domain": "tracker.example",
		}
		for _, tmpl := range templates {
			policy, err := engine.Instantiate(tmpl.ID, vars)
			require.NoError(t, err, "template %q", tmpl.Name)
			assert.NoError(t, policy.Validate(), "template %q", tmpl.Name)
		}
	})

	t.Run("category filter", func(t *testing.T) {
		downloads, err := engine.List("download_protection")
		require.NoError(t, err)
		assert.Len(t, downloads, 3)
	})
}
