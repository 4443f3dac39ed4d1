package prompts_test

import (
	"testing"

	"github.com/lotustrader/learningcore/internal/prompts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEmbeddedRegistersAllBraidTemplates(t *testing.T) {
	r := prompts.NewRegistry()
	require.NoError(t, r.LoadEmbedded())

	for _, id := range []string{
		"braid_pattern",
		"braid_prediction_review",
		"braid_conditional_trading_plan",
		"braid_trading_decision",
		"braid_trade_outcome",
		"braid_execution_outcome",
	} {
		tmpl, err := r.Get(id, "")
		require.NoError(t, err, "template %s should resolve to its latest version", id)
		assert.Equal(t, "v1", tmpl.Version)
		assert.NotEmpty(t, tmpl.System)
		assert.Contains(t, tmpl.RequiredVars, "view_label")
	}
}

func TestValidateVariablesReportsMissing(t *testing.T) {
	r := prompts.NewRegistry()
	require.NoError(t, r.LoadEmbedded())
	tmpl, err := r.Get("braid_pattern", "")
	require.NoError(t, err)

	err = tmpl.ValidateVariables(map[string]any{"view_label": "x"})
	assert.Error(t, err)

	err = tmpl.ValidateVariables(map[string]any{
		"view_label":       "x",
		"members":          "y",
		"aggregated_stats": "z",
	})
	assert.NoError(t, err)
}

func TestRegisterAdvancesLatestOnNewerVersion(t *testing.T) {
	r := prompts.NewRegistry()
	r.Register(prompts.Template{ID: "t", Version: "v1", System: "old"})
	r.Register(prompts.Template{ID: "t", Version: "v2", System: "new"})

	tmpl, err := r.Get("t", "")
	require.NoError(t, err)
	assert.Equal(t, "new", tmpl.System)

	old, err := r.Get("t", "v1")
	require.NoError(t, err)
	assert.Equal(t, "old", old.System)
}
