package cmd

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/supportdesk/internal/models"
	"github.com/joescharf/supportdesk/internal/options"
)

func optionValues(t *testing.T, key models.OptionKey) []string {
	t.Helper()
	s, err := getStore()
	require.NoError(t, err)
	e, err := options.Load(context.Background(), s, key)
	require.NoError(t, err)
	return e.Values()
}

func TestParseOptionKey(t *testing.T) {
	tests := []struct {
		raw  string
		want models.OptionKey
	}{
		{"plugins", models.PluginOptions},
		{"Category", models.CategoryOptions},
		{"status_options", models.StatusOptions},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := parseOptionKey(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := parseOptionKey("colours")
	assert.Error(t, err)
}

func TestOptions_AddRenameRemove(t *testing.T) {
	testEnv(t)
	buf := captureUI(t)

	require.NoError(t, optionsAddRun("plugins", "Checkout Plus"))
	require.NoError(t, optionsAddRun("plugins", "Bookings"))
	assert.Equal(t, []string{"Checkout Plus", "Bookings"}, optionValues(t, models.PluginOptions))
	assert.Contains(t, buf.String(), "Saved plugin_options")

	err := optionsAddRun("plugins", "Bookings")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already")

	require.NoError(t, optionsRenameRun("plugins", "Bookings", "Bookings Pro"))
	assert.Equal(t, []string{"Checkout Plus", "Bookings Pro"}, optionValues(t, models.PluginOptions))

	require.NoError(t, optionsRemoveRun("plugins", "Checkout Plus"))
	assert.Equal(t, []string{"Bookings Pro"}, optionValues(t, models.PluginOptions))

	err = optionsRemoveRun("plugins", "Missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestOptions_SetStatuses(t *testing.T) {
	testEnv(t)
	captureUI(t)

	require.NoError(t, optionsSetRun("statuses", []string{"Escalated", "Open", "Resolved"}))
	assert.Equal(t, []string{"Escalated", "Open", "Resolved"}, optionValues(t, models.StatusOptions))

	err := optionsAddRun("statuses", "Closed")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown status")
}

func TestOptions_DryRun(t *testing.T) {
	testEnv(t)
	buf := captureUI(t)
	setDryRun(t)

	require.NoError(t, optionsAddRun("categories", "Bug"))
	assert.Contains(t, buf.String(), "Would add Bug")
	assert.Empty(t, optionValues(t, models.CategoryOptions))
}

func TestOptions_List(t *testing.T) {
	testEnv(t)
	buf := captureUI(t)

	require.NoError(t, optionsAddRun("categories", "Bug"))
	buf.Reset()

	require.NoError(t, optionsListRun())
	out := buf.String()
	assert.Contains(t, out, "category_options")
	assert.Contains(t, out, "Bug")
	assert.Contains(t, out, "(none, free text)")
}
