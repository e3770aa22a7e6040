package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJobConfigDocument(t *testing.T) {
	doc, err := ParseJobConfigDocument(`{"status": "PAUSED", "retryCount": 5}`)
	require.NoError(t, err)

	require.NotNil(t, doc.Status)
	assert.Equal(t, JobStatusPaused, *doc.Status)
	require.NotNil(t, doc.RetryCount)
	assert.Equal(t, 5, *doc.RetryCount)
	assert.Nil(t, doc.CronExpression)
	assert.Nil(t, doc.JobName)
}

func TestParseJobConfigDocument_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"empty", ""},
		{"whitespace", "   \n"},
		{"not json", "status: PAUSED"},
		{"unknown status", `{"status": "DISABLED"}`},
		{"unknown job type", `{"jobType": "MANUAL"}`},
		{"bad cron", `{"cronExpression": "* * * * *"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseJobConfigDocument(tt.content)
			assert.Error(t, err)
		})
	}
}

func TestApplyTo_OverlaysOnlyPresentKeys(t *testing.T) {
	cfg := validJobConfig()
	cfg.ID = 42
	cfg.Version = 7
	cfg.Description = "syncs orders"
	cfg.RetryCount = 3

	doc, err := ParseJobConfigDocument(`{"status": "PAUSED", "retryCount": 5}`)
	require.NoError(t, err)
	doc.ApplyTo(cfg)

	// Present keys overlaid
	assert.Equal(t, JobStatusPaused, cfg.Status)
	assert.Equal(t, 5, cfg.RetryCount)

	// Absent keys untouched
	assert.Equal(t, "0 */5 * * * ?", cfg.CronExpression)
	assert.Equal(t, "syncs orders", cfg.Description)
	assert.Equal(t, "jobs.OrderSyncJob", cfg.JobClass)

	// Identity and audit fields never move
	assert.Equal(t, int64(42), cfg.ID)
	assert.Equal(t, int64(7), cfg.Version)
}

func TestApplyTo_ZeroValueIsNotAbsent(t *testing.T) {
	cfg := validJobConfig()
	cfg.RetryCount = 3

	doc, err := ParseJobConfigDocument(`{"retryCount": 0}`)
	require.NoError(t, err)
	doc.ApplyTo(cfg)

	assert.Equal(t, 0, cfg.RetryCount)
}

func TestMarshalDocument_RoundTrip(t *testing.T) {
	cfg := validJobConfig()
	cfg.JobParams = map[string]any{"batch": float64(100)}

	content, err := cfg.MarshalDocument()
	require.NoError(t, err)

	doc, err := ParseJobConfigDocument(content)
	require.NoError(t, err)

	rebuilt, err := doc.NewJobConfig()
	require.NoError(t, err)
	assert.Equal(t, cfg.JobName, rebuilt.JobName)
	assert.Equal(t, cfg.CronExpression, rebuilt.CronExpression)
	assert.Equal(t, cfg.Status, rebuilt.Status)
	assert.Equal(t, cfg.JobParams, rebuilt.JobParams)
}

func TestNewJobConfig_RequiresIdentity(t *testing.T) {
	doc, err := ParseJobConfigDocument(`{"status": "STOPPED"}`)
	require.NoError(t, err)

	_, err = doc.NewJobConfig()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "jobName")
}
