package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validJobConfig() *JobConfig {
	return &JobConfig{
		JobName:        "order-sync",
		JobGroup:       "orders",
		Environment:    "test",
		JobType:        JobTypeQuartz,
		JobClass:       "jobs.OrderSyncJob",
		CronExpression: "0 */5 * * * ?",
		Status:         JobStatusRunning,
		RetryCount:     DefaultRetryCount,
		RetryInterval:  DefaultRetryInterval,
	}
}

func TestJobConfigValidate(t *testing.T) {
	assert.NoError(t, validJobConfig().Validate())
}

func TestJobConfigValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*JobConfig)
	}{
		{"missing job name", func(c *JobConfig) { c.JobName = "" }},
		{"missing job class", func(c *JobConfig) { c.JobClass = "" }},
		{"unknown job type", func(c *JobConfig) { c.JobType = "MANUAL" }},
		{"unknown status", func(c *JobConfig) { c.Status = "DISABLED" }},
		{"bad cron", func(c *JobConfig) { c.CronExpression = "* * * * *" }},
		{"running quartz without cron", func(c *JobConfig) { c.CronExpression = "" }},
		{"gray percent out of range", func(c *JobConfig) { c.GrayReleasePercent = 101 }},
		{"negative retry count", func(c *JobConfig) { c.RetryCount = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validJobConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestJobConfigValidate_ExternalWithoutCron(t *testing.T) {
	cfg := validJobConfig()
	cfg.JobType = JobTypeExternal
	cfg.CronExpression = ""
	assert.NoError(t, cfg.Validate())
}

func TestJobDataID_RoundTrip(t *testing.T) {
	dataID := JobDataID("order-sync", "orders", "test")
	assert.Equal(t, "scheduler.job.order-sync.orders.test.json", dataID)

	name, group, env, err := ParseJobDataID(dataID)
	require.NoError(t, err)
	assert.Equal(t, "order-sync", name)
	assert.Equal(t, "orders", group)
	assert.Equal(t, "test", env)
}

func TestParseJobDataID_Malformed(t *testing.T) {
	malformed := []string{
		"",
		"order-sync.orders.test.json",
		"scheduler.job.order-sync.orders.test",
		"scheduler.job.orders.test.json",
		"scheduler.job.a.b.c.d.json", // a dotted name is ambiguous
		"scheduler.job...json",
	}
	for _, dataID := range malformed {
		_, _, _, err := ParseJobDataID(dataID)
		assert.Error(t, err, dataID)
	}
}

func TestJobConfigClone_Isolated(t *testing.T) {
	cfg := validJobConfig()
	cfg.JobParams = map[string]any{"batch": 100}
	cfg.AlertTypes = []AlertType{AlertTypeEmail}

	clone := cfg.Clone()
	clone.JobParams["batch"] = 500
	clone.AlertTypes[0] = AlertTypeWechat

	assert.Equal(t, 100, cfg.JobParams["batch"])
	assert.Equal(t, AlertTypeEmail, cfg.AlertTypes[0])
}

func TestMarshalParams_RoundTrip(t *testing.T) {
	cfg := validJobConfig()
	cfg.JobParams = map[string]any{"source": "s3", "batch": float64(250)}

	encoded, err := cfg.MarshalParams()
	require.NoError(t, err)

	decoded := validJobConfig()
	require.NoError(t, decoded.UnmarshalParams(encoded))
	assert.Equal(t, cfg.JobParams, decoded.JobParams)
}
