package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ternarybob/cadence/internal/common"
)

// JobType selects the trigger backend for a job
type JobType string

// JobType constants
const (
	JobTypeQuartz   JobType = "QUARTZ"   // Fired by the in-process cron runner
	JobTypeExternal JobType = "EXTERNAL" // Scheduled by an external executor; the core records intent only
)

// IsValidJobType checks if a given JobType is one of the valid constants
func IsValidJobType(jobType JobType) bool {
	switch jobType {
	case JobTypeQuartz, JobTypeExternal:
		return true
	default:
		return false
	}
}

// JobStatus is the desired lifecycle state of a job
type JobStatus string

// JobStatus constants
const (
	JobStatusRunning JobStatus = "RUNNING"
	JobStatusStopped JobStatus = "STOPPED"
	JobStatusPaused  JobStatus = "PAUSED"
)

// IsValidJobStatus checks if a given JobStatus is one of the valid constants
func IsValidJobStatus(status JobStatus) bool {
	switch status {
	case JobStatusRunning, JobStatusStopped, JobStatusPaused:
		return true
	default:
		return false
	}
}

// AlertType identifies an out-of-band notification channel
type AlertType string

// AlertType constants
const (
	AlertTypeDingtalk AlertType = "DINGTALK"
	AlertTypeWechat   AlertType = "WECHAT"
	AlertTypeEmail    AlertType = "EMAIL"
)

// JobConfig is the authoritative description of one scheduled job.
// (JobName, JobGroup, Environment) is the natural key; ID is assigned by
// the repository.
type JobConfig struct {
	ID                 int64               `json:"id"`
	JobName            string              `json:"jobName" validate:"required"`
	JobGroup           string              `json:"jobGroup"`
	Environment        string              `json:"environment" validate:"required"`
	JobType            JobType             `json:"jobType" validate:"required,oneof=QUARTZ EXTERNAL"`
	JobClass           string              `json:"jobClass" validate:"required"`
	CronExpression     string              `json:"cronExpression,omitempty"`
	JobParams          map[string]any      `json:"jobParams,omitempty"`
	Description        string              `json:"description,omitempty"`
	Status             JobStatus           `json:"status" validate:"required,oneof=RUNNING STOPPED PAUSED"`
	RetryCount         int                 `json:"retryCount" validate:"gte=0"`
	RetryInterval      int                 `json:"retryInterval" validate:"gte=0"` // Seconds between retries
	Timeout            int                 `json:"timeout" validate:"gte=0"`       // Advisory soft timeout in seconds
	AlertEnabled       bool                `json:"alertEnabled"`
	AlertTypes         []AlertType         `json:"alertTypes,omitempty"`
	AlertReceivers     map[string][]string `json:"alertReceivers,omitempty"`
	GrayReleaseEnabled bool                `json:"grayReleaseEnabled"`
	GrayReleasePercent int                 `json:"grayReleasePercent" validate:"gte=0,lte=100"`
	Version            int64               `json:"version"`
	Creator            string              `json:"creator,omitempty"`
	Modifier           string              `json:"modifier,omitempty"`
	CreateTime         time.Time           `json:"createTime"`
	UpdateTime         time.Time           `json:"updateTime"`
}

// Default retry behavior applied when a new row carries no explicit values
const (
	DefaultRetryCount    = 3
	DefaultRetryInterval = 60
	DefaultJobGroup      = "DEFAULT"
)

var validate = validator.New()

// Validate validates the job config. Cron expression validation is only
// applied when an expression is present; EXTERNAL jobs may omit it.
func (j *JobConfig) Validate() error {
	if err := validate.Struct(j); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
			return common.ConfigurationError("invalid field %s: failed %s validation", errs[0].Field(), errs[0].Tag())
		}
		return common.ConfigurationError("invalid job config: %v", err)
	}

	if j.CronExpression != "" {
		if err := common.ValidateCronExpression(j.CronExpression); err != nil {
			return err
		}
	}

	if j.JobType == JobTypeQuartz && j.Status == JobStatusRunning && j.CronExpression == "" {
		return common.ConfigurationError("invalid field CronExpression: required for a RUNNING QUARTZ job")
	}

	return nil
}

// NaturalKey returns the management-level identity of the job
func (j *JobConfig) NaturalKey() string {
	return fmt.Sprintf("%s.%s.%s", j.JobName, j.JobGroup, j.Environment)
}

// DataID returns the config store document data id for this job
func (j *JobConfig) DataID() string {
	return JobDataID(j.JobName, j.JobGroup, j.Environment)
}

// MarshalParams serializes the params map to JSON for database storage
func (j *JobConfig) MarshalParams() (string, error) {
	if j.JobParams == nil {
		return "{}", nil
	}
	data, err := json.Marshal(j.JobParams)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job params: %w", err)
	}
	return string(data), nil
}

// UnmarshalParams deserializes the params JSON string from the database
func (j *JobConfig) UnmarshalParams(data string) error {
	if data == "" || data == "{}" {
		j.JobParams = make(map[string]any)
		return nil
	}
	if err := json.Unmarshal([]byte(data), &j.JobParams); err != nil {
		return fmt.Errorf("failed to unmarshal job params: %w", err)
	}
	return nil
}

// MarshalAlerts serializes alert metadata to JSON for database storage
func (j *JobConfig) MarshalAlerts() (string, string, error) {
	types, err := json.Marshal(j.AlertTypes)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal alert types: %w", err)
	}
	receivers := "{}"
	if j.AlertReceivers != nil {
		data, err := json.Marshal(j.AlertReceivers)
		if err != nil {
			return "", "", fmt.Errorf("failed to marshal alert receivers: %w", err)
		}
		receivers = string(data)
	}
	return string(types), receivers, nil
}

// UnmarshalAlerts deserializes alert metadata from database columns
func (j *JobConfig) UnmarshalAlerts(types, receivers string) error {
	if types != "" && types != "null" {
		if err := json.Unmarshal([]byte(types), &j.AlertTypes); err != nil {
			return fmt.Errorf("failed to unmarshal alert types: %w", err)
		}
	}
	if receivers != "" && receivers != "{}" && receivers != "null" {
		if err := json.Unmarshal([]byte(receivers), &j.AlertReceivers); err != nil {
			return fmt.Errorf("failed to unmarshal alert receivers: %w", err)
		}
	}
	return nil
}

// Clone returns a deep copy of the config. Scheduler handles hold a
// snapshot so an in-flight fire is not affected by concurrent updates.
func (j *JobConfig) Clone() *JobConfig {
	c := *j
	if j.JobParams != nil {
		c.JobParams = make(map[string]any, len(j.JobParams))
		for k, v := range j.JobParams {
			c.JobParams[k] = v
		}
	}
	if j.AlertTypes != nil {
		c.AlertTypes = append([]AlertType(nil), j.AlertTypes...)
	}
	if j.AlertReceivers != nil {
		c.AlertReceivers = make(map[string][]string, len(j.AlertReceivers))
		for k, v := range j.AlertReceivers {
			c.AlertReceivers[k] = append([]string(nil), v...)
		}
	}
	return &c
}

const (
	jobDataIDPrefix = "scheduler.job."
	jobDataIDSuffix = ".json"
)

// JobDataID builds the config store data id for a job's natural key.
// Format: scheduler.job.<jobName>.<jobGroup>.<environment>.json
func JobDataID(jobName, jobGroup, environment string) string {
	return jobDataIDPrefix + jobName + "." + jobGroup + "." + environment + jobDataIDSuffix
}

// ParseJobDataID extracts the natural key from a job document data id.
// Names containing dots are unsupported by the data id scheme and parse
// as malformed.
func ParseJobDataID(dataID string) (jobName, jobGroup, environment string, err error) {
	if !strings.HasPrefix(dataID, jobDataIDPrefix) || !strings.HasSuffix(dataID, jobDataIDSuffix) {
		return "", "", "", fmt.Errorf("data id %q does not match scheduler.job.<name>.<group>.<env>.json", dataID)
	}
	core := strings.TrimSuffix(strings.TrimPrefix(dataID, jobDataIDPrefix), jobDataIDSuffix)
	parts := strings.Split(core, ".")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", "", "", fmt.Errorf("data id %q does not match scheduler.job.<name>.<group>.<env>.json", dataID)
	}
	return parts[0], parts[1], parts[2], nil
}
