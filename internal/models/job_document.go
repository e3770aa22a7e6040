package models

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ternarybob/cadence/internal/common"
)

// JobConfigDocument is the wire form of a job config as held by the
// config store. Pointer fields distinguish "absent" from "zero" so a
// reconciliation overlays only the keys the document actually carries.
type JobConfigDocument struct {
	JobName            *string             `json:"jobName,omitempty"`
	JobGroup           *string             `json:"jobGroup,omitempty"`
	Environment        *string             `json:"environment,omitempty"`
	JobType            *JobType            `json:"jobType,omitempty"`
	JobClass           *string             `json:"jobClass,omitempty"`
	CronExpression     *string             `json:"cronExpression,omitempty"`
	JobParams          map[string]any      `json:"jobParams,omitempty"`
	Description        *string             `json:"description,omitempty"`
	Status             *JobStatus          `json:"status,omitempty"`
	RetryCount         *int                `json:"retryCount,omitempty"`
	RetryInterval      *int                `json:"retryInterval,omitempty"`
	Timeout            *int                `json:"timeout,omitempty"`
	AlertEnabled       *bool               `json:"alertEnabled,omitempty"`
	AlertTypes         []AlertType         `json:"alertTypes,omitempty"`
	AlertReceivers     map[string][]string `json:"alertReceivers,omitempty"`
	GrayReleaseEnabled *bool               `json:"grayReleaseEnabled,omitempty"`
	GrayReleasePercent *int                `json:"grayReleasePercent,omitempty"`
	Version            *int64              `json:"version,omitempty"`
}

// ParseJobConfigDocument parses the JSON content of a job document.
// Empty or invalid content is a configuration error.
func ParseJobConfigDocument(content string) (*JobConfigDocument, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return nil, common.ConfigurationError("job document is empty")
	}

	var doc JobConfigDocument
	if err := json.Unmarshal([]byte(trimmed), &doc); err != nil {
		return nil, common.ConfigurationError("job document is not valid JSON: %v", err)
	}

	if doc.JobType != nil && !IsValidJobType(*doc.JobType) {
		return nil, common.ConfigurationError("unknown jobType %q", *doc.JobType)
	}
	if doc.Status != nil && !IsValidJobStatus(*doc.Status) {
		return nil, common.ConfigurationError("unknown status %q", *doc.Status)
	}
	if doc.CronExpression != nil && *doc.CronExpression != "" {
		if err := common.ValidateCronExpression(*doc.CronExpression); err != nil {
			return nil, err
		}
	}

	return &doc, nil
}

// ToDocument converts a job config into its full wire form
func (j *JobConfig) ToDocument() *JobConfigDocument {
	c := j.Clone()
	return &JobConfigDocument{
		JobName:            &c.JobName,
		JobGroup:           &c.JobGroup,
		Environment:        &c.Environment,
		JobType:            &c.JobType,
		JobClass:           &c.JobClass,
		CronExpression:     &c.CronExpression,
		JobParams:          c.JobParams,
		Description:        &c.Description,
		Status:             &c.Status,
		RetryCount:         &c.RetryCount,
		RetryInterval:      &c.RetryInterval,
		Timeout:            &c.Timeout,
		AlertEnabled:       &c.AlertEnabled,
		AlertTypes:         c.AlertTypes,
		AlertReceivers:     c.AlertReceivers,
		GrayReleaseEnabled: &c.GrayReleaseEnabled,
		GrayReleasePercent: &c.GrayReleasePercent,
		Version:            &c.Version,
	}
}

// MarshalDocument serializes the job config for publication to the
// config store.
func (j *JobConfig) MarshalDocument() (string, error) {
	data, err := json.Marshal(j.ToDocument())
	if err != nil {
		return "", fmt.Errorf("failed to marshal job document: %w", err)
	}
	return string(data), nil
}

// ApplyTo overlays the document's present keys onto an existing config.
// Audit fields and the surrogate id are never touched; Version remains
// repository-owned.
func (d *JobConfigDocument) ApplyTo(cfg *JobConfig) {
	if d.JobType != nil {
		cfg.JobType = *d.JobType
	}
	if d.JobClass != nil {
		cfg.JobClass = *d.JobClass
	}
	if d.CronExpression != nil {
		cfg.CronExpression = *d.CronExpression
	}
	if d.JobParams != nil {
		cfg.JobParams = d.JobParams
	}
	if d.Description != nil {
		cfg.Description = *d.Description
	}
	if d.Status != nil {
		cfg.Status = *d.Status
	}
	if d.RetryCount != nil {
		cfg.RetryCount = *d.RetryCount
	}
	if d.RetryInterval != nil {
		cfg.RetryInterval = *d.RetryInterval
	}
	if d.Timeout != nil {
		cfg.Timeout = *d.Timeout
	}
	if d.AlertEnabled != nil {
		cfg.AlertEnabled = *d.AlertEnabled
	}
	if d.AlertTypes != nil {
		cfg.AlertTypes = d.AlertTypes
	}
	if d.AlertReceivers != nil {
		cfg.AlertReceivers = d.AlertReceivers
	}
	if d.GrayReleaseEnabled != nil {
		cfg.GrayReleaseEnabled = *d.GrayReleaseEnabled
	}
	if d.GrayReleasePercent != nil {
		cfg.GrayReleasePercent = *d.GrayReleasePercent
	}
}

// NewJobConfig builds a fresh config from a document. Used when a config
// store push arrives for a job with no database row. Required fields:
// jobName, jobGroup, environment, jobType, jobClass, status; a QUARTZ job
// additionally needs a cron expression to be schedulable.
func (d *JobConfigDocument) NewJobConfig() (*JobConfig, error) {
	missing := []string{}
	if d.JobName == nil || *d.JobName == "" {
		missing = append(missing, "jobName")
	}
	if d.JobGroup == nil || *d.JobGroup == "" {
		missing = append(missing, "jobGroup")
	}
	if d.Environment == nil || *d.Environment == "" {
		missing = append(missing, "environment")
	}
	if d.JobType == nil {
		missing = append(missing, "jobType")
	}
	if d.JobClass == nil || *d.JobClass == "" {
		missing = append(missing, "jobClass")
	}
	if d.Status == nil {
		missing = append(missing, "status")
	}
	if len(missing) > 0 {
		return nil, common.ConfigurationError("job document missing required fields: %s", strings.Join(missing, ", "))
	}

	cfg := &JobConfig{
		JobName:       *d.JobName,
		JobGroup:      *d.JobGroup,
		Environment:   *d.Environment,
		JobType:       *d.JobType,
		JobClass:      *d.JobClass,
		Status:        *d.Status,
		RetryCount:    DefaultRetryCount,
		RetryInterval: DefaultRetryInterval,
	}
	d.ApplyTo(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
