package models

import (
	"fmt"
	"strings"
	"time"
)

// JobLogStatus tracks one execution from start to terminal state
type JobLogStatus string

// JobLogStatus constants
const (
	JobLogStatusRunning JobLogStatus = "RUNNING"
	JobLogStatusSuccess JobLogStatus = "SUCCESS"
	JobLogStatusFailed  JobLogStatus = "FAILED"
)

// IsTerminal reports whether the status is SUCCESS or FAILED
func (s JobLogStatus) IsTerminal() bool {
	return s == JobLogStatusSuccess || s == JobLogStatusFailed
}

// JobLog records one fire of a job. The row is inserted RUNNING before
// the first attempt and updated in place to a terminal state exactly
// once; ExecutionID is stable across retries of the same fire.
type JobLog struct {
	ID           int64        `json:"id"`
	JobID        int64        `json:"jobId"`
	JobName      string       `json:"jobName"`
	JobGroup     string       `json:"jobGroup"`
	ExecutionID  string       `json:"executionId"`
	StartTime    time.Time    `json:"startTime"`
	EndTime      *time.Time   `json:"endTime,omitempty"`
	Duration     int64        `json:"duration"` // Milliseconds, EndTime - StartTime
	Status       JobLogStatus `json:"status"`
	RetryCount   int          `json:"retryCount"` // Retries that occurred; 0 on first-try success
	ServerIP     string       `json:"serverIp"`
	ServerName   string       `json:"serverName"`
	ExecutionLog string       `json:"executionLog"`
	ErrorMessage string       `json:"errorMessage"`
}

const logLineTimeFormat = "2006-01-02 15:04:05.000"

// AppendLog adds a timestamped line to the execution log accumulator
func (l *JobLog) AppendLog(msg string) {
	line := fmt.Sprintf("[%s] %s", time.Now().Format(logLineTimeFormat), msg)
	if l.ExecutionLog == "" {
		l.ExecutionLog = line
	} else {
		l.ExecutionLog += "\n" + line
	}
}

// AppendError adds a timestamped line to the error accumulator and
// mirrors it into the execution log with an [ERROR] prefix.
func (l *JobLog) AppendError(msg string) {
	line := fmt.Sprintf("[%s] %s", time.Now().Format(logLineTimeFormat), msg)
	if l.ErrorMessage == "" {
		l.ErrorMessage = line
	} else {
		l.ErrorMessage += "\n" + line
	}
	l.AppendLog("[ERROR] " + msg)
}

// ErrorLines returns the accumulated error lines
func (l *JobLog) ErrorLines() []string {
	if l.ErrorMessage == "" {
		return nil
	}
	return strings.Split(l.ErrorMessage, "\n")
}
