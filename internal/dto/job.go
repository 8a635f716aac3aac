package dto

import (
	"fmt"
	"time"

	"github.com/canbulut/fxbatch/internal/models"
)

// JobSummaryResponse defines the data returned for one job execution.
type JobSummaryResponse struct {
	JobID       string            `json:"jobId"`
	JobName     string            `json:"jobName"`
	Status      string            `json:"status"`
	ExitMessage string            `json:"exitMessage,omitempty"`
	Filename    string            `json:"filename,omitempty"`
	Counts      models.StepCounts `json:"counts"`
	CreateTime  time.Time         `json:"createTime"`
	StartTime   *time.Time        `json:"startTime,omitempty"`
	EndTime     *time.Time        `json:"endTime,omitempty"`
	Elapsed     string            `json:"elapsed,omitempty"`
}

// ToJobSummaryResponse converts a models.JobExecution to JobSummaryResponse DTO
func ToJobSummaryResponse(exec *models.JobExecution) JobSummaryResponse {
	resp := JobSummaryResponse{
		JobID:       exec.JobID,
		JobName:     exec.JobName,
		Status:      string(exec.Status),
		ExitMessage: exec.ExitMessage,
		Filename:    exec.Parameters.OriginalFilename,
		Counts:      exec.Counts,
		CreateTime:  exec.CreateTime,
	}
	if !exec.StartTime.IsZero() {
		t := exec.StartTime
		resp.StartTime = &t
		end := time.Now()
		if !exec.EndTime.IsZero() {
			e := exec.EndTime
			resp.EndTime = &e
			end = exec.EndTime
		}
		resp.Elapsed = FormatElapsed(exec.StartTime, end)
	}
	return resp
}

// ToListJobSummaryResponse converts a slice of models.JobExecution to summary DTOs
func ToListJobSummaryResponse(execs []models.JobExecution) []JobSummaryResponse {
	res := make([]JobSummaryResponse, len(execs))
	for i, exec := range execs {
		res[i] = ToJobSummaryResponse(&exec)
	}
	return res
}

// JobPageResponse is a page of job executions for one job name.
type JobPageResponse struct {
	Content       []JobSummaryResponse `json:"content"`
	Page          int                  `json:"page"`
	Size          int                  `json:"size"`
	TotalElements int                  `json:"totalElements"`
	TotalPages    int                  `json:"totalPages"`
}

// ToJobPageResponse converts a slice of executions plus paging metadata to a page DTO
func ToJobPageResponse(execs []models.JobExecution, page, size, total int) JobPageResponse {
	totalPages := 0
	if size > 0 {
		totalPages = (total + size - 1) / size
	}
	return JobPageResponse{
		Content:       ToListJobSummaryResponse(execs),
		Page:          page,
		Size:          size,
		TotalElements: total,
		TotalPages:    totalPages,
	}
}

// AsyncTaskResponse acknowledges an accepted asynchronous job submission.
type AsyncTaskResponse struct {
	TaskID  string `json:"taskId"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// TaskPollResponse reports the state of one async task. Job is populated once the
// execution record exists.
type TaskPollResponse struct {
	TaskID string              `json:"taskId"`
	State  string              `json:"state"`
	Job    *JobSummaryResponse `json:"job,omitempty"`
}

// JobStatisticsResponse aggregates execution counts by status.
type JobStatisticsResponse struct {
	TotalJobs      int            `json:"totalJobs"`
	CountsByStatus map[string]int `json:"countsByStatus"`
}

// FormatElapsed renders the duration between start and end as HH:MM:SS.
func FormatElapsed(start, end time.Time) string {
	d := end.Sub(start)
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
