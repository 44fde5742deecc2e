package worker

import (
	"testing"
	"time"
)

func TestJobStatus(t *testing.T) {
	tests := []struct {
		name   string
		status JobStatus
		want   string
	}{
		{"success status", JobStatusSuccess, "success"},
		{"failure status", JobStatusFailure, "failure"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if string(tt.status) != tt.want {
				t.Errorf("JobStatus = %v, want %v", tt.status, tt.want)
			}
		})
	}
}

func TestJob(t *testing.T) {
	now := time.Now()
	job := &Job{
		ID:        "test-job-123",
		Type:      JobTypeReconcile,
		Payload:   map[string]any{"services_path": "/tmp/servicios.xlsx"},
		Source:    "redis",
		MessageID: "1700000000000-0",
		Metadata:  JobMetadata{CreatedAt: now},
	}

	if job.Type != "reconcile" {
		t.Errorf("Job.Type = %v, want reconcile", job.Type)
	}
	if job.Payload["services_path"] != "/tmp/servicios.xlsx" {
		t.Errorf("Job.Payload[services_path] = %v", job.Payload["services_path"])
	}
	if !job.Metadata.CreatedAt.Equal(now) {
		t.Errorf("Job.Metadata.CreatedAt = %v, want %v", job.Metadata.CreatedAt, now)
	}
}
