package inmemory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dvloznov/statement-pipeline/internal/jobs"
)

func TestStore_ListJobs(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	seed := []*jobs.ProcessStatementJob{
		{JobID: "j1", StatementID: "a", Status: jobs.JobStatusCompleted, CreatedAt: base},
		{JobID: "j2", StatementID: "a", Status: jobs.JobStatusFailed, CreatedAt: base.Add(time.Minute)},
		{JobID: "j3", StatementID: "b", Status: jobs.JobStatusCompleted, CreatedAt: base.Add(2 * time.Minute)},
	}
	for _, j := range seed {
		if err := s.SaveJob(ctx, j); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name   string
		filter jobs.JobFilter
		want   []string
	}{
		{"all newest first", jobs.JobFilter{}, []string{"j3", "j2", "j1"}},
		{"by statement", jobs.JobFilter{StatementID: "a"}, []string{"j2", "j1"}},
		{"by status", jobs.JobFilter{Status: jobs.JobStatusCompleted}, []string{"j3", "j1"}},
		{"limit offset", jobs.JobFilter{Limit: 1, Offset: 1}, []string{"j2"}},
		{"offset past end", jobs.JobFilter{Offset: 5}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListJobs(ctx, tt.filter)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d jobs, want %d", len(got), len(tt.want))
			}
			for i, j := range got {
				if j.JobID != tt.want[i] {
					t.Errorf("job %d = %s, want %s", i, j.JobID, tt.want[i])
				}
			}
		})
	}
}

func TestStore_GetJob(t *testing.T) {
	s := NewStore()
	if _, err := s.GetJob(context.Background(), "missing"); !errors.Is(err, jobs.ErrJobNotFound) {
		t.Errorf("err = %v, want ErrJobNotFound", err)
	}
	if err := s.SaveJob(context.Background(), &jobs.ProcessStatementJob{}); err == nil {
		t.Error("SaveJob without id should fail")
	}
}
