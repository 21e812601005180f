package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shaiso/Fabrica/internal/domain"
)

// --- jobConnector Tests ---

func TestJobConnector_ReportCompletion(t *testing.T) {
	jobID := uuid.New()

	var paths []string
	var completeBody struct {
		Result domain.JobResult `json:"result"`
		Error  string           `json:"error"`
	}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/connection" {
			paths = append(paths, r.Method+" "+r.URL.Path)
		}
		if strings.HasSuffix(r.URL.Path, "/complete") {
			json.NewDecoder(r.Body).Decode(&completeBody)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	c := &jobConnector{logger: slog.Default()}
	auth := domain.Authorization{
		Scheme:     domain.AuthSchemeOAuth,
		Parameters: map[string]string{"accessToken": "t"},
	}
	if _, err := c.Connect(context.Background(), ts.URL, auth); err != nil {
		t.Fatalf("connect: %v", err)
	}

	job := &domain.JobRequest{JobID: jobID, JobName: "Nightly"}
	c.reportCompletion(context.Background(), job, domain.ResultFailed, "boom")

	want := []string{
		"POST /api/v1/jobs/" + jobID.String() + "/logs",
		"POST /api/v1/jobs/" + jobID.String() + "/complete",
	}
	if len(paths) != 2 || paths[0] != want[0] || paths[1] != want[1] {
		t.Fatalf("paths = %v, want %v", paths, want)
	}
	if completeBody.Result != domain.ResultFailed || completeBody.Error != "boom" {
		t.Errorf("complete body = %+v", completeBody)
	}
}

func TestJobConnector_ReportCompletionWithoutConnect(t *testing.T) {
	// Job упал до ConnectJob: сообщать некуда, вызов — no-op
	c := &jobConnector{logger: slog.Default()}
	c.reportCompletion(context.Background(), &domain.JobRequest{JobID: uuid.New()}, domain.ResultFailed, "invalid job")
}

func TestJobConnector_HandleClearedAfterReport(t *testing.T) {
	var completes int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/complete") {
			completes++
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	c := &jobConnector{logger: slog.Default()}
	auth := domain.Authorization{
		Scheme:     domain.AuthSchemeOAuth,
		Parameters: map[string]string{"accessToken": "t"},
	}
	if _, err := c.Connect(context.Background(), ts.URL, auth); err != nil {
		t.Fatal(err)
	}

	job := &domain.JobRequest{JobID: uuid.New(), JobName: "Build"}
	c.reportCompletion(context.Background(), job, domain.ResultSucceeded, "")
	c.reportCompletion(context.Background(), job, domain.ResultSucceeded, "")

	if completes != 1 {
		t.Errorf("handle must be used once, got %d completions", completes)
	}
}
