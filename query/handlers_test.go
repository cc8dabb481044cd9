package query

import (
	"context"
	"errors"
	"net/http"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-interview-scoring/core"
)

func newServiceWithSession(t *testing.T) *core.Service {
	t.Helper()
	svc, err := core.NewService(core.Config{})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	t.Cleanup(svc.Close)
	ctx := context.Background()
	if _, err := svc.CreateSession(ctx, core.CreateSessionInput{ID: "sess_1", RubricID: "rubric_1"}); err != nil {
		t.Fatalf("create session: %v", err)
	}
	for _, status := range []core.SessionStatus{core.SessionStatusWebhookReceived, core.SessionStatusScoringEnqueueFailed} {
		if _, err := svc.Transition(ctx, core.SessionTransition{SessionID: "sess_1", To: status, Error: "queue unavailable"}); err != nil {
			t.Fatalf("transition %s: %v", status, err)
		}
	}
	return svc
}

func TestGetSessionStatusQuery_HidesRawError(t *testing.T) {
	svc := newServiceWithSession(t)
	view, err := NewGetSessionStatusQuery(svc).Query(context.Background(), GetSessionStatusMessage{SessionID: " sess_1 "})
	if err != nil {
		t.Fatalf("query status: %v", err)
	}
	if view.Status != core.SessionStatusScoringEnqueueFailed || !view.Failed {
		t.Fatalf("unexpected view %+v", view)
	}
	if view.Label != "We hit an issue while scoring your interview" {
		t.Fatalf("expected friendly failure label, got %q", view.Label)
	}
}

func TestGetSessionStatusQuery_UnknownSession(t *testing.T) {
	svc := newServiceWithSession(t)
	_, err := NewGetSessionStatusQuery(svc).Query(context.Background(), GetSessionStatusMessage{SessionID: "missing"})
	if err == nil {
		t.Fatalf("expected not found")
	}
	if mapped := core.MapError(err); mapped.Code != http.StatusNotFound {
		t.Fatalf("expected 404 envelope, got %+v", mapped)
	}
}

func TestListSessionJobsQuery_ReturnsSessionJobs(t *testing.T) {
	svc := newServiceWithSession(t)
	ctx := context.Background()
	if _, err := svc.EnqueueScoring(ctx, "sess_1", "rubric_1"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	jobs, err := NewListSessionJobsQuery(svc).Query(ctx, ListSessionJobsMessage{SessionID: "sess_1", Limit: 10})
	if err != nil {
		t.Fatalf("list jobs: %v", err)
	}
	if len(jobs) != 1 || jobs[0].SessionID != "sess_1" || jobs[0].Status != core.JobStatusPending {
		t.Fatalf("unexpected jobs %+v", jobs)
	}
}

type failingJobsReader struct{ err error }

func (r failingJobsReader) ListSessionJobs(context.Context, string, int) ([]core.ScoringJob, error) {
	return nil, r.err
}

func TestListSessionJobsQuery_PropagatesReaderErrors(t *testing.T) {
	boom := errors.New("store offline")
	_, err := NewListSessionJobsQuery(failingJobsReader{err: boom}).Query(context.Background(), ListSessionJobsMessage{SessionID: "sess_1"})
	if !errors.Is(err, boom) {
		t.Fatalf("expected reader error, got %v", err)
	}
}

func TestMessages_ValidateReturnsRichErrors(t *testing.T) {
	cases := []struct {
		err   error
		field string
	}{
		{err: (GetSessionStatusMessage{}).Validate(), field: "session_id"},
		{err: (ListSessionJobsMessage{}).Validate(), field: "session_id"},
		{err: (ListSessionJobsMessage{SessionID: "sess_1", Limit: 101}).Validate(), field: "limit"},
	}
	for _, tc := range cases {
		var rich *goerrors.Error
		if !goerrors.As(tc.err, &rich) {
			t.Fatalf("expected go-errors envelope, got %T", tc.err)
		}
		if rich.TextCode != core.ErrorBadInput || rich.Code != http.StatusBadRequest {
			t.Fatalf("unexpected envelope %+v", rich)
		}
		if validation := rich.AllValidationErrors(); len(validation) == 0 || validation[0].Field != tc.field {
			t.Fatalf("expected %s field error, got %+v", tc.field, validation)
		}
	}
}

func TestQueries_NilReaderReturnsRichError(t *testing.T) {
	var statusQuery *GetSessionStatusQuery
	_, err := statusQuery.Query(context.Background(), GetSessionStatusMessage{})
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) || rich.TextCode != core.ErrorInternal {
		t.Fatalf("expected internal envelope, got %v", err)
	}
	_, err = NewListSessionJobsQuery(nil).Query(context.Background(), ListSessionJobsMessage{})
	if !goerrors.As(err, &rich) || rich.Code != http.StatusInternalServerError {
		t.Fatalf("expected internal envelope, got %v", err)
	}
}
