package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goliatone/go-interview-scoring/core"
	"github.com/goliatone/go-interview-scoring/webhooks"
)

func executeCommand(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVerifySignatureCommand_SignsAndVerifies(t *testing.T) {
	body := `{"type":"post_call_transcription"}`
	at := time.Unix(1767225600, 0)

	out, err := executeCommand(t, body, "verify-signature", "--secret", "s3cret", "--timestamp", "1767225600")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	header := strings.TrimSpace(out)
	if header != webhooks.SignHeader("s3cret", at, []byte(body)) {
		t.Fatalf("unexpected header %q", header)
	}

	out, err = executeCommand(t, body, "verify-signature", "--secret", "s3cret", "--timestamp", "1767225660", "--header", header)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if strings.TrimSpace(out) != "valid" {
		t.Fatalf("expected valid, got %q", out)
	}

	if _, err := executeCommand(t, body, "verify-signature", "--secret", "other", "--timestamp", "1767225660", "--header", header); err == nil {
		t.Fatalf("expected wrong secret to fail")
	}
	if _, err := executeCommand(t, body, "verify-signature", "--secret", "s3cret", "--timestamp", "1767226600", "--header", header); err == nil {
		t.Fatalf("expected stale timestamp to fail")
	}
}

func TestVerifySignatureCommand_RequiresSecret(t *testing.T) {
	if _, err := executeCommand(t, "{}", "verify-signature"); err == nil {
		t.Fatalf("expected missing secret to fail")
	}
}

func TestMigrateCommand_RejectsMemoryDriver(t *testing.T) {
	_, err := executeCommand(t, "", "migrate")
	if err == nil || !strings.Contains(err.Error(), "memory") {
		t.Fatalf("expected memory driver error, got %v", err)
	}
}

func sqliteDSN(t *testing.T) string {
	return "file:" + filepath.Join(t.TempDir(), "scoring.db") + "?_foreign_keys=on"
}

func TestMigrateThenRunOnce_NoJobs(t *testing.T) {
	t.Setenv("SCORING_DATABASE_DRIVER", core.DatabaseDriverSQLite)
	t.Setenv("SCORING_DATABASE_DSN", sqliteDSN(t))

	out, err := executeCommand(t, "", "migrate")
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if !strings.Contains(out, "migrations applied (sqlite3)") {
		t.Fatalf("unexpected migrate output %q", out)
	}

	out, err = executeCommand(t, "", "run-once")
	if err == nil {
		var report runOnceReport
		if decodeErr := json.Unmarshal([]byte(out), &report); decodeErr != nil {
			t.Fatalf("decode report %q: %v", out, decodeErr)
		}
		t.Fatalf("expected run-once without an engine to fail, got %+v", report)
	}
}

func newMemoryApp(t *testing.T, cfg core.Config, engine core.ScoringEngine) *app {
	t.Helper()
	a, err := bootstrap(context.Background(), cfg, providerSettings{LogLevel: "error"}, bootstrapOptions{
		withWakeups: true,
		engine:      engine,
	})
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	t.Cleanup(a.close)
	return a
}

func TestHTTPHandler_WebhookWakesWorkerQueue(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := core.DefaultConfig()
	cfg.Webhook.Secret = "s3cret"
	cfg.Runner.TriggerToken = "token"

	engine := core.ScoringEngineFunc(func(context.Context, core.ScoreRequest) (core.ScoreResult, error) {
		return core.ScoreResult{Summary: "solid", Payload: map[string]any{"overall_score": 80}}, nil
	})
	a := newMemoryApp(t, cfg, engine)
	if _, err := a.service.CreateSession(context.Background(), core.CreateSessionInput{ID: "conv_1", RubricID: "backend"}); err != nil {
		t.Fatalf("create session: %v", err)
	}
	handler, err := newHTTPHandler(a)
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}

	body := []byte(`{"type":"post_call_transcription","data":{"conversation_id":"conv_1","status":"done","metadata":{"termination_reason":"end_call tool was called."}}}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/voice", bytes.NewReader(body))
	req.Header.Set("signature-header", webhooks.SignHeader("s3cret", time.Now(), body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rec.Code, rec.Body.String())
	}
	if a.wakeups.Len() != 1 {
		t.Fatalf("expected one wake message, got %d", a.wakeups.Len())
	}

	req = httptest.NewRequest(http.MethodPost, "/jobs/run", nil)
	req.Header.Set("Authorization", "Bearer token")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"completed"`) {
		t.Fatalf("expected completed run, got %d body=%s", rec.Code, rec.Body.String())
	}

	view, err := a.service.SessionStatus(context.Background(), "conv_1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if view.Status != core.SessionStatusScoredSuccessfully {
		t.Fatalf("expected scored session, got %s", view.Status)
	}
}

func TestBuildAlertSink_Selection(t *testing.T) {
	sink, closeFn, err := buildAlertSink(core.AlertsConfig{}, nil)
	if err != nil || sink != nil || closeFn != nil {
		t.Fatalf("expected no sink, got %v %v", sink, err)
	}

	sink, closeFn, err = buildAlertSink(core.AlertsConfig{WebhookURL: "https://chat.example.com/hook", RedisAddr: "127.0.0.1:6379"}, nil)
	if err != nil {
		t.Fatalf("build sinks: %v", err)
	}
	if closeFn == nil {
		t.Fatalf("expected redis client closer")
	}
	defer closeFn()
	if got := fmt.Sprintf("%T", sink); got != "alerts.Fanout" {
		t.Fatalf("expected fanout sink, got %s", got)
	}
}
