package httpapi

import (
	"context"
	"crypto/subtle"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-interview-scoring/command"
	"github.com/goliatone/go-interview-scoring/core"
	"github.com/goliatone/go-interview-scoring/query"
	glog "github.com/goliatone/go-logger/glog"
)

const (
	defaultMaxBodyBytes int64 = 1 << 20
	voiceSurface              = "voice"
)

type Deps struct {
	Webhooks command.WebhookProcessor
	Runner   command.CycleRunner
	Status   query.SessionStatusReader
	// TriggerToken guards POST /jobs/run. Empty disables the endpoint.
	TriggerToken string
	MaxBodyBytes int64
	// Metrics, when set, adds operation counters to the health response.
	Metrics MetricsSnapshotter
	Logger  glog.Logger
}

type MetricsSnapshotter interface {
	Snapshot() map[string]int64
}

type handlers struct {
	ingest       *command.IngestWebhookCommand
	runCycle     *command.RunScoringCycleCommand
	status       *query.GetSessionStatusQuery
	triggerToken string
	maxBodyBytes int64
	metrics      MetricsSnapshotter
	logger       glog.Logger
}

// NewRouter builds the gin engine serving the webhook, job trigger, status
// and health endpoints.
func NewRouter(deps Deps) *gin.Engine {
	logger := glog.Ensure(deps.Logger)
	h := &handlers{
		ingest:       command.NewIngestWebhookCommand(deps.Webhooks),
		runCycle:     command.NewRunScoringCycleCommand(deps.Runner),
		status:       query.NewGetSessionStatusQuery(deps.Status),
		triggerToken: strings.TrimSpace(deps.TriggerToken),
		maxBodyBytes: deps.MaxBodyBytes,
		metrics:      deps.Metrics,
		logger:       logger,
	}
	if h.maxBodyBytes <= 0 {
		h.maxBodyBytes = defaultMaxBodyBytes
	}

	router := gin.New()
	router.Use(requestLogger(logger), recovery(logger))

	router.GET("/healthz", h.health)
	router.POST("/webhooks/voice", h.voiceWebhook)
	router.POST("/jobs/run", h.runJob)
	router.GET("/sessions/:id/status", h.sessionStatus)
	return router
}

func (h *handlers) health(c *gin.Context) {
	body := gin.H{"status": "ok"}
	if h.metrics != nil {
		body["counters"] = h.metrics.Snapshot()
	}
	c.JSON(http.StatusOK, body)
}

func (h *handlers) voiceWebhook(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"status": "payload_too_large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"status": "unreadable_body"})
		return
	}
	collector := gocmd.NewResult[core.InboundResult]()
	ctx := gocmd.ContextWithResult(c.Request.Context(), collector)
	msg := command.IngestWebhookMessage{Request: core.InboundRequest{
		Surface: voiceSurface,
		Headers: flattenHeaders(c.Request.Header),
		Body:    body,
		Metadata: map[string]any{
			"remote_addr": c.ClientIP(),
		},
	}}
	if err := h.ingest.Execute(ctx, msg); err != nil {
		h.writeError(c, err)
		return
	}
	result, ok := collector.Load()
	if !ok {
		h.writeError(c, errors.New("httpapi: webhook produced no result"))
		return
	}
	payload := gin.H{"status": result.Decision}
	if result.SessionID != "" {
		payload["session_id"] = result.SessionID
	}
	status := result.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	c.JSON(status, payload)
}

func (h *handlers) runJob(c *gin.Context) {
	if status, ok := h.authorizeTrigger(c.GetHeader("Authorization")); !ok {
		c.JSON(status, gin.H{"error": http.StatusText(status)})
		return
	}

	collector := gocmd.NewResult[core.RunOutcome]()
	ctx := gocmd.ContextWithResult(detached(c.Request.Context()), collector)
	if err := h.runCycle.Execute(ctx, command.RunScoringCycleMessage{Trigger: "http"}); err != nil {
		h.writeError(c, err)
		return
	}
	outcome, _ := collector.Load()
	payload := gin.H{
		"outcome":     string(outcome.Status),
		"duration_ms": outcome.Duration.Milliseconds(),
	}
	if outcome.JobID != "" {
		payload["job_id"] = outcome.JobID
		payload["session_id"] = outcome.SessionID
		payload["attempts"] = outcome.Attempts
		payload["email_sent"] = outcome.EmailSent
	}
	if outcome.Status == core.RunOutcomeFailed {
		payload["failure_kind"] = string(outcome.FailureKind)
		payload["error"] = outcome.Error
	}
	c.JSON(http.StatusOK, payload)
}

// authorizeTrigger: missing bearer is 401, anything that is not an exact
// match is 403.
func (h *handlers) authorizeTrigger(header string) (int, bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return http.StatusUnauthorized, false
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return http.StatusUnauthorized, false
	}
	if h.triggerToken == "" {
		return http.StatusForbidden, false
	}
	if subtle.ConstantTimeCompare([]byte(strings.TrimSpace(token)), []byte(h.triggerToken)) != 1 {
		return http.StatusForbidden, false
	}
	return http.StatusOK, true
}

func (h *handlers) sessionStatus(c *gin.Context) {
	msg := query.GetSessionStatusMessage{SessionID: c.Param("id")}
	if err := msg.Validate(); err != nil {
		h.writeError(c, err)
		return
	}
	view, err := h.status.Query(c.Request.Context(), msg)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *handlers) writeError(c *gin.Context, err error) {
	mapped := core.MapError(err)
	if mapped == nil {
		c.Status(http.StatusInternalServerError)
		return
	}
	status := mapped.Code
	if status == 0 {
		status = http.StatusInternalServerError
	}
	message := mapped.Message
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "path", c.FullPath(), "error", err.Error())
		message = http.StatusText(status)
	}
	c.JSON(status, gin.H{"error": gin.H{"code": mapped.TextCode, "message": message}})
}

func requestLogger(logger glog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		startedAt := time.Now()
		c.Next()
		logger.Info("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration_ms", time.Since(startedAt).Milliseconds(),
		)
	}
}

func recovery(logger glog.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logger.Error("http handler panicked", "path", c.FullPath(), "panic", recovered)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{"code": core.ErrorInternal, "message": http.StatusText(http.StatusInternalServerError)},
		})
	})
}

func flattenHeaders(headers http.Header) map[string]string {
	flat := make(map[string]string, len(headers))
	for key, values := range headers {
		if len(values) == 0 {
			continue
		}
		flat[key] = values[0]
	}
	return flat
}

// detached keeps request values but drops the request deadline; used so a
// client disconnect does not abort a claimed job halfway.
func detached(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}
