package mailer

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-interview-scoring/core"
	"github.com/goliatone/go-interview-scoring/transport"
	glog "github.com/goliatone/go-logger/glog"
)

const defaultSubject = "Your interview results"

type Config struct {
	// Endpoint is the transactional mail API send URL.
	Endpoint string
	APIKey   string
	From     string
	Subject  string
}

type message struct {
	From    string            `json:"from"`
	To      []string          `json:"to"`
	Subject string            `json:"subject"`
	Text    string            `json:"text"`
	Tags    map[string]string `json:"tags,omitempty"`
}

// Sender posts the results email to an HTTP mail API. Every failure is
// logged and reported as false; nothing is returned past this boundary.
type Sender struct {
	doer   transport.Doer
	cfg    Config
	logger glog.Logger
}

func NewSender(doer transport.Doer, cfg Config, logger glog.Logger) (*Sender, error) {
	cfg.Endpoint = strings.TrimSpace(cfg.Endpoint)
	cfg.From = strings.TrimSpace(cfg.From)
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("mailer: endpoint is required")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("mailer: from address is required")
	}
	if strings.TrimSpace(cfg.Subject) == "" {
		cfg.Subject = defaultSubject
	}
	if doer == nil {
		doer = transport.NewRESTAdapter(nil)
	}
	return &Sender{doer: doer, cfg: cfg, logger: glog.Ensure(logger)}, nil
}

func (s *Sender) SendResults(ctx context.Context, email core.ResultsEmail) bool {
	if s == nil || s.doer == nil {
		return false
	}
	recipient := strings.TrimSpace(email.Recipient)
	if recipient == "" {
		s.logger.Warn("results email skipped: empty recipient", "session_id", email.SessionID)
		return false
	}
	headers := map[string]string{}
	if key := strings.TrimSpace(s.cfg.APIKey); key != "" {
		headers["Authorization"] = "Bearer " + key
	}
	_, err := transport.PostJSON(ctx, s.doer, s.cfg.Endpoint, headers, message{
		From:    s.cfg.From,
		To:      []string{recipient},
		Subject: s.cfg.Subject,
		Text:    RenderBody(email),
		Tags:    map[string]string{"session_id": email.SessionID},
	})
	if err != nil {
		s.logger.Error("results email failed", "session_id", email.SessionID, "error", err.Error())
		return false
	}
	s.logger.Info("results email sent", "session_id", email.SessionID)
	return true
}

func RenderBody(email core.ResultsEmail) string {
	name := strings.TrimSpace(email.UserName)
	if name == "" {
		name = "there"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\n", name)
	b.WriteString("Thanks for completing your interview. Here is your feedback:\n\n")
	b.WriteString(strings.TrimSpace(email.Summary))
	b.WriteString("\n")
	return b.String()
}

var _ core.EmailSender = (*Sender)(nil)
