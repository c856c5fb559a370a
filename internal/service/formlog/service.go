package formlog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"

	"github.com/zhouzirui/chatdesk/backend/internal/model/bot"
	"github.com/zhouzirui/chatdesk/backend/internal/model/chat"
)

// DefaultEndpointTemplate receives the form id.
const DefaultEndpointTemplate = "https://docs.google.com/forms/d/e/%s/formResponse"

// ErrBadEndpointTemplate means the template does not hold exactly one %s verb for the form id.
var ErrBadEndpointTemplate = errors.New("endpoint template must contain exactly one %s")

// CheckEndpointTemplate validates a submission endpoint template.
func CheckEndpointTemplate(template string) error {
	if strings.Count(template, "%s") != 1 || strings.Count(template, "%") != 1 {
		return fmt.Errorf("%w: %q", ErrBadEndpointTemplate, template)
	}
	return nil
}

// Config controls where and how submissions are sent.
type Config struct {
	EndpointTemplate string
	Timeout          time.Duration
}

// Diagnostic is the outcome of a connection test.
type Diagnostic struct {
	OK       bool     `json:"ok"`
	FormID   string   `json:"formId,omitempty"`
	Action   string   `json:"action,omitempty"`
	Fields   []string `json:"fields,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// Service archives exchanges to an external form without ever blocking or failing the
// conversation.
type Service struct {
	client   *http.Client
	template string
	timeout  time.Duration
	logger   zerolog.Logger
	wg       conc.WaitGroup
	now      func() time.Time

	mu      sync.RWMutex
	entries []chat.LogEntry
}

// NewService creates the logging pipeline. client may be nil.
func NewService(cfg Config, client *http.Client, logger zerolog.Logger) *Service {
	if client == nil {
		client = http.DefaultClient
	}
	logger = logger.With().Str("component", "formlog").Logger()
	template := cfg.EndpointTemplate
	if template == "" {
		template = DefaultEndpointTemplate
	}
	if err := CheckEndpointTemplate(template); err != nil {
		logger.Warn().Err(err).Msg("using default endpoint template")
		template = DefaultEndpointTemplate
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Service{
		client:   client,
		template: template,
		timeout:  timeout,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Submit starts a detached submission of one exchange and returns immediately. cfg must be the
// snapshot the exchange ran with.
func (s *Service) Submit(userMessage, botResponse string, cfg bot.Configuration, identity string) {
	s.wg.Go(func() {
		var catcher panics.Catcher
		catcher.Try(func() {
			ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
			defer cancel()
			s.submit(ctx, userMessage, botResponse, cfg, identity)
		})
		if r := catcher.Recovered(); r != nil {
			s.logger.Error().Err(r.AsError()).Msg("log submission panicked")
		}
	})
}

func (s *Service) submit(ctx context.Context, userMessage, botResponse string, cfg bot.Configuration, identity string) {
	if strings.TrimSpace(cfg.LoggingTargetURL) == "" {
		return
	}

	link, err := ParseLink(cfg.LoggingTargetURL)
	if err != nil {
		s.logger.Debug().Err(err).Msg("skipping log submission")
		return
	}

	if err := s.dispatch(ctx, link, userMessage, botResponse, identity); err != nil {
		s.logger.Warn().Err(err).Str("form", link.FormID).Msg("log submission failed")
		return
	}

	s.record(chat.LogEntry{
		ID:             uuid.NewString(),
		UserMessage:    userMessage,
		BotResponse:    botResponse,
		Timestamp:      s.now(),
		BotDisplayName: cfg.DisplayName,
	})
}

// dispatch posts the form. Any completed round trip counts as sent; the response may be opaque.
func (s *Service) dispatch(ctx context.Context, link Link, userMessage, botResponse, identity string) error {
	form := url.Values{}
	form.Set(link.Fields[0], userMessage)
	form.Set(link.Fields[1], botResponse)
	if link.HasSessionField() {
		form.Set(link.Fields[2], identity)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.ActionURL(link.FormID), strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	s.logger.Debug().Str("form", link.FormID).Int("status", resp.StatusCode).Msg("log submission sent")
	return nil
}

// ActionURL returns the submission endpoint for formID.
func (s *Service) ActionURL(formID string) string {
	return fmt.Sprintf(s.template, formID)
}

func (s *Service) record(entry chat.LogEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append([]chat.LogEntry{entry}, s.entries...)
}

// Entries returns the submitted exchanges, most recent first.
func (s *Service) Entries() []chat.LogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]chat.LogEntry(nil), s.entries...)
}

// Wait blocks until every started submission has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

// TestConnection validates link and sends one test row, reporting every problem it finds.
func (s *Service) TestConnection(ctx context.Context, rawLink, identity string) Diagnostic {
	link, err := ParseLink(rawLink)
	if err != nil {
		return Diagnostic{FormID: link.FormID, Fields: link.Fields, Error: err.Error()}
	}

	diag := Diagnostic{
		FormID: link.FormID,
		Action: s.ActionURL(link.FormID),
		Fields: link.Fields,
	}
	if !link.HasSessionField() {
		diag.Warnings = append(diag.Warnings, "only 2 fields found; the session id will not be logged")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.dispatch(ctx, link, "Test message from chat engine", "Connection test successful", identity); err != nil {
		diag.Error = fmt.Sprintf("network error: %v", err)
		return diag
	}

	diag.OK = true
	return diag
}
