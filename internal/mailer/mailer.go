// Package mailer sends transactional and bulk email through SendGrid.
package mailer

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/conedex/conedex/internal/httputil"
	"github.com/conedex/conedex/pkg/logger"
)

// MaxPersonalizations is SendGrid's per-request personalization limit.
const MaxPersonalizations = 1000

// Message is the shared content of a send.
type Message struct {
	To         string
	ToName     string
	Subject    string
	HTML       string
	Text       string
	Categories []string
}

// Recipient is one addressee of a batch send. Substitutions replace their
// keys in the message bodies for this recipient only.
type Recipient struct {
	Email         string
	Name          string
	Substitutions map[string]string
}

// BatchResult reports how a batch send went.
type BatchResult struct {
	Sent    int
	Failed  int
	Batches int
	Errors  []string
}

// Mailer sends email.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
	SendBatch(ctx context.Context, msg Message, recipients []Recipient) (BatchResult, error)
}

// SendGridConfig configures the SendGrid client.
type SendGridConfig struct {
	APIKey      string
	FromEmail   string
	FromName    string
	BaseURL     string
	Concurrency int
	HTTPClient  *http.Client
}

// SendGrid is a Mailer backed by the v3 mail send API.
type SendGrid struct {
	http        *httputil.Client
	from        address
	concurrency int
	log         *logger.Logger
}

// NewSendGrid creates a SendGrid mailer.
func NewSendGrid(cfg SendGridConfig, log *logger.Logger) (*SendGrid, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("SENDGRID_API_KEY is required")
	}
	if strings.TrimSpace(cfg.FromEmail) == "" {
		return nil, fmt.Errorf("MAIL_FROM is required")
	}
	if log == nil {
		log = logger.NewDefault("mailer")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.sendgrid.com"
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	return &SendGrid{
		http: httputil.NewClient(httputil.ClientConfig{
			BaseURL:    baseURL,
			Timeout:    30 * time.Second,
			MaxRetries: 2,
			HTTPClient: cfg.HTTPClient,
			Headers:    map[string]string{"Authorization": "Bearer " + cfg.APIKey},
		}),
		from:        address{Email: cfg.FromEmail, Name: cfg.FromName},
		concurrency: concurrency,
		log:         log,
	}, nil
}

type address struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type personalization struct {
	To            []address         `json:"to"`
	Substitutions map[string]string `json:"substitutions,omitempty"`
}

type content struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sendRequest struct {
	Personalizations []personalization `json:"personalizations"`
	From             address           `json:"from"`
	Subject          string            `json:"subject"`
	Content          []content         `json:"content"`
	Categories       []string          `json:"categories,omitempty"`
}

// Send delivers msg to msg.To.
func (s *SendGrid) Send(ctx context.Context, msg Message) error {
	if strings.TrimSpace(msg.To) == "" {
		return fmt.Errorf("recipient is required")
	}
	req, err := s.build(msg, []personalization{{To: []address{{Email: msg.To, Name: msg.ToName}}}})
	if err != nil {
		return err
	}
	return s.post(ctx, req)
}

// SendBatch delivers msg to every recipient, in requests of at most
// MaxPersonalizations. A failed request does not stop the others; its
// recipients are counted as failed.
func (s *SendGrid) SendBatch(ctx context.Context, msg Message, recipients []Recipient) (BatchResult, error) {
	var result BatchResult
	if len(recipients) == 0 {
		return result, nil
	}
	if _, err := s.build(msg, nil); err != nil {
		return result, err
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for start := 0; start < len(recipients); start += MaxPersonalizations {
		end := start + MaxPersonalizations
		if end > len(recipients) {
			end = len(recipients)
		}
		chunk := recipients[start:end]
		result.Batches++
		batchNo := result.Batches

		g.Go(func() error {
			ps := make([]personalization, 0, len(chunk))
			for _, r := range chunk {
				ps = append(ps, personalization{
					To:            []address{{Email: r.Email, Name: r.Name}},
					Substitutions: r.Substitutions,
				})
			}
			req, _ := s.build(msg, ps)
			err := s.post(gctx, req)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed += len(chunk)
				result.Errors = append(result.Errors, fmt.Sprintf("batch %d: %v", batchNo, err))
				s.log.WithError(err).WithField("batch", batchNo).Warn("newsletter batch failed")
				return nil
			}
			result.Sent += len(chunk)
			return nil
		})
	}
	_ = g.Wait()
	return result, ctx.Err()
}

func (s *SendGrid) build(msg Message, ps []personalization) (sendRequest, error) {
	if strings.TrimSpace(msg.Subject) == "" {
		return sendRequest{}, fmt.Errorf("subject is required")
	}
	if msg.HTML == "" && msg.Text == "" {
		return sendRequest{}, fmt.Errorf("message body is required")
	}
	req := sendRequest{
		Personalizations: ps,
		From:             s.from,
		Subject:          msg.Subject,
		Categories:       msg.Categories,
	}
	// SendGrid requires text/plain before text/html.
	if msg.Text != "" {
		req.Content = append(req.Content, content{Type: "text/plain", Value: msg.Text})
	}
	if msg.HTML != "" {
		req.Content = append(req.Content, content{Type: "text/html", Value: msg.HTML})
	}
	return req, nil
}

func (s *SendGrid) post(ctx context.Context, req sendRequest) error {
	if err := s.http.Do(ctx, http.MethodPost, "/v3/mail/send", req, nil, nil); err != nil {
		return fmt.Errorf("sendgrid: %w", err)
	}
	return nil
}

// LogMailer logs messages instead of sending them. It is used when no
// SendGrid key is configured.
type LogMailer struct {
	log *logger.Logger

	mu   sync.Mutex
	sent []Message
}

// NewLogMailer returns a LogMailer.
func NewLogMailer(log *logger.Logger) *LogMailer {
	if log == nil {
		log = logger.NewDefault("mailer")
	}
	return &LogMailer{log: log}
}

// Send implements Mailer.
func (m *LogMailer) Send(_ context.Context, msg Message) error {
	m.mu.Lock()
	m.sent = append(m.sent, msg)
	m.mu.Unlock()
	m.log.WithFields(map[string]interface{}{
		"to":      msg.To,
		"subject": msg.Subject,
	}).Info("email not sent: mailer disabled")
	return nil
}

// SendBatch implements Mailer.
func (m *LogMailer) SendBatch(_ context.Context, msg Message, recipients []Recipient) (BatchResult, error) {
	m.mu.Lock()
	for _, r := range recipients {
		copyMsg := msg
		copyMsg.To = r.Email
		copyMsg.ToName = r.Name
		m.sent = append(m.sent, copyMsg)
	}
	m.mu.Unlock()
	batches := (len(recipients) + MaxPersonalizations - 1) / MaxPersonalizations
	m.log.WithFields(map[string]interface{}{
		"recipients": len(recipients),
		"subject":    msg.Subject,
	}).Info("batch email not sent: mailer disabled")
	return BatchResult{Sent: len(recipients), Batches: batches}, nil
}

// Sent returns a copy of every message recorded so far.
func (m *LogMailer) Sent() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Message, len(m.sent))
	copy(out, m.sent)
	return out
}
