// Package notification renders and delivers booking notifications over
// email and WhatsApp, either in-process or through a Kafka-fed worker.
package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Channel is the delivery medium of a message.
type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelWhatsApp Channel = "whatsapp"
)

// Message is a rendered, addressed notification.
type Message struct {
	ID         string            `json:"id"`
	Channel    Channel           `json:"channel"`
	Recipient  string            `json:"recipient"`
	Subject    string            `json:"subject,omitempty"`
	Body       string            `json:"body"`
	TemplateID string            `json:"template_id,omitempty"`
	BookingID  string            `json:"booking_id,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Sender delivers a single message. Implementations must be safe for
// concurrent use.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// ---------------------------------------------------------------------------
// Templates
// ---------------------------------------------------------------------------

const (
	TemplateOpsNewBooking        = "ops-new-booking"
	TemplateTherapistNewRequest  = "therapist-new-request"
	TemplateCustomerStatusChange = "customer-status-change"
	TemplateBookingConfirmed     = "booking-confirmed"
	TemplatePaymentFailed        = "payment-failed"
)

// Template defines a reusable notification template.
type Template struct {
	ID      string  `json:"id"`
	Subject string  `json:"subject"`
	Body    string  `json:"body"`
	Channel Channel `json:"channel"`
}

// TemplateEngine manages notification templates and renders them with data.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewTemplateEngine creates a TemplateEngine with the booking templates registered.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{
		templates: make(map[string]*Template),
	}
	e.registerBuiltIn()
	return e
}

func (e *TemplateEngine) registerBuiltIn() {
	builtIn := []Template{
		{
			ID:      TemplateOpsNewBooking,
			Subject: "Neue Massage Buchung",
			Body: "Neue Buchung {{booking_id}}\nService: {{service_name}}\nTermin: {{scheduled_at}}\n" +
				"Ort: {{location}}\nPreis: {{price}} THB\nTherapeut:in: {{therapist}}",
			Channel: ChannelEmail,
		},
		{
			ID:      TemplateTherapistNewRequest,
			Subject: "Neue Massage-Anfrage",
			Body:    "Neue Anfrage {{booking_id}}: {{service_name}} am {{scheduled_at}} in {{location}}. Bitte in der App annehmen oder ablehnen.",
			Channel: ChannelWhatsApp,
		},
		{
			ID:      TemplateCustomerStatusChange,
			Subject: "Status deiner Buchung",
			Body:    "Deine Buchung {{booking_id}} hat jetzt den Status {{status}}.",
			Channel: ChannelEmail,
		},
		{
			ID:      TemplateBookingConfirmed,
			Subject: "Buchung bestätigt #{{booking_id}}",
			Body:    "Deine Massage ({{service_name}}) am {{scheduled_at}} ist bestätigt. Preis: {{price}} THB.",
			Channel: ChannelEmail,
		},
		{
			ID:      TemplatePaymentFailed,
			Subject: "Zahlung fehlgeschlagen #{{booking_id}}",
			Body:    "Die Zahlung für Buchung {{booking_id}} ist fehlgeschlagen: {{reason}}. Die Buchung wurde storniert.",
			Channel: ChannelEmail,
		},
	}
	for i := range builtIn {
		t := builtIn[i]
		e.templates[t.ID] = &t
	}
}

// RegisterTemplate adds or replaces a template in the engine.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = &t
}

// Render looks up a template by ID and performs {{key}} replacement. Keys
// absent from data are left as-is.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (subject, body string, err error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("template %q not found", templateID)
	}

	subject = t.Subject
	body = t.Body
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		subject = strings.ReplaceAll(subject, placeholder, v)
		body = strings.ReplaceAll(body, placeholder, v)
	}
	return subject, body, nil
}

// Compose renders templateID into a message for recipient on the template's
// channel.
func (e *TemplateEngine) Compose(templateID, recipient string, data map[string]string) (Message, error) {
	subject, body, err := e.Render(templateID, data)
	if err != nil {
		return Message{}, err
	}
	e.mu.RLock()
	ch := e.templates[templateID].Channel
	e.mu.RUnlock()

	return Message{
		Channel:    ch,
		Recipient:  recipient,
		Subject:    subject,
		Body:       body,
		TemplateID: templateID,
		BookingID:  data["booking_id"],
	}, nil
}

// ---------------------------------------------------------------------------
// Senders
// ---------------------------------------------------------------------------

// ErrNoRoute is returned when no sender is registered for a channel.
var ErrNoRoute = errors.New("no sender for channel")

// Router sends each message through the sender registered for its channel.
type Router struct {
	routes map[Channel]Sender
}

func NewRouter(routes map[Channel]Sender) *Router {
	return &Router{routes: routes}
}

func (r *Router) Send(ctx context.Context, msg Message) error {
	s, ok := r.routes[msg.Channel]
	if !ok {
		return fmt.Errorf("%w %q", ErrNoRoute, msg.Channel)
	}
	return s.Send(ctx, msg)
}

// LogSender writes messages to the log instead of an external provider.
type LogSender struct {
	logger zerolog.Logger
}

func NewLogSender(logger zerolog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(_ context.Context, msg Message) error {
	s.logger.Info().
		Str("channel", string(msg.Channel)).
		Str("recipient", msg.Recipient).
		Str("template", msg.TemplateID).
		Str("booking_id", msg.BookingID).
		Str("subject", msg.Subject).
		Str("request_id", msg.Metadata["request_id"]).
		Msg("notification sent")
	return nil
}

// RecordingSender keeps every message it is asked to send. FailTimes makes the
// first n sends fail.
type RecordingSender struct {
	mu        sync.Mutex
	messages  []Message
	attempts  int
	FailTimes int
	FailError string
}

func (m *RecordingSender) Send(_ context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts++
	if m.attempts <= m.FailTimes {
		reason := m.FailError
		if reason == "" {
			reason = "provider unavailable"
		}
		return errors.New(reason)
	}
	m.messages = append(m.messages, msg)
	return nil
}

// Messages returns a copy of delivered messages.
func (m *RecordingSender) Messages() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Message, len(m.messages))
	copy(out, m.messages)
	return out
}

// Attempts returns the number of Send calls, including failed ones.
func (m *RecordingSender) Attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}
