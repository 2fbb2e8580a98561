package booking

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/islandmassage/booking/internal/domain/account"
	"github.com/islandmassage/booking/internal/domain/catalog"
	"github.com/islandmassage/booking/internal/platform/apperr"
	"github.com/islandmassage/booking/internal/platform/db"
	"github.com/islandmassage/booking/internal/platform/geo"
	"github.com/islandmassage/booking/internal/platform/lock"
	"github.com/islandmassage/booking/internal/platform/middleware"
	"github.com/islandmassage/booking/internal/platform/notification"
	"github.com/islandmassage/booking/internal/platform/payment"
)

const (
	maxLabelLength = 200
	maxNotesLength = 2000
	defaultPlace   = "Ko Phangan"
	localLayout    = "2006-01-02T15:04"
	displayLayout  = "02.01.2006 15:04"
)

type Quoter interface {
	Quote(ctx context.Context, serviceID int64) (catalog.Quote, error)
}

type TherapistMatcher interface {
	Match(ctx context.Context, p geo.Point, serviceID int64) (*uuid.UUID, error)
}

type ContactBook interface {
	Contact(ctx context.Context, userID uuid.UUID) (*account.Contact, error)
}

// Notifier queues a message for best-effort delivery.
type Notifier interface {
	Notify(ctx context.Context, msg notification.Message)
}

// Deps are the collaborators of the booking lifecycle.
type Deps struct {
	Repo      Repository
	Slots     SlotBooker
	Quotes    Quoter
	Matcher   TherapistMatcher
	Contacts  ContactBook
	Notifier  Notifier
	Templates *notification.TemplateEngine
	Tx        db.TxRunner
	Locker    lock.Locker
}

type Config struct {
	ServiceArea geo.BoundingBox
	OpsEmail    string
	Location    *time.Location
	Now         func() time.Time
}

type Service struct {
	repo      Repository
	guard     *Guard
	quotes    Quoter
	matcher   TherapistMatcher
	contacts  ContactBook
	notifier  Notifier
	templates *notification.TemplateEngine
	tx        db.TxRunner
	locker    lock.Locker
	cfg       Config
	logger    zerolog.Logger
}

func NewService(d Deps, cfg Config, logger zerolog.Logger) *Service {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if !cfg.ServiceArea.Valid() {
		cfg.ServiceArea = geo.DefaultServiceArea
	}
	if d.Templates == nil {
		d.Templates = notification.NewTemplateEngine()
	}
	return &Service{
		repo:      d.Repo,
		guard:     NewGuard(d.Repo, d.Slots, cfg.Location),
		quotes:    d.Quotes,
		matcher:   d.Matcher,
		contacts:  d.Contacts,
		notifier:  d.Notifier,
		templates: d.Templates,
		tx:        d.Tx,
		locker:    d.Locker,
		cfg:       cfg,
		logger:    logger,
	}
}

// Guard exposes the conflict guard the lifecycle runs transitions through.
func (s *Service) Guard() *Guard { return s.guard }

// withTherapist runs fn under the therapist's lock and in one transaction.
func (s *Service) withTherapist(ctx context.Context, therapistID uuid.UUID, fn func(ctx context.Context) error) error {
	release, err := s.locker.Acquire(ctx, lock.TherapistKey(therapistID))
	if err != nil {
		return apperr.Upstream(err, "lock therapist %s", therapistID)
	}
	defer release()
	return s.tx.InTx(ctx, fn)
}

// -- Intake --

// Validate checks an intake payload and returns the requested start time.
func (s *Service) Validate(p Payload) (time.Time, error) {
	if p.ServiceID <= 0 {
		return time.Time{}, apperr.Validation("serviceId must be a positive integer")
	}
	pt := p.Location.Point()
	if !pt.Valid() {
		return time.Time{}, apperr.Validation("invalid coordinates")
	}
	if !s.cfg.ServiceArea.Contains(pt) {
		return time.Time{}, apperr.Validation("location is outside the service area")
	}
	if p.Location.Source != SourceGeolocation && p.Location.Source != SourceManual {
		return time.Time{}, apperr.Validation("location source must be geolocation or manual")
	}
	if p.Location.Label != nil && utf8.RuneCountInString(*p.Location.Label) > maxLabelLength {
		return time.Time{}, apperr.Validation("label must be at most %d characters", maxLabelLength)
	}
	if p.Notes != nil && utf8.RuneCountInString(*p.Notes) > maxNotesLength {
		return time.Time{}, apperr.Validation("notes must be at most %d characters", maxNotesLength)
	}
	if strings.TrimSpace(p.ScheduledAt) == "" {
		return time.Time{}, apperr.Validation("scheduledAt is required")
	}
	start, err := time.Parse(time.RFC3339, p.ScheduledAt)
	if err != nil {
		start, err = time.ParseInLocation(localLayout, p.ScheduledAt, s.cfg.Location)
	}
	if err != nil {
		return time.Time{}, apperr.Validation("scheduledAt must be an ISO 8601 timestamp")
	}
	return start, nil
}

// Create validates p, matches a therapist and persists the booking as
// pending. A missing match is not an error; the booking waits for manual
// assignment.
func (s *Service) Create(ctx context.Context, customerID *uuid.UUID, p Payload) (*CreateResult, error) {
	start, err := s.Validate(p)
	if err != nil {
		return nil, err
	}
	quote, err := s.quotes.Quote(ctx, p.ServiceID)
	if err != nil {
		return nil, err
	}
	therapistID, err := s.matcher.Match(ctx, p.Location.Point(), p.ServiceID)
	if err != nil {
		return nil, err
	}

	addr := addressFor(customerID, p.Location)
	b := &Booking{
		ID:             uuid.New(),
		CustomerID:     customerID,
		ServiceID:      p.ServiceID,
		TherapistID:    therapistID,
		AddressID:      &addr.ID,
		StartTime:      start,
		EndTime:        start.Add(quote.Duration),
		Price:          quote.Price,
		Notes:          p.Notes,
		Status:         StatusPending,
		PaymentStatus:  PaymentUnpaid,
		Latitude:       p.Location.Latitude,
		Longitude:      p.Location.Longitude,
		LocationLabel:  &addr.Label,
		LocationSource: p.Location.Source,
	}

	persist := func(ctx context.Context) error {
		if err := s.repo.CreateAddress(ctx, addr); err != nil {
			return err
		}
		return s.repo.Create(ctx, b)
	}
	if therapistID != nil {
		err = s.withTherapist(ctx, *therapistID, persist)
	} else {
		err = s.tx.InTx(ctx, persist)
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("booking_id", b.ID.String()).
		Int64("service_id", b.ServiceID).
		Bool("matched", therapistID != nil).
		Bool("fallback_quote", quote.Fallback).
		Msg("booking created")

	s.notifyNewBooking(ctx, b, quote.Name, addr.FormattedAddress)
	return &CreateResult{BookingID: b.ID, TherapistID: b.TherapistID, Status: b.Status}, nil
}

func addressFor(customerID *uuid.UUID, l Location) *Address {
	formatted := defaultPlace
	switch {
	case l.FormattedAddress != nil && *l.FormattedAddress != "":
		formatted = *l.FormattedAddress
	case l.Label != nil && *l.Label != "":
		formatted = *l.Label
	}
	label := formatted
	if l.Label != nil && *l.Label != "" {
		label = *l.Label
	}
	placeID := fmt.Sprintf("manual-%.5f-%.5f", l.Latitude, l.Longitude)
	if l.GooglePlaceID != nil && *l.GooglePlaceID != "" {
		placeID = *l.GooglePlaceID
	}
	return &Address{
		ID:               uuid.New(),
		UserID:           customerID,
		Label:            label,
		GooglePlaceID:    placeID,
		FormattedAddress: formatted,
		Latitude:         l.Latitude,
		Longitude:        l.Longitude,
	}
}

// -- Therapist transitions --

// SetStatus applies a therapist decision: accepted, rejected or confirmed.
func (s *Service) SetStatus(ctx context.Context, therapistID, bookingID uuid.UUID, next Status) (*Booking, error) {
	switch next {
	case StatusAccepted, StatusRejected, StatusConfirmed:
	default:
		return nil, apperr.Validation("invalid status %q", next)
	}

	var b *Booking
	err := s.withTherapist(ctx, therapistID, func(ctx context.Context) error {
		var err error
		if next == StatusRejected {
			b, err = s.reject(ctx, therapistID, bookingID)
		} else {
			b, err = s.guard.CheckAndTransition(ctx, bookingID, therapistID, next)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("booking_id", b.ID.String()).
		Str("therapist_id", therapistID.String()).
		Str("status", string(b.Status)).
		Msg("booking status changed")
	s.notifyCustomer(ctx, b, notification.TemplateCustomerStatusChange, nil)
	return b, nil
}

func (s *Service) reject(ctx context.Context, therapistID, bookingID uuid.UUID) (*Booking, error) {
	b, err := s.repo.GetForUpdate(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !b.AssignedTo(therapistID) {
		return nil, apperr.Forbidden("booking is not assigned to you")
	}
	if !CanTransition(b.Status, StatusRejected) {
		return nil, apperr.Validation("cannot change booking from %s to %s", b.Status, StatusRejected)
	}
	if err := s.repo.UpdateStatus(ctx, b.ID, StatusRejected, nil); err != nil {
		return nil, err
	}
	if err := s.guard.Release(ctx, b); err != nil {
		return nil, err
	}
	b.Status = StatusRejected
	return b, nil
}

// -- Customer cancellation --

// Cancel cancels an accepted, confirmed or in-progress booking of
// customerID. Late cancellations end as cancelled, earlier ones as refunded.
func (s *Service) Cancel(ctx context.Context, customerID, bookingID uuid.UUID) (*CancelResult, error) {
	b, err := s.repo.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.CustomerID == nil || *b.CustomerID != customerID {
		return nil, apperr.NotFound("booking %s not found", bookingID)
	}

	var res CancelResult
	run := func(ctx context.Context) error {
		cur, err := s.repo.GetForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		if !CanTransition(cur.Status, StatusCancelled) {
			return apperr.Validation("booking in status %s cannot be cancelled", cur.Status)
		}
		status, late := CancellationOutcome(cur.StartTime, s.cfg.Now())
		unpaid := PaymentUnpaid
		if err := s.repo.UpdateStatus(ctx, cur.ID, status, &unpaid); err != nil {
			return err
		}
		if err := s.guard.Release(ctx, cur); err != nil {
			return err
		}
		b = cur
		b.Status, b.PaymentStatus = status, unpaid
		res = CancelResult{Status: status, Late: late}
		return nil
	}
	if b.TherapistID != nil {
		err = s.withTherapist(ctx, *b.TherapistID, run)
	} else {
		err = s.tx.InTx(ctx, run)
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("booking_id", bookingID.String()).
		Str("status", string(res.Status)).
		Bool("late", res.Late).
		Msg("booking cancelled by customer")
	s.notifyCustomer(ctx, b, notification.TemplateCustomerStatusChange, nil)
	return &res, nil
}

// -- Payment outcomes --

func bookingIDFrom(metadata map[string]string) (uuid.UUID, error) {
	raw := metadata["bookingId"]
	if raw == "" {
		raw = metadata["booking_id"]
	}
	if raw == "" {
		return uuid.Nil, apperr.Validation("payment metadata has no bookingId")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperr.Validation("payment metadata bookingId %q is not a uuid", raw)
	}
	return id, nil
}

// OnPaymentSuccess confirms an accepted booking after a successful payment.
// Bookings in other states only record the payment.
func (s *Service) OnPaymentSuccess(ctx context.Context, metadata map[string]string) error {
	id, err := bookingIDFrom(metadata)
	if err != nil {
		return err
	}
	intent := metadata[payment.MetadataPaymentIntent]
	b, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if b.Status != StatusAccepted || b.TherapistID == nil {
		if b.PaymentStatus == PaymentPaid {
			return nil
		}
		return s.repo.SetPaymentStatus(ctx, id, PaymentPaid, intent)
	}

	err = s.withTherapist(ctx, *b.TherapistID, func(ctx context.Context) error {
		confirmed, err := s.guard.CheckAndTransition(ctx, id, *b.TherapistID, StatusConfirmed)
		if err != nil {
			return err
		}
		b = confirmed
		return s.repo.SetPaymentStatus(ctx, id, PaymentPaid, intent)
	})
	if apperr.Is(err, apperr.KindConflict) {
		// The money arrived; keep it on record for manual resolution.
		if perr := s.repo.SetPaymentStatus(ctx, id, PaymentPaid, intent); perr != nil {
			s.logger.Error().Err(perr).Str("booking_id", id.String()).Msg("record payment of conflicting booking")
		}
		return err
	}
	if err != nil {
		return err
	}

	b.PaymentStatus = PaymentPaid
	s.logger.Info().Str("booking_id", id.String()).Str("payment_intent", intent).Msg("booking confirmed by payment")
	s.notifyCustomer(ctx, b, notification.TemplateBookingConfirmed, nil)
	return nil
}

// OnPaymentFailure cancels an accepted booking whose payment failed. Other
// states only record the failure.
func (s *Service) OnPaymentFailure(ctx context.Context, metadata map[string]string, reason string) error {
	id, err := bookingIDFrom(metadata)
	if err != nil {
		return err
	}
	intent := metadata[payment.MetadataPaymentIntent]
	b, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if b.Status != StatusAccepted || b.TherapistID == nil {
		return s.repo.SetPaymentStatus(ctx, id, PaymentFailed, intent)
	}

	err = s.withTherapist(ctx, *b.TherapistID, func(ctx context.Context) error {
		cur, err := s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if cur.Status != StatusAccepted {
			return s.repo.SetPaymentStatus(ctx, id, PaymentFailed, intent)
		}
		failed := PaymentFailed
		if err := s.repo.UpdateStatus(ctx, id, StatusCancelled, &failed); err != nil {
			return err
		}
		b = cur
		b.Status, b.PaymentStatus = StatusCancelled, failed
		return s.guard.Release(ctx, cur)
	})
	if err != nil {
		return err
	}

	s.logger.Warn().Str("booking_id", id.String()).Str("reason", reason).Msg("payment failed")
	if b.Status == StatusCancelled {
		s.notifyCustomer(ctx, b, notification.TemplatePaymentFailed, map[string]string{"reason": reason})
	}
	return nil
}

// -- Queries --

// Get returns a booking visible to the viewer: its customer, its therapist
// or an admin.
func (s *Service) Get(ctx context.Context, viewer uuid.UUID, admin bool, id uuid.UUID) (*Booking, error) {
	b, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if admin || b.AssignedTo(viewer) || (b.CustomerID != nil && *b.CustomerID == viewer) {
		return b, nil
	}
	return nil, apperr.Forbidden("booking belongs to another user")
}

func (s *Service) ListForCustomer(ctx context.Context, customerID uuid.UUID, limit, offset int) ([]*Booking, int, error) {
	return s.repo.ListByCustomer(ctx, customerID, limit, offset)
}

func (s *Service) ListForTherapist(ctx context.Context, therapistID uuid.UUID, limit, offset int) ([]*Booking, int, error) {
	return s.repo.ListByTherapist(ctx, therapistID, limit, offset)
}

// -- Manual assignment --

// Assign gives an unmatched pending booking to therapistID.
func (s *Service) Assign(ctx context.Context, bookingID, therapistID uuid.UUID) (*Booking, error) {
	if therapistID == uuid.Nil {
		return nil, apperr.Validation("therapist_id is required")
	}
	var b *Booking
	err := s.withTherapist(ctx, therapistID, func(ctx context.Context) error {
		cur, err := s.repo.GetForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		if cur.Status != StatusPending || cur.TherapistID != nil {
			return apperr.Validation("only pending, unassigned bookings can be assigned")
		}
		if err := s.repo.Assign(ctx, bookingID, therapistID); err != nil {
			return err
		}
		cur.TherapistID = &therapistID
		b = cur
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("booking_id", bookingID.String()).Str("therapist_id", therapistID.String()).Msg("booking assigned")
	s.notifyTherapist(ctx, b, "")
	return b, nil
}

// -- Notifications --

func (s *Service) templateData(b *Booking, serviceName string) map[string]string {
	therapist := "nicht zugewiesen"
	if b.TherapistID != nil {
		therapist = b.TherapistID.String()
	}
	location := ""
	if b.LocationLabel != nil {
		location = *b.LocationLabel
	}
	if serviceName == "" {
		serviceName = "Service #" + strconv.FormatInt(b.ServiceID, 10)
	}
	return map[string]string{
		"booking_id":   b.ID.String(),
		"service_name": serviceName,
		"scheduled_at": b.StartTime.In(s.cfg.Location).Format(displayLayout),
		"location":     location,
		"price":        strconv.FormatInt(b.Price, 10),
		"therapist":    therapist,
		"status":       string(b.Status),
	}
}

func (s *Service) send(ctx context.Context, templateID, recipient string, data map[string]string) {
	if recipient == "" || s.notifier == nil {
		return
	}
	msg, err := s.templates.Compose(templateID, recipient, data)
	if err != nil {
		s.logger.Error().Err(err).Str("template", templateID).Msg("compose notification")
		return
	}
	if rid := middleware.RequestIDFromContext(ctx); rid != "" {
		msg.Metadata = map[string]string{"request_id": rid}
	}
	s.notifier.Notify(ctx, msg)
}

func (s *Service) notifyNewBooking(ctx context.Context, b *Booking, serviceName, formatted string) {
	data := s.templateData(b, serviceName)
	if formatted != "" {
		data["location"] = formatted
	}
	s.send(ctx, notification.TemplateOpsNewBooking, s.cfg.OpsEmail, data)
	if b.TherapistID != nil {
		s.notifyTherapist(ctx, b, serviceName)
	}
}

func (s *Service) notifyTherapist(ctx context.Context, b *Booking, serviceName string) {
	c, err := s.contacts.Contact(ctx, *b.TherapistID)
	if err != nil {
		s.logger.Warn().Err(err).Str("booking_id", b.ID.String()).Msg("therapist contact unavailable")
		return
	}
	s.send(ctx, notification.TemplateTherapistNewRequest, c.Phone, s.templateData(b, serviceName))
}

func (s *Service) notifyCustomer(ctx context.Context, b *Booking, templateID string, extra map[string]string) {
	if b.CustomerID == nil {
		return
	}
	c, err := s.contacts.Contact(ctx, *b.CustomerID)
	if err != nil {
		s.logger.Warn().Err(err).Str("booking_id", b.ID.String()).Msg("customer contact unavailable")
		return
	}
	data := s.templateData(b, "")
	for k, v := range extra {
		data[k] = v
	}
	s.send(ctx, templateID, c.Email, data)
}
