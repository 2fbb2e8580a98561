package booking

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/islandmassage/booking/internal/platform/apperr"
	"github.com/islandmassage/booking/internal/platform/middleware"
	"github.com/islandmassage/booking/internal/platform/notification"
	"github.com/islandmassage/booking/internal/platform/payment"
)

func strp(s string) *string { return &s }

func validPayload() Payload {
	return Payload{
		Location:    Location{Latitude: 9.70, Longitude: 99.99, Source: SourceGeolocation},
		ServiceID:   1,
		ScheduledAt: "2026-03-12T10:00:00+07:00",
	}
}

// -- Create --

func TestCreate_Validation(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name   string
		mutate func(*Payload)
	}{
		{"service id", func(p *Payload) { p.ServiceID = 0 }},
		{"outside service area", func(p *Payload) { p.Location.Latitude, p.Location.Longitude = 13.7563, 100.5018 }},
		{"invalid coordinates", func(p *Payload) { p.Location.Latitude = 91 }},
		{"source", func(p *Payload) { p.Location.Source = "ip" }},
		{"label too long", func(p *Payload) { p.Location.Label = strp(strings.Repeat("x", 201)) }},
		{"notes too long", func(p *Payload) { p.Notes = strp(strings.Repeat("x", 2001)) }},
		{"missing time", func(p *Payload) { p.ScheduledAt = "" }},
		{"bad time", func(p *Payload) { p.ScheduledAt = "tomorrow" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validPayload()
			tt.mutate(&p)
			_, err := f.svc.Create(context.Background(), &f.customer, p)
			assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
		})
	}
	assert.Empty(t, f.repo.bookings)
}

func TestValidate_CountsCharacters(t *testing.T) {
	f := newFixture(t)
	p := validPayload()
	p.Location.Label = strp(strings.Repeat("ü", 200))
	p.Notes = strp(strings.Repeat("ß", 2000))
	_, err := f.svc.Validate(p)
	require.NoError(t, err)

	p.Location.Label = strp(strings.Repeat("ü", 201))
	_, err = f.svc.Validate(p)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestCreate_Matched(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.Create(context.Background(), &f.customer, validPayload())
	require.NoError(t, err)

	assert.Equal(t, StatusPending, res.Status)
	require.NotNil(t, res.TherapistID)
	assert.Equal(t, f.therapist, *res.TherapistID)

	b := f.repo.get(res.BookingID)
	assert.Equal(t, PaymentUnpaid, b.PaymentStatus)
	assert.Equal(t, int64(1200), b.Price)
	assert.Equal(t, 90*time.Minute, b.EndTime.Sub(b.StartTime))
	assert.True(t, b.StartTime.Equal(time.Date(2026, 3, 12, 10, 0, 0, 0, ict)))

	require.NotNil(t, b.AddressID)
	addr := f.repo.addresses[*b.AddressID]
	require.NotNil(t, addr)
	assert.Equal(t, "Ko Phangan", addr.FormattedAddress)
	assert.Equal(t, "Ko Phangan", addr.Label)
	assert.Equal(t, "manual-9.70000-99.99000", addr.GooglePlaceID)

	assert.Equal(t, []string{notification.TemplateOpsNewBooking, notification.TemplateTherapistNewRequest}, f.notifier.templates())
	assert.Equal(t, "ops@example.com", f.notifier.sent[0].Recipient)
	assert.Equal(t, "+66800000001", f.notifier.sent[1].Recipient)
	assert.Contains(t, f.notifier.sent[0].Body, "12.03.2026 10:00")
}

func TestCreate_AddressFallbacks(t *testing.T) {
	f := newFixture(t)
	p := validPayload()
	p.Location.Source = SourceManual
	p.Location.FormattedAddress = strp("Haad Rin, Ko Phangan")
	p.Location.GooglePlaceID = strp("place-1")

	res, err := f.svc.Create(context.Background(), nil, p)
	require.NoError(t, err)
	addr := f.repo.addresses[*f.repo.get(res.BookingID).AddressID]
	assert.Equal(t, "Haad Rin, Ko Phangan", addr.Label)
	assert.Equal(t, "place-1", addr.GooglePlaceID)
	assert.Nil(t, addr.UserID)

	p.Location.FormattedAddress = nil
	p.Location.Label = strp("Villa 7")
	res, err = f.svc.Create(context.Background(), nil, p)
	require.NoError(t, err)
	addr = f.repo.addresses[*f.repo.get(res.BookingID).AddressID]
	assert.Equal(t, "Villa 7", addr.FormattedAddress)
	assert.Equal(t, "Villa 7", addr.Label)
}

func TestCreate_LocalTime(t *testing.T) {
	f := newFixture(t)
	p := validPayload()
	p.ScheduledAt = "2026-03-12T15:30"
	res, err := f.svc.Create(context.Background(), &f.customer, p)
	require.NoError(t, err)
	assert.True(t, f.repo.get(res.BookingID).StartTime.Equal(time.Date(2026, 3, 12, 15, 30, 0, 0, ict)))
}

func TestCreate_NotificationsCarryRequestID(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings", nil)
	req.Header.Set(middleware.RequestIDHeader, "req-42")
	c := echo.New().NewContext(req, httptest.NewRecorder())

	var ctx context.Context
	require.NoError(t, middleware.RequestID()(func(c echo.Context) error {
		ctx = c.Request().Context()
		return nil
	})(c))

	_, err := f.svc.Create(ctx, &f.customer, validPayload())
	require.NoError(t, err)
	require.Len(t, f.notifier.sent, 2)
	for _, msg := range f.notifier.sent {
		assert.Equal(t, "req-42", msg.Metadata["request_id"])
	}
}

func TestCreate_Unmatched(t *testing.T) {
	f := newFixture(t)
	f.svc.matcher = mockMatcher{}

	res, err := f.svc.Create(context.Background(), &f.customer, validPayload())
	require.NoError(t, err)
	assert.Nil(t, res.TherapistID)
	assert.Equal(t, []string{notification.TemplateOpsNewBooking}, f.notifier.templates())
	assert.Contains(t, f.notifier.sent[0].Body, "nicht zugewiesen")
}

func TestCreate_MissingContactStillSucceeds(t *testing.T) {
	f := newFixture(t)
	other := uuid.New()
	f.svc.matcher = mockMatcher{id: &other}

	res, err := f.svc.Create(context.Background(), &f.customer, validPayload())
	require.NoError(t, err)
	assert.Equal(t, other, *res.TherapistID)
	assert.Equal(t, []string{notification.TemplateOpsNewBooking}, f.notifier.templates())
}

func TestCreate_Errors(t *testing.T) {
	f := newFixture(t)
	f.svc.matcher = mockMatcher{err: apperr.Upstream(errors.New("db down"), "list candidates")}
	_, err := f.svc.Create(context.Background(), &f.customer, validPayload())
	assert.Equal(t, apperr.KindUpstream, apperr.KindOf(err))

	f = newFixture(t)
	f.repo.createErr = apperr.Conflict("therapist already has a confirmed booking in this time range")
	_, err = f.svc.Create(context.Background(), &f.customer, validPayload())
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	assert.Empty(t, f.notifier.templates())
}

// -- Therapist decisions --

func TestSetStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.booking(10, 0, time.Hour, StatusPending)

	got, err := f.svc.SetStatus(ctx, f.therapist, b.ID, StatusAccepted)
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, got.Status)

	got, err = f.svc.SetStatus(ctx, f.therapist, b.ID, StatusConfirmed)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, got.Status)

	assert.Equal(t, []string{notification.TemplateCustomerStatusChange, notification.TemplateCustomerStatusChange}, f.notifier.templates())
	assert.Equal(t, "anna@example.com", f.notifier.sent[1].Recipient)
	assert.Contains(t, f.notifier.sent[1].Body, "confirmed")
}

func TestSetStatus_Reject(t *testing.T) {
	f := newFixture(t)
	b := f.booking(10, 0, time.Hour, StatusPending)

	got, err := f.svc.SetStatus(context.Background(), f.therapist, b.ID, StatusRejected)
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, got.Status)
	assert.Equal(t, StatusRejected, f.repo.get(b.ID).Status)
	assert.False(t, f.slots.last().Booked)

	_, err = f.svc.SetStatus(context.Background(), f.therapist, b.ID, StatusRejected)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestSetStatus_RejectKeepsSlotsOfAcceptedBooking(t *testing.T) {
	f := newFixture(t)
	accepted := f.booking(10, 0, time.Hour, StatusAccepted)
	pending := f.booking(10, 30, time.Hour, StatusPending)

	_, err := f.svc.SetStatus(context.Background(), f.therapist, pending.ID, StatusRejected)
	require.NoError(t, err)

	call := f.slots.last()
	assert.False(t, call.Booked)
	assert.True(t, call.Range.Equal(pending.Range()))
	require.Len(t, call.Keep, 1)
	assert.True(t, call.Keep[0].Equal(accepted.Range()))
	assert.Equal(t, StatusAccepted, f.repo.get(accepted.ID).Status)
}

func TestSetStatus_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.booking(10, 0, time.Hour, StatusPending)

	_, err := f.svc.SetStatus(ctx, f.therapist, b.ID, StatusCancelled)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = f.svc.SetStatus(ctx, uuid.New(), b.ID, StatusRejected)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	_, err = f.svc.SetStatus(ctx, f.therapist, uuid.New(), StatusAccepted)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

// -- Cancellation --

func TestCancel(t *testing.T) {
	tests := []struct {
		name   string
		hour   int
		status Status
		late   bool
	}{
		{"two hours ahead", 9, StatusCancelled, true},
		{"exactly three hours ahead", 10, StatusCancelled, true},
		{"five hours ahead", 12, StatusRefunded, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			b := f.booking(tt.hour, 0, time.Hour, StatusConfirmed)

			res, err := f.svc.Cancel(context.Background(), f.customer, b.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.status, res.Status)
			assert.Equal(t, tt.late, res.Late)

			stored := f.repo.get(b.ID)
			assert.Equal(t, tt.status, stored.Status)
			assert.Equal(t, PaymentUnpaid, stored.PaymentStatus)
			assert.False(t, f.slots.last().Booked)
		})
	}
}

func TestCancel_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pending := f.booking(12, 0, time.Hour, StatusPending)
	accepted := f.booking(14, 0, time.Hour, StatusAccepted)

	_, err := f.svc.Cancel(ctx, f.customer, pending.ID)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = f.svc.Cancel(ctx, uuid.New(), accepted.ID)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	_, err = f.svc.Cancel(ctx, f.customer, uuid.New())
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	assert.Equal(t, StatusAccepted, f.repo.get(accepted.ID).Status)
}

func TestCancel_InProgress(t *testing.T) {
	f := newFixture(t)
	b := f.booking(8, 0, time.Hour, StatusInProgress)

	res, err := f.svc.Cancel(context.Background(), f.customer, b.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, res.Status)
	assert.True(t, res.Late)
	assert.Equal(t, StatusCancelled, f.repo.get(b.ID).Status)
}

// -- Payments --

func paymentMetadata(id uuid.UUID) map[string]string {
	return map[string]string{"bookingId": id.String(), payment.MetadataPaymentIntent: "pi_123"}
}

func TestOnPaymentSuccess_Confirms(t *testing.T) {
	f := newFixture(t)
	b := f.booking(10, 0, time.Hour, StatusAccepted)

	require.NoError(t, f.svc.OnPaymentSuccess(context.Background(), paymentMetadata(b.ID)))
	stored := f.repo.get(b.ID)
	assert.Equal(t, StatusConfirmed, stored.Status)
	assert.Equal(t, PaymentPaid, stored.PaymentStatus)
	assert.Equal(t, "pi_123", f.repo.intents[b.ID])
	assert.True(t, f.slots.last().Booked)
	assert.Equal(t, []string{notification.TemplateBookingConfirmed}, f.notifier.templates())
}

func TestOnPaymentSuccess_SnakeCaseKey(t *testing.T) {
	f := newFixture(t)
	b := f.booking(10, 0, time.Hour, StatusAccepted)
	require.NoError(t, f.svc.OnPaymentSuccess(context.Background(), map[string]string{"booking_id": b.ID.String()}))
	assert.Equal(t, StatusConfirmed, f.repo.get(b.ID).Status)
}

func TestOnPaymentSuccess_Conflict(t *testing.T) {
	f := newFixture(t)
	f.booking(10, 0, time.Hour, StatusConfirmed)
	b := f.booking(10, 30, time.Hour, StatusAccepted)

	err := f.svc.OnPaymentSuccess(context.Background(), paymentMetadata(b.ID))
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	stored := f.repo.get(b.ID)
	assert.Equal(t, StatusAccepted, stored.Status)
	assert.Equal(t, PaymentPaid, stored.PaymentStatus)
	assert.Empty(t, f.notifier.templates())
}

func TestOnPaymentSuccess_Idempotent(t *testing.T) {
	f := newFixture(t)
	b := f.booking(10, 0, time.Hour, StatusConfirmed)

	require.NoError(t, f.svc.OnPaymentSuccess(context.Background(), paymentMetadata(b.ID)))
	require.NoError(t, f.svc.OnPaymentSuccess(context.Background(), paymentMetadata(b.ID)))
	stored := f.repo.get(b.ID)
	assert.Equal(t, StatusConfirmed, stored.Status)
	assert.Equal(t, PaymentPaid, stored.PaymentStatus)
	assert.Empty(t, f.slots.calls)
}

func TestOnPaymentSuccess_BadMetadata(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.Equal(t, apperr.KindValidation, apperr.KindOf(f.svc.OnPaymentSuccess(ctx, map[string]string{})))
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(f.svc.OnPaymentSuccess(ctx, map[string]string{"bookingId": "42"})))
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(f.svc.OnPaymentSuccess(ctx, paymentMetadata(uuid.New()))))
}

func TestOnPaymentFailure_CancelsAccepted(t *testing.T) {
	f := newFixture(t)
	b := f.booking(10, 0, time.Hour, StatusAccepted)

	require.NoError(t, f.svc.OnPaymentFailure(context.Background(), paymentMetadata(b.ID), "card declined"))
	stored := f.repo.get(b.ID)
	assert.Equal(t, StatusCancelled, stored.Status)
	assert.Equal(t, PaymentFailed, stored.PaymentStatus)
	assert.False(t, f.slots.last().Booked)

	require.Equal(t, []string{notification.TemplatePaymentFailed}, f.notifier.templates())
	assert.Contains(t, f.notifier.sent[0].Body, "card declined")
}

func TestOnPaymentFailure_OtherStates(t *testing.T) {
	f := newFixture(t)
	b := f.booking(10, 0, time.Hour, StatusPending)

	require.NoError(t, f.svc.OnPaymentFailure(context.Background(), paymentMetadata(b.ID), "card declined"))
	stored := f.repo.get(b.ID)
	assert.Equal(t, StatusPending, stored.Status)
	assert.Equal(t, PaymentFailed, stored.PaymentStatus)
	assert.Empty(t, f.notifier.templates())
}

// -- Queries and assignment --

func TestGet_Visibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.booking(10, 0, time.Hour, StatusPending)

	_, err := f.svc.Get(ctx, f.customer, false, b.ID)
	assert.NoError(t, err)
	_, err = f.svc.Get(ctx, f.therapist, false, b.ID)
	assert.NoError(t, err)
	_, err = f.svc.Get(ctx, uuid.New(), true, b.ID)
	assert.NoError(t, err)
	_, err = f.svc.Get(ctx, uuid.New(), false, b.ID)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
}

func TestListForCustomer(t *testing.T) {
	f := newFixture(t)
	for h := 9; h < 14; h++ {
		f.booking(h, 0, time.Hour, StatusPending)
	}
	items, total, err := f.svc.ListForCustomer(context.Background(), f.customer, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, items, 2)
	assert.Equal(t, 13, items[0].StartTime.In(ict).Hour())

	items, _, err = f.svc.ListForTherapist(context.Background(), f.therapist, 10, 4)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 9, items[0].StartTime.In(ict).Hour())
}

func TestAssign(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cid := f.customer
	start := time.Date(2026, 3, 12, 10, 0, 0, 0, ict)
	b := f.repo.put(&Booking{CustomerID: &cid, ServiceID: 1, StartTime: start, EndTime: start.Add(time.Hour), Status: StatusPending})

	got, err := f.svc.Assign(ctx, b.ID, f.therapist)
	require.NoError(t, err)
	assert.True(t, got.AssignedTo(f.therapist))
	assert.True(t, f.repo.get(b.ID).AssignedTo(f.therapist))
	assert.Equal(t, []string{notification.TemplateTherapistNewRequest}, f.notifier.templates())

	_, err = f.svc.Assign(ctx, b.ID, uuid.New())
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = f.svc.Assign(ctx, b.ID, uuid.Nil)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}
