package therapist

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/islandmassage/booking/internal/platform/apperr"
	"github.com/islandmassage/booking/internal/platform/auth"
	"github.com/islandmassage/booking/internal/platform/db"
	"github.com/islandmassage/booking/internal/platform/geo"
)

type mockRepo struct {
	therapists map[uuid.UUID]*Therapist
	services   map[uuid.UUID][]int64
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		therapists: make(map[uuid.UUID]*Therapist),
		services:   make(map[uuid.UUID][]int64),
	}
}

func (m *mockRepo) ListPublic(_ context.Context, limit, offset int) ([]*Therapist, int, error) {
	var out []*Therapist
	for _, t := range m.therapists {
		if t.OnboardingStatus == StatusApproved && t.IsActive {
			out = append(out, t)
		}
	}
	return out, len(out), nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Therapist, error) {
	t, ok := m.therapists[id]
	if !ok {
		return nil, apperr.NotFound("therapist %s not found", id)
	}
	return t, nil
}

func (m *mockRepo) ListByStatus(_ context.Context, status string, limit, offset int) ([]*Therapist, int, error) {
	var out []*Therapist
	for _, t := range m.therapists {
		if t.OnboardingStatus == status {
			out = append(out, t)
		}
	}
	return out, len(out), nil
}

func (m *mockRepo) UpsertProfile(_ context.Context, id uuid.UUID, in ProfileInput) error {
	t, ok := m.therapists[id]
	if !ok {
		t = &Therapist{ID: id, OnboardingStatus: "new", IsActive: true}
		m.therapists[id] = t
	}
	t.Bio = in.Bio
	t.Languages = in.Languages
	return nil
}

func (m *mockRepo) SetServices(_ context.Context, id uuid.UUID, ids []int64) error {
	m.services[id] = ids
	return nil
}

func (m *mockRepo) SetLocation(_ context.Context, id uuid.UUID, p geo.Point, radius *float64) error {
	t, ok := m.therapists[id]
	if !ok {
		t = &Therapist{ID: id, OnboardingStatus: "new"}
		m.therapists[id] = t
	}
	t.Latitude, t.Longitude = &p.Lat, &p.Lng
	if radius != nil {
		t.TravelRadiusKm = radius
	}
	return nil
}

type mockOnboarding struct {
	repo *mockRepo
}

func (o mockOnboarding) SetOnboardingStatus(_ context.Context, id uuid.UUID, status string) error {
	t, ok := o.repo.therapists[id]
	if !ok {
		return apperr.NotFound("profile %s not found", id)
	}
	t.OnboardingStatus = status
	return nil
}

func newTestService() (*Service, *mockRepo) {
	repo := newMockRepo()
	return NewService(repo, mockOnboarding{repo: repo}, db.NoTx{}, zerolog.Nop()), repo
}

func TestUpsertProfile_QueuesForReview(t *testing.T) {
	svc, _ := newTestService()
	id := uuid.New()
	bio := "Traditional Thai massage since 2012"

	got, err := svc.UpsertProfile(context.Background(), id, ProfileInput{Bio: &bio, Languages: []string{"th", "en"}})
	require.NoError(t, err)
	assert.Equal(t, StatusPendingReview, got.OnboardingStatus)
}

func TestUpsertProfile_KeepsApproval(t *testing.T) {
	svc, repo := newTestService()
	id := uuid.New()
	repo.therapists[id] = &Therapist{ID: id, OnboardingStatus: StatusApproved, IsActive: true}

	got, err := svc.UpsertProfile(context.Background(), id, ProfileInput{Languages: []string{"de"}})
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, got.OnboardingStatus)
}

func TestUpsertProfile_Validation(t *testing.T) {
	svc, _ := newTestService()
	years := -1
	_, err := svc.UpsertProfile(context.Background(), uuid.New(), ProfileInput{ExperienceYears: &years})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	long := strings.Repeat("x", maxBioLength+1)
	_, err = svc.UpsertProfile(context.Background(), uuid.New(), ProfileInput{Bio: &long})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestSetServices_DedupesAndSorts(t *testing.T) {
	svc, repo := newTestService()
	id := uuid.New()

	ids, err := svc.SetServices(context.Background(), id, []int64{3, 1, 3})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3}, ids)
	assert.Equal(t, []int64{1, 3}, repo.services[id])

	_, err = svc.SetServices(context.Background(), id, []int64{0})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestSetLocation(t *testing.T) {
	svc, repo := newTestService()
	id := uuid.New()
	radius := 15.0

	require.NoError(t, svc.SetLocation(context.Background(), id, LocationInput{Latitude: 9.72, Longitude: 100.0, TravelRadiusKm: &radius}))
	p, ok := repo.therapists[id].Location()
	require.True(t, ok)
	assert.Equal(t, geo.Point{Lat: 9.72, Lng: 100.0}, p)

	err := svc.SetLocation(context.Background(), id, LocationInput{Latitude: 91, Longitude: 0})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	zero := 0.0
	err = svc.SetLocation(context.Background(), id, LocationInput{Latitude: 9.7, Longitude: 100, TravelRadiusKm: &zero})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestApproveAndPublicVisibility(t *testing.T) {
	svc, repo := newTestService()
	id := uuid.New()
	repo.therapists[id] = &Therapist{ID: id, OnboardingStatus: StatusPendingReview, IsActive: true}

	_, err := svc.GetPublic(context.Background(), id)
	assert.True(t, apperr.Is(err, apperr.KindNotFound), "pending therapists are not public")

	require.NoError(t, svc.Approve(context.Background(), id))
	got, err := svc.GetPublic(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, got.OnboardingStatus)

	err = svc.Approve(context.Background(), uuid.New())
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestListByStatus_Invalid(t *testing.T) {
	svc, _ := newTestService()
	_, _, err := svc.ListByStatus(context.Background(), "gold", 20, 0)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestHandler_SetServices(t *testing.T) {
	svc, _ := newTestService()
	h := NewHandler(svc)
	e := echo.New()

	req := httptest.NewRequest(http.MethodPut, "/", strings.NewReader(`{"service_ids":[2,1]}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req = req.WithContext(auth.WithUser(req.Context(), uuid.NewString(), []string{auth.RoleTherapist}))
	rec := httptest.NewRecorder()
	if err := h.SetServices(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `[1,2]`) {
		t.Errorf("expected sorted ids, got %s", rec.Body.String())
	}
}

func TestHandler_ApproveUnknown(t *testing.T) {
	svc, _ := newTestService()
	h := NewHandler(svc)
	e := echo.New()

	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(uuid.NewString())
	err := h.Approve(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %v", err)
	}
}
