package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medicare-wellness/clinic-scheduling/internal/calendly"
	"github.com/medicare-wellness/clinic-scheduling/internal/clinic"
	"github.com/medicare-wellness/clinic-scheduling/internal/notify"
)

const testSecret = "whsec_test"

// memRepo implements the subset of clinic.Repository the reconciler touches.
type memRepo struct {
	patients     map[string]*clinic.Patient
	appointments map[string]*clinic.Appointment
	doctors      []clinic.Doctor
	nextID       int64
}

func newMemRepo(doctors ...clinic.Doctor) *memRepo {
	return &memRepo{
		patients:     make(map[string]*clinic.Patient),
		appointments: make(map[string]*clinic.Appointment),
		doctors:      doctors,
	}
}

func (m *memRepo) FindPatientByEmail(_ context.Context, email string) (*clinic.Patient, error) {
	if p, ok := m.patients[clinic.NormalizeEmail(email)]; ok {
		return p, nil
	}
	return nil, clinic.ErrPatientNotFound
}

func (m *memRepo) GetPatientByID(_ context.Context, _ string) (*clinic.Patient, error) {
	return nil, clinic.ErrPatientNotFound
}

func (m *memRepo) CreatePatientIfAbsent(_ context.Context, p clinic.Patient) (*clinic.Patient, error) {
	key := clinic.NormalizeEmail(p.Email)
	if existing, ok := m.patients[key]; ok {
		return existing, nil
	}
	m.patients[key] = &p
	return &p, nil
}

func (m *memRepo) UpsertPatient(_ context.Context, p clinic.Patient) (*clinic.Patient, error) {
	key := clinic.NormalizeEmail(p.Email)
	m.patients[key] = &p
	return &p, nil
}

func (m *memRepo) ListPatients(_ context.Context, _, _ int) ([]clinic.Patient, error) {
	return nil, nil
}

func (m *memRepo) ListActiveDoctors(_ context.Context) ([]clinic.Doctor, error) {
	return m.doctors, nil
}

func (m *memRepo) InsertAppointment(_ context.Context, a clinic.Appointment) (*clinic.Appointment, error) {
	if _, ok := m.appointments[a.InviteeURI]; ok {
		return nil, clinic.ErrDuplicateInvitee
	}
	m.nextID++
	a.ID = m.nextID
	m.appointments[a.InviteeURI] = &a
	return &a, nil
}

func (m *memRepo) FindAppointmentByInviteeURI(_ context.Context, inviteeURI string) (*clinic.Appointment, error) {
	if a, ok := m.appointments[inviteeURI]; ok {
		return a, nil
	}
	return nil, clinic.ErrAppointmentNotFound
}

func (m *memRepo) CancelAppointmentByInviteeURI(_ context.Context, inviteeURI string) (bool, error) {
	a, ok := m.appointments[inviteeURI]
	if !ok {
		return false, nil
	}
	a.Status = clinic.StatusCanceled
	return true, nil
}

func (m *memRepo) ListAppointmentDetails(_ context.Context) ([]clinic.AppointmentDetail, error) {
	return nil, nil
}

func (m *memRepo) ListAppointmentsByPatient(_ context.Context, _ string) ([]clinic.AppointmentDetail, error) {
	return nil, nil
}

func (m *memRepo) DoctorStats(_ context.Context) ([]clinic.DoctorStat, error) { return nil, nil }

func (m *memRepo) FindUpcomingUnreminded(_ context.Context, _, _ time.Time) ([]clinic.AppointmentDetail, error) {
	return nil, nil
}

func (m *memRepo) MarkReminderSent(_ context.Context, _ int64) error { return nil }

// mapFetcher resolves event-type URIs to scheduling links without the network.
type mapFetcher struct {
	links map[string]string
}

func (f *mapFetcher) GetEventType(_ context.Context, uri string) (*calendly.EventType, error) {
	return &calendly.EventType{SchedulingURL: f.links[uri]}, nil
}

type recordedEmail struct {
	patient clinic.Patient
	visit   clinic.VisitType
}

type recordingMailer struct {
	sent []recordedEmail
}

func (m *recordingMailer) SendConfirmation(_ context.Context, patient clinic.Patient, _ clinic.Doctor, _ clinic.Appointment, visit clinic.VisitType) {
	m.sent = append(m.sent, recordedEmail{patient: patient, visit: visit})
}

func newTestHandler(t *testing.T, repo *memRepo, links map[string]string) (*Handler, *recordingMailer) {
	t.Helper()

	resolver := calendly.NewResolver(&mapFetcher{links: links}, nil, 0, nil)
	rec := clinic.NewReconciler(repo, nil)
	mailer := &recordingMailer{}
	return NewHandler(testSecret, repo, resolver, rec, mailer, nil), mailer
}

func drChen() clinic.Doctor {
	return clinic.Doctor{
		ID:                 1,
		Name:               "Dr. Sarah Chen",
		Specialization:     "Allergy & Immunology",
		NewPatientURL:      "https://calendly.com/dr-chen/new-patient",
		ExistingPatientURL: "https://calendly.com/dr-chen/follow-up",
		Active:             true,
	}
}

func creationPayload(email, name, inviteeRef, eventTypeRef string) []byte {
	body, _ := json.Marshal(map[string]any{
		"event": EventInviteeCreated,
		"payload": map[string]any{
			"email":          email,
			"name":           name,
			"uri":            inviteeRef,
			"cancel_url":     "https://calendly.com/cancellations/" + inviteeRef,
			"reschedule_url": "https://calendly.com/reschedulings/" + inviteeRef,
			"scheduled_event": map[string]any{
				"uri":        "https://api.calendly.com/scheduled_events/ev-1",
				"event_type": eventTypeRef,
				"start_time": "2025-01-01T10:00:00Z",
				"end_time":   "2025-01-01T10:30:00Z",
			},
		},
	})
	return body
}

func cancellationPayload(inviteeRef string) []byte {
	body, _ := json.Marshal(map[string]any{
		"event": EventInviteeCanceled,
		"payload": map[string]any{
			"uri": inviteeRef,
		},
	})
	return body
}

func post(t *testing.T, h *Handler, body []byte, sign bool) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/calendly", bytes.NewReader(body))
	if sign {
		req.Header.Set(SignatureHeader, calendly.SignPayload(body, testSecret, time.Now()))
	}
	w := httptest.NewRecorder()
	h.Handle(w, req)
	return w
}

func statusOf(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp["status"]
}

func TestHandleRejectsBadSignature(t *testing.T) {
	h, _ := newTestHandler(t, newMemRepo(drChen()), nil)

	w := post(t, h, creationPayload("a@b.com", "Ann Lee", "inv-1", "et-1"), false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Tampering after signing also fails.
	body := creationPayload("a@b.com", "Ann Lee", "inv-1", "et-1")
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/calendly", bytes.NewReader(append(body, ' ')))
	req.Header.Set(SignatureHeader, calendly.SignPayload(body, testSecret, time.Now()))
	w = httptest.NewRecorder()
	h.Handle(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHandleRejectsMalformedJSON(t *testing.T) {
	h, _ := newTestHandler(t, newMemRepo(drChen()), nil)

	w := post(t, h, []byte(`{"event": "invitee.created",`), true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleIgnoresUnknownEvent(t *testing.T) {
	h, _ := newTestHandler(t, newMemRepo(drChen()), nil)

	body, _ := json.Marshal(map[string]any{"event": "routing_form_submission.created", "payload": map[string]any{}})
	w := post(t, h, body, true)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Event type not handled", statusOf(t, w))
}

func TestHandleCreationEndToEnd(t *testing.T) {
	repo := newMemRepo(drChen())
	h, mailer := newTestHandler(t, repo, map[string]string{
		"et-1": "https://calendly.com/dr-chen/new-patient",
	})

	w := post(t, h, creationPayload("a@b.com", "Ann Lee", "inv-1", "et-1"), true)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Appointment created and confirmation email sent", statusOf(t, w))

	patient := repo.patients["a@b.com"]
	require.NotNil(t, patient)
	assert.Equal(t, "Ann", patient.FirstName)
	assert.Equal(t, "Lee", patient.LastName)
	assert.True(t, patient.NeedsIntake)

	appt := repo.appointments["inv-1"]
	require.NotNil(t, appt)
	assert.Equal(t, clinic.StatusScheduled, appt.Status)
	assert.Equal(t, 1, appt.DoctorID)
	assert.Equal(t, patient.ID, appt.PatientID)
	require.NotNil(t, appt.StartTime)
	assert.Equal(t, time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC), appt.StartTime.UTC())

	require.Len(t, mailer.sent, 1)
	assert.Equal(t, clinic.VisitNew, mailer.sent[0].visit)

	// Cancellation with the same invitee reference flips the status.
	w = post(t, h, cancellationPayload("inv-1"), true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Appointment canceled", statusOf(t, w))
	assert.Equal(t, clinic.StatusCanceled, repo.appointments["inv-1"].Status)
}

func TestHandleDuplicateCreationIsNoOp(t *testing.T) {
	repo := newMemRepo(drChen())
	h, mailer := newTestHandler(t, repo, map[string]string{
		"et-1": "https://calendly.com/dr-chen/new-patient",
	})

	body := creationPayload("a@b.com", "Ann Lee", "inv-1", "et-1")

	w := post(t, h, body, true)
	require.Equal(t, http.StatusOK, w.Code)

	w = post(t, h, body, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Appointment already recorded", statusOf(t, w))

	assert.Len(t, repo.appointments, 1)
	assert.Len(t, mailer.sent, 1, "duplicate delivery must not resend the confirmation")
}

func TestHandleUnmatchedDoctorStillAcknowledges(t *testing.T) {
	repo := newMemRepo(drChen())
	h, mailer := newTestHandler(t, repo, map[string]string{
		"et-legacy": "https://calendly.com/retired-doctor/intro",
	})

	w := post(t, h, creationPayload("new@b.com", "New Person", "inv-9", "et-legacy"), true)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Webhook received but doctor not found", statusOf(t, w))

	// The patient record may still be created, but no appointment and no email.
	assert.NotNil(t, repo.patients["new@b.com"])
	assert.Empty(t, repo.appointments)
	assert.Empty(t, mailer.sent)
}

func TestHandleCancellationUnknownInvitee(t *testing.T) {
	h, _ := newTestHandler(t, newMemRepo(drChen()), nil)

	w := post(t, h, cancellationPayload("inv-never-seen"), true)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Appointment not found", statusOf(t, w))
}

func TestHandleCancellationIdempotent(t *testing.T) {
	repo := newMemRepo(drChen())
	h, _ := newTestHandler(t, repo, map[string]string{
		"et-1": "https://calendly.com/dr-chen/new-patient",
	})

	post(t, h, creationPayload("a@b.com", "Ann Lee", "inv-1", "et-1"), true)
	post(t, h, cancellationPayload("inv-1"), true)

	w := post(t, h, cancellationPayload("inv-1"), true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Appointment canceled", statusOf(t, w))
	assert.Equal(t, clinic.StatusCanceled, repo.appointments["inv-1"].Status)
}

func TestHandleCreationMissingRequiredFields(t *testing.T) {
	h, _ := newTestHandler(t, newMemRepo(drChen()), nil)

	body, _ := json.Marshal(map[string]any{
		"event":   EventInviteeCreated,
		"payload": map[string]any{"name": "Ann Lee"},
	})
	w := post(t, h, body, true)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// Compile-time check that the production mailer satisfies the dispatcher's
// dependency.
var _ confirmationMailer = (*notify.ConfirmationMailer)(nil)
