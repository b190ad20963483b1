package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medicare-wellness/clinic-scheduling/internal/assistant"
	"github.com/medicare-wellness/clinic-scheduling/internal/clinic"
)

type stubRepo struct {
	patients map[string]*clinic.Patient
	byID     map[string]*clinic.Patient
	doctors  []clinic.Doctor
	details  []clinic.AppointmentDetail
	stats    []clinic.DoctorStat

	lastLimit  int
	lastOffset int
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		patients: make(map[string]*clinic.Patient),
		byID:     make(map[string]*clinic.Patient),
	}
}

func (s *stubRepo) add(p clinic.Patient) {
	s.patients[clinic.NormalizeEmail(p.Email)] = &p
	s.byID[p.ID] = &p
}

func (s *stubRepo) FindPatientByEmail(_ context.Context, email string) (*clinic.Patient, error) {
	if p, ok := s.patients[clinic.NormalizeEmail(email)]; ok {
		return p, nil
	}
	return nil, clinic.ErrPatientNotFound
}

func (s *stubRepo) GetPatientByID(_ context.Context, id string) (*clinic.Patient, error) {
	if p, ok := s.byID[id]; ok {
		return p, nil
	}
	return nil, clinic.ErrPatientNotFound
}

func (s *stubRepo) CreatePatientIfAbsent(_ context.Context, p clinic.Patient) (*clinic.Patient, error) {
	s.add(p)
	return &p, nil
}

func (s *stubRepo) UpsertPatient(_ context.Context, p clinic.Patient) (*clinic.Patient, error) {
	s.add(p)
	return &p, nil
}

func (s *stubRepo) ListPatients(_ context.Context, limit, offset int) ([]clinic.Patient, error) {
	s.lastLimit, s.lastOffset = limit, offset
	out := make([]clinic.Patient, 0, len(s.patients))
	for _, p := range s.patients {
		out = append(out, *p)
	}
	return out, nil
}

func (s *stubRepo) ListActiveDoctors(_ context.Context) ([]clinic.Doctor, error) {
	return s.doctors, nil
}

func (s *stubRepo) InsertAppointment(_ context.Context, a clinic.Appointment) (*clinic.Appointment, error) {
	return &a, nil
}

func (s *stubRepo) FindAppointmentByInviteeURI(_ context.Context, _ string) (*clinic.Appointment, error) {
	return nil, clinic.ErrAppointmentNotFound
}

func (s *stubRepo) CancelAppointmentByInviteeURI(_ context.Context, _ string) (bool, error) {
	return false, nil
}

func (s *stubRepo) ListAppointmentDetails(_ context.Context) ([]clinic.AppointmentDetail, error) {
	return s.details, nil
}

func (s *stubRepo) ListAppointmentsByPatient(_ context.Context, _ string) ([]clinic.AppointmentDetail, error) {
	return s.details, nil
}

func (s *stubRepo) DoctorStats(_ context.Context) ([]clinic.DoctorStat, error) {
	return s.stats, nil
}

func (s *stubRepo) FindUpcomingUnreminded(_ context.Context, _, _ time.Time) ([]clinic.AppointmentDetail, error) {
	return nil, nil
}

func (s *stubRepo) MarkReminderSent(_ context.Context, _ int64) error { return nil }

type noopMemory struct{}

func (noopMemory) History(_ context.Context, _ string) ([]assistant.Message, error) {
	return nil, nil
}

func (noopMemory) Append(_ context.Context, _ string, _ ...assistant.Message) error {
	return nil
}

type cannedLLM struct {
	answer string
}

func (c *cannedLLM) Complete(_ context.Context, _ string, _ []assistant.Message, _ string) (string, error) {
	return c.answer, nil
}

func newTestRouter(repo *stubRepo, svc *assistant.Service) http.Handler {
	return NewRouter(RouterConfig{
		Repo:       repo,
		Reconciler: clinic.NewReconciler(repo, nil),
		Assistant:  svc,
	})
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func validRegistration() map[string]any {
	return map[string]any{
		"first_name":                "Ann",
		"last_name":                 "Lee",
		"date_of_birth":             "1990-04-12",
		"gender":                    "Female",
		"email":                     "Ann.Lee@Example.com",
		"cell_phone":                "555-0101",
		"street_address":            "42 Elm St",
		"city":                      "Wellness City",
		"state":                     "CA",
		"zip_code":                  "94000",
		"emergency_contact_name":    "Bob Lee",
		"emergency_contact_phone":   "555-0102",
		"primary_insurance_company": "Acme Health",
		"primary_member_id":         "M123",
		"primary_reason_for_visit":  "Seasonal allergies",
	}
}

func TestRegisterPatient(t *testing.T) {
	repo := newStubRepo()
	router := newTestRouter(repo, nil)

	w := doJSON(t, router, http.MethodPost, "/api/patients", validRegistration())

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp PatientResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.ID)
	assert.Equal(t, "ann.lee@example.com", resp.Email, "email must be normalized")
	assert.False(t, resp.NeedsIntake)

	stored := repo.patients["ann.lee@example.com"]
	require.NotNil(t, stored)
	assert.Equal(t, time.Date(1990, 4, 12, 0, 0, 0, 0, time.UTC), stored.DateOfBirth)
}

func TestRegisterPatientOverwritesExisting(t *testing.T) {
	repo := newStubRepo()
	repo.add(clinic.Patient{ID: "p-1", Email: "ann.lee@example.com", FirstName: "Old", NeedsIntake: true})
	router := newTestRouter(repo, nil)

	w := doJSON(t, router, http.MethodPost, "/api/patients", validRegistration())

	require.Equal(t, http.StatusCreated, w.Code)
	stored := repo.patients["ann.lee@example.com"]
	assert.Equal(t, "Ann", stored.FirstName)
	assert.False(t, stored.NeedsIntake)
}

func TestRegisterPatientMissingFields(t *testing.T) {
	router := newTestRouter(newStubRepo(), nil)

	body := validRegistration()
	delete(body, "email")
	delete(body, "zip_code")

	w := doJSON(t, router, http.MethodPost, "/api/patients", body)

	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "missing_required_fields", resp.Error)
	assert.Contains(t, resp.Details, "email")
	assert.Contains(t, resp.Details, "zip_code")
}

func TestRegisterPatientBadDateOfBirth(t *testing.T) {
	router := newTestRouter(newStubRepo(), nil)

	body := validRegistration()
	body["date_of_birth"] = "12/04/1990"

	w := doJSON(t, router, http.MethodPost, "/api/patients", body)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "invalid_date_of_birth"))
}

func TestVerifyPatient(t *testing.T) {
	repo := newStubRepo()
	repo.add(clinic.Patient{ID: "p-1", Email: "a@b.com", FirstName: "Ann", LastName: "Lee", NeedsIntake: true})
	router := newTestRouter(repo, nil)

	w := doJSON(t, router, http.MethodPost, "/api/verify-patient", map[string]string{
		"first_name": "ann", "last_name": "LEE", "email": "A@B.com",
	})

	require.Equal(t, http.StatusOK, w.Code)
	var resp VerifyPatientResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Exists)
	assert.Equal(t, "p-1", resp.PatientID)
	assert.True(t, resp.NeedsIntake)
}

func TestVerifyPatientNameMismatch(t *testing.T) {
	repo := newStubRepo()
	repo.add(clinic.Patient{ID: "p-1", Email: "a@b.com", FirstName: "Ann", LastName: "Lee"})
	router := newTestRouter(repo, nil)

	w := doJSON(t, router, http.MethodPost, "/api/verify-patient", map[string]string{
		"first_name": "Bea", "last_name": "Lee", "email": "a@b.com",
	})

	require.Equal(t, http.StatusOK, w.Code)
	var resp VerifyPatientResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Exists)
	assert.Empty(t, resp.PatientID)
}

func TestVerifyPatientUnknownEmail(t *testing.T) {
	router := newTestRouter(newStubRepo(), nil)

	w := doJSON(t, router, http.MethodPost, "/api/verify-patient", map[string]string{
		"first_name": "Ann", "last_name": "Lee", "email": "nobody@b.com",
	})

	require.Equal(t, http.StatusOK, w.Code)
	var resp VerifyPatientResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Exists)
}

func TestListDoctors(t *testing.T) {
	repo := newStubRepo()
	repo.doctors = []clinic.Doctor{
		{ID: 1, Name: "Dr. Sarah Chen", Specialization: "Allergy & Immunology", NewPatientURL: "https://calendly.com/dr-chen/new-patient"},
	}
	router := newTestRouter(repo, nil)

	w := doJSON(t, router, http.MethodGet, "/api/doctors", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var resp []DoctorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp, 1)
	assert.Equal(t, "Dr. Sarah Chen", resp[0].Name)
}

func TestAssistantEndpointsUnavailableWithoutService(t *testing.T) {
	router := newTestRouter(newStubRepo(), nil)

	w := doJSON(t, router, http.MethodPost, "/api/recommend-doctor", map[string]string{"symptoms": "hives"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = doJSON(t, router, http.MethodPost, "/api/chat", map[string]string{"message": "hi"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRecommendDoctor(t *testing.T) {
	repo := newStubRepo()
	repo.doctors = []clinic.Doctor{{ID: 1, Name: "Dr. Sarah Chen", Specialization: "Allergy & Immunology"}}

	llm := &cannedLLM{answer: `{"doctor_name":"Dr. Sarah Chen","specialization":"Allergy & Immunology","reason":"fits"}`}
	svc := assistant.NewService(llm, noopMemory{}, nil)
	router := newTestRouter(repo, svc)

	w := doJSON(t, router, http.MethodPost, "/api/recommend-doctor", map[string]string{"symptoms": "hives"})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var rec assistant.Recommendation
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
	assert.Equal(t, "Dr. Sarah Chen", rec.DoctorName)
}

func TestChatRequiresMessage(t *testing.T) {
	svc := assistant.NewService(&cannedLLM{answer: "hello"}, noopMemory{}, nil)
	router := newTestRouter(newStubRepo(), svc)

	w := doJSON(t, router, http.MethodPost, "/api/chat", map[string]string{"message": "  "})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminAppointments(t *testing.T) {
	start := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	repo := newStubRepo()
	repo.details = []clinic.AppointmentDetail{{
		Appointment: clinic.Appointment{ID: 7, StartTime: &start, Status: clinic.StatusScheduled},
		PatientName: "Ann Lee", PatientEmail: "a@b.com", DoctorName: "Dr. Sarah Chen",
	}}
	router := newTestRouter(repo, nil)

	w := doJSON(t, router, http.MethodGet, "/api/admin/appointments", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var resp []AppointmentDetailResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp, 1)
	assert.Equal(t, "scheduled", resp[0].Status)
	assert.Equal(t, "Dr. Sarah Chen", resp[0].DoctorName)
}

func TestAdminDoctorStats(t *testing.T) {
	repo := newStubRepo()
	repo.stats = []clinic.DoctorStat{{DoctorName: "Dr. Sarah Chen", Total: 3, Scheduled: 2, Canceled: 1}}
	router := newTestRouter(repo, nil)

	w := doJSON(t, router, http.MethodGet, "/api/admin/doctor-stats", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var resp []DoctorStatResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp, 1)
	assert.Equal(t, 3, resp[0].Total)
}

func TestAdminPatientsPaginationClamped(t *testing.T) {
	repo := newStubRepo()
	router := newTestRouter(repo, nil)

	w := doJSON(t, router, http.MethodGet, "/api/admin/patients?limit=9999&offset=-3", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 50, repo.lastLimit)
	assert.Equal(t, 0, repo.lastOffset)
}

func TestAdminPatientAppointmentsUnknownPatient(t *testing.T) {
	router := newTestRouter(newStubRepo(), nil)

	w := doJSON(t, router, http.MethodGet, "/api/admin/patients/p-404/appointments", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
