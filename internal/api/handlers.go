package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/medicare-wellness/clinic-scheduling/internal/assistant"
	"github.com/medicare-wellness/clinic-scheduling/internal/clinic"
)

func registerPatientHandler(rec *clinic.Reconciler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req PatientCreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		if missing := req.Validate(); len(missing) > 0 {
			writeError(w, http.StatusBadRequest, "missing_required_fields", strings.Join(missing, ", "))
			return
		}

		patient, err := req.toPatient()
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date_of_birth", "date_of_birth must be YYYY-MM-DD")
			return
		}

		saved, err := rec.RegisterPatient(r.Context(), patient)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		writeJSON(w, http.StatusCreated, toPatientResponse(*saved))
	}
}

func verifyPatientHandler(repo clinic.Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req VerifyPatientRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if req.Email == "" || req.FirstName == "" || req.LastName == "" {
			writeError(w, http.StatusBadRequest, "missing_required_fields", "first_name, last_name and email are required")
			return
		}

		patient, err := repo.FindPatientByEmail(r.Context(), req.Email)
		if errors.Is(err, clinic.ErrPatientNotFound) {
			writeJSON(w, http.StatusOK, VerifyPatientResponse{Exists: false})
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		// The name must match the record; the email alone is not proof of
		// identity for the caller's purposes.
		if !strings.EqualFold(patient.FirstName, req.FirstName) || !strings.EqualFold(patient.LastName, req.LastName) {
			writeJSON(w, http.StatusOK, VerifyPatientResponse{Exists: false})
			return
		}

		writeJSON(w, http.StatusOK, VerifyPatientResponse{
			Exists:      true,
			PatientID:   patient.ID,
			NeedsIntake: patient.NeedsIntake,
		})
	}
}

func listDoctorsHandler(repo clinic.Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctors, err := repo.ListActiveDoctors(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		resp := make([]DoctorResponse, 0, len(doctors))
		for _, d := range doctors {
			resp = append(resp, toDoctorResponse(d))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func recommendDoctorHandler(svc *assistant.Service, repo clinic.Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			writeError(w, http.StatusServiceUnavailable, "assistant_unavailable", "assistant is not configured")
			return
		}

		var req RecommendRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if strings.TrimSpace(req.Symptoms) == "" {
			writeError(w, http.StatusBadRequest, "missing_required_fields", "symptoms is required")
			return
		}

		doctors, err := repo.ListActiveDoctors(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		rec, err := svc.Recommend(r.Context(), req.Symptoms, doctors)
		if err != nil {
			writeError(w, http.StatusBadGateway, "assistant_error", err.Error())
			return
		}

		writeJSON(w, http.StatusOK, rec)
	}
}

func chatHandler(svc *assistant.Service, repo clinic.Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			writeError(w, http.StatusServiceUnavailable, "assistant_unavailable", "assistant is not configured")
			return
		}

		var req ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if strings.TrimSpace(req.Message) == "" {
			writeError(w, http.StatusBadRequest, "missing_required_fields", "message is required")
			return
		}

		doctors, err := repo.ListActiveDoctors(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		res, err := svc.Chat(r.Context(), req.SessionID, req.Message, doctors)
		if err != nil {
			writeError(w, http.StatusBadGateway, "assistant_error", err.Error())
			return
		}

		writeJSON(w, http.StatusOK, res)
	}
}

func listAppointmentsHandler(repo clinic.Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		details, err := repo.ListAppointmentDetails(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		resp := make([]AppointmentDetailResponse, 0, len(details))
		for _, d := range details {
			resp = append(resp, toAppointmentDetailResponse(d))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func doctorStatsHandler(repo clinic.Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := repo.DoctorStats(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		resp := make([]DoctorStatResponse, 0, len(stats))
		for _, s := range stats {
			resp = append(resp, DoctorStatResponse{
				DoctorName:     s.DoctorName,
				Specialization: s.Specialization,
				Total:          s.Total,
				Scheduled:      s.Scheduled,
				Canceled:       s.Canceled,
			})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func listPatientsHandler(repo clinic.Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := queryInt(r, "limit", 50)
		if limit < 1 || limit > 200 {
			limit = 50
		}
		offset := queryInt(r, "offset", 0)
		if offset < 0 {
			offset = 0
		}

		patients, err := repo.ListPatients(r.Context(), limit, offset)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		resp := make([]PatientResponse, 0, len(patients))
		for _, p := range patients {
			resp = append(resp, toPatientResponse(p))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func patientAppointmentsHandler(repo clinic.Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patientID := chi.URLParam(r, "id")

		if _, err := repo.GetPatientByID(r.Context(), patientID); err != nil {
			if errors.Is(err, clinic.ErrPatientNotFound) {
				writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		details, err := repo.ListAppointmentsByPatient(r.Context(), patientID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		resp := make([]AppointmentDetailResponse, 0, len(details))
		for _, d := range details {
			resp = append(resp, toAppointmentDetailResponse(d))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
