package clinic

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/medicare-wellness/clinic-scheduling/pkg/logging"
)

// Reconciler performs the idempotent writes driven by Calendly webhook events:
// find-or-create on patients, insert on appointments guarded by the invitee
// URI uniqueness, and status transition on cancellation. Each operation is one
// logical transaction; multi-step flows (patient then appointment) are two
// separate commits on purpose, so a failure in step two leaves a valid,
// idempotently keyed patient behind.
type Reconciler struct {
	repo   Repository
	logger *logging.Logger
}

func NewReconciler(repo Repository, logger *logging.Logger) *Reconciler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Reconciler{repo: repo, logger: logger}
}

// NewMinimalPatient builds the placeholder record stored when a booking
// arrives for an email we have never seen. Only name and email are real;
// everything else carries the documented sentinel for its field type.
func NewMinimalPatient(email, displayName string) Patient {
	first, last := SplitDisplayName(displayName)

	return Patient{
		ID:          uuid.NewString(),
		FirstName:   first,
		LastName:    last,
		Email:       NormalizeEmail(email),
		DateOfBirth: SentinelDOB,
		Gender:      SentinelNotSpecified,

		StreetAddress: SentinelText,
		City:          SentinelText,
		State:         SentinelState,
		ZipCode:       SentinelZipCode,

		EmergencyContactName:         SentinelText,
		EmergencyContactRelationship: SentinelText,
		EmergencyContactPhone:        SentinelText,

		PrimaryInsuranceCompany: SentinelText,
		PrimaryMemberID:         SentinelText,

		PrimaryReasonForVisit: SentinelVisitReason,
		SymptomDuration:       SentinelNotSpecified,
		CurrentSymptoms:       []string{},

		HasKnownAllergies:         SentinelNotSpecified,
		HadAllergyTesting:         SentinelNotSpecified,
		HadSevereAllergicReaction: SentinelNotSpecified,

		CurrentAllergyMedications: []string{},
		MedicalConditions:         []string{},

		UnderstandsMedicationInstructions: SentinelNotSpecified,

		NeedsIntake: true,
	}
}

// FindOrCreatePatient returns the patient for the given email, creating a
// minimal sentinel-filled record when none exists. An existing record is
// never overwritten here; full overwrite only happens through direct
// registration (RegisterPatient).
func (r *Reconciler) FindOrCreatePatient(ctx context.Context, email, displayName string) (*Patient, error) {
	existing, err := r.repo.FindPatientByEmail(ctx, email)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrPatientNotFound) {
		return nil, fmt.Errorf("find patient: %w", err)
	}

	created, err := r.repo.CreatePatientIfAbsent(ctx, NewMinimalPatient(email, displayName))
	if err != nil {
		return nil, fmt.Errorf("create minimal patient: %w", err)
	}

	r.logger.Info("created minimal patient record", "email", NormalizeEmail(email))
	return created, nil
}

// RegisterPatient handles direct registration: insert, or full overwrite of
// every field when the email already exists.
func (r *Reconciler) RegisterPatient(ctx context.Context, p Patient) (*Patient, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.NeedsIntake = false

	saved, err := r.repo.UpsertPatient(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("register patient: %w", err)
	}

	r.logger.Info("registered patient", "email", saved.Email)
	return saved, nil
}

type CreateAppointmentParams struct {
	PatientID     string
	DoctorID      int
	EventURI      string
	InviteeURI    string
	StartTime     *time.Time
	EndTime       *time.Time
	CancelURL     string
	RescheduleURL string
}

// CreateAppointment inserts a scheduled appointment. A duplicate invitee URI
// means the same creation event was delivered before; the existing row is
// returned with created=false and no error.
func (r *Reconciler) CreateAppointment(ctx context.Context, params CreateAppointmentParams) (*Appointment, bool, error) {
	appt := Appointment{
		PatientID:     params.PatientID,
		DoctorID:      params.DoctorID,
		EventURI:      params.EventURI,
		InviteeURI:    params.InviteeURI,
		StartTime:     params.StartTime,
		EndTime:       params.EndTime,
		Status:        StatusScheduled,
		CancelURL:     params.CancelURL,
		RescheduleURL: params.RescheduleURL,
	}

	created, err := r.repo.InsertAppointment(ctx, appt)
	if err == nil {
		r.logger.Info("created appointment", "appointment_id", created.ID, "invitee_uri", created.InviteeURI)
		return created, true, nil
	}

	if errors.Is(err, ErrDuplicateInvitee) {
		r.logger.Info("duplicate creation event, appointment already exists", "invitee_uri", params.InviteeURI)
		existing, findErr := r.repo.FindAppointmentByInviteeURI(ctx, params.InviteeURI)
		if findErr != nil {
			return nil, false, fmt.Errorf("load existing appointment: %w", findErr)
		}
		return existing, false, nil
	}

	return nil, false, fmt.Errorf("create appointment: %w", err)
}

// CancelAppointment marks the appointment for the invitee URI canceled.
// Not-found is reported, not an error: the cancellation may race its creation
// event or reference a booking that predates this system. Canceling an
// already-canceled appointment is a no-op success.
func (r *Reconciler) CancelAppointment(ctx context.Context, inviteeURI string) (bool, error) {
	found, err := r.repo.CancelAppointmentByInviteeURI(ctx, inviteeURI)
	if err != nil {
		return false, fmt.Errorf("cancel appointment: %w", err)
	}

	if found {
		r.logger.Info("canceled appointment", "invitee_uri", inviteeURI)
	} else {
		r.logger.Warn("cancellation for unknown invitee URI", "invitee_uri", inviteeURI)
	}
	return found, nil
}
