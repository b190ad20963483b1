package clinic

import (
	"context"
	"errors"
	"time"
)

var (
	ErrPatientNotFound     = errors.New("patient not found")
	ErrAppointmentNotFound = errors.New("appointment not found")

	// ErrDuplicateInvitee means an appointment with the same invitee URI
	// already exists. Callers treat this as the event having been handled.
	ErrDuplicateInvitee = errors.New("appointment with this invitee URI already exists")
)

// Repository contains all DB interactions needed by the reconciler, the HTTP
// handlers and the reminder worker. Every method is a single statement (or a
// single conflict-handling statement), so row-level atomicity in Postgres is
// the only synchronization the callers rely on.
type Repository interface {
	// Patients
	FindPatientByEmail(ctx context.Context, email string) (*Patient, error)
	GetPatientByID(ctx context.Context, id string) (*Patient, error)
	// CreatePatientIfAbsent inserts the record unless one already exists for
	// the same email, in which case the existing row is returned untouched.
	CreatePatientIfAbsent(ctx context.Context, p Patient) (*Patient, error)
	// UpsertPatient inserts or fully overwrites the record keyed by email.
	UpsertPatient(ctx context.Context, p Patient) (*Patient, error)
	ListPatients(ctx context.Context, limit, offset int) ([]Patient, error)

	// Doctors (seeded externally, read-only here)
	ListActiveDoctors(ctx context.Context) ([]Doctor, error)

	// Appointments
	InsertAppointment(ctx context.Context, a Appointment) (*Appointment, error)
	FindAppointmentByInviteeURI(ctx context.Context, inviteeURI string) (*Appointment, error)
	// CancelAppointmentByInviteeURI sets status to canceled and reports
	// whether a row matched. Canceling a canceled row still matches.
	CancelAppointmentByInviteeURI(ctx context.Context, inviteeURI string) (bool, error)

	// Admin views
	ListAppointmentDetails(ctx context.Context) ([]AppointmentDetail, error)
	ListAppointmentsByPatient(ctx context.Context, patientID string) ([]AppointmentDetail, error)
	DoctorStats(ctx context.Context) ([]DoctorStat, error)

	// Reminder worker
	FindUpcomingUnreminded(ctx context.Context, from, until time.Time) ([]AppointmentDetail, error)
	MarkReminderSent(ctx context.Context, appointmentID int64) error
}
