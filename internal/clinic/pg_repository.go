package clinic

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of pgxpool.Pool the repository uses. pgxmock satisfies it
// in tests.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type PgRepository struct {
	db DB
}

func NewPgRepository(db DB) *PgRepository {
	return &PgRepository{db: db}
}

const patientColumns = `
	id, first_name, middle_initial, last_name, date_of_birth, gender,
	email, home_phone, cell_phone,
	street_address, city, state, zip_code,
	emergency_contact_name, emergency_contact_relationship, emergency_contact_phone,
	primary_insurance_company, primary_member_id, primary_group_number,
	secondary_insurance_company, secondary_member_id, secondary_group_number,
	primary_reason_for_visit, symptom_duration, current_symptoms,
	has_known_allergies, known_allergies_list, had_allergy_testing,
	allergy_testing_date, had_severe_allergic_reaction,
	current_medications, current_allergy_medications,
	medical_conditions, family_allergy_history,
	understands_medication_instructions, needs_intake,
	created_at, updated_at`

const appointmentColumns = `
	id, patient_id, doctor_id, calendly_event_uri, calendly_invitee_uri,
	appointment_time, end_time, status, cancel_url, reschedule_url,
	reminder_sent_at, created_at`

// Helpers

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient

	err := row.Scan(
		&p.ID, &p.FirstName, &p.MiddleInitial, &p.LastName, &p.DateOfBirth, &p.Gender,
		&p.Email, &p.HomePhone, &p.CellPhone,
		&p.StreetAddress, &p.City, &p.State, &p.ZipCode,
		&p.EmergencyContactName, &p.EmergencyContactRelationship, &p.EmergencyContactPhone,
		&p.PrimaryInsuranceCompany, &p.PrimaryMemberID, &p.PrimaryGroupNumber,
		&p.SecondaryInsuranceCompany, &p.SecondaryMemberID, &p.SecondaryGroupNumber,
		&p.PrimaryReasonForVisit, &p.SymptomDuration, &p.CurrentSymptoms,
		&p.HasKnownAllergies, &p.KnownAllergiesList, &p.HadAllergyTesting,
		&p.AllergyTestingDate, &p.HadSevereAllergicReaction,
		&p.CurrentMedications, &p.CurrentAllergyMedications,
		&p.MedicalConditions, &p.FamilyAllergyHistory,
		&p.UnderstandsMedicationInstructions, &p.NeedsIntake,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	return &p, nil
}

func patientArgs(p Patient) []any {
	return []any{
		p.ID, p.FirstName, p.MiddleInitial, p.LastName, p.DateOfBirth, p.Gender,
		NormalizeEmail(p.Email), p.HomePhone, p.CellPhone,
		p.StreetAddress, p.City, p.State, p.ZipCode,
		p.EmergencyContactName, p.EmergencyContactRelationship, p.EmergencyContactPhone,
		p.PrimaryInsuranceCompany, p.PrimaryMemberID, p.PrimaryGroupNumber,
		p.SecondaryInsuranceCompany, p.SecondaryMemberID, p.SecondaryGroupNumber,
		p.PrimaryReasonForVisit, p.SymptomDuration, p.CurrentSymptoms,
		p.HasKnownAllergies, p.KnownAllergiesList, p.HadAllergyTesting,
		p.AllergyTestingDate, p.HadSevereAllergicReaction,
		p.CurrentMedications, p.CurrentAllergyMedications,
		p.MedicalConditions, p.FamilyAllergyHistory,
		p.UnderstandsMedicationInstructions, p.NeedsIntake,
	}
}

const patientPlaceholders = `
	$1, $2, $3, $4, $5, $6,
	$7, $8, $9,
	$10, $11, $12, $13,
	$14, $15, $16,
	$17, $18, $19,
	$20, $21, $22,
	$23, $24, $25,
	$26, $27, $28,
	$29, $30,
	$31, $32,
	$33, $34,
	$35, $36,
	now(), now()`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var startTime, endTime, reminderSentAt *time.Time

	err := row.Scan(
		&a.ID, &a.PatientID, &a.DoctorID, &a.EventURI, &a.InviteeURI,
		&startTime, &endTime, &a.Status, &a.CancelURL, &a.RescheduleURL,
		&reminderSentAt, &a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.StartTime = startTime
	a.EndTime = endTime
	a.ReminderSentAt = reminderSentAt
	return &a, nil
}

func scanDoctor(rows pgx.Rows) (Doctor, error) {
	var d Doctor
	err := rows.Scan(
		&d.ID, &d.Name, &d.Specialization, &d.Email, &d.Phone,
		&d.NewPatientURL, &d.ExistingPatientURL, &d.Active,
	)
	return d, err
}

// Patients

func (r *PgRepository) FindPatientByEmail(ctx context.Context, email string) (*Patient, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+patientColumns+`
		FROM patients
		WHERE email = $1
	`, NormalizeEmail(email))
	return scanPatient(row)
}

func (r *PgRepository) GetPatientByID(ctx context.Context, id string) (*Patient, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+patientColumns+`
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) CreatePatientIfAbsent(ctx context.Context, p Patient) (*Patient, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO patients (`+patientColumns+`)
		VALUES (`+patientPlaceholders+`)
		ON CONFLICT (email) DO NOTHING
		RETURNING `+patientColumns,
		patientArgs(p)...)

	created, err := scanPatient(row)
	if err == nil {
		return created, nil
	}
	if !errors.Is(err, ErrPatientNotFound) {
		return nil, fmt.Errorf("insert patient: %w", err)
	}

	// Conflict: the email already exists, return the existing row untouched.
	return r.FindPatientByEmail(ctx, p.Email)
}

func (r *PgRepository) UpsertPatient(ctx context.Context, p Patient) (*Patient, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO patients (`+patientColumns+`)
		VALUES (`+patientPlaceholders+`)
		ON CONFLICT (email) DO UPDATE SET
			first_name = EXCLUDED.first_name,
			middle_initial = EXCLUDED.middle_initial,
			last_name = EXCLUDED.last_name,
			date_of_birth = EXCLUDED.date_of_birth,
			gender = EXCLUDED.gender,
			home_phone = EXCLUDED.home_phone,
			cell_phone = EXCLUDED.cell_phone,
			street_address = EXCLUDED.street_address,
			city = EXCLUDED.city,
			state = EXCLUDED.state,
			zip_code = EXCLUDED.zip_code,
			emergency_contact_name = EXCLUDED.emergency_contact_name,
			emergency_contact_relationship = EXCLUDED.emergency_contact_relationship,
			emergency_contact_phone = EXCLUDED.emergency_contact_phone,
			primary_insurance_company = EXCLUDED.primary_insurance_company,
			primary_member_id = EXCLUDED.primary_member_id,
			primary_group_number = EXCLUDED.primary_group_number,
			secondary_insurance_company = EXCLUDED.secondary_insurance_company,
			secondary_member_id = EXCLUDED.secondary_member_id,
			secondary_group_number = EXCLUDED.secondary_group_number,
			primary_reason_for_visit = EXCLUDED.primary_reason_for_visit,
			symptom_duration = EXCLUDED.symptom_duration,
			current_symptoms = EXCLUDED.current_symptoms,
			has_known_allergies = EXCLUDED.has_known_allergies,
			known_allergies_list = EXCLUDED.known_allergies_list,
			had_allergy_testing = EXCLUDED.had_allergy_testing,
			allergy_testing_date = EXCLUDED.allergy_testing_date,
			had_severe_allergic_reaction = EXCLUDED.had_severe_allergic_reaction,
			current_medications = EXCLUDED.current_medications,
			current_allergy_medications = EXCLUDED.current_allergy_medications,
			medical_conditions = EXCLUDED.medical_conditions,
			family_allergy_history = EXCLUDED.family_allergy_history,
			understands_medication_instructions = EXCLUDED.understands_medication_instructions,
			needs_intake = EXCLUDED.needs_intake,
			updated_at = now()
		RETURNING `+patientColumns,
		patientArgs(p)...)

	upserted, err := scanPatient(row)
	if err != nil {
		return nil, fmt.Errorf("upsert patient: %w", err)
	}
	return upserted, nil
}

func (r *PgRepository) ListPatients(ctx context.Context, limit, offset int) ([]Patient, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+patientColumns+`
		FROM patients
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *p)
	}
	return result, rows.Err()
}

// Doctors

func (r *PgRepository) ListActiveDoctors(ctx context.Context) ([]Doctor, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, name, specialization, email, phone,
		       calendly_new_patient_url, calendly_existing_patient_url, is_active
		FROM doctors
		WHERE is_active = true
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Doctor
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, d)
	}
	return result, rows.Err()
}

// Appointments

func (r *PgRepository) InsertAppointment(ctx context.Context, a Appointment) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO appointments (
			patient_id, doctor_id, calendly_event_uri, calendly_invitee_uri,
			appointment_time, end_time, status, cancel_url, reschedule_url, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
		ON CONFLICT (calendly_invitee_uri) DO NOTHING
		RETURNING `+appointmentColumns,
		a.PatientID, a.DoctorID, a.EventURI, a.InviteeURI,
		a.StartTime, a.EndTime, a.Status, a.CancelURL, a.RescheduleURL)

	created, err := scanAppointment(row)
	if err != nil {
		// No row returned means the invitee URI conflicted: the event was
		// already handled.
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, ErrDuplicateInvitee
		}
		return nil, fmt.Errorf("insert appointment: %w", err)
	}
	return created, nil
}

func (r *PgRepository) FindAppointmentByInviteeURI(ctx context.Context, inviteeURI string) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE calendly_invitee_uri = $1
	`, inviteeURI)
	return scanAppointment(row)
}

func (r *PgRepository) CancelAppointmentByInviteeURI(ctx context.Context, inviteeURI string) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE appointments
		SET status = $2
		WHERE calendly_invitee_uri = $1
	`, inviteeURI, StatusCanceled)
	if err != nil {
		return false, fmt.Errorf("cancel appointment: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Admin views

const appointmentDetailQuery = `
	SELECT a.id, a.patient_id, a.doctor_id, a.calendly_event_uri, a.calendly_invitee_uri,
	       a.appointment_time, a.end_time, a.status, a.cancel_url, a.reschedule_url,
	       a.reminder_sent_at, a.created_at,
	       p.first_name || ' ' || p.last_name AS patient_name,
	       p.email AS patient_email,
	       d.name AS doctor_name
	FROM appointments a
	JOIN patients p ON p.id = a.patient_id
	JOIN doctors d ON d.id = a.doctor_id`

func scanAppointmentDetail(rows pgx.Rows) (AppointmentDetail, error) {
	var det AppointmentDetail
	var startTime, endTime, reminderSentAt *time.Time

	err := rows.Scan(
		&det.ID, &det.PatientID, &det.DoctorID, &det.EventURI, &det.InviteeURI,
		&startTime, &endTime, &det.Status, &det.CancelURL, &det.RescheduleURL,
		&reminderSentAt, &det.CreatedAt,
		&det.PatientName, &det.PatientEmail, &det.DoctorName,
	)
	det.StartTime = startTime
	det.EndTime = endTime
	det.ReminderSentAt = reminderSentAt
	return det, err
}

func (r *PgRepository) ListAppointmentDetails(ctx context.Context) ([]AppointmentDetail, error) {
	rows, err := r.db.Query(ctx, appointmentDetailQuery+`
		ORDER BY a.appointment_time DESC NULLS LAST
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectDetails(rows)
}

func (r *PgRepository) ListAppointmentsByPatient(ctx context.Context, patientID string) ([]AppointmentDetail, error) {
	rows, err := r.db.Query(ctx, appointmentDetailQuery+`
		WHERE a.patient_id = $1
		ORDER BY a.appointment_time DESC NULLS LAST
	`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectDetails(rows)
}

func collectDetails(rows pgx.Rows) ([]AppointmentDetail, error) {
	var result []AppointmentDetail
	for rows.Next() {
		det, err := scanAppointmentDetail(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, det)
	}
	return result, rows.Err()
}

func (r *PgRepository) DoctorStats(ctx context.Context) ([]DoctorStat, error) {
	rows, err := r.db.Query(ctx, `
		SELECT d.name, d.specialization,
		       COUNT(a.id) AS total,
		       COUNT(a.id) FILTER (WHERE a.status = 'scheduled') AS scheduled,
		       COUNT(a.id) FILTER (WHERE a.status = 'canceled') AS canceled
		FROM doctors d
		LEFT JOIN appointments a ON a.doctor_id = d.id
		GROUP BY d.id, d.name, d.specialization
		ORDER BY d.id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []DoctorStat
	for rows.Next() {
		var s DoctorStat
		if err := rows.Scan(&s.DoctorName, &s.Specialization, &s.Total, &s.Scheduled, &s.Canceled); err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	return result, rows.Err()
}

// Reminder worker

func (r *PgRepository) FindUpcomingUnreminded(ctx context.Context, from, until time.Time) ([]AppointmentDetail, error) {
	rows, err := r.db.Query(ctx, appointmentDetailQuery+`
		WHERE a.status = 'scheduled'
		  AND a.reminder_sent_at IS NULL
		  AND a.appointment_time >= $1
		  AND a.appointment_time < $2
		ORDER BY a.appointment_time
	`, from, until)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectDetails(rows)
}

func (r *PgRepository) MarkReminderSent(ctx context.Context, appointmentID int64) error {
	_, err := r.db.Exec(ctx, `
		UPDATE appointments
		SET reminder_sent_at = now()
		WHERE id = $1
	`, appointmentID)
	if err != nil {
		return fmt.Errorf("mark reminder sent: %w", err)
	}
	return nil
}
