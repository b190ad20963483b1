package clinic

import (
	"strings"
	"time"
)

type AppointmentStatus string

const (
	StatusScheduled AppointmentStatus = "scheduled"
	StatusCanceled  AppointmentStatus = "canceled"
)

// VisitType classifies which of a doctor's booking links an invitee used.
// It only affects which confirmation template the patient receives.
type VisitType string

const (
	VisitNew      VisitType = "new"
	VisitExisting VisitType = "existing"
)

// Sentinel values written into patient records created from a webhook, where
// only name and email are known. Downstream consumers detect incomplete
// records by these exact values, so they must not change.
const (
	SentinelText         = "To be updated"
	SentinelNotSpecified = "Not specified"
	SentinelState        = "NA"
	SentinelZipCode      = "00000"
	SentinelVisitReason  = "Scheduled via Calendly"
)

// SentinelDOB is the placeholder date of birth for minimal patient records.
var SentinelDOB = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

type Patient struct {
	ID string

	FirstName     string
	MiddleInitial string
	LastName      string
	DateOfBirth   time.Time
	Gender        string

	Email     string
	HomePhone string
	CellPhone string

	StreetAddress string
	City          string
	State         string
	ZipCode       string

	EmergencyContactName         string
	EmergencyContactRelationship string
	EmergencyContactPhone        string

	PrimaryInsuranceCompany   string
	PrimaryMemberID           string
	PrimaryGroupNumber        string
	SecondaryInsuranceCompany string
	SecondaryMemberID         string
	SecondaryGroupNumber      string

	PrimaryReasonForVisit string
	SymptomDuration       string
	CurrentSymptoms       []string

	HasKnownAllergies         string
	KnownAllergiesList        string
	HadAllergyTesting         string
	AllergyTestingDate        string
	HadSevereAllergicReaction string

	CurrentMedications        string
	CurrentAllergyMedications []string

	MedicalConditions    []string
	FamilyAllergyHistory string

	UnderstandsMedicationInstructions string

	// NeedsIntake marks records created from a booking before the patient
	// filled in the registration form.
	NeedsIntake bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// FullName joins the name parts for display and email templates.
func (p Patient) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

type Doctor struct {
	ID             int
	Name           string
	Specialization string
	Email          string
	Phone          string

	// A doctor exposes two distinct Calendly booking links. Event resolution
	// matches one specific link, so the pair must stay distinguishable.
	NewPatientURL      string
	ExistingPatientURL string

	Active bool
}

type Appointment struct {
	ID        int64
	PatientID string
	DoctorID  int

	// Calendly identifiers. The invitee URI is the only correlation id shared
	// by creation and cancellation events and is unique across appointments.
	EventURI   string
	InviteeURI string

	StartTime *time.Time
	EndTime   *time.Time
	Status    AppointmentStatus

	CancelURL      string
	RescheduleURL  string
	ReminderSentAt *time.Time

	CreatedAt time.Time
}

// AppointmentDetail is the admin-facing join of an appointment with its
// patient and doctor names.
type AppointmentDetail struct {
	Appointment
	PatientName  string
	PatientEmail string
	DoctorName   string
}

// DoctorStat aggregates appointment counts per doctor.
type DoctorStat struct {
	DoctorName     string
	Specialization string
	Total          int
	Scheduled      int
	Canceled       int
}

// SplitDisplayName splits an invitee display name into first name (first
// token) and last name (remaining tokens joined).
func SplitDisplayName(displayName string) (first, last string) {
	parts := strings.Fields(displayName)
	if len(parts) == 0 {
		return "", ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}

// NormalizeEmail case-folds an email address for lookups. At most one patient
// record exists per normalized address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
