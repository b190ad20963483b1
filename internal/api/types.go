package api

import (
	"time"

	"github.com/medicare-wellness/clinic-scheduling/internal/clinic"
)

// PatientCreateRequest is the full registration form. Every field the clinic
// stores is named here so an unexpected key is ignored rather than silently
// persisted.
type PatientCreateRequest struct {
	FirstName     string `json:"first_name"`
	MiddleInitial string `json:"middle_initial"`
	LastName      string `json:"last_name"`
	DateOfBirth   string `json:"date_of_birth"`
	Gender        string `json:"gender"`

	Email     string `json:"email"`
	HomePhone string `json:"home_phone"`
	CellPhone string `json:"cell_phone"`

	StreetAddress string `json:"street_address"`
	City          string `json:"city"`
	State         string `json:"state"`
	ZipCode       string `json:"zip_code"`

	EmergencyContactName         string `json:"emergency_contact_name"`
	EmergencyContactRelationship string `json:"emergency_contact_relationship"`
	EmergencyContactPhone        string `json:"emergency_contact_phone"`

	PrimaryInsuranceCompany   string `json:"primary_insurance_company"`
	PrimaryMemberID           string `json:"primary_member_id"`
	PrimaryGroupNumber        string `json:"primary_group_number"`
	SecondaryInsuranceCompany string `json:"secondary_insurance_company"`
	SecondaryMemberID         string `json:"secondary_member_id"`
	SecondaryGroupNumber      string `json:"secondary_group_number"`

	PrimaryReasonForVisit string   `json:"primary_reason_for_visit"`
	SymptomDuration       string   `json:"symptom_duration"`
	CurrentSymptoms       []string `json:"current_symptoms"`

	HasKnownAllergies         string `json:"has_known_allergies"`
	KnownAllergiesList        string `json:"known_allergies_list"`
	HadAllergyTesting         string `json:"had_allergy_testing"`
	AllergyTestingDate        string `json:"allergy_testing_date"`
	HadSevereAllergicReaction string `json:"had_severe_allergic_reaction"`

	CurrentMedications        string   `json:"current_medications"`
	CurrentAllergyMedications []string `json:"current_allergy_medications"`

	MedicalConditions    []string `json:"medical_conditions"`
	FamilyAllergyHistory string   `json:"family_allergy_history"`

	UnderstandsMedicationInstructions string `json:"understands_medication_instructions"`
}

const dateOfBirthLayout = "2006-01-02"

// Validate reports the required fields the form left blank.
func (r PatientCreateRequest) Validate() []string {
	required := []struct {
		name  string
		value string
	}{
		{"first_name", r.FirstName},
		{"last_name", r.LastName},
		{"date_of_birth", r.DateOfBirth},
		{"gender", r.Gender},
		{"email", r.Email},
		{"cell_phone", r.CellPhone},
		{"street_address", r.StreetAddress},
		{"city", r.City},
		{"state", r.State},
		{"zip_code", r.ZipCode},
		{"emergency_contact_name", r.EmergencyContactName},
		{"emergency_contact_phone", r.EmergencyContactPhone},
		{"primary_insurance_company", r.PrimaryInsuranceCompany},
		{"primary_member_id", r.PrimaryMemberID},
		{"primary_reason_for_visit", r.PrimaryReasonForVisit},
	}

	var missing []string
	for _, f := range required {
		if f.value == "" {
			missing = append(missing, f.name)
		}
	}
	return missing
}

func (r PatientCreateRequest) toPatient() (clinic.Patient, error) {
	dob, err := time.Parse(dateOfBirthLayout, r.DateOfBirth)
	if err != nil {
		return clinic.Patient{}, err
	}

	return clinic.Patient{
		FirstName:     r.FirstName,
		MiddleInitial: r.MiddleInitial,
		LastName:      r.LastName,
		DateOfBirth:   dob,
		Gender:        r.Gender,

		Email:     clinic.NormalizeEmail(r.Email),
		HomePhone: r.HomePhone,
		CellPhone: r.CellPhone,

		StreetAddress: r.StreetAddress,
		City:          r.City,
		State:         r.State,
		ZipCode:       r.ZipCode,

		EmergencyContactName:         r.EmergencyContactName,
		EmergencyContactRelationship: r.EmergencyContactRelationship,
		EmergencyContactPhone:        r.EmergencyContactPhone,

		PrimaryInsuranceCompany:   r.PrimaryInsuranceCompany,
		PrimaryMemberID:           r.PrimaryMemberID,
		PrimaryGroupNumber:        r.PrimaryGroupNumber,
		SecondaryInsuranceCompany: r.SecondaryInsuranceCompany,
		SecondaryMemberID:         r.SecondaryMemberID,
		SecondaryGroupNumber:      r.SecondaryGroupNumber,

		PrimaryReasonForVisit: r.PrimaryReasonForVisit,
		SymptomDuration:       r.SymptomDuration,
		CurrentSymptoms:       emptyIfNil(r.CurrentSymptoms),

		HasKnownAllergies:         r.HasKnownAllergies,
		KnownAllergiesList:        r.KnownAllergiesList,
		HadAllergyTesting:         r.HadAllergyTesting,
		AllergyTestingDate:        r.AllergyTestingDate,
		HadSevereAllergicReaction: r.HadSevereAllergicReaction,

		CurrentMedications:        r.CurrentMedications,
		CurrentAllergyMedications: emptyIfNil(r.CurrentAllergyMedications),

		MedicalConditions:    emptyIfNil(r.MedicalConditions),
		FamilyAllergyHistory: r.FamilyAllergyHistory,

		UnderstandsMedicationInstructions: r.UnderstandsMedicationInstructions,
	}, nil
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

type PatientResponse struct {
	ID          string `json:"id"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Email       string `json:"email"`
	NeedsIntake bool   `json:"needs_intake"`
}

func toPatientResponse(p clinic.Patient) PatientResponse {
	return PatientResponse{
		ID:          p.ID,
		FirstName:   p.FirstName,
		LastName:    p.LastName,
		Email:       p.Email,
		NeedsIntake: p.NeedsIntake,
	}
}

type VerifyPatientRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
}

type VerifyPatientResponse struct {
	Exists      bool   `json:"exists"`
	PatientID   string `json:"patient_id,omitempty"`
	NeedsIntake bool   `json:"needs_intake,omitempty"`
}

type DoctorResponse struct {
	ID                 int    `json:"id"`
	Name               string `json:"name"`
	Specialization     string `json:"specialization"`
	NewPatientURL      string `json:"new_patient_url"`
	ExistingPatientURL string `json:"existing_patient_url"`
}

func toDoctorResponse(d clinic.Doctor) DoctorResponse {
	return DoctorResponse{
		ID:                 d.ID,
		Name:               d.Name,
		Specialization:     d.Specialization,
		NewPatientURL:      d.NewPatientURL,
		ExistingPatientURL: d.ExistingPatientURL,
	}
}

type AppointmentDetailResponse struct {
	ID           int64      `json:"id"`
	PatientName  string     `json:"patient_name"`
	PatientEmail string     `json:"patient_email"`
	DoctorName   string     `json:"doctor_name"`
	StartTime    *time.Time `json:"start_time"`
	EndTime      *time.Time `json:"end_time"`
	Status       string     `json:"status"`
}

func toAppointmentDetailResponse(d clinic.AppointmentDetail) AppointmentDetailResponse {
	return AppointmentDetailResponse{
		ID:           d.ID,
		PatientName:  d.PatientName,
		PatientEmail: d.PatientEmail,
		DoctorName:   d.DoctorName,
		StartTime:    d.StartTime,
		EndTime:      d.EndTime,
		Status:       string(d.Status),
	}
}

type DoctorStatResponse struct {
	DoctorName     string `json:"doctor_name"`
	Specialization string `json:"specialization"`
	Total          int    `json:"total"`
	Scheduled      int    `json:"scheduled"`
	Canceled       int    `json:"canceled"`
}

type RecommendRequest struct {
	Symptoms string `json:"symptoms"`
}

type ChatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}
