package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medicare-wellness/clinic-scheduling/internal/clinic"
	"github.com/medicare-wellness/clinic-scheduling/internal/db"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	if err := seedDoctors(context.Background(), pool); err != nil {
		log.Fatalf("seed doctors: %v", err)
	}
	if err := seedPatients(context.Background(), pool, 200); err != nil {
		log.Fatalf("seed patients: %v", err)
	}

	log.Println("seed complete")
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool) error {
	doctors := []clinic.Doctor{
		{
			Name:               "Dr. Sarah Chen",
			Specialization:     "Allergy & Immunology",
			Email:              "s.chen@medicare-wellness.example",
			Phone:              "555-0110",
			NewPatientURL:      "https://calendly.com/dr-chen/new-patient",
			ExistingPatientURL: "https://calendly.com/dr-chen/follow-up",
		},
		{
			Name:               "Dr. Miguel Alvarez",
			Specialization:     "Pediatric Allergy",
			Email:              "m.alvarez@medicare-wellness.example",
			Phone:              "555-0111",
			NewPatientURL:      "https://calendly.com/dr-alvarez/new-patient",
			ExistingPatientURL: "https://calendly.com/dr-alvarez/follow-up",
		},
		{
			Name:               "Dr. Priya Nair",
			Specialization:     "Asthma & Respiratory",
			Email:              "p.nair@medicare-wellness.example",
			Phone:              "555-0112",
			NewPatientURL:      "https://calendly.com/dr-nair/new-patient",
			ExistingPatientURL: "https://calendly.com/dr-nair/follow-up",
		},
	}

	log.Printf("seeding %d doctors", len(doctors))

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, d := range doctors {
		_, err := tx.Exec(ctx, `
			INSERT INTO doctors (name, specialization, email, phone, calendly_new_patient_url, calendly_existing_patient_url, is_active, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, true, now(), now())
			ON CONFLICT (calendly_new_patient_url) DO NOTHING
		`, d.Name, d.Specialization, d.Email, d.Phone, d.NewPatientURL, d.ExistingPatientURL)
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Println("doctors seeded")
	return nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d patients", count)

	repo := clinic.NewPgRepository(pool)

	yesNo := []string{"Yes", "No"}

	for i := 0; i < count; i++ {
		person := gofakeit.Person()
		addr := gofakeit.Address()

		p := clinic.Patient{
			ID:          uuid.NewString(),
			FirstName:   person.FirstName,
			LastName:    person.LastName,
			DateOfBirth: gofakeit.DateRange(time.Date(1940, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC)),
			Gender:      gofakeit.Gender(),

			Email:     gofakeit.Email(),
			HomePhone: gofakeit.Phone(),
			CellPhone: gofakeit.Phone(),

			StreetAddress: addr.Street,
			City:          addr.City,
			State:         addr.State,
			ZipCode:       addr.Zip,

			EmergencyContactName:         gofakeit.Name(),
			EmergencyContactRelationship: gofakeit.RandomString([]string{"Spouse", "Parent", "Sibling", "Friend"}),
			EmergencyContactPhone:        gofakeit.Phone(),

			PrimaryInsuranceCompany: gofakeit.Company(),
			PrimaryMemberID:         gofakeit.LetterN(2) + gofakeit.DigitN(8),
			PrimaryGroupNumber:      gofakeit.DigitN(6),

			PrimaryReasonForVisit: gofakeit.RandomString([]string{"Seasonal allergies", "Food allergy evaluation", "Asthma follow-up", "Hives", "Allergy testing"}),
			SymptomDuration:       gofakeit.RandomString([]string{"Less than a week", "1-4 weeks", "1-6 months", "Over a year"}),
			CurrentSymptoms:       []string{gofakeit.RandomString([]string{"Sneezing", "Congestion", "Itchy eyes", "Wheezing", "Rash"})},

			HasKnownAllergies:         gofakeit.RandomString(yesNo),
			HadAllergyTesting:         gofakeit.RandomString(yesNo),
			HadSevereAllergicReaction: gofakeit.RandomString(yesNo),

			CurrentMedications:        gofakeit.RandomString([]string{"None", "Cetirizine", "Loratadine", "Albuterol inhaler"}),
			CurrentAllergyMedications: []string{},
			MedicalConditions:         []string{},

			UnderstandsMedicationInstructions: "Yes",
		}

		if _, err := repo.UpsertPatient(ctx, p); err != nil {
			return err
		}

		if (i+1)%50 == 0 {
			log.Printf("patients seeded: %d/%d", i+1, count)
		}
	}

	log.Println("patients seeded")
	return nil
}
