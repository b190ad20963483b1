package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/medicare-wellness/clinic-scheduling/internal/clinic"
	"github.com/medicare-wellness/clinic-scheduling/pkg/logging"
)

// ConfirmationMailer builds and sends appointment emails. Sends are
// best-effort: they run after the appointment is committed, carry their own
// timeout, and a failure is logged, never propagated to the webhook response.
type ConfirmationMailer struct {
	sender  EmailSender
	timeout time.Duration
	logger  *logging.Logger
}

func NewConfirmationMailer(sender EmailSender, timeout time.Duration, logger *logging.Logger) *ConfirmationMailer {
	if logger == nil {
		logger = logging.Default()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ConfirmationMailer{sender: sender, timeout: timeout, logger: logger}
}

// SendConfirmation emails the patient after a booking. The visit type picks
// the template variant: new patients get intake instructions, existing
// patients a shorter note.
func (m *ConfirmationMailer) SendConfirmation(ctx context.Context, patient clinic.Patient, doctor clinic.Doctor, appt clinic.Appointment, visit clinic.VisitType) {
	msg := EmailMessage{
		To:      patient.Email,
		ToName:  patient.FullName(),
		Subject: "Appointment Confirmation - " + doctor.Name,
		Body:    confirmationBody(patient, doctor, appt, visit),
	}
	m.send(ctx, msg, "confirmation")
}

// SendReminder emails the patient ahead of an upcoming appointment.
func (m *ConfirmationMailer) SendReminder(ctx context.Context, det clinic.AppointmentDetail) {
	msg := EmailMessage{
		To:      det.PatientEmail,
		ToName:  det.PatientName,
		Subject: "Appointment Reminder - " + det.DoctorName,
		Body: fmt.Sprintf(
			"Hi %s,\n\nThis is a reminder of your upcoming appointment with %s on %s at %s.\n\nNeed to make a change?\nReschedule: %s\nCancel: %s\n\nMediCare Wellness Center\n123 Health St, Wellness City\n",
			det.PatientName, det.DoctorName,
			formatDate(det.StartTime), formatClock(det.StartTime),
			det.RescheduleURL, det.CancelURL,
		),
	}
	m.send(ctx, msg, "reminder")
}

func (m *ConfirmationMailer) send(ctx context.Context, msg EmailMessage, kind string) {
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.timeout)
	defer cancel()

	if err := m.sender.Send(sendCtx, msg); err != nil {
		m.logger.Error("failed to send "+kind+" email", "to", msg.To, "error", err)
	}
}

func confirmationBody(patient clinic.Patient, doctor clinic.Doctor, appt clinic.Appointment, visit clinic.VisitType) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Hi %s,\n\n", patient.FullName())
	fmt.Fprintf(&b, "Your appointment with %s (%s) is confirmed.\n\n", doctor.Name, doctor.Specialization)
	fmt.Fprintf(&b, "Date: %s\n", formatDate(appt.StartTime))
	fmt.Fprintf(&b, "Time: %s - %s (%d minutes)\n\n", formatClock(appt.StartTime), formatClock(appt.EndTime), durationMinutes(appt.StartTime, appt.EndTime))

	if visit == clinic.VisitNew {
		b.WriteString("As a new patient, please arrive 15 minutes early and complete your registration form before your visit:\n")
		b.WriteString("- Bring a photo ID and your insurance card.\n")
		b.WriteString("- List any current medications and known allergies.\n")
		b.WriteString("- If you take antihistamines, check with us before stopping them for testing.\n\n")
	} else {
		b.WriteString("We have your records on file. If your insurance or medications changed since your last visit, let us know at check-in.\n\n")
	}

	b.WriteString("Need to make a change?\n")
	fmt.Fprintf(&b, "Reschedule: %s\n", appt.RescheduleURL)
	fmt.Fprintf(&b, "Cancel: %s\n\n", appt.CancelURL)
	b.WriteString("MediCare Wellness Center\n123 Health St, Wellness City\n")

	return b.String()
}

func formatDate(t *time.Time) string {
	if t == nil {
		return "TBD"
	}
	return t.Format("Monday, January 2, 2006")
}

func formatClock(t *time.Time) string {
	if t == nil {
		return "TBD"
	}
	return t.Format("3:04 PM")
}

func durationMinutes(start, end *time.Time) int {
	if start == nil || end == nil {
		return 60
	}
	return int(end.Sub(*start).Minutes())
}
