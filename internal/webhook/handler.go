package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/medicare-wellness/clinic-scheduling/internal/calendly"
	"github.com/medicare-wellness/clinic-scheduling/internal/clinic"
	"github.com/medicare-wellness/clinic-scheduling/pkg/logging"
)

type doctorLister interface {
	ListActiveDoctors(ctx context.Context) ([]clinic.Doctor, error)
}

type doctorResolver interface {
	ResolveDoctor(ctx context.Context, eventTypeURI string, doctors []clinic.Doctor) *calendly.Resolution
}

type reconciler interface {
	FindOrCreatePatient(ctx context.Context, email, displayName string) (*clinic.Patient, error)
	CreateAppointment(ctx context.Context, params clinic.CreateAppointmentParams) (*clinic.Appointment, bool, error)
	CancelAppointment(ctx context.Context, inviteeURI string) (bool, error)
}

type confirmationMailer interface {
	SendConfirmation(ctx context.Context, patient clinic.Patient, doctor clinic.Doctor, appt clinic.Appointment, visit clinic.VisitType)
}

// SignatureHeader is the request header carrying the webhook signature.
const SignatureHeader = "Calendly-Webhook-Signature"

// Handler is the webhook dispatcher: verify the signature, parse the
// envelope, route on the event kind, reconcile, then fire the best-effort
// confirmation email. Only signature and parse failures produce non-200
// responses; expected no-match and no-op outcomes all acknowledge with 200 so
// Calendly does not treat them as delivery failures.
type Handler struct {
	secret     string // empty means verification is bypassed (dev mode)
	doctors    doctorLister
	resolver   doctorResolver
	reconciler reconciler
	mailer     confirmationMailer
	logger     *logging.Logger
	now        func() time.Time
}

func NewHandler(secret string, doctors doctorLister, resolver doctorResolver, rec reconciler, mailer confirmationMailer, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		secret:     secret,
		doctors:    doctors,
		resolver:   resolver,
		reconciler: rec,
		mailer:     mailer,
		logger:     logger,
		now:        time.Now,
	}
}

func (h *Handler) Handle(w http.ResponseWriter, r *http.Request) {
	// The dispatcher boundary: any panic in the event paths becomes a 500
	// without leaking partial state (each write below is its own commit).
	defer func() {
		if rec := recover(); rec != nil {
			h.logger.Error("panic while processing webhook", "panic", rec)
			respondError(w, http.StatusInternalServerError, "Error processing webhook")
		}
	}()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Could not read request body")
		return
	}

	ok, outcome := calendly.VerifySignature(r.Header.Get(SignatureHeader), body, h.secret, h.now())
	if outcome == calendly.OutcomeBypassed {
		h.logger.Warn("webhook secret not configured, skipping signature verification")
	}
	if !ok {
		h.logger.Error("rejected webhook signature", "outcome", string(outcome))
		respondError(w, http.StatusUnauthorized, "Invalid webhook signature")
		return
	}

	env, err := ParseEnvelope(body)
	if err != nil {
		h.logger.Error("failed to parse webhook payload", "error", err)
		respondError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	switch env.Event {
	case EventInviteeCreated:
		h.handleInviteeCreated(w, r.Context(), env.Payload)
	case EventInviteeCanceled:
		h.handleInviteeCanceled(w, r.Context(), env.Payload)
	default:
		h.logger.Info("unhandled event type", "event", env.Event)
		respondStatus(w, "Event type not handled")
	}
}

func (h *Handler) handleInviteeCreated(w http.ResponseWriter, ctx context.Context, payload Payload) {
	if payload.Email == "" || payload.URI == "" {
		respondError(w, http.StatusBadRequest, "Payload missing email or invitee URI")
		return
	}

	doctors, err := h.doctors.ListActiveDoctors(ctx)
	if err != nil {
		h.logger.Error("failed to load doctors", "error", err)
		respondError(w, http.StatusInternalServerError, "Error processing webhook")
		return
	}

	resolution := h.resolver.ResolveDoctor(ctx, payload.ScheduledEvent.EventType, doctors)

	patient, err := h.reconciler.FindOrCreatePatient(ctx, payload.Email, payload.Name)
	if err != nil {
		h.logger.Error("failed to find or create patient", "email", payload.Email, "error", err)
		respondError(w, http.StatusInternalServerError, "Error processing webhook")
		return
	}

	if resolution == nil {
		// Preserved behavior: acknowledge so Calendly does not redeliver,
		// even though no appointment was recorded.
		h.logger.Warn("no doctor found for event type", "event_type", payload.ScheduledEvent.EventType)
		respondStatus(w, "Webhook received but doctor not found")
		return
	}

	appt, created, err := h.reconciler.CreateAppointment(ctx, clinic.CreateAppointmentParams{
		PatientID:     patient.ID,
		DoctorID:      resolution.Doctor.ID,
		EventURI:      payload.ScheduledEvent.URI,
		InviteeURI:    payload.URI,
		StartTime:     payload.ScheduledEvent.StartTime,
		EndTime:       payload.ScheduledEvent.EndTime,
		CancelURL:     payload.CancelURL,
		RescheduleURL: payload.RescheduleURL,
	})
	if err != nil {
		h.logger.Error("failed to create appointment", "invitee_uri", payload.URI, "error", err)
		respondError(w, http.StatusInternalServerError, "Error processing webhook")
		return
	}

	if !created {
		respondStatus(w, "Appointment already recorded")
		return
	}

	// Appointment is durably committed; the email only affects logging.
	h.mailer.SendConfirmation(ctx, *patient, resolution.Doctor, *appt, resolution.Visit)

	respondStatus(w, "Appointment created and confirmation email sent")
}

func (h *Handler) handleInviteeCanceled(w http.ResponseWriter, ctx context.Context, payload Payload) {
	if payload.URI == "" {
		respondError(w, http.StatusBadRequest, "Payload missing invitee URI")
		return
	}

	found, err := h.reconciler.CancelAppointment(ctx, payload.URI)
	if err != nil {
		h.logger.Error("failed to cancel appointment", "invitee_uri", payload.URI, "error", err)
		respondError(w, http.StatusInternalServerError, "Error processing cancellation")
		return
	}

	if found {
		respondStatus(w, "Appointment canceled")
	} else {
		respondStatus(w, "Appointment not found")
	}
}

func respondStatus(w http.ResponseWriter, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
}

func respondError(w http.ResponseWriter, code int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"detail": detail})
}
