package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/medicare-wellness/clinic-scheduling/internal/clinic"
	"github.com/medicare-wellness/clinic-scheduling/pkg/logging"
)

// Recommendation is the structured answer to a symptom description.
type Recommendation struct {
	DoctorName     string `json:"doctor_name"`
	Specialization string `json:"specialization"`
	BookingURL     string `json:"booking_url"`
	Reason         string `json:"reason"`
}

// ChatResult carries the reply plus the session id so the client can continue
// the conversation.
type ChatResult struct {
	SessionID string `json:"session_id"`
	Reply     string `json:"reply"`
}

// Service answers patient questions about the clinic. It never reads or
// writes patient records; the only state it keeps is the bounded per-session
// chat history.
type Service struct {
	llm    LLMClient
	memory SessionMemory
	logger *logging.Logger
}

func NewService(llm LLMClient, memory SessionMemory, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{llm: llm, memory: memory, logger: logger}
}

// Recommend asks the model to pick the best doctor for the described symptoms
// and returns its structured answer. The model is constrained to the given
// roster; an answer naming an unknown doctor is rejected.
func (s *Service) Recommend(ctx context.Context, symptoms string, doctors []clinic.Doctor) (*Recommendation, error) {
	system := fmt.Sprintf(
		"You are a scheduling assistant for MediCare Wellness Center. "+
			"Given a patient's symptoms, recommend exactly one doctor from this roster:\n%s\n"+
			"Respond with only a JSON object with keys doctor_name, specialization, booking_url "+
			"(the doctor's new patient link) and reason. No prose outside the JSON.",
		rosterSummary(doctors),
	)

	answer, err := s.llm.Complete(ctx, system, nil, "Symptoms: "+symptoms)
	if err != nil {
		return nil, err
	}

	var rec Recommendation
	if err := json.Unmarshal([]byte(stripCodeFence(answer)), &rec); err != nil {
		return nil, fmt.Errorf("assistant: unparseable recommendation %q: %w", answer, err)
	}

	for _, doc := range doctors {
		if doc.Name == rec.DoctorName {
			return &rec, nil
		}
	}
	return nil, fmt.Errorf("assistant: recommendation names unknown doctor %q", rec.DoctorName)
}

// Chat answers a free-form question, carrying the trimmed session history as
// context. A blank session id starts a fresh session.
func (s *Service) Chat(ctx context.Context, sessionID, query string, doctors []clinic.Doctor) (*ChatResult, error) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	history, err := s.memory.History(ctx, sessionID)
	if err != nil {
		// A lost history degrades the answer, it should not block it.
		s.logger.Warn("failed to load chat history", "session_id", sessionID, "error", err)
		history = nil
	}

	system := fmt.Sprintf(
		"You are a friendly assistant for MediCare Wellness Center, an allergy and immunology "+
			"clinic. Answer questions about the clinic, its doctors and booking. Doctors:\n%s\n"+
			"If asked for medical advice, recommend booking an appointment instead.",
		rosterSummary(doctors),
	)

	reply, err := s.llm.Complete(ctx, system, history, query)
	if err != nil {
		return nil, err
	}

	appendErr := s.memory.Append(ctx, sessionID,
		Message{Role: RoleUser, Content: query},
		Message{Role: RoleModel, Content: reply},
	)
	if appendErr != nil {
		s.logger.Warn("failed to store chat history", "session_id", sessionID, "error", appendErr)
	}

	return &ChatResult{SessionID: sessionID, Reply: reply}, nil
}

func rosterSummary(doctors []clinic.Doctor) string {
	var b strings.Builder
	for _, doc := range doctors {
		fmt.Fprintf(&b, "- %s (%s), new patients: %s, existing patients: %s\n",
			doc.Name, doc.Specialization, doc.NewPatientURL, doc.ExistingPatientURL)
	}
	return b.String()
}

// stripCodeFence unwraps answers the model insists on fencing as ```json.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
