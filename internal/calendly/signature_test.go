package calendly

import (
	"testing"
	"time"
)

func TestVerifySignatureRoundTrip(t *testing.T) {
	secret := "whsec_test"
	body := []byte(`{"event":"invitee.created"}`)
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	header := SignPayload(body, secret, now)

	ok, outcome := VerifySignature(header, body, secret, now)
	if !ok || outcome != OutcomeValid {
		t.Fatalf("expected valid signature, got ok=%v outcome=%s", ok, outcome)
	}
}

func TestVerifySignatureTamperedBody(t *testing.T) {
	secret := "whsec_test"
	body := []byte(`{"event":"invitee.created"}`)
	now := time.Now()

	header := SignPayload(body, secret, now)
	tampered := []byte(`{"event":"invitee.canceled"}`)

	ok, outcome := VerifySignature(header, tampered, secret, now)
	if ok || outcome != OutcomeMismatch {
		t.Fatalf("expected mismatch for tampered body, got ok=%v outcome=%s", ok, outcome)
	}
}

func TestVerifySignatureStaleTimestamp(t *testing.T) {
	secret := "whsec_test"
	body := []byte(`{}`)
	now := time.Now()

	header := SignPayload(body, secret, now.Add(-301*time.Second))

	ok, outcome := VerifySignature(header, body, secret, now)
	if ok || outcome != OutcomeStaleTimestamp {
		t.Fatalf("expected stale timestamp rejection, got ok=%v outcome=%s", ok, outcome)
	}

	// Just inside the window still verifies.
	header = SignPayload(body, secret, now.Add(-299*time.Second))
	ok, outcome = VerifySignature(header, body, secret, now)
	if !ok {
		t.Fatalf("expected signature within window to verify, got outcome=%s", outcome)
	}
}

func TestVerifySignatureHeaderProblems(t *testing.T) {
	secret := "whsec_test"
	body := []byte(`{}`)
	now := time.Now()

	cases := []struct {
		name    string
		header  string
		outcome VerifyOutcome
	}{
		{"missing header", "", OutcomeMissingHeader},
		{"no keys", "garbage", OutcomeMalformedHeader},
		{"missing v1", "t=1700000000", OutcomeMalformedHeader},
		{"missing t", "v1=deadbeef", OutcomeMalformedHeader},
		{"non-numeric t", "t=abc,v1=deadbeef", OutcomeMalformedHeader},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ok, outcome := VerifySignature(tc.header, body, secret, now)
			if ok || outcome != tc.outcome {
				t.Fatalf("got ok=%v outcome=%s, want outcome=%s", ok, outcome, tc.outcome)
			}
		})
	}
}

func TestVerifySignatureBypassWithoutSecret(t *testing.T) {
	ok, outcome := VerifySignature("", []byte(`{}`), "", time.Now())
	if !ok || outcome != OutcomeBypassed {
		t.Fatalf("expected bypass when no secret configured, got ok=%v outcome=%s", ok, outcome)
	}
}
