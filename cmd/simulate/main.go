package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/medicare-wellness/clinic-scheduling/internal/calendly"
	"github.com/medicare-wellness/clinic-scheduling/internal/config"
)

// Fires synthetic signed Calendly webhook deliveries at a running server:
// creations, duplicate redeliveries and cancellations, then reports how the
// dispatcher answered each one.

type SimConfig struct {
	APIBaseURL     string
	Secret         string
	Events         int
	Workers        int
	DuplicateRatio float64
	CancelRatio    float64
	EventTypeURI   string
}

type Metrics struct {
	mu        sync.Mutex
	byStatus  map[string]int
	httpCodes map[int]int
	latencies []time.Duration
	errors    int
}

func (m *Metrics) Record(code int, status string, latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.byStatus == nil {
		m.byStatus = make(map[string]int)
		m.httpCodes = make(map[int]int)
	}
	m.httpCodes[code]++
	if status != "" {
		m.byStatus[status]++
	}
	m.latencies = append(m.latencies, latency)
}

func (m *Metrics) RecordError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors++
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("webhook simulator starting")

	cfg := loadSimConfig()

	log.Printf("config: base_url=%s events=%d workers=%d duplicate=%.2f cancel=%.2f",
		cfg.APIBaseURL, cfg.Events, cfg.Workers, cfg.DuplicateRatio, cfg.CancelRatio)

	client := &http.Client{Timeout: 10 * time.Second}
	metrics := &Metrics{}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < cfg.Workers; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))
			for range jobs {
				runScenario(client, cfg, metrics, rng)
			}
		}(w)
	}

	start := time.Now()
	for i := 0; i < cfg.Events; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	printReport(metrics, time.Since(start))
}

// runScenario sends one creation, then possibly a duplicate delivery of the
// same creation, then possibly the matching cancellation.
func runScenario(client *http.Client, cfg SimConfig, metrics *Metrics, rng *rand.Rand) {
	inviteeRef := "https://api.calendly.com/scheduled_events/sim/invitees/" + uuid.NewString()
	start := time.Now().Add(time.Duration(rng.Intn(72)) * time.Hour)

	created := creationBody(inviteeRef, cfg.EventTypeURI, start)
	deliver(client, cfg, metrics, created)

	if rng.Float64() < cfg.DuplicateRatio {
		deliver(client, cfg, metrics, created)
	}

	if rng.Float64() < cfg.CancelRatio {
		deliver(client, cfg, metrics, cancellationBody(inviteeRef))
	}
}

func deliver(client *http.Client, cfg SimConfig, metrics *Metrics, body []byte) {
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost,
		cfg.APIBaseURL+"/api/webhooks/calendly", bytes.NewReader(body))
	if err != nil {
		metrics.RecordError()
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if cfg.Secret != "" {
		req.Header.Set("Calendly-Webhook-Signature", calendly.SignPayload(body, cfg.Secret, time.Now()))
	}

	start := time.Now()
	resp, err := client.Do(req)
	latency := time.Since(start)
	if err != nil {
		metrics.RecordError()
		return
	}
	defer resp.Body.Close()

	var answer struct {
		Status string `json:"status"`
		Detail string `json:"detail"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&answer)

	status := answer.Status
	if status == "" {
		status = answer.Detail
	}
	metrics.Record(resp.StatusCode, status, latency)
}

func creationBody(inviteeRef, eventTypeURI string, start time.Time) []byte {
	end := start.Add(30 * time.Minute)
	body, _ := json.Marshal(map[string]any{
		"event": "invitee.created",
		"payload": map[string]any{
			"email":          fmt.Sprintf("sim-%s@example.com", uuid.NewString()[:8]),
			"name":           "Sim Patient",
			"uri":            inviteeRef,
			"cancel_url":     "https://calendly.com/cancellations/sim",
			"reschedule_url": "https://calendly.com/reschedulings/sim",
			"scheduled_event": map[string]any{
				"uri":        "https://api.calendly.com/scheduled_events/sim-" + uuid.NewString()[:8],
				"event_type": eventTypeURI,
				"start_time": start.UTC().Format(time.RFC3339),
				"end_time":   end.UTC().Format(time.RFC3339),
			},
		},
	})
	return body
}

func cancellationBody(inviteeRef string) []byte {
	body, _ := json.Marshal(map[string]any{
		"event": "invitee.canceled",
		"payload": map[string]any{
			"uri": inviteeRef,
		},
	})
	return body
}

func loadSimConfig() SimConfig {
	baseCfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load base config: %v", err)
	}

	secret := baseCfg.CalendlyWebhookSecret
	if !baseCfg.WebhookSecretConfigured() {
		secret = ""
		log.Println("no webhook secret configured, sending unsigned deliveries")
	}

	cfg := SimConfig{
		APIBaseURL:     getEnv("SIM_API_BASE_URL", "http://localhost:"+baseCfg.HTTPPort),
		Secret:         secret,
		Events:         getInt("SIM_EVENTS", 100),
		Workers:        getInt("SIM_WORKERS", 5),
		DuplicateRatio: getFloat("SIM_DUPLICATE_RATIO", 0.2),
		CancelRatio:    getFloat("SIM_CANCEL_RATIO", 0.3),
		EventTypeURI:   getEnv("SIM_EVENT_TYPE_URI", "https://api.calendly.com/event_types/sim"),
	}

	if cfg.Events <= 0 || cfg.Workers <= 0 {
		log.Fatal("SIM_EVENTS and SIM_WORKERS must be > 0")
	}
	return cfg
}

func printReport(m *Metrics, elapsed time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	total := len(m.latencies)

	fmt.Println("\nSIMULATION REPORT")
	fmt.Printf("Deliveries: %d in %s\n", total, elapsed.Round(time.Millisecond))
	if m.errors > 0 {
		fmt.Printf("Transport errors: %d\n", m.errors)
	}

	fmt.Println("\nHTTP codes:")
	for code, n := range m.httpCodes {
		fmt.Printf("  %d: %d\n", code, n)
	}

	fmt.Println("\nDispatcher outcomes:")
	statuses := make([]string, 0, len(m.byStatus))
	for s := range m.byStatus {
		statuses = append(statuses, s)
	}
	sort.Strings(statuses)
	for _, s := range statuses {
		fmt.Printf("  %-50s %d\n", s, m.byStatus[s])
	}

	if total > 0 {
		latencies := make([]time.Duration, total)
		copy(latencies, m.latencies)
		sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		p95 := latencies[total*95/100]
		if total*95/100 >= total {
			p95 = latencies[total-1]
		}
		fmt.Printf("\nLatency: avg=%s p50=%s p95=%s max=%s\n",
			(sum / time.Duration(total)).Round(time.Millisecond),
			latencies[total/2].Round(time.Millisecond),
			p95.Round(time.Millisecond),
			latencies[total-1].Round(time.Millisecond))
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
