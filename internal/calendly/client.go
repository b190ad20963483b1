package calendly

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/medicare-wellness/clinic-scheduling/pkg/logging"
)

const DefaultBaseURL = "https://api.calendly.com"

// Client is a minimal Calendly API client covering event-type lookups and
// webhook subscription management. Every call carries the client timeout so a
// slow upstream cannot stall a webhook request.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	logger     *logging.Logger
}

func NewClient(token string, timeout time.Duration, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.Default()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    DefaultBaseURL,
		token:      token,
		logger:     logger,
	}
}

// WithBaseURL overrides the API base URL. Used by tests.
func (c *Client) WithBaseURL(baseURL string) *Client {
	c.baseURL = baseURL
	return c
}

// EventType is the subset of a Calendly event type the resolver needs.
type EventType struct {
	Name          string `json:"name"`
	SchedulingURL string `json:"scheduling_url"`
}

// WebhookSubscription identifies one registered webhook endpoint.
type WebhookSubscription struct {
	URI         string `json:"uri"`
	CallbackURL string `json:"callback_url"`
}

// WebhookEvents are the event kinds this system subscribes to.
var WebhookEvents = []string{"invitee.created", "invitee.canceled"}

func (c *Client) do(ctx context.Context, method, url string, body any, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("calendly request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return resp.StatusCode, fmt.Errorf("calendly returned %d: %s", resp.StatusCode, bytes.TrimSpace(data))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

// GetEventType fetches event-type details by its URI. The URI comes from the
// webhook payload and is absolute.
func (c *Client) GetEventType(ctx context.Context, eventTypeURI string) (*EventType, error) {
	var wrapper struct {
		Resource EventType `json:"resource"`
	}
	if _, err := c.do(ctx, http.MethodGet, eventTypeURI, nil, &wrapper); err != nil {
		return nil, fmt.Errorf("fetch event type: %w", err)
	}
	return &wrapper.Resource, nil
}

// CurrentUserOrganization returns the organization URI of the API token's
// user, required for webhook subscription calls.
func (c *Client) CurrentUserOrganization(ctx context.Context) (string, error) {
	var wrapper struct {
		Resource struct {
			CurrentOrganization string `json:"current_organization"`
		} `json:"resource"`
	}
	if _, err := c.do(ctx, http.MethodGet, c.baseURL+"/users/me", nil, &wrapper); err != nil {
		return "", fmt.Errorf("fetch current user: %w", err)
	}
	return wrapper.Resource.CurrentOrganization, nil
}

func (c *Client) ListWebhookSubscriptions(ctx context.Context, organizationURI string) ([]WebhookSubscription, error) {
	var wrapper struct {
		Collection []WebhookSubscription `json:"collection"`
	}
	url := c.baseURL + "/webhook_subscriptions?scope=organization&organization=" + organizationURI
	if _, err := c.do(ctx, http.MethodGet, url, nil, &wrapper); err != nil {
		return nil, fmt.Errorf("list webhook subscriptions: %w", err)
	}
	return wrapper.Collection, nil
}

func (c *Client) CreateWebhookSubscription(ctx context.Context, organizationURI, callbackURL string) error {
	body := map[string]any{
		"url":          callbackURL,
		"events":       WebhookEvents,
		"organization": organizationURI,
		"scope":        "organization",
	}

	status, err := c.do(ctx, http.MethodPost, c.baseURL+"/webhook_subscriptions", body, nil)
	if status == http.StatusConflict {
		// A subscription for this URL already exists.
		c.logger.Info("webhook subscription already exists", "callback_url", callbackURL)
		return nil
	}
	if err != nil {
		return fmt.Errorf("create webhook subscription: %w", err)
	}
	return nil
}

func (c *Client) DeleteWebhookSubscription(ctx context.Context, subscriptionURI string) error {
	if _, err := c.do(ctx, http.MethodDelete, subscriptionURI, nil, nil); err != nil {
		return fmt.Errorf("delete webhook subscription: %w", err)
	}
	return nil
}

// EnsureSubscription registers callbackURL for invitee events if it is not
// already registered. Safe to call on every startup.
func (c *Client) EnsureSubscription(ctx context.Context, callbackURL string) error {
	org, err := c.CurrentUserOrganization(ctx)
	if err != nil {
		return err
	}

	existing, err := c.ListWebhookSubscriptions(ctx, org)
	if err != nil {
		return err
	}
	for _, sub := range existing {
		if sub.CallbackURL == callbackURL {
			c.logger.Info("webhook subscription already registered", "callback_url", callbackURL)
			return nil
		}
	}

	if err := c.CreateWebhookSubscription(ctx, org, callbackURL); err != nil {
		return err
	}
	c.logger.Info("webhook subscription created", "callback_url", callbackURL)
	return nil
}
