package stafflinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Staffline HTTP API client. The agency comes from the
// credentials: a bearer token carries it, an API key belongs to one.
type Client struct {
	BaseURL     string
	BasePath    string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v0",
		Timeout:  10 * time.Second,
	}
}

// Candidate represents the API candidate model (partial).
type Candidate struct {
	ID           string   `json:"id"`
	FirstName    string   `json:"first_name"`
	LastName     string   `json:"last_name"`
	Phone        string   `json:"phone,omitempty"`
	City         string   `json:"city,omitempty"`
	Skills       []string `json:"skills"`
	Availability string   `json:"availability"`
}

// ClientAccount represents a staffing client (partial).
type ClientAccount struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ContactName string `json:"contact_name,omitempty"`
	Phone       string `json:"phone,omitempty"`
}

// Mission represents a client need.
type Mission struct {
	ID             string   `json:"id"`
	ClientID       string   `json:"client_id"`
	Title          string   `json:"title"`
	Location       string   `json:"location,omitempty"`
	Target         int      `json:"target"`
	RequiredSkills []string `json:"required_skills"`
	Channels       []string `json:"channels"`
	Status         string   `json:"status"`
}

type Pipeline struct {
	ID        string `json:"id"`
	MissionID string `json:"mission_id"`
	Status    string `json:"status"`
}

type Participant struct {
	ID               string `json:"id"`
	PipelineID       string `json:"pipeline_id"`
	CandidateID      string `json:"candidate_id"`
	OutreachStatus   string `json:"outreach_status"`
	ProposedToClient bool   `json:"proposed_to_client"`
	ClientValidated  bool   `json:"client_validated"`
	ClientRefused    bool   `json:"client_refused"`
	Visibility       string `json:"visibility"`
}

// ParticipantDetail is a participant with its candidate, as the agency sees it.
type ParticipantDetail struct {
	Participant
	Candidate Candidate `json:"candidate"`
}

type Quota struct {
	Validated int  `json:"validated"`
	Target    int  `json:"target"`
	Completed bool `json:"completed"`
}

type PipelineDetail struct {
	Pipeline     Pipeline            `json:"pipeline"`
	Mission      Mission             `json:"mission"`
	Participants []ParticipantDetail `json:"participants"`
	Quota        Quota               `json:"quota"`
}

type Delivery struct {
	Attempted int `json:"attempted"`
	Sent      int `json:"sent"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

type LaunchResult struct {
	Pipeline  Pipeline      `json:"pipeline"`
	Admitted  []Participant `json:"admitted"`
	AlreadyIn int           `json:"already_in"`
	Requested int           `json:"requested"`
	Fallback  bool          `json:"fallback"`
	Delivery  Delivery      `json:"delivery"`
}

type DecisionResult struct {
	Participant Participant `json:"participant"`
	Pipeline    Pipeline    `json:"pipeline"`
	Quota       *Quota      `json:"quota,omitempty"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	AgencyID   string         `json:"agency_id"`
	EntityID   string         `json:"entity_id"`
	EntityKind string         `json:"entity_kind"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

type Stats struct {
	ActivePipelines int `json:"active_pipelines"`
	MessagesSent    int `json:"messages_sent"`
	PendingReplies  int `json:"pending_replies"`
	Validated       int `json:"validated"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// CandidateInput is the payload for CreateCandidate.
type CandidateInput struct {
	FirstName    string   `json:"first_name"`
	LastName     string   `json:"last_name,omitempty"`
	Phone        string   `json:"phone,omitempty"`
	Email        string   `json:"email,omitempty"`
	City         string   `json:"city,omitempty"`
	Skills       []string `json:"skills,omitempty"`
	Availability string   `json:"availability,omitempty"`
}

// MissionInput is the payload for CreateMission.
type MissionInput struct {
	ClientID       string   `json:"client_id,omitempty"`
	ClientName     string   `json:"client_name,omitempty"`
	Title          string   `json:"title"`
	Location       string   `json:"location,omitempty"`
	Target         int      `json:"target,omitempty"`
	RequiredSkills []string `json:"required_skills,omitempty"`
	Channels       []string `json:"channels,omitempty"`
}

// CreateCandidate adds a candidate to the agency.
func (c *Client) CreateCandidate(ctx context.Context, in CandidateInput) (Candidate, error) {
	var resp Candidate
	err := c.do(ctx, http.MethodPost, "candidates", in, &resp)
	return resp, err
}

// ListCandidates lists candidates, optionally filtered by availability.
func (c *Client) ListCandidates(ctx context.Context, availability string) ([]Candidate, error) {
	endpoint := "candidates"
	if availability != "" {
		endpoint += "?availability=" + url.QueryEscape(availability)
	}
	var resp []Candidate
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// CreateClient adds a client.
func (c *Client) CreateClient(ctx context.Context, name, contact, phone string) (ClientAccount, error) {
	body := map[string]any{"name": name, "contact_name": contact, "phone": phone}
	var resp ClientAccount
	err := c.do(ctx, http.MethodPost, "clients", body, &resp)
	return resp, err
}

// CreateMission creates a mission and its pipeline.
func (c *Client) CreateMission(ctx context.Context, in MissionInput) (Mission, Pipeline, error) {
	var resp struct {
		Mission  Mission  `json:"mission"`
		Pipeline Pipeline `json:"pipeline"`
	}
	err := c.do(ctx, http.MethodPost, "missions", in, &resp)
	return resp.Mission, resp.Pipeline, err
}

// Pipeline fetches a pipeline with its participants and quota.
func (c *Client) Pipeline(ctx context.Context, id string) (PipelineDetail, error) {
	var resp PipelineDetail
	err := c.do(ctx, http.MethodGet, "pipelines/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// Launch shortlists candidates and sends the outreach.
func (c *Client) Launch(ctx context.Context, pipelineID string) (LaunchResult, error) {
	var resp LaunchResult
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("pipelines/%s/launch", url.PathEscape(pipelineID)), nil, &resp)
	return resp, err
}

// Propose shows a participant to the client.
func (c *Client) Propose(ctx context.Context, participantID string) (DecisionResult, error) {
	var resp DecisionResult
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("participants/%s/propose", url.PathEscape(participantID)), nil, &resp)
	return resp, err
}

// Validate records the client's validation of a proposed participant.
func (c *Client) Validate(ctx context.Context, participantID, comment string) (DecisionResult, error) {
	return c.decide(ctx, participantID, "validate", comment)
}

// Refuse records the client's refusal of a proposed participant.
func (c *Client) Refuse(ctx context.Context, participantID, comment string) (DecisionResult, error) {
	return c.decide(ctx, participantID, "refuse", comment)
}

func (c *Client) decide(ctx context.Context, participantID, verb, comment string) (DecisionResult, error) {
	var resp DecisionResult
	body := map[string]any{"comment": comment}
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("participants/%s/%s", url.PathEscape(participantID), verb), body, &resp)
	return resp, err
}

// Stats returns the agency's pipeline statistics.
func (c *Client) Stats(ctx context.Context) (Stats, error) {
	var resp Stats
	err := c.do(ctx, http.MethodGet, "stats", nil, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := "events"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	u := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, u, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var envelope struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &envelope) == nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	basePath := strings.Trim(c.BasePath, "/")
	base := strings.TrimRight(c.BaseURL, "/")
	if basePath == "" {
		return base
	}
	return base + "/" + basePath
}
