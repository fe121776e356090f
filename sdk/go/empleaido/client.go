package empleaido

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"
)

// DefaultHTTPTimeout defines the timeout used by clients created without a
// custom http.Client.
const DefaultHTTPTimeout = 15 * time.Second

// Client wraps the HTTP interactions with the Empleaido REST API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

// Activation mirrors the persisted onboarding state of one user/agent pair.
type Activation struct {
	ActivationID     string      `json:"activation_id"`
	UserID           string      `json:"user_id"`
	AgentID          string      `json:"agent_id"`
	CurrentPhase     string      `json:"current_phase"`
	MessagesInPhase  int         `json:"messages_in_phase"`
	StartedAt        time.Time   `json:"started_at"`
	CompletedAt      *time.Time  `json:"completed_at,omitempty"`
	Preferences      Preferences `json:"preferences"`
	BootstrapCleared bool        `json:"bootstrap_cleared"`
	Version          int64       `json:"version"`
}

// Preferences holds what the agent learned about the user.
type Preferences struct {
	Language           string   `json:"language,omitempty"`
	Formality          string   `json:"formality,omitempty"`
	ProactivityLevel   string   `json:"proactivity_level,omitempty"`
	CommunicationStyle string   `json:"communication_style,omitempty"`
	WorkType           string   `json:"work_type,omitempty"`
	DomainRegime       string   `json:"domain_regime,omitempty"`
	Confirmed          []string `json:"confirmed,omitempty"`
}

// Message is a chat message addressed to an activation. Either ActivationID
// or the UserID/AgentID pair must be set.
type Message struct {
	ActivationID string `json:"activation_id,omitempty"`
	UserID       string `json:"user_id,omitempty"`
	AgentID      string `json:"agent_id,omitempty"`
	Message      string `json:"message"`
}

// Reply is the agent's answer to a message.
type Reply struct {
	ActivationID string `json:"activation_id"`
	Phase        string `json:"phase"`
	Reply        string `json:"reply"`
	Transitioned bool   `json:"transitioned"`
	Intent       string `json:"intent,omitempty"`
}

// Skill describes one catalog entry.
type Skill struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Status      string `json:"status"`
	Critical    bool   `json:"critical"`
}

// AgentSkills groups an agent's native and locked skills.
type AgentSkills struct {
	Profile struct {
		AgentID     string `json:"agent_id"`
		DisplayName string `json:"display_name"`
	} `json:"profile"`
	Native []Skill `json:"native"`
	Locked []Skill `json:"locked"`
}

// SkillRequest asks the gate to validate or execute a skill.
type SkillRequest struct {
	ActivationID string         `json:"activation_id,omitempty"`
	UserID       string         `json:"user_id"`
	AgentID      string         `json:"agent_id"`
	Skill        string         `json:"skill"`
	Input        map[string]any `json:"input,omitempty"`
	Tier         string         `json:"tier,omitempty"`
}

// Verdict is the admission decision for a skill request.
type Verdict struct {
	Allowed           bool     `json:"allowed"`
	Outcome           string   `json:"outcome"`
	Reason            string   `json:"reason,omitempty"`
	ReasonCode        string   `json:"reason_code,omitempty"`
	AlternativeSkills []string `json:"alternative_skills,omitempty"`
	Message           string   `json:"message,omitempty"`
}

// ExecutionResult is returned by ExecuteSkill. Denied requests are reported
// as a Verdict with Allowed=false rather than as an error.
type ExecutionResult struct {
	Verdict
	RequiresConfirmation bool       `json:"requires_confirmation"`
	ConfirmationID       string     `json:"confirmation_id,omitempty"`
	ExpiresAt            *time.Time `json:"expires_at,omitempty"`
	Result               *Output    `json:"result,omitempty"`
}

// Output is what a skill run produced.
type Output struct {
	Success bool   `json:"success"`
	Output  string `json:"output,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Confirmation is the resolution of a critical skill result. Result is only
// set once the user approved it.
type Confirmation struct {
	ID     string  `json:"id"`
	Status string  `json:"status"`
	Result *Output `json:"result,omitempty"`
}

// APIError represents server side validation or internal errors.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
	Retryable  bool   `json:"retryable"`

	verdict *ExecutionResult
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("empleaido api error (%d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("empleaido api error (%d): %s", e.StatusCode, e.Message)
}

// NewClient instantiates a client for the Empleaido API. When httpClient is
// nil, a default client with a sensible timeout is used.
func NewClient(rawURL string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}, nil
}

// Activate starts onboarding for the pair, or returns the existing activation.
func (c *Client) Activate(ctx context.Context, userID, agentID string) (Activation, error) {
	var out Activation
	body := map[string]string{"user_id": userID, "agent_id": agentID}
	if err := c.send(ctx, http.MethodPost, "/api/v1/activations", body, &out); err != nil {
		return Activation{}, err
	}
	return out, nil
}

// GetActivation fetches an activation by identifier.
func (c *Client) GetActivation(ctx context.Context, activationID string) (Activation, error) {
	var out Activation
	if err := c.send(ctx, http.MethodGet, "/api/v1/activations/"+url.PathEscape(activationID), nil, &out); err != nil {
		return Activation{}, err
	}
	return out, nil
}

// SendMessage delivers a chat message and returns the agent's reply.
func (c *Client) SendMessage(ctx context.Context, msg Message) (Reply, error) {
	var out Reply
	if err := c.send(ctx, http.MethodPost, "/api/v1/messages", msg, &out); err != nil {
		return Reply{}, err
	}
	return out, nil
}

// ListSkills returns the catalog of a single agent.
func (c *Client) ListSkills(ctx context.Context, agentID string) (AgentSkills, error) {
	var out AgentSkills
	endpoint := "/api/v1/skills?agent_id=" + url.QueryEscape(agentID)
	if err := c.send(ctx, http.MethodGet, endpoint, nil, &out); err != nil {
		return AgentSkills{}, err
	}
	return out, nil
}

// ValidateSkill asks the gate for a verdict without executing anything.
func (c *Client) ValidateSkill(ctx context.Context, req SkillRequest) (Verdict, error) {
	var out Verdict
	if err := c.send(ctx, http.MethodPost, "/api/v1/skills/validate", req, &out); err != nil {
		return Verdict{}, err
	}
	return out, nil
}

// ExecuteSkill runs a skill through the gate.
func (c *Client) ExecuteSkill(ctx context.Context, req SkillRequest) (ExecutionResult, error) {
	var out ExecutionResult
	err := c.send(ctx, http.MethodPost, "/api/v1/skills/execute", req, &out)
	if apiErr, ok := err.(*APIError); ok && apiErr.verdict != nil {
		return *apiErr.verdict, nil
	}
	if err != nil {
		return ExecutionResult{}, err
	}
	return out, nil
}

// ResolveConfirmation approves or rejects a pending critical result.
func (c *Client) ResolveConfirmation(ctx context.Context, confirmationID string, approve bool) (Confirmation, error) {
	var out Confirmation
	endpoint := "/api/v1/confirmations/" + url.PathEscape(confirmationID)
	if err := c.send(ctx, http.MethodPost, endpoint, map[string]bool{"approve": approve}, &out); err != nil {
		return Confirmation{}, err
	}
	return out, nil
}

func (c *Client) send(ctx context.Context, method, endpoint string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	ref, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("parse endpoint: %w", err)
	}
	ref.Path = path.Join(c.baseURL.Path, ref.Path)
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.ResolveReference(ref).String(), body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var envelope struct {
			Error *APIError `json:"error"`
		}
		envelope.Error = apiErr
		if err := json.Unmarshal(data, &envelope); err == nil && apiErr.Code == "" {
			// 执行被拒绝时服务端返回判定本身而不是错误信封。
			var denied ExecutionResult
			if json.Unmarshal(data, &denied) == nil && denied.Outcome != "" {
				apiErr.Code = denied.ReasonCode
				apiErr.Message = denied.Reason
				apiErr.verdict = &denied
			}
		}
		if apiErr.Message == "" {
			apiErr.Message = string(bytes.TrimSpace(data))
		}
		return apiErr
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
