package panel

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	// requestTimeout bounds every outbound panel call so a stuck panel
	// cannot stall the worker pass.
	requestTimeout = 12 * time.Second
	// maxBodyBytes caps how much of a panel response is read.
	maxBodyBytes = 1 << 20
)

// Client negotiates the panel's actual request shape at call time. The
// panel's API dialect is not known in advance, so every operation walks an
// ordered candidate list of base URLs, key parameter names, and verb
// synonyms until one combination works.
type Client struct {
	httpClient *http.Client
}

// NewClient constructs a panel client with a bounded request timeout.
func NewClient() *Client {
	return &Client{httpClient: &http.Client{Timeout: requestTimeout}}
}

// UpsertParams carries the inputs for a create-or-edit user operation.
type UpsertParams struct {
	Username     string     // Panel login name.
	Password     string     // Panel password.
	BouquetIDs   []string   // Bouquet IDs to assign.
	ExpiresAt    *time.Time // Desired expiry, when known.
	DurationDays int        // Subscription length, when expiry is derived.
}

// Result describes a successful panel call.
type Result struct {
	Endpoint string         // Base URL that served the call.
	Verb     string         // Verb that succeeded.
	Raw      map[string]any // Decoded response payload.
}

// Info is the best-effort remote account state returned by AccountInfo.
type Info struct {
	Status    string     // Panel-reported status string, when present.
	ExpiresAt *time.Time // Panel-reported expiry, when present.
}

// ProtocolError reports that every endpoint/verb candidate was exhausted.
// It embeds the last panel-reported message so the job's lastError is
// diagnosable by an operator, plus the full attempt trail.
type ProtocolError struct {
	Op          string   // Logical operation name.
	LastMessage string   // Last panel-reported error text.
	Attempts    []string // One line per candidate tried.
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	if strings.TrimSpace(e.LastMessage) == "" {
		return fmt.Sprintf("panel: %s: no candidate endpoint accepted the request", e.Op)
	}
	return fmt.Sprintf("panel: %s: %s", e.Op, e.LastMessage)
}

// endpoint is one working (base URL, API key parameter) combination.
type endpoint struct {
	base     string
	keyParam string
}

// call performs one GET against a candidate URL and classifies the body.
func (c *Client) call(ctx context.Context, base string, params url.Values) (classification, map[string]any, string, error) {
	requestCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, errReq := http.NewRequestWithContext(requestCtx, http.MethodGet, base+"?"+params.Encode(), nil)
	if errReq != nil {
		return classifyNotJSON, nil, "", fmt.Errorf("build request: %w", errReq)
	}

	resp, errDo := c.httpClient.Do(req)
	if errDo != nil {
		panelRequestsTotal.WithLabelValues("transport_error").Inc()
		return classifyNotJSON, nil, "", errDo
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	body, errRead := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if errRead != nil {
		panelRequestsTotal.WithLabelValues("transport_error").Inc()
		return classifyNotJSON, nil, "", errRead
	}

	outcome, message := classify(body)
	panelRequestsTotal.WithLabelValues(outcome.String()).Inc()

	var payload map[string]any
	_ = json.Unmarshal(body, &payload)
	return outcome, payload, message, nil
}

// findEndpoint probes base URL shapes and API key parameter names until a
// combination answers with JSON that does not explicitly reject the key.
// Any JSON without an "invalid api key" message is accepted as a working
// combination; the panel's success schema is not standardized.
func (c *Client) findEndpoint(ctx context.Context, cfg Config, trail *[]string) (endpoint, error) {
	lastMessage := ""
	for _, base := range baseCandidates(cfg.BaseURL) {
		for _, keyParam := range apiKeyParams {
			params := url.Values{}
			params.Set(keyParam, cfg.APIKey)
			params.Set("sub", "info")

			outcome, _, message, errCall := c.call(ctx, base, params)
			*trail = append(*trail, attemptLine(base, keyParam, "info", outcome, message, errCall))
			if errCall != nil {
				continue
			}
			switch outcome {
			case classifySuccess:
				return endpoint{base: base, keyParam: keyParam}, nil
			case classifyAmbiguous:
				log.Warnf("panel: unconfirmed panel shape at %s (key param %q); proceeding", base, keyParam)
				return endpoint{base: base, keyParam: keyParam}, nil
			case classifyAuthFailure:
				lastMessage = message
			}
		}
	}
	return endpoint{}, &ProtocolError{Op: "discover", LastMessage: lastMessage, Attempts: append([]string(nil), *trail...)}
}

// tryVerbs walks a verb family against a working endpoint. It returns the
// first successful result, whether any failure suggested the remote entity
// already exists, and the last panel-reported message.
func (c *Client) tryVerbs(ctx context.Context, ep endpoint, cfg Config, verbs []string, base url.Values, trail *[]string) (*Result, bool, string) {
	exists := false
	lastMessage := ""
	for _, verb := range verbs {
		params := url.Values{}
		for key, values := range base {
			for _, value := range values {
				params.Add(key, value)
			}
		}
		params.Set(ep.keyParam, cfg.APIKey)
		params.Set("sub", verb)

		outcome, payload, message, errCall := c.call(ctx, ep.base, params)
		*trail = append(*trail, attemptLine(ep.base, ep.keyParam, verb, outcome, message, errCall))
		if errCall != nil {
			if lastMessage == "" {
				lastMessage = errCall.Error()
			}
			continue
		}
		if outcome == classifySuccess {
			return &Result{Endpoint: ep.base, Verb: verb, Raw: payload}, exists, message
		}
		if message != "" {
			lastMessage = message
		}
		if suggestsAlreadyExists(message) {
			exists = true
		}
	}
	return nil, exists, lastMessage
}

// UpsertUser provisions a user on the panel, creating it when absent and
// falling back to the edit-verb family when the panel reports the user
// already exists. Idempotent from the caller's point of view.
func (c *Client) UpsertUser(ctx context.Context, cfg Config, params UpsertParams) (*Result, error) {
	trail := make([]string, 0, 8)
	ep, errFind := c.findEndpoint(ctx, cfg, &trail)
	if errFind != nil {
		return nil, errFind
	}

	base := url.Values{}
	base.Set("username", params.Username)
	base.Set("password", params.Password)
	if len(params.BouquetIDs) > 0 {
		encoded, errMarshal := json.Marshal(params.BouquetIDs)
		if errMarshal == nil {
			base.Set("bouquet", string(encoded))
		}
	}
	if params.ExpiresAt != nil {
		base.Set("exp_date", strconv.FormatInt(params.ExpiresAt.Unix(), 10))
	} else if params.DurationDays > 0 {
		base.Set("duration", strconv.Itoa(params.DurationDays))
	}

	result, exists, createMessage := c.tryVerbs(ctx, ep, cfg, createVerbs, base, &trail)
	if result != nil {
		return result, nil
	}
	if exists {
		editResult, _, editMessage := c.tryVerbs(ctx, ep, cfg, editVerbs, base, &trail)
		if editResult != nil {
			return editResult, nil
		}
		if editMessage != "" {
			createMessage = editMessage
		}
	}
	return nil, &ProtocolError{Op: "upsert", LastMessage: createMessage, Attempts: trail}
}

// EditUser applies field changes to an existing panel user via the
// edit-verb family.
func (c *Client) EditUser(ctx context.Context, cfg Config, params UpsertParams) (*Result, error) {
	trail := make([]string, 0, 8)
	ep, errFind := c.findEndpoint(ctx, cfg, &trail)
	if errFind != nil {
		return nil, errFind
	}

	base := url.Values{}
	base.Set("username", params.Username)
	if params.Password != "" {
		base.Set("password", params.Password)
	}
	if len(params.BouquetIDs) > 0 {
		encoded, errMarshal := json.Marshal(params.BouquetIDs)
		if errMarshal == nil {
			base.Set("bouquet", string(encoded))
		}
	}
	if params.ExpiresAt != nil {
		base.Set("exp_date", strconv.FormatInt(params.ExpiresAt.Unix(), 10))
	}

	result, _, lastMessage := c.tryVerbs(ctx, ep, cfg, editVerbs, base, &trail)
	if result != nil {
		return result, nil
	}
	return nil, &ProtocolError{Op: "edit", LastMessage: lastMessage, Attempts: trail}
}

// Renew extends a panel user's expiry.
func (c *Client) Renew(ctx context.Context, cfg Config, username string, expiresAt time.Time) (*Result, error) {
	trail := make([]string, 0, 8)
	ep, errFind := c.findEndpoint(ctx, cfg, &trail)
	if errFind != nil {
		return nil, errFind
	}

	base := url.Values{}
	base.Set("username", username)
	base.Set("exp_date", strconv.FormatInt(expiresAt.Unix(), 10))

	result, _, lastMessage := c.tryVerbs(ctx, ep, cfg, renewVerbs, base, &trail)
	if result != nil {
		return result, nil
	}
	return nil, &ProtocolError{Op: "renew", LastMessage: lastMessage, Attempts: trail}
}

// Suspend disables a panel user.
func (c *Client) Suspend(ctx context.Context, cfg Config, username string) (*Result, error) {
	trail := make([]string, 0, 8)
	ep, errFind := c.findEndpoint(ctx, cfg, &trail)
	if errFind != nil {
		return nil, errFind
	}

	base := url.Values{}
	base.Set("username", username)

	result, _, lastMessage := c.tryVerbs(ctx, ep, cfg, suspendVerbs, base, &trail)
	if result != nil {
		return result, nil
	}
	return nil, &ProtocolError{Op: "suspend", LastMessage: lastMessage, Attempts: trail}
}

// AccountInfo fetches remote account state. Failure here is non-fatal to
// callers: "no additional info available", not an error worth retrying.
func (c *Client) AccountInfo(ctx context.Context, cfg Config, username string) (*Info, error) {
	trail := make([]string, 0, 8)
	ep, errFind := c.findEndpoint(ctx, cfg, &trail)
	if errFind != nil {
		return nil, errFind
	}

	base := url.Values{}
	base.Set("username", username)

	for _, verb := range infoVerbs {
		params := url.Values{}
		params.Set("username", username)
		params.Set(ep.keyParam, cfg.APIKey)
		params.Set("sub", verb)

		outcome, payload, message, errCall := c.call(ctx, ep.base, params)
		trail = append(trail, attemptLine(ep.base, ep.keyParam, verb, outcome, message, errCall))
		if errCall != nil {
			continue
		}
		if outcome == classifySuccess || (outcome == classifyAmbiguous && len(payload) > 0) {
			return parseInfo(payload), nil
		}
	}
	return nil, &ProtocolError{Op: "info", Attempts: trail}
}

// parseInfo extracts recognizable status and expiry fields from an info
// payload, looking both at the top level and under a user_info envelope.
func parseInfo(payload map[string]any) *Info {
	info := &Info{}
	sources := []map[string]any{payload}
	if nested, ok := payload["user_info"].(map[string]any); ok {
		sources = append(sources, nested)
	}
	if nested, ok := payload["data"].(map[string]any); ok {
		sources = append(sources, nested)
	}

	for _, source := range sources {
		if info.Status == "" {
			if status, ok := source["status"].(string); ok && strings.TrimSpace(status) != "" {
				info.Status = strings.ToLower(strings.TrimSpace(status))
			}
		}
		if info.ExpiresAt == nil {
			for _, field := range []string{"exp_date", "expires_at", "expire", "expiry"} {
				if expiry := parseEpoch(source[field]); expiry != nil {
					info.ExpiresAt = expiry
					break
				}
			}
		}
	}
	return info
}

// parseEpoch converts a numeric or numeric-string epoch value to a time.
func parseEpoch(value any) *time.Time {
	var epoch int64
	switch typed := value.(type) {
	case float64:
		epoch = int64(typed)
	case string:
		parsed, errParse := strconv.ParseInt(strings.TrimSpace(typed), 10, 64)
		if errParse != nil {
			return nil
		}
		epoch = parsed
	default:
		return nil
	}
	if epoch <= 0 {
		return nil
	}
	at := time.Unix(epoch, 0).UTC()
	return &at
}

// attemptLine formats one candidate attempt for the diagnostic trail. The
// API key value never appears in the trail.
func attemptLine(base, keyParam, verb string, outcome classification, message string, errCall error) string {
	if errCall != nil {
		return fmt.Sprintf("GET %s?%s=***&sub=%s -> transport error: %v", base, keyParam, verb, errCall)
	}
	if message != "" {
		return fmt.Sprintf("GET %s?%s=***&sub=%s -> %s: %s", base, keyParam, verb, outcome, message)
	}
	return fmt.Sprintf("GET %s?%s=***&sub=%s -> %s", base, keyParam, verb, outcome)
}
