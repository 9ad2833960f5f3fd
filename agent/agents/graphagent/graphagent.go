package graphagent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	contractx "github.com/wiroonsak/accountiq/agent/contract"
	planx "github.com/wiroonsak/accountiq/agent/plan"
)

const AgentName = "relationship_graph"

const maxResponseSizeBytes = 2 << 20

type Config struct {
	URL     string        `envconfig:"URL" split_words:"true" required:"true"`
	Timeout time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"15s"`
}

// Agent asks the LLM for a Gremlin traversal and submits it to the graph
// server over its HTTP endpoint.
type Agent struct {
	baseURL    string
	httpClient *http.Client
	completer  contractx.Completer
	prompt     string
}

var _ contractx.AgentAdapter = (*Agent)(nil)

func New(cfg Config, completer contractx.Completer, prompt string) (*Agent, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if baseURL == "" {
		return nil, errors.New("graph server url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid graph server url: %w", err)
	}
	if completer == nil {
		return nil, errors.New("completer is required")
	}
	if strings.TrimSpace(prompt) == "" {
		return nil, contractx.ErrPromptMissing
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &Agent{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		completer: completer,
		prompt:    strings.TrimSpace(prompt),
	}, nil
}

func (a *Agent) Name() string {
	return AgentName
}

func (a *Agent) Query(ctx context.Context, req contractx.AgentRequest) (planx.Result, error) {
	traversal, err := a.generateTraversal(ctx, req)
	if err != nil {
		return nil, err
	}

	resp, err := a.submit(ctx, traversal)
	if err != nil {
		return nil, err
	}

	relationships, documents := a.filterByScope(resp, req.FilterAccounts)
	return &planx.RelationshipResult{
		Relationships: relationships,
		Documents:     documents,
		QueryUsed:     traversal,
	}, nil
}

func (a *Agent) generateTraversal(ctx context.Context, req contractx.AgentRequest) (string, error) {
	payload := map[string]any{
		"query":       req.Query,
		"account_ids": req.AccountIDs,
	}
	input, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("%w: marshal graphgen payload: %v", contractx.ErrValidation, err)
	}

	resp, err := a.completer.Complete(ctx, []contractx.Message{
		{Role: "system", Content: a.prompt},
		{Role: "user", Content: string(input)},
	})
	if err != nil {
		return "", fmt.Errorf("%w: graphgen invoke: %v", contractx.ErrModelInvoke, err)
	}

	traversal := strings.TrimSpace(resp.Content)
	traversal = strings.TrimPrefix(traversal, "```groovy")
	traversal = strings.TrimPrefix(traversal, "```")
	traversal = strings.TrimSuffix(traversal, "```")
	traversal = strings.TrimSpace(traversal)
	if traversal == "" {
		return "", fmt.Errorf("%w: graphgen returned empty traversal", contractx.ErrSchemaViolation)
	}
	if !strings.HasPrefix(traversal, "g.") {
		return "", fmt.Errorf("%w: traversal must start with g.", contractx.ErrSchemaViolation)
	}
	return traversal, nil
}

type gremlinRequest struct {
	Gremlin string `json:"gremlin"`
}

type gremlinResponse struct {
	Result struct {
		Data []graphItem `json:"data"`
	} `json:"result"`
	Status struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"status"`
}

type graphItem struct {
	Type      string `json:"type"` // "relationship" | "document"
	From      string `json:"from,omitempty"`
	To        string `json:"to,omitempty"`
	Label     string `json:"label,omitempty"`
	Source    string `json:"source,omitempty"`
	AccountID string `json:"account_id,omitempty"`
	ID        string `json:"id,omitempty"`
	Title     string `json:"title,omitempty"`
	URL       string `json:"url,omitempty"`
}

func (a *Agent) submit(ctx context.Context, traversal string) (*gremlinResponse, error) {
	body, err := json.Marshal(gremlinRequest{Gremlin: traversal})
	if err != nil {
		return nil, fmt.Errorf("marshal gremlin request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build gremlin request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute gremlin request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return nil, fmt.Errorf("read gremlin response: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("graph server status=%d body=%s", resp.StatusCode, string(raw))
	}

	var parsed gremlinResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode gremlin response: %w", err)
	}
	if parsed.Status.Code != 0 && parsed.Status.Code != http.StatusOK {
		return nil, fmt.Errorf("graph server error: %s", parsed.Status.Message)
	}
	return &parsed, nil
}

// filterByScope drops items outside the gate's account filter. Items with
// no account linkage are kept; the traversal already anchored them.
func (a *Agent) filterByScope(resp *gremlinResponse, filterAccounts []string) ([]planx.Relationship, []planx.Document) {
	allowed := make(map[string]bool, len(filterAccounts))
	for _, id := range filterAccounts {
		allowed[id] = true
	}
	inScope := func(accountID string) bool {
		if len(allowed) == 0 || accountID == "" {
			return true
		}
		return allowed[accountID]
	}

	var relationships []planx.Relationship
	var documents []planx.Document
	for _, item := range resp.Result.Data {
		if !inScope(item.AccountID) {
			continue
		}
		switch item.Type {
		case "relationship":
			relationships = append(relationships, planx.Relationship{
				From:   item.From,
				To:     item.To,
				Kind:   item.Label,
				Source: item.Source,
			})
		case "document":
			documents = append(documents, planx.Document{
				ID:    item.ID,
				Title: item.Title,
				URL:   item.URL,
			})
		}
	}
	return relationships, documents
}
