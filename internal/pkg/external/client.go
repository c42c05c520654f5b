package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bothive/bothive/internal/pkg/apperr"
	"github.com/bothive/bothive/internal/pkg/env"
)

const defaultTimeout = 10 * time.Second

// Client talks to the external instance-management API. Non-success responses
// are always treated as failures.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// NewClientFromEnv builds a client from EXTERNAL_API_BASE_URL and
// EXTERNAL_API_TOKEN.
func NewClientFromEnv() *Client {
	return &Client{
		BaseURL: strings.TrimRight(env.GetEnv("EXTERNAL_API_BASE_URL", ""), "/"),
		Token:   strings.TrimSpace(env.GetEnv("EXTERNAL_API_TOKEN", "")),
		HTTPClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
}

type createInstanceRequest struct {
	Name string            `json:"name"`
	Vars map[string]string `json:"vars"`
}

type createInstanceResponse struct {
	ID string `json:"id"`
}

type patchInstanceRequest struct {
	Vars map[string]string `json:"vars"`
}

type healthResponse struct {
	Status string `json:"status"`
}

type createEntryRequest struct {
	InstanceID string `json:"instance_id"`
	Content    string `json:"content"`
}

type createEntryResponse struct {
	ExecutionID string `json:"execution_id"`
}

type deleteEntryRequest struct {
	InstanceID string `json:"instance_id"`
	EntryID    string `json:"entry_id"`
}

type entryStatusResponse struct {
	Status    string   `json:"status"`
	EntityIDs []string `json:"entity_ids"`
}

// CreateInstance provisions a remote instance and returns its external id.
func (c *Client) CreateInstance(ctx context.Context, activationCode string, vars map[string]string) (string, error) {
	if vars == nil {
		vars = map[string]string{}
	}
	var out createInstanceResponse
	err := c.do(ctx, http.MethodPost, "/instances", createInstanceRequest{Name: activationCode, Vars: vars}, &out)
	if err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", apperr.New(apperr.KindUpstream, "create instance: empty id in response")
	}
	return out.ID, nil
}

// PatchInstance updates the remote instance configuration.
func (c *Client) PatchInstance(ctx context.Context, externalID string, vars map[string]string) error {
	if vars == nil {
		vars = map[string]string{}
	}
	return c.do(ctx, http.MethodPatch, "/instances/"+externalID, patchInstanceRequest{Vars: vars}, nil)
}

// DeleteInstance removes the remote instance. Irreversible.
func (c *Client) DeleteInstance(ctx context.Context, externalID string) error {
	return c.do(ctx, http.MethodDelete, "/instances/"+externalID, nil, nil)
}

// ActivateInstance starts the remote instance.
func (c *Client) ActivateInstance(ctx context.Context, externalID string) error {
	return c.do(ctx, http.MethodPost, "/instances/"+externalID+"/activate", nil, nil)
}

// DeactivateInstance stops the remote instance.
func (c *Client) DeactivateInstance(ctx context.Context, externalID string) error {
	return c.do(ctx, http.MethodPost, "/instances/"+externalID+"/deactivate", nil, nil)
}

// Health reports the remote status string for an instance.
func (c *Client) Health(ctx context.Context, externalID string) (string, error) {
	var out healthResponse
	if err := c.do(ctx, http.MethodGet, "/instances/"+externalID+"/health", nil, &out); err != nil {
		return "", err
	}
	return out.Status, nil
}

// CreateKnowledgeEntry submits content for ingestion and returns the remote
// execution id to poll.
func (c *Client) CreateKnowledgeEntry(ctx context.Context, externalID, content string) (string, error) {
	var out createEntryResponse
	err := c.do(ctx, http.MethodPost, "/entry", createEntryRequest{InstanceID: externalID, Content: content}, &out)
	if err != nil {
		return "", err
	}
	if out.ExecutionID == "" {
		return "", apperr.New(apperr.KindUpstream, "create entry: empty execution id in response")
	}
	return out.ExecutionID, nil
}

// DeleteKnowledgeEntry removes an ingested entry remotely.
func (c *Client) DeleteKnowledgeEntry(ctx context.Context, externalID, entryID string) error {
	return c.do(ctx, http.MethodDelete, "/entry", deleteEntryRequest{InstanceID: externalID, EntryID: entryID}, nil)
}

// KnowledgeEntryStatus polls an ingestion execution.
func (c *Client) KnowledgeEntryStatus(ctx context.Context, externalID, executionID string) (string, []string, error) {
	var out entryStatusResponse
	path := fmt.Sprintf("/entry/status?instance_id=%s&execution_id=%s", externalID, executionID)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return "", nil, err
	}
	return out.Status, out.EntityIDs, nil
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return apperr.Wrap(apperr.KindUpstream, "encode request", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return apperr.Wrap(apperr.KindUpstream, "build request", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.KindUpstream, fmt.Sprintf("%s %s", method, path), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return apperr.New(apperr.KindUpstream,
			fmt.Sprintf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(snippet))))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return apperr.Wrap(apperr.KindUpstream, "decode response", err)
		}
	}
	return nil
}
