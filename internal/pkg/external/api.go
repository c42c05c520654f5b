package external

import "context"

// API is the surface of the external instance-management system consumed by
// lifecycle, billing and knowledge components. *Client is the production
// implementation; tests substitute fakes.
type API interface {
	CreateInstance(ctx context.Context, activationCode string, vars map[string]string) (string, error)
	PatchInstance(ctx context.Context, externalID string, vars map[string]string) error
	DeleteInstance(ctx context.Context, externalID string) error
	ActivateInstance(ctx context.Context, externalID string) error
	DeactivateInstance(ctx context.Context, externalID string) error
	Health(ctx context.Context, externalID string) (string, error)
	CreateKnowledgeEntry(ctx context.Context, externalID, content string) (string, error)
	DeleteKnowledgeEntry(ctx context.Context, externalID, entryID string) error
	KnowledgeEntryStatus(ctx context.Context, externalID, executionID string) (string, []string, error)
}

var _ API = (*Client)(nil)
