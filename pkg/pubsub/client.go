package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/marketledger-backend/pkg/config"
	"github.com/angelmondragon/marketledger-backend/pkg/logger"
)

// Client owns the Pub/Sub connection used by the outbox publisher. Settlement
// events are only published from here; subscribers run elsewhere.
type Client struct {
	client   *pubsub.Client
	project  string
	topics   []string
	settings publishSettings
}

type publishSettings struct {
	ordered bool
	batch   pubsub.PublishSettings
}

var (
	errProjectIDRequired = errors.New("gcp project id is required")
	errNoTopics          = errors.New("at least one pubsub topic must be configured")
	errNotInitialized    = errors.New("pubsub client not initialized")
)

// NewClient connects to Pub/Sub and fails fast when a configured topic is
// missing, so the publisher never starts against a half-provisioned project.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	project := strings.TrimSpace(gcp.ProjectID)
	if project == "" {
		return nil, errProjectIDRequired
	}
	topics, err := resolveTopics(project, cfg)
	if err != nil {
		return nil, err
	}

	psClient, err := pubsub.NewClient(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	c := &Client{
		client:   psClient,
		project:  project,
		topics:   topics,
		settings: settingsFromConfig(cfg),
	}
	if err := c.Ping(ctx); err != nil {
		_ = psClient.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"project":         project,
			"topics":          topics,
			"ordered_publish": c.settings.ordered,
		}), "pubsub.client_ready")
	}
	return c, nil
}

func settingsFromConfig(cfg config.PubSubConfig) publishSettings {
	batch := pubsub.DefaultPublishSettings
	if cfg.BatchDelay > 0 {
		batch.DelayThreshold = cfg.BatchDelay
	}
	if cfg.BatchCount > 0 {
		batch.CountThreshold = cfg.BatchCount
	}
	return publishSettings{ordered: cfg.OrderedPublish, batch: batch}
}

// resolveTopics returns the deduplicated resource names of every configured topic.
func resolveTopics(project string, cfg config.PubSubConfig) ([]string, error) {
	seen := map[string]struct{}{}
	var out []string
	for _, name := range []string{cfg.OrdersTopic, cfg.PayoutsTopic} {
		full := topicResourceName(project, name)
		if full == "" {
			continue
		}
		if _, dup := seen[full]; dup {
			continue
		}
		seen[full] = struct{}{}
		out = append(out, full)
	}
	if len(out) == 0 {
		return nil, errNoTopics
	}
	return out, nil
}

// Ping confirms every configured topic still exists.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errNotInitialized
	}
	for _, topic := range c.topics {
		_, err := c.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: topic})
		switch {
		case err == nil:
		case status.Code(err) == codes.NotFound:
			return fmt.Errorf("topic %s does not exist", topic)
		default:
			return fmt.Errorf("checking topic %s: %w", topic, err)
		}
	}
	return nil
}

// Publisher returns a publisher for a topic id or full resource name with the
// configured batching and ordering applied. Callers own the handle and must
// Stop it.
func (c *Client) Publisher(name string) *pubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	full := topicResourceName(c.project, name)
	if full == "" {
		return nil
	}
	p := c.client.Publisher(full)
	p.PublishSettings = c.settings.batch
	p.EnableMessageOrdering = c.settings.ordered
	return p
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func topicResourceName(project, name string) string {
	n := strings.TrimSpace(name)
	if n == "" {
		return ""
	}
	if strings.HasPrefix(n, "projects/") && strings.Contains(n, "/topics/") {
		return n
	}
	if p := strings.TrimSpace(project); p != "" {
		return "projects/" + p + "/topics/" + n
	}
	return ""
}
