package pubsub

import (
	"context"
	"testing"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/marketledger-backend/pkg/config"
)

func TestTopicResourceName(t *testing.T) {
	require.Equal(t, "projects/p1/topics/orders", topicResourceName("p1", "orders"))
	require.Equal(t, "projects/other/topics/x", topicResourceName("p1", "projects/other/topics/x"))
	require.Equal(t, "", topicResourceName("", "orders"))
	require.Equal(t, "", topicResourceName("p1", "  "))
}

func TestResolveTopicsDedupesAndSkipsBlank(t *testing.T) {
	topics, err := resolveTopics("p1", config.PubSubConfig{
		OrdersTopic:  " settlement ",
		PayoutsTopic: "projects/p1/topics/settlement",
	})
	require.NoError(t, err)
	require.Equal(t, []string{"projects/p1/topics/settlement"}, topics)

	_, err = resolveTopics("p1", config.PubSubConfig{})
	require.ErrorIs(t, err, errNoTopics)
}

func TestSettingsFromConfig(t *testing.T) {
	s := settingsFromConfig(config.PubSubConfig{OrderedPublish: true, BatchDelay: 25 * time.Millisecond, BatchCount: 10})
	require.True(t, s.ordered)
	require.Equal(t, 25*time.Millisecond, s.batch.DelayThreshold)
	require.Equal(t, 10, s.batch.CountThreshold)

	defaults := settingsFromConfig(config.PubSubConfig{})
	require.False(t, defaults.ordered)
	require.Equal(t, pubsub.DefaultPublishSettings.DelayThreshold, defaults.batch.DelayThreshold)
	require.Equal(t, pubsub.DefaultPublishSettings.CountThreshold, defaults.batch.CountThreshold)
}

func TestNewClientRequiresProject(t *testing.T) {
	_, err := NewClient(context.Background(), config.GCPConfig{ProjectID: " "}, config.PubSubConfig{OrdersTopic: "orders"}, nil)
	require.ErrorIs(t, err, errProjectIDRequired)
}

func TestNilClient(t *testing.T) {
	var c *Client
	require.ErrorIs(t, c.Ping(context.Background()), errNotInitialized)
	require.Nil(t, c.Publisher("orders"))
	require.NoError(t, c.Close())
}
