package instance

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIDPrefersExplicitInstance(t *testing.T) {
	t.Setenv("MARKETLEDGER_INSTANCE_ID", "api-7")
	t.Setenv("DYNO", "web.1")
	require.Equal(t, "api-7", ID("local"))
}

func TestIDFallsBackToDyno(t *testing.T) {
	t.Setenv("MARKETLEDGER_INSTANCE_ID", "")
	t.Setenv("DYNO", "worker.2")
	require.Equal(t, "worker.2", ID("local"))
}

func TestIDUsesFallback(t *testing.T) {
	t.Setenv("MARKETLEDGER_INSTANCE_ID", "")
	t.Setenv("DYNO", "")
	require.Equal(t, "cron-0", ID("cron-0"))
	require.Equal(t, "local", ID(""))
}
