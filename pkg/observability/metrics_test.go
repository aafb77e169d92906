package observability_test

import (
	"strings"
	"testing"

	"github.com/aretw0/rewind/pkg/domain"
	"github.com/aretw0/rewind/pkg/observability"
	"github.com/aretw0/rewind/pkg/undo"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type note struct {
	values map[string]any
}

func (n *note) ID() string { return "n1" }
func (n *note) Type() string { return "note" }
func (n *note) Get(key string) any { return n.values[key] }
func (n *note) Relate(key string, peer domain.Object) error { return nil }

func (n *note) Unrelate(key string, peer domain.Object) error { return nil }

func (n *note) Set(key string, value any) error {
	n.values[key] = value
	return nil
}

func TestMetrics_Listener(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	history := undo.NewManager()
	history.AddListener(metrics.Listener("s1", history))

	factory := undo.NewFactory(nil)
	obj := &note{values: map[string]any{}}
	for _, key := range []string{"title", "body"} {
		cmd, err := factory.NewCommand(domain.ChangeEvent{Object: obj, Key: key, Kind: domain.ChangeAttribute, New: key})
		require.NoError(t, err)
		require.NoError(t, history.Add(cmd))
	}
	require.NoError(t, history.Undo())

	expected := `
# HELP rewind_history_events_total Total number of history lifecycle events
# TYPE rewind_history_events_total counter
rewind_history_events_total{kind="added"} 2
rewind_history_events_total{kind="undid"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "rewind_history_events_total"))

	count, err := testutil.GatherAndCount(reg, "rewind_history_depth", "rewind_history_current", "rewind_entry_changes")
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	metrics.Forget("s1")
	count, err = testutil.GatherAndCount(reg, "rewind_history_depth")
	require.NoError(t, err)
	assert.Zero(t, count)
}
