package halo

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NicholasBermuda/firedrake/errdefs"
)

func TestNewTopology(t *testing.T) {
	topo, err := NewTopology(0, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, topo.Rank())
	assert.Equal(t, 1, topo.Size())
}

func TestNewTopologyErrors(t *testing.T) {
	tests := []struct {
		name string
		rank int
		size int
	}{
		{"zero size", 0, 0},
		{"rank at size", 2, 2},
		{"negative rank", -1, 2},
		{"missing transport", 0, 2},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := NewTopology(test.rank, test.size, nil)
			assert.True(t, errdefs.IsInvalidArgument(err))
		})
	}
}

func TestMemTransportPairsBuffers(t *testing.T) {
	c, err := NewCluster(2)
	require.NoError(t, err)

	t0, err := c.Topology(0)
	require.NoError(t, err)
	t1, err := c.Topology(1)
	require.NoError(t, err)

	require.NoError(t, t0.tr.Send(1, tagSetup, Message{Points: []int{3, 4}}))
	msg, err := t1.tr.Recv(0, tagSetup)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 4}, msg.Points)
}

func TestMemTransportOrdering(t *testing.T) {
	c, err := NewCluster(2)
	require.NoError(t, err)

	t0, err := c.Topology(0)
	require.NoError(t, err)
	t1, err := c.Topology(1)
	require.NoError(t, err)

	require.NoError(t, t0.tr.Send(1, tagSetup, Message{Points: []int{1}}))
	require.NoError(t, t0.tr.Send(1, tagGlobalToLocal, Message{Values: []float64{2.5}}))
	require.NoError(t, t0.tr.Send(1, tagSetup, Message{Points: []int{9}}))

	// Tags never interleave; within a tag delivery is in send order.
	msg, err := t1.tr.Recv(0, tagGlobalToLocal)
	require.NoError(t, err)
	assert.Equal(t, []float64{2.5}, msg.Values)

	msg, err = t1.tr.Recv(0, tagSetup)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, msg.Points)

	msg, err = t1.tr.Recv(0, tagSetup)
	require.NoError(t, err)
	assert.Equal(t, []int{9}, msg.Points)
}

func TestMemTransportErrors(t *testing.T) {
	c, err := NewCluster(2)
	require.NoError(t, err)
	t0, err := c.Topology(0)
	require.NoError(t, err)

	assert.True(t, errdefs.IsInvalidArgument(t0.tr.Send(0, tagSetup, Message{})))
	assert.True(t, errdefs.IsInvalidArgument(t0.tr.Send(5, tagSetup, Message{})))

	_, err = t0.tr.Recv(0, tagSetup)
	assert.True(t, errdefs.IsInvalidArgument(err))
	_, err = t0.tr.Recv(-1, tagSetup)
	assert.True(t, errdefs.IsInvalidArgument(err))
}

func TestClusterRun(t *testing.T) {
	c, err := NewCluster(3)
	require.NoError(t, err)
	assert.Equal(t, 3, c.Size())

	seen := make([]int, 3)
	require.NoError(t, c.Run(func(topo *Topology) error {
		seen[topo.Rank()] = topo.Rank() + 1
		return nil
	}))
	assert.Equal(t, []int{1, 2, 3}, seen)
}

func TestClusterRunError(t *testing.T) {
	c, err := NewCluster(2)
	require.NoError(t, err)

	err = c.Run(func(topo *Topology) error {
		if topo.Rank() == 1 {
			return errors.New("boom")
		}
		return nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "participant 1")
	assert.Contains(t, err.Error(), "boom")
}

func TestClusterErrors(t *testing.T) {
	_, err := NewCluster(0)
	assert.True(t, errdefs.IsInvalidArgument(err))

	c, err := NewCluster(1)
	require.NoError(t, err)
	_, err = c.Topology(5)
	assert.True(t, errdefs.IsInvalidArgument(err))
}
