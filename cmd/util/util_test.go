package util

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapString(t *testing.T) {
	t.Run("Short", func(t *testing.T) {
		assert.Equal(t, "ring size", WrapString("  ring   size "))
	})

	t.Run("LongLinesWrap", func(t *testing.T) {
		text := strings.Repeat("gossip ", 20)
		for _, line := range strings.Split(WrapString(text), "\n") {
			assert.LessOrEqual(t, len(line), Wrap)
		}
	})

	t.Run("LongWordStaysWhole", func(t *testing.T) {
		word := strings.Repeat("x", Wrap+10)
		assert.Equal(t, "a\n"+word, WrapString("a "+word))
	})
}

func TestParseList(t *testing.T) {
	assert.Nil(t, ParseList(""))
	assert.Equal(t, []string{"http://db0:8080", "http://db1:8080"}, ParseList(" http://db0:8080, ,http://db1:8080,"))
}

func TestParseClusterMembers(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		members, err := ParseClusterMembers("node-1=localhost:63001, node-2=localhost:63002")
		require.NoError(t, err)
		assert.Len(t, members, 2)
		assert.Equal(t, "localhost:63001", members[ReplicaID("node-1")])
		assert.Equal(t, "localhost:63002", members[ReplicaID("node-2")])
	})

	t.Run("Invalid", func(t *testing.T) {
		for _, s := range []string{"node-1", "node-1=", "=localhost:1", "a=b=c"} {
			_, err := ParseClusterMembers(s)
			assert.Error(t, err, s)
		}
	})

	t.Run("ReplicaIDIsStable", func(t *testing.T) {
		assert.Equal(t, ReplicaID("node-1"), ReplicaID("node-1"))
		assert.NotEqual(t, ReplicaID("node-1"), ReplicaID("node-2"))
	})
}
