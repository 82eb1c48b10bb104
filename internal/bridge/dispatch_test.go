package bridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/skybridge/internal/command"
	"github.com/cory-johannsen/skybridge/internal/config"
	"github.com/cory-johannsen/skybridge/internal/geom"
	"github.com/cory-johannsen/skybridge/internal/world"
)

func TestAllCommandHandlersAreWired(t *testing.T) {
	handlers := DispatchHandlers()
	for _, cmd := range command.DefaultRegistry().Commands() {
		_, ok := handlers[cmd.Handler]
		assert.True(t, ok, "command %q has no dispatch handler", cmd.Name)
	}
}

func connected(t *testing.T) (*harness, *fakeWorld) {
	t.Helper()
	h := newHarness(zaptest.NewLogger(t))
	h.login(spawnPoint)
	return h, h.world()
}

func TestDispatch_PathToBadCoords(t *testing.T) {
	h, w := connected(t)
	h.say(commandChannel, "op", "!pathto 10 abc 5")

	assert.Equal(t, []string{"bad coords"}, h.replies())
	assert.Empty(t, w.goals)
}

func TestDispatch_PathToOutOfRangeRejected(t *testing.T) {
	h, w := connected(t)
	h.say(commandChannel, "op", "!pathto 1e300 64 5")
	h.say(commandChannel, "op", "!flyto 5 -1e300 5")

	assert.Equal(t, []string{"bad coords", "bad coords"}, h.replies())
	assert.Empty(t, w.goals)
}

func TestDispatch_PathTo(t *testing.T) {
	h, w := connected(t)
	h.say(commandChannel, "op", "!pathto 10 64 5")

	assert.Equal(t, []world.Goal{world.BlockGoal{X: 10, Y: 64, Z: 5}}, w.goals)
	assert.Equal(t, []string{"pathing to 10 64 5"}, h.replies())
	require.Len(t, h.chat.sent, 1)
	assert.Equal(t, commandChannel, h.chat.sent[0].channelID)
	assert.Equal(t, "m-!pathto 10 64 5", h.chat.sent[0].replyTo)
}

func TestDispatch_PathToFractionalFloors(t *testing.T) {
	h, w := connected(t)
	h.say(commandChannel, "op", "!pathto 10.7 64 -5.2")

	assert.Equal(t, []world.Goal{world.BlockGoal{X: 10, Y: 64, Z: -6}}, w.goals)
	assert.Equal(t, []string{"pathing to 10.7 64 -5.2"}, h.replies())
}

func TestDispatch_UsageHints(t *testing.T) {
	h, w := connected(t)
	h.say(commandChannel, "op", "!pathto 1 2")
	h.say(commandChannel, "op", "!flyto 1 2 3 4")
	h.say(commandChannel, "op", "!follow")

	assert.Equal(t, []string{"!pathto x y z", "!flyto x y z", "!follow username"}, h.replies())
	assert.Empty(t, w.goals)
}

func TestDispatch_FollowUnseen(t *testing.T) {
	h, w := connected(t)
	w.players["Alex"] = world.Player{Username: "Alex"}

	h.say(commandChannel, "op", "!follow Steve")
	h.say(commandChannel, "op", "!follow Alex")

	assert.Equal(t, []string{"can't see Steve", "can't see Alex"}, h.replies())
	assert.Empty(t, w.goals)
}

func TestDispatch_Follow(t *testing.T) {
	h, w := connected(t)
	w.seePlayer("Steve", 7, geom.V(5, 64, 5))

	h.say(commandChannel, "op", "!follow Steve")

	assert.Equal(t, []world.Goal{world.FollowGoal{EntityID: 7, Username: "Steve", Range: 3}}, w.goals)
	assert.Equal(t, []string{"following Steve"}, h.replies())
}

func TestDispatch_StopAlwaysClears(t *testing.T) {
	h, w := connected(t)
	h.say(commandChannel, "op", "!stop")
	h.say(commandChannel, "op", "!pathto 1 2 3")
	h.say(commandChannel, "op", "!STOP")

	assert.Equal(t, []world.Goal{nil, world.BlockGoal{X: 1, Y: 2, Z: 3}, nil}, w.goals)
	assert.Equal(t, []string{"stopped moving", "pathing to 1 2 3", "stopped moving"}, h.replies())
}

func TestDispatch_IgnoresUnknownUnprefixedAndOtherChannels(t *testing.T) {
	h, w := connected(t)
	h.say(commandChannel, "op", "!dance")
	h.say(commandChannel, "op", "stop")
	h.say(alertsChannel, "op", "!stop")

	assert.Empty(t, h.chat.sent)
	assert.Empty(t, w.goals)
}

func TestDispatch_CommandInRelayChannelIsRelayed(t *testing.T) {
	h, w := connected(t)
	h.say(relayChannel, "op", "!stop")

	assert.Empty(t, w.goals)
	assert.Equal(t, []string{"!stop"}, w.chats)
}

func TestDispatch_NotConnected(t *testing.T) {
	h := newIdleHarness(zaptest.NewLogger(t))
	h.dialErr = errRefused
	h.start()

	h.say(commandChannel, "op", "!stop")
	h.say(commandChannel, "op", "!pathto 1 x 3")

	assert.Equal(t, []string{"not connected to the world", "bad coords"}, h.replies())
}

func TestDispatch_CustomPrefix(t *testing.T) {
	h := newHarness(zaptest.NewLogger(t), func(c *config.Config) { c.Chat.CommandPrefix = "?" })
	h.login(spawnPoint)

	h.say(commandChannel, "op", "!stop")
	h.say(commandChannel, "op", "?pathto 1")

	assert.Equal(t, []string{"?pathto x y z"}, h.replies())
}
