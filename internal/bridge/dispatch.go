package bridge

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/cory-johannsen/skybridge/internal/chat"
	"github.com/cory-johannsen/skybridge/internal/command"
	"github.com/cory-johannsen/skybridge/internal/world"
)

// FollowRange is the distance kept from a followed avatar.
const FollowRange = 3

// dispatchContext carries all inputs a command handler needs.
type dispatchContext struct {
	ctx  context.Context
	rt   *Runtime
	cmd  *command.Command
	args command.Args
	msg  chat.Message
}

// dispatchFunc is the signature for all command handlers.
type dispatchFunc func(b *Bridge, dctx *dispatchContext) command.Result

// DispatchHandlers returns the map from Handler constant to handler.
// Exported so TestAllCommandHandlersAreWired can verify completeness.
func DispatchHandlers() map[string]dispatchFunc {
	return dispatchMap
}

// dispatchMap is the single source of truth for command dispatch.
// To add a new command: add a Handler constant to commands.go AND add an entry here.
var dispatchMap = map[string]dispatchFunc{
	command.HandlerPathTo: (*Bridge).dispatchPathTo,
	command.HandlerFollow: (*Bridge).dispatchFollow,
	command.HandlerFlyTo:  (*Bridge).dispatchFlyTo,
	command.HandlerStop:   (*Bridge).dispatchStop,
}

// dispatch parses and runs an operator command from the command channel.
// Unknown commands and text without the prefix are ignored silently.
func (b *Bridge) dispatch(ctx context.Context, msg chat.Message) {
	prefix := b.cfg.Chat.CommandPrefix
	parsed, ok := command.ParsePrefixed(strings.TrimSpace(msg.Text), prefix)
	if !ok {
		return
	}
	cmd, ok := b.registry.Resolve(parsed.Command)
	if !ok {
		b.logger.Debug("ignoring unknown command", zap.String("command", parsed.Command))
		return
	}

	args, res, ok := cmd.Bind(prefix, parsed.Args)
	if ok {
		res = b.execute(ctx, cmd, args, msg)
	}
	if res.IsError() {
		b.logger.Debug("command rejected",
			zap.String("command", cmd.Name),
			zap.String("author", msg.Author),
			zap.String("reply", res.Reply),
		)
	}
	if res.Outcome == command.OutcomePending {
		return
	}
	b.reply(ctx, msg, res.Reply)
}

func (b *Bridge) execute(ctx context.Context, cmd *command.Command, args command.Args, msg chat.Message) command.Result {
	if b.rt == nil {
		return command.Rejected(ErrNotConnected.Error())
	}
	fn, ok := dispatchMap[cmd.Handler]
	if !ok {
		return command.Rejected(fmt.Sprintf("%s is not available", cmd.Name))
	}
	b.logger.Info("command",
		zap.String("command", cmd.Name),
		zap.String("author", msg.Author),
		zap.String("epoch", b.rt.Epoch.ID.String()),
	)
	return fn(b, &dispatchContext{ctx: ctx, rt: b.rt, cmd: cmd, args: args, msg: msg})
}

// reply answers msg in its own channel as a threaded reply.
func (b *Bridge) reply(ctx context.Context, msg chat.Message, text string) {
	if b.chatSession == nil || text == "" {
		return
	}
	if err := b.chatSession.Reply(ctx, msg.ChannelID, msg.ID, text); err != nil {
		b.logger.Debug("dropping command reply", zap.String("channel", msg.ChannelID), zap.Error(err))
	}
}

func (b *Bridge) dispatchPathTo(dctx *dispatchContext) command.Result {
	x, y, z := dctx.args.Coords.Floor()
	if err := dctx.rt.session.SetGoal(dctx.ctx, world.BlockGoal{X: x, Y: y, Z: z}); err != nil {
		b.logger.Warn("setting block goal", zap.Error(err))
		return command.Rejected("pathing failed")
	}
	return command.OK("pathing to " + command.FormatCoords(dctx.args.Coords))
}

func (b *Bridge) dispatchFollow(dctx *dispatchContext) command.Result {
	name := dctx.args.Name
	p, ok := dctx.rt.session.Player(name)
	if !ok || !p.Visible() {
		return command.Rejected("can't see " + name)
	}
	goal := world.FollowGoal{EntityID: p.EntityID, Username: p.Username, Range: FollowRange}
	if err := dctx.rt.session.SetGoal(dctx.ctx, goal); err != nil {
		b.logger.Warn("setting follow goal", zap.Error(err))
		return command.Rejected("following failed")
	}
	return command.OK("following " + name)
}

// dispatchFlyTo replies once the flight lands or is superseded. A flight
// abandoned by a disconnect never replies.
func (b *Bridge) dispatchFlyTo(dctx *dispatchContext) command.Result {
	target := dctx.args.Coords
	msg := dctx.msg
	b.flyTo(dctx.ctx, target, b.cfg.Flight.Duration, func(ctx context.Context) {
		b.reply(ctx, msg, "flew to "+command.FormatCoords(target))
	})
	return command.Pending()
}

func (b *Bridge) dispatchStop(dctx *dispatchContext) command.Result {
	if err := dctx.rt.session.SetGoal(dctx.ctx, nil); err != nil {
		b.logger.Warn("clearing goal", zap.Error(err))
		return command.Rejected("stop failed")
	}
	return command.OK("stopped moving")
}
