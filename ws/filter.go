package ws

import (
	"github.com/antonmedv/expr"
	"github.com/antonmedv/expr/vm"
	lru "github.com/hashicorp/golang-lru"
	"github.com/hovercast/hovercast-coordinator/filter"
	"github.com/hovercast/hovercast-coordinator/globals"
	"github.com/hovercast/hovercast-coordinator/types"
)

const filterCacheSize = 512

// filterCache holds compiled target filter programs keyed by their source.
// Chat filters repeat heavily (clients reuse the same expressions), so the
// compile step is paid once per distinct expression.
type filterCache struct {
	programs *lru.Cache
}

func newFilterCache() (*filterCache, error) {
	cache, err := lru.New(filterCacheSize)
	if err != nil {
		return nil, err
	}
	return &filterCache{programs: cache}, nil
}

func (f *filterCache) compile(src string) (*vm.Program, error) {
	if prog, ok := f.programs.Get(src); ok {
		return prog.(*vm.Program), nil
	}
	prog, err := expr.Compile(src, expr.Env(filter.Env{}))
	if err != nil {
		return nil, err
	}
	f.programs.Add(src, prog)
	return prog, nil
}

// runFilterMessage evaluates a chat message's target filter against this
// client as the viewer. A nil program (no filter) passes; a filter that
// errors out fails closed.
func (c *Client) runFilterMessage(message *types.ChatMessage, sender *types.Participant, prog *vm.Program) bool {
	if message == nil {
		return false
	}
	if prog == nil {
		return true
	}
	env := filter.NewEnv()
	env.Room = filter.Room{
		Name:  c.hub.roomName,
		Topic: c.hub.topic(),
	}
	if sender != nil {
		env.Sender = participantEnv(sender)
	}
	if viewer := c.snapshot(); viewer != nil {
		env.Viewer = participantEnv(viewer)
	}
	env.Created = message.Timestamp.Unix()
	res, err := expr.Run(prog, env)
	if err != nil {
		globals.AppLogger.Error("could not run filter", "error", err)
		return false
	}
	if bRes, ok := res.(bool); ok && bRes {
		return true
	}
	return false
}

func participantEnv(p *types.Participant) filter.Participant {
	return filter.Participant{
		ListId:       p.ListId,
		Handle:       p.Handle,
		Registered:   p.AccountId != nil && *p.AccountId != "",
		Broadcasting: p.IsBroadcasting,
		Moderator:    p.IsAdmin || p.IsSiteMod,
	}
}
