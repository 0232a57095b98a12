package ws

import (
	"errors"

	"hivemind.ai/internal/protocol"
	"hivemind.ai/internal/sim/binding"
)

// Dispatch executes one validated CALL against b.
func Dispatch(b binding.Binding, call protocol.CallMsg) protocol.ReplyMsg {
	a := call.Args
	switch call.Method {
	case protocol.MethodHarvest:
		return replyCode(call.ID, string(b.Harvest(a.Agent, a.Target)), "")
	case protocol.MethodAdvance:
		return replyCode(call.ID, string(b.Advance(a.Agent, a.Target)), "")
	case protocol.MethodTransfer:
		return replyCode(call.ID, string(b.Transfer(a.Agent, a.Target, binding.Resource(a.Resource))), "")
	case protocol.MethodMove:
		return replyCode(call.ID, string(b.MoveByPath(a.Agent, a.Steps)), "")
	case protocol.MethodProduce:
		body := make([]binding.Part, len(a.Body))
		for i, p := range a.Body {
			body[i] = binding.Part(p)
		}
		return replyCode(call.ID, string(b.Produce(a.Target, body, a.Name)), "")
	case protocol.MethodSay:
		b.Say(a.Agent, a.Text)
		return replyCode(call.ID, string(binding.CodeOK), "")
	case protocol.MethodFindPath:
		if a.From == nil || a.To == nil {
			return replyCode(call.ID, string(binding.CodeInvalidArgs), "from and to are required")
		}
		steps, err := b.FindPath(a.Zone, *a.From, *a.To)
		if errors.Is(err, binding.ErrNoPath) {
			return replyCode(call.ID, string(binding.CodeNoPath), "")
		}
		if err != nil {
			return replyCode(call.ID, string(binding.CodeInternal), err.Error())
		}
		r := replyCode(call.ID, string(binding.CodeOK), "")
		r.Steps = steps
		return r
	}
	return replyCode(call.ID, protocol.ErrUnknownMethod, call.Method)
}

func replyCode(id uint64, code, msg string) protocol.ReplyMsg {
	return protocol.ReplyMsg{
		Type:            protocol.TypeReply,
		ProtocolVersion: protocol.Version,
		ID:              id,
		Code:            code,
		Message:         msg,
	}
}
