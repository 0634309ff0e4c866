package signal

import (
	"context"
	"errors"

	"github.com/dkeye/Moderation/internal/app/moderation"
	"github.com/dkeye/Moderation/internal/app/orch"
	"github.com/dkeye/Moderation/internal/app/roles"
	"github.com/dkeye/Moderation/internal/core"
	"github.com/dkeye/Moderation/internal/domain"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleSignal(ctx context.Context, cancel context.CancelFunc, s *orch.Session, c *WsSignalConn, data []byte) {
	in, err := DecodeInbound(data)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(s.SID)).Msg("bad json")
		ctl.send(cancel, s.SID, c, EncodeError(CodeBadPayload, err.Error()))
		return
	}

	switch in.Type {
	case TypeSelectMember:
		if in.UserID == "" {
			ctl.send(cancel, s.SID, c, EncodeError(CodeBadPayload, "user_id required"))
			return
		}
		err = s.SelectMember(ctx, domain.UserID(in.UserID))
	case TypeKick:
		err = s.Moderation.Dispatch(ctx, moderation.KickUser{})
	case TypeBan:
		err = s.Moderation.Dispatch(ctx, moderation.BanUser{})
	case TypeUnban:
		err = s.Moderation.Dispatch(ctx, moderation.UnbanUser{})
	case TypeReset:
		err = s.Moderation.Dispatch(ctx, moderation.Reset{})
	case TypeChangeOwnRole:
		err = s.Roles.Dispatch(ctx, roles.ChangeOwnRole{})
	case TypeDemoteSelf:
		role, perr := domain.ParseRole(in.Role)
		if perr != nil {
			ctl.send(cancel, s.SID, c, EncodeError(CodeBadPayload, perr.Error()))
			return
		}
		err = s.Roles.Dispatch(ctx, roles.DemoteSelfTo{Role: role})
	case TypeCancelRoleChange:
		err = s.Roles.Dispatch(ctx, roles.CancelPendingAction{})
	case TypeCapabilities:
		ctl.sendJSON(cancel, s.SID, c, TypeCapabilities, s.Capabilities(ctx))
	case TypePing:
		ctl.handlePing(cancel, s.SID, c)
	default:
		log.Warn().Str("module", "signal").Str("type", in.Type).Msg("unknown signal")
		ctl.send(cancel, s.SID, c, EncodeError(CodeUnknownType, in.Type))
		return
	}
	if err != nil {
		ctl.replyError(cancel, s.SID, c, in.Type, err)
	}
}

func (ctl *SignalWSController) handlePing(cancel context.CancelFunc, sid core.SessionID, c *WsSignalConn) {
	ctl.sendJSON(cancel, sid, c, TypePong, nil)
}

func (ctl *SignalWSController) replyError(cancel context.CancelFunc, sid core.SessionID, c *WsSignalConn, typ string, err error) {
	code := CodeStopped
	if errors.Is(err, core.ErrMemberNotFound) {
		code = CodeNotFound
	}
	log.Debug().Err(err).Str("module", "signal").Str("sid", string(sid)).Str("type", typ).Msg("intent rejected")
	ctl.send(cancel, sid, c, EncodeError(code, err.Error()))
}
