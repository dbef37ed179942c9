package router

import (
	"context"
	"strconv"

	"github.com/samber/lo"

	"github.com/lk2023060901/danmu-garden-chat/internal/chat"
	"github.com/lk2023060901/danmu-garden-chat/internal/network/codec"
	"github.com/lk2023060901/danmu-garden-chat/internal/network/session"
)

// ChatService 为指令处理所需的 chat.Router 能力。
type ChatService interface {
	Join(sess chat.Session, id chat.ChannelID)
	Part(sess chat.Session, id chat.ChannelID)
	Send(sess chat.Session, id chat.ChannelID, text string)
	ListMyChannels(ctx context.Context, sess chat.Session) ([]chat.ChannelID, error)
	ListAllChannelNames(ctx context.Context) ([]string, error)
	Dump(ctx context.Context) ([]chat.ChannelInfo, error)
}

var _ ChatService = (*chat.Router)(nil)

// RegisterChatRoutes 将聊天指令注册到 r 上。
// enableDump 为 false 时不注册 OpDump。
func RegisterChatRoutes(r Router, svc ChatService, enableDump bool) error {
	routes := map[codec.Op]Route{
		codec.OpJoin: {Handler: func(_ context.Context, sess session.Session, frame *codec.ClientFrame) (any, error) {
			id, err := frame.ChannelID()
			if err != nil {
				return nil, err
			}
			svc.Join(sess, id)
			return nil, nil
		}},
		codec.OpPart: {Handler: func(_ context.Context, sess session.Session, frame *codec.ClientFrame) (any, error) {
			id, err := frame.ChannelID()
			if err != nil {
				return nil, err
			}
			svc.Part(sess, id)
			return nil, nil
		}},
		codec.OpSend: {Handler: func(_ context.Context, sess session.Session, frame *codec.ClientFrame) (any, error) {
			id, err := frame.ChannelID()
			if err != nil {
				return nil, err
			}
			svc.Send(sess, id, frame.Text)
			return nil, nil
		}},
		codec.OpListMine: {
			RespType: codec.TypeMyChannels,
			Handler: func(ctx context.Context, sess session.Session, _ *codec.ClientFrame) (any, error) {
				ids, err := svc.ListMyChannels(ctx, sess)
				if err != nil {
					return nil, err
				}
				return codec.MyChannels{Channels: lo.Map(ids, func(id chat.ChannelID, _ int) codec.ChannelRef {
					return codec.RefOf(id)
				})}, nil
			},
		},
		codec.OpListAll: {
			RespType: codec.TypeAllChannels,
			Handler: func(ctx context.Context, _ session.Session, _ *codec.ClientFrame) (any, error) {
				names, err := svc.ListAllChannelNames(ctx)
				if err != nil {
					return nil, err
				}
				return codec.AllChannels{Names: names}, nil
			},
		},
	}
	if enableDump {
		routes[codec.OpDump] = Route{
			RespType: codec.TypeChannels,
			Handler: func(ctx context.Context, _ session.Session, _ *codec.ClientFrame) (any, error) {
				infos, err := svc.Dump(ctx)
				if err != nil {
					return nil, err
				}
				return codec.Channels{Channels: lo.Map(infos, func(info chat.ChannelInfo, _ int) codec.ChannelRow {
					return codec.ChannelRow{
						Channel:  codec.RefOf(info.ID),
						Name:     info.Name,
						Members:  info.Members,
						IsSystem: info.IsSystem,
					}
				})}, nil
			},
		}
	}

	for _, op := range lo.Keys(routes) {
		if err := r.Register(op, routes[op]); err != nil {
			return err
		}
	}
	return nil
}

func opString(op codec.Op) string {
	return strconv.FormatUint(uint64(op), 10)
}
