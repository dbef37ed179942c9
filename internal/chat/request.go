package chat

// request 是投递到 Router 请求队列中的一条消息。
type request interface {
	op() string
}

type connectRequest struct {
	ref  ConnRef
	name string
	sess Session
}

type disconnectRequest struct {
	ref    ConnRef
	reason string
}

type joinRequest struct {
	sess Session
	id   ChannelID
}

type sendRequest struct {
	sess Session
	id   ChannelID
	text string
}

type partRequest struct {
	sess Session
	id   ChannelID
}

type listMyChannelsRequest struct {
	sess  Session
	reply chan []ChannelID
}

type listAllChannelNamesRequest struct {
	reply chan []string
}

type dumpRequest struct {
	reply chan []ChannelInfo
}

func (*connectRequest) op() string             { return "connect" }
func (*disconnectRequest) op() string          { return "disconnect" }
func (*joinRequest) op() string                { return "join" }
func (*sendRequest) op() string                { return "send" }
func (*partRequest) op() string                { return "part" }
func (*listMyChannelsRequest) op() string      { return "list_my_channels" }
func (*listAllChannelNamesRequest) op() string { return "list_all_channel_names" }
func (*dumpRequest) op() string                { return "dump" }
