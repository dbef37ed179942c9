package network

import "github.com/cockroachdb/errors"

// Stage 表示接入层收发链路中的处理阶段。
//
// 主要用于在回调与日志中标记错误发生的位置，便于监控与排查。
type Stage string

const (
	StageHandshake Stage = "handshake"
	StageRecvRaw   Stage = "recv_raw" // 收到底层 WebSocket 帧
	StageDecode    Stage = "decode"   // 文本帧 -> ClientFrame/ServerFrame
	StageDispatch  Stage = "dispatch" // ClientFrame -> 指令处理
	StageEncode    Stage = "encode"   // 事件/应答 -> 文本帧
	StageSend      Stage = "send"     // 写出到底层连接
)

// 统一的错误码常量。
//
// 注意：这些是用于日志/监控的稳定字符串。
const (
	ErrCodeHandshakeFailed = "network:handshake_failed"
	ErrCodeRecvFailed      = "network:recv_failed"
	ErrCodeSendFailed      = "network:send_failed"
)

var (
	// ErrHandshakeFailed 表示握手阶段失败（例如 WebSocket 升级失败）。
	ErrHandshakeFailed = errors.New(ErrCodeHandshakeFailed)

	// ErrRecvFailed 表示在读取底层连接数据时发生错误。
	ErrRecvFailed = errors.New(ErrCodeRecvFailed)

	// ErrSendFailed 表示在发送数据到对端时发生错误。
	ErrSendFailed = errors.New(ErrCodeSendFailed)
)
