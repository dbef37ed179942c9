package validator

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	playground "github.com/go-playground/validator/v10"

	"github.com/lk2023060901/danmu-garden-chat/internal/chat"
)

const (
	DefaultChannelNameMaxLen = 32
	DefaultMessageMaxLen     = 512

	channelNameTag = "chat_channel_name"
	messageTextTag = "chat_message_text"
)

// Validator 是基于 go-playground/validator 的默认频道名与消息校验器。
//
// 规则：
//   - 频道名须为合法 UTF-8，非空、不超过 nameMaxLen 个字符，且只能包含可见字符，不含空白；
//   - 消息须为合法 UTF-8，去掉首尾空白后非空、不超过 messageMaxLen 个字符，且不含控制字符（换行与制表符除外）。
type Validator struct {
	validate *playground.Validate

	nameRule    string
	messageRule string
}

var _ chat.Validator = (*Validator)(nil)

// New 创建校验器，非正数的长度限制使用默认值。
func New(nameMaxLen, messageMaxLen int) *Validator {
	if nameMaxLen <= 0 {
		nameMaxLen = DefaultChannelNameMaxLen
	}
	if messageMaxLen <= 0 {
		messageMaxLen = DefaultMessageMaxLen
	}

	validate := playground.New()
	// 自定义规则只会在注册时出错，tag 为常量。
	_ = validate.RegisterValidation(channelNameTag, isChannelName)
	_ = validate.RegisterValidation(messageTextTag, isMessageText)

	return &Validator{
		validate:    validate,
		nameRule:    fmt.Sprintf("required,max=%d,%s", nameMaxLen, channelNameTag),
		messageRule: fmt.Sprintf("required,max=%d,%s", messageMaxLen, messageTextTag),
	}
}

func NewDefault() *Validator {
	return New(DefaultChannelNameMaxLen, DefaultMessageMaxLen)
}

func (v *Validator) IsValidChannelName(name string) bool {
	return v.validate.Var(name, v.nameRule) == nil
}

func (v *Validator) IsValidMessage(text string) bool {
	return v.validate.Var(text, v.messageRule) == nil
}

func isChannelName(fl playground.FieldLevel) bool {
	name := fl.Field().String()
	if !utf8.ValidString(name) {
		return false
	}
	for _, r := range name {
		if !unicode.IsPrint(r) || unicode.IsSpace(r) {
			return false
		}
	}
	return true
}

func isMessageText(fl playground.FieldLevel) bool {
	text := fl.Field().String()
	if !utf8.ValidString(text) || strings.TrimSpace(text) == "" {
		return false
	}
	for _, r := range text {
		if r == '\n' || r == '\t' {
			continue
		}
		if unicode.IsControl(r) {
			return false
		}
	}
	return true
}
