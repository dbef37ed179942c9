package validator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidator_ChannelName(t *testing.T) {
	v := New(8, 0)

	valid := []string{"general", "Local", "频道", "a-b_c.d"}
	for _, name := range valid {
		assert.True(t, v.IsValidChannelName(name), name)
	}

	invalid := []string{"", "has space", "tab\tname", "toolongname", "bell\a", " nbsp"}
	for _, name := range invalid {
		assert.False(t, v.IsValidChannelName(name), name)
	}

	// 非法 UTF-8 在线路上会显示为 U+FFFD，不同字节序列将无法区分。
	assert.False(t, v.IsValidChannelName("gen\xffral"))
	assert.False(t, v.IsValidChannelName("gen\xferal"))
}

func TestValidator_Message(t *testing.T) {
	v := New(0, 16)

	assert.True(t, v.IsValidMessage("hi"))
	assert.True(t, v.IsValidMessage("line1\nline2"))
	assert.True(t, v.IsValidMessage("你好，世界"))

	assert.False(t, v.IsValidMessage(""))
	assert.False(t, v.IsValidMessage("   \n\t"))
	assert.False(t, v.IsValidMessage("nul\x00byte"))
	assert.False(t, v.IsValidMessage("bad\xffutf8"))
	assert.False(t, v.IsValidMessage(strings.Repeat("x", 17)))
}

func TestNewDefault(t *testing.T) {
	v := NewDefault()
	assert.True(t, v.IsValidChannelName(strings.Repeat("c", DefaultChannelNameMaxLen)))
	assert.False(t, v.IsValidChannelName(strings.Repeat("c", DefaultChannelNameMaxLen+1)))
	assert.True(t, v.IsValidMessage(strings.Repeat("m", DefaultMessageMaxLen)))
	assert.False(t, v.IsValidMessage(strings.Repeat("m", DefaultMessageMaxLen+1)))
}
