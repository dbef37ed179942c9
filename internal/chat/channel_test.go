package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChannelID_Resolve(t *testing.T) {
	cases := []struct {
		id       ChannelID
		name     string
		isSystem bool
	}{
		{Named("general"), "general", false},
		{Named("world"), "world", false},
		{SystemToken("local"), "Local", true},
		{SystemToken("world"), "World", true},
		{SystemToken("trade"), "Trade", true},
		{SystemToken("guild"), "Guild", true},
		{SystemToken("team"), "Team", true},
		{SystemToken("party"), DefaultSystemChannel, true},
		{SystemToken(""), DefaultSystemChannel, true},
	}
	for _, c := range cases {
		name, isSystem := c.id.Resolve()
		assert.Equal(t, c.name, name, c.id.String())
		assert.Equal(t, c.isSystem, isSystem, c.id.String())
	}
}

func TestChannelID_Key(t *testing.T) {
	assert.NotEqual(t, Named("local"), SystemToken("local"))
	assert.NotEqual(t, SystemToken("party"), SystemToken("local"))
	assert.Equal(t, "token:world", SystemToken("world").String())
	assert.Equal(t, "name:general", Named("general").String())
}

func TestChannel_Members(t *testing.T) {
	a, b, c := newRecordingSession("a"), newRecordingSession("b"), newRecordingSession("c")
	ch := newChannel(Named("general"))
	ch.add(a)
	ch.add(b)
	ch.add(c)

	snapshot := ch.Members()
	assert.True(t, ch.remove(b))
	assert.False(t, ch.remove(b))
	assert.Equal(t, []string{"a", "b", "c"}, memberNames(snapshot))
	assert.Equal(t, []string{"a", "c"}, memberNames(ch.Members()))
	assert.False(t, ch.Contains(b))
	assert.Equal(t, 2, ch.Len())
}
