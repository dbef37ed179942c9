package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/danmu-garden-chat/pkg/util/merr"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("", false)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_MissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg, err := Load(path, true)
	require.NoError(t, err)
	assert.Equal(t, 1024, cfg.Router.MailboxSize)

	_, err = Load(path, false)
	assert.Error(t, err)
}

func TestLoad_File(t *testing.T) {
	path := writeFile(t, "config.yaml", `
router:
  mailbox_size: 128
  message_max_len: 256
gateway:
  listen_addr: "0.0.0.0:9000"
  write_timeout: 5s
debug:
  enable: false
log:
  level: debug
  format: json
`)

	cfg, err := Load(path, false)
	require.NoError(t, err)
	assert.Equal(t, 128, cfg.Router.MailboxSize)
	assert.Equal(t, 32, cfg.Router.ChannelNameMaxLen)
	assert.Equal(t, 256, cfg.Router.MessageMaxLen)
	assert.Equal(t, "0.0.0.0:9000", cfg.Gateway.ListenAddr)
	assert.Equal(t, "/ws", cfg.Gateway.Path)
	assert.Equal(t, 5*time.Second, cfg.Gateway.WriteTimeout)
	assert.False(t, cfg.Debug.Enable)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("CHAT_ROUTER_MAILBOX_SIZE", "64")
	t.Setenv("CHAT_GATEWAY_LISTEN_ADDR", "127.0.0.1:8000")

	path := writeFile(t, "config.json", `{"router": {"mailbox_size": 128}}`)
	cfg, err := Load(path, false)
	require.NoError(t, err)
	assert.Equal(t, 64, cfg.Router.MailboxSize)
	assert.Equal(t, "127.0.0.1:8000", cfg.Gateway.ListenAddr)
}

func TestLoad_Invalid(t *testing.T) {
	path := writeFile(t, "config.yaml", `
router:
  mailbox_size: 0
`)
	_, err := Load(path, false)
	assert.ErrorIs(t, err, merr.ErrParameterInvalid)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	cfg.Gateway.ListenAddr = ""
	assert.ErrorIs(t, cfg.Validate(), merr.ErrParameterMissing)

	cfg = Default()
	cfg.Gateway.Path = "ws"
	assert.ErrorIs(t, cfg.Validate(), merr.ErrParameterInvalid)

	cfg = Default()
	cfg.Debug.ListenAddr = "not-an-addr"
	assert.ErrorIs(t, cfg.Validate(), merr.ErrParameterInvalid)
	cfg.Debug.Enable = false
	assert.NoError(t, cfg.Validate())

	cfg = Default()
	cfg.Router.MailboxSize = -1
	cfg.Gateway.SendQueueSize = 0
	err := cfg.Validate()
	assert.ErrorIs(t, err, merr.ErrParameterInvalid)
	assert.Contains(t, err.Error(), "router.mailbox_size")
	assert.Contains(t, err.Error(), "gateway.send_queue_size")
}
