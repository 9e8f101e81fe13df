package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseFrameDrop(t *testing.T) {
	assert.Equal(t, FrameDropOn, parseFrameDrop("on"))
	assert.Equal(t, FrameDropOn, parseFrameDrop("1"))
	assert.Equal(t, FrameDropOff, parseFrameDrop("off"))
	assert.Equal(t, FrameDropOff, parseFrameDrop("0"))
	assert.Equal(t, FrameDropAuto, parseFrameDrop("auto"))
	assert.Equal(t, FrameDropAuto, parseFrameDrop("nonsense"))
}

func TestParseReorderPTS(t *testing.T) {
	assert.Equal(t, ReorderPTSOn, parseReorderPTS("TRUE"))
	assert.Equal(t, ReorderPTSOff, parseReorderPTS("false"))
	assert.Equal(t, ReorderPTSAuto, parseReorderPTS(""))
}

func TestGetEnv_FallsBackToDefaultWhenUnset(t *testing.T) {
	assert.Equal(t, "fallback", getEnv("CONFIG_TEST_UNSET_VAR", "fallback"))

	t.Setenv("CONFIG_TEST_VAR", "custom")
	assert.Equal(t, "custom", getEnv("CONFIG_TEST_VAR", "fallback"))
}

func TestGetBoolEnv(t *testing.T) {
	t.Setenv("CONFIG_TEST_BOOL", "true")
	assert.True(t, getBoolEnv("CONFIG_TEST_BOOL", false))

	t.Setenv("CONFIG_TEST_BOOL", "not-a-bool")
	assert.False(t, getBoolEnv("CONFIG_TEST_BOOL", false))

	assert.True(t, getBoolEnv("CONFIG_TEST_BOOL_UNSET", true))
}

func TestGetIntEnv(t *testing.T) {
	t.Setenv("CONFIG_TEST_INT", "42")
	assert.Equal(t, 42, getIntEnv("CONFIG_TEST_INT", 0))

	t.Setenv("CONFIG_TEST_INT", "not-an-int")
	assert.Equal(t, 7, getIntEnv("CONFIG_TEST_INT", 7))
}

func TestGetDurationEnv(t *testing.T) {
	t.Setenv("CONFIG_TEST_DURATION", "5s")
	assert.Equal(t, 5*time.Second, getDurationEnv("CONFIG_TEST_DURATION", 0))

	t.Setenv("CONFIG_TEST_DURATION", "2.5")
	assert.Equal(t, 2500*time.Millisecond, getDurationEnv("CONFIG_TEST_DURATION", 0))

	t.Setenv("CONFIG_TEST_DURATION", "garbage")
	assert.Equal(t, time.Second, getDurationEnv("CONFIG_TEST_DURATION", time.Second))
}

func TestGetListEnv_AppendsToDefaults(t *testing.T) {
	defaults := []string{"rtp", "rtsp"}

	assert.Equal(t, defaults, getListEnv("CONFIG_TEST_LIST_UNSET", defaults))

	t.Setenv("CONFIG_TEST_LIST", "custom1, custom2,")
	got := getListEnv("CONFIG_TEST_LIST", defaults)
	assert.Equal(t, []string{"rtp", "rtsp", "custom1", "custom2"}, got)
}

func TestLoad_DefaultsWhenEnvironmentEmpty(t *testing.T) {
	for _, key := range []string{
		"FRAME_DROP", "REORDER_PTS", "LOOP", "SYNC_TYPE", "INFINITE_BUFFER",
		"DISABLE_AUDIO", "DISABLE_VIDEO", "AUTO_EXIT", "MAX_PACKET_QUEUE_BYTES",
		"REALTIME_SCHEMES", "WINDOW_TITLE", "METRICS_ADDR", "START_TIME", "DURATION",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()
	assert.Equal(t, FrameDropAuto, cfg.FrameDrop)
	assert.Equal(t, ReorderPTSAuto, cfg.ReorderPTS)
	assert.True(t, cfg.AutoExit)
	assert.Equal(t, maxPacketQueueSizeDefault, cfg.MaxPacketQueueBytes)
	assert.Equal(t, defaultRealtimeSchemes, cfg.RealtimeSchemes)
}
