package config

import (
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigFs(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    func(t *testing.T, c Config)
		wantErr bool
	}{
		{
			name:    "defaults when the file is missing",
			content: "",
			want: func(t *testing.T, c Config) {
				assert.Equal(t, DefaultEventSource(), c.EventSource)
				assert.Equal(t, 10, c.ChannelCapacity)
				assert.Equal(t, time.Second, c.PullTimeout)
				assert.Equal(t, 100*time.Millisecond, c.IdleInterval)
				assert.Equal(t, time.Duration(0), c.SendTimeout)
				assert.Equal(t, 250*time.Millisecond, c.ConsumerPollInterval)
				assert.Equal(t, DecodeFailureSkip, c.DecodeFailurePolicy)
				assert.False(t, c.OneShot)
				assert.True(t, c.Reconnect.Enabled)
				assert.Equal(t, time.Second, c.Reconnect.InitialInterval)
				assert.Equal(t, 30*time.Second, c.Reconnect.MaxInterval)
				assert.Equal(t, uint64(0), c.Reconnect.MaxRetries)
				assert.Equal(t, 8080, c.PrometheusPort)
				assert.Equal(t, 7888, c.HealthPort)
				assert.Nil(t, c.Exporters.StdoutExporter)
			},
		},
		{
			name: "values from file",
			content: `{
				"eventSource": "procscan",
				"channelCapacity": 64,
				"pullTimeout": "2s",
				"idleInterval": "50ms",
				"sendTimeout": "10ms",
				"decodeFailurePolicy": "abort",
				"oneShot": true,
				"reconnect": {"enabled": false, "maxRetries": 3},
				"prometheusExporterEnabled": true,
				"exporters": {"stdoutExporter": false, "syslogExporterURL": "127.0.0.1:514", "syslogProtocol": "tcp"}
			}`,
			want: func(t *testing.T, c Config) {
				assert.Equal(t, EventSourceProcScan, c.EventSource)
				assert.Equal(t, 64, c.ChannelCapacity)
				assert.Equal(t, 2*time.Second, c.PullTimeout)
				assert.Equal(t, 50*time.Millisecond, c.IdleInterval)
				assert.Equal(t, 10*time.Millisecond, c.SendTimeout)
				assert.True(t, c.AbortOnDecodeFailure())
				assert.True(t, c.OneShot)
				assert.False(t, c.Reconnect.Enabled)
				assert.Equal(t, uint64(3), c.Reconnect.MaxRetries)
				assert.Equal(t, time.Second, c.Reconnect.InitialInterval)
				assert.True(t, c.EnablePrometheusExporter)
				require.NotNil(t, c.Exporters.StdoutExporter)
				assert.False(t, *c.Exporters.StdoutExporter)
				assert.Equal(t, "127.0.0.1:514", c.Exporters.SyslogExporter)
				assert.Equal(t, "tcp", c.Exporters.SyslogProtocol)
			},
		},
		{
			name:    "invalid capacity",
			content: `{"channelCapacity": 0}`,
			wantErr: true,
		},
		{
			name:    "unknown source",
			content: `{"eventSource": "dtrace"}`,
			wantErr: true,
		},
		{
			name:    "malformed json",
			content: `{"channelCapacity": `,
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			if tt.content != "" {
				require.NoError(t, afero.WriteFile(fs, "/etc/config/config.json", []byte(tt.content), 0644))
			}
			c, err := LoadConfigFs(fs, "/etc/config")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.want(t, c)
		})
	}
}

func TestValidate(t *testing.T) {
	valid := Config{
		EventSource:          EventSourceNetlink,
		ChannelCapacity:      1,
		PullTimeout:          time.Second,
		ConsumerPollInterval: time.Second,
		DecodeFailurePolicy:  DecodeFailureSkip,
	}
	assert.NoError(t, valid.Validate())

	invalid := valid
	invalid.PullTimeout = 0
	invalid.SendTimeout = -time.Second
	invalid.DecodeFailurePolicy = "retry"
	invalid.Reconnect.Enabled = true
	err := invalid.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pullTimeout")
	assert.Contains(t, err.Error(), "sendTimeout")
	assert.Contains(t, err.Error(), "decodeFailurePolicy")
	assert.Contains(t, err.Error(), "reconnect.initialInterval")
}
