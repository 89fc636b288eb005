package station

import (
	"strings"
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/umb/log2"
)

func TestReadConfig(t *testing.T) {
	t.Parallel()

	type Case struct {
		name      string
		input     string
		check     func(testing.TB, *Config)
		expectErr string
	}
	cases := []Case{
		{"empty", "", func(t testing.TB, c *Config) {
			assert.Zero(t, c.Station.PollIntervalSec)
			assert.Empty(t, c.Station.Channels)
		}, ""},

		{"station", `
station {
	name = "roof-west"
	poll_interval_sec = 10
	one_call = true
	channel "temp" { number = 100 }
	channel "rel_humidity" { number = 200 }
}
umb { serial_device = "/dev/shmoo" serial_baud = 19200 }`,
			func(t testing.TB, c *Config) {
				assert.Equal(t, "roof-west", c.Station.Name)
				assert.Equal(t, 10, c.Station.PollIntervalSec)
				assert.True(t, c.Station.OneCall)
				require.Len(t, c.Station.Channels, 2)
				assert.Equal(t, ChannelConfig{Name: "temp", Number: 100}, c.Station.Channels[0])
				assert.Equal(t, ChannelConfig{Name: "rel_humidity", Number: 200}, c.Station.Channels[1])
				assert.Equal(t, "/dev/shmoo", c.Umb.SerialDevice)
				assert.Equal(t, 19200, c.Umb.SerialBaud)
			}, ""},

		{"tele", `tele { enable = true station_id = 7 mqtt_broker = "tcp://broker:1883" }`,
			func(t testing.TB, c *Config) {
				assert.True(t, c.Tele.Enabled)
				assert.Equal(t, 7, c.Tele.StationId)
				assert.Equal(t, "tcp://broker:1883", c.Tele.MqttBroker)
			}, ""},

		{"include-optional", `
include "umb-net" {}
include "non-exist" { optional = true }`,
			func(t testing.TB, c *Config) {
				assert.Equal(t, "10.0.0.5:2101", c.Umb.NetAddress)
			}, ""},

		{"include-overwrites", `
station { poll_interval_sec = 1 }
include "poll-5" {}`,
			func(t testing.TB, c *Config) {
				assert.Equal(t, 5, c.Station.PollIntervalSec)
			}, ""},

		{"error-syntax", `hello`, nil, "key 'hello' expected start of object"},
		{"error-include-loop", `include "include-loop" {}`, nil, "config include loop: from=include-loop include=include-loop"},
		{"error-required-missing", `include "non-exist" {}`, nil, "not found"},
	}
	mkCheck := func(c Case) func(*testing.T) {
		return func(t *testing.T) {
			log := log2.NewTest(t, log2.LDebug)
			fs := NewMockFullReader(map[string]string{
				"test-inline":  c.input,
				"umb-net":      `umb { net_address = "10.0.0.5:2101" }`,
				"poll-5":       `station { poll_interval_sec = 5 }`,
				"include-loop": `include "include-loop" {}`,
			})
			cfg, err := ReadConfig(log, fs, "test-inline")
			if c.expectErr == "" {
				if err != nil {
					t.Fatalf("error expected=nil actual='%v'", errors.ErrorStack(err))
				}
				if c.check != nil {
					c.check(t, cfg)
				}
			} else {
				require.Error(t, err)
				if !strings.Contains(err.Error(), c.expectErr) {
					t.Fatalf("error expected='%s' actual='%v'", c.expectErr, err)
				}
			}
		}
	}
	for _, c := range cases {
		t.Run(c.name, mkCheck(c))
	}
}
