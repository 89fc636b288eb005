package station

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/umb/log2"
	"github.com/temoto/umb/tele"
	"github.com/temoto/umb/umb"
)

func simDevice() *umb.DeviceSim {
	return &umb.DeviceSim{Addr: 1, Channels: map[uint16]umb.SimChannel{
		113: {Type: umb.TypeUint16, Value: 113},
		460: {Type: umb.TypeFloat64, Value: -0.5},
	}}
}

func testEnv(t testing.TB, confHcl string, sim *umb.DeviceSim) (*Station, *tele.MockTransport) {
	log := log2.NewTest(t, log2.LDebug)
	fs := NewMockFullReader(map[string]string{"test-inline": confHcl})
	cfg := MustReadConfig(log, fs, "test-inline")
	cfg.Persist.Root = t.TempDir()

	st := New(log)
	mock := &tele.MockTransport{T: t, OutBuffer: 32}
	st.Tele = tele.NewWithTransporter(mock)
	ct := umb.NewChanTransport()
	go func() {
		for req := range ct.Req {
			ct.Resp <- sim.Handle(req)
		}
	}()
	st.Transport = ct
	require.NoError(t, st.Init(context.Background(), cfg))
	return st, mock
}

func waitOut(t testing.TB, ch chan []byte, tag string) []byte {
	t.Helper()
	select {
	case b := <-ch:
		return b
	case <-time.After(5 * time.Second):
		t.Fatalf("timeout waiting for %s", tag)
		return nil
	}
}

func TestPollReading(t *testing.T) {
	t.Parallel()
	conf := `
station {
	channel "temp" { number = 113 }
	channel "wind_min" { number = 460 }
	channel "ghost" { number = 9999 }
}
tele { enable = true station_id = 5 }`
	st, mock := testEnv(t, conf, simDevice())

	assert.Equal(t, []byte{byte(tele.StateBoot)}, waitOut(t, mock.OutState, "boot state"))

	st.pollOnce()

	assert.Equal(t, []byte{byte(tele.StateOnline)}, waitOut(t, mock.OutState, "online state"))
	var r tele.Reading
	require.NoError(t, json.Unmarshal(waitOut(t, mock.OutReadings, "reading"), &r))
	assert.Equal(t, int32(5), r.StationId)
	assert.NotZero(t, r.Time)
	assert.Equal(t, map[uint16]float64{113: 113, 460: -0.5}, r.Values)
	assert.Equal(t, map[uint16]string{9999: "Invalid channel"}, r.Errors)
	assert.True(t, st.SinceLastOk() >= 0)

	st.Stop()
}

func TestPollDeviceSilent(t *testing.T) {
	t.Parallel()
	conf := `
station { channel "temp" { number = 113 } }
tele { enable = true station_id = 5 }`
	// device 2 on the bus, nobody answers master calling 1
	sim := &umb.DeviceSim{Addr: 2}
	st, mock := testEnv(t, conf, sim)

	assert.Equal(t, []byte{byte(tele.StateBoot)}, waitOut(t, mock.OutState, "boot state"))
	st.pollOnce()
	assert.Equal(t, []byte{byte(tele.StateProblem)}, waitOut(t, mock.OutState, "problem state"))
	assert.Equal(t, time.Duration(-1), st.SinceLastOk())
	st.Stop()
}

func TestRunStop(t *testing.T) {
	t.Parallel()
	conf := `
station {
	poll_interval_sec = 1
	one_call = true
	channel "temp" { number = 113 }
}
tele { enable = true station_id = 5 }`
	st, mock := testEnv(t, conf, simDevice())

	go st.Run()
	// first poll is immediate, no waiting out the interval
	var r tele.Reading
	require.NoError(t, json.Unmarshal(waitOut(t, mock.OutReadings, "first reading"), &r))
	assert.Equal(t, map[uint16]float64{113: 113}, r.Values)

	st.Stop()
	assert.False(t, st.Alive.IsRunning())
}

func TestInitErrors(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name      string
		input     string
		expectErr string
	}{
		{"no-channels", `station { name = "x" }`, "station has no channels"},
		{"channel-range", `station { channel "z" { number = 70000 } }`, "not in 1..65535"},
		{"device-range", `
station { channel "t" { number = 100 } }
umb { device_address = 300 serial_device = "/dev/null" }`, "not in 1..255"},
		{"no-transport", `station { channel "t" { number = 100 } }`, "umb.net_address or umb.serial_device required"},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			log := log2.NewTest(t, log2.LDebug)
			fs := NewMockFullReader(map[string]string{"test-inline": c.input})
			cfg := MustReadConfig(log, fs, "test-inline")
			cfg.Persist.Root = t.TempDir()
			st := New(log)
			err := st.Init(context.Background(), cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), c.expectErr)
		})
	}
}
