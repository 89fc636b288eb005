// Package station glues one UMB device to telemetry: poll configured
// channels on a timer, translate device statuses, ship readings.
package station

import (
	"context"
	"path/filepath"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"github.com/temoto/atomic_clock"
	"github.com/temoto/umb/helpers"
	"github.com/temoto/umb/log2"
	"github.com/temoto/umb/tele"
	"github.com/temoto/umb/umb"
	"github.com/temoto/umb/umb/status"
)

const DefaultPollInterval = 30 * time.Second

type Station struct {
	Alive  *alive.Alive
	Config *Config
	Log    *log2.Log
	Tele   *tele.Tele
	// Transport set before Init overrides umb config. Tests inject simulators here.
	Transport umb.Transport

	client   *umb.Client
	device   byte
	channels []uint16
	names    map[uint16]string
	interval time.Duration
	lastOk   atomic_clock.Clock
}

func New(log *log2.Log) *Station {
	if log == nil {
		panic("code error station.New log=nil")
	}
	return &Station{
		Alive: alive.NewAlive(),
		Log:   log,
		Tele:  tele.New(),
	}
}

// If `Init` fails, consider `Station` is in broken state.
func (self *Station) Init(ctx context.Context, config *Config) error {
	self.Config = config
	if config.Station.LogDebug {
		self.Log.SetLevel(log2.LDebug)
	}

	if len(config.Station.Channels) == 0 {
		return errors.Errorf("config: station has no channels")
	}
	self.channels = make([]uint16, 0, len(config.Station.Channels))
	self.names = make(map[uint16]string, len(config.Station.Channels))
	for _, cc := range config.Station.Channels {
		if cc.Number < 1 || cc.Number > 0xffff {
			return errors.Errorf("config: channel name=%s number=%d not in 1..65535", cc.Name, cc.Number)
		}
		ch := uint16(cc.Number)
		self.channels = append(self.channels, ch)
		self.names[ch] = cc.Name
	}

	self.device = umb.DefaultDeviceAddress
	if config.Umb.DeviceAddress != 0 {
		if config.Umb.DeviceAddress < 0 || config.Umb.DeviceAddress > 0xff {
			return errors.Errorf("config: umb.device_address=%d not in 1..255", config.Umb.DeviceAddress)
		}
		self.device = byte(config.Umb.DeviceAddress)
	}
	self.interval = helpers.IntSecondDefault(config.Station.PollIntervalSec, DefaultPollInterval)

	if self.Alive == nil {
		self.Alive = alive.NewAlive()
	}
	if self.Tele == nil {
		self.Tele = tele.New()
	}

	if config.Persist.Root == "" {
		config.Persist.Root = "./tmp-umb-db"
		self.Log.Errorf("config: persist.root=empty changed=%s", config.Persist.Root)
	}

	// Since tele is the remote reporting mechanism, it must be inited before anything else
	if config.Tele.PersistPath == "" {
		config.Tele.PersistPath = filepath.Join(config.Persist.Root, "tele")
	}
	if err := self.Tele.Init(ctx, self.Log.Clone(log2.LInfo), config.Tele); err != nil {
		return errors.Annotate(err, "tele init")
	}

	if self.Transport == nil {
		t, err := self.openTransport()
		if err != nil {
			return errors.Annotate(err, "umb transport")
		}
		self.Transport = t
	}
	self.client = umb.NewClient(self.Transport, self.Log)
	self.Log.Debugf("station: init device=%d channels=%d interval=%s one_call=%t",
		self.device, len(self.channels), self.interval, config.Station.OneCall)
	return nil
}

// Run polls until Stop. Blocks the caller.
func (self *Station) Run() {
	if !self.Alive.Add(1) {
		return
	}
	defer self.Alive.Done()

	self.pollOnce()
	tick := time.NewTicker(self.interval)
	defer tick.Stop()
	stopCh := self.Alive.StopChan()
	for {
		select {
		case <-tick.C:
			self.pollOnce()
		case <-stopCh:
			return
		}
	}
}

func (self *Station) Stop() {
	self.Alive.Stop()
	self.Alive.Wait()
	if self.client != nil {
		if err := self.client.Close(); err != nil {
			self.Log.Errorf("station: transport close err=%v", err)
		}
	}
	self.Tele.Close()
}

// SinceLastOk is the age of the last poll that returned any data,
// -1 before the first one.
func (self *Station) SinceLastOk() time.Duration {
	if self.lastOk.IsZero() {
		return -1
	}
	return atomic_clock.Since(&self.lastOk)
}

func (self *Station) PollInterval() time.Duration { return self.interval }

func (self *Station) pollOnce() {
	rs, err := self.query()
	if err != nil {
		self.Log.Errorf("station: poll device=%d err=%v", self.device, err)
	}
	if len(rs) == 0 {
		// device is silent, the will payload covers station death, this covers device death
		self.Tele.State(tele.StateProblem)
		return
	}
	self.lastOk.SetNow()

	r := &tele.Reading{Values: make(map[uint16]float64, len(rs))}
	for _, res := range rs {
		if res.Status == umb.StatusOK {
			r.Values[res.Channel] = res.Value
			continue
		}
		if r.Errors == nil {
			r.Errors = make(map[uint16]string)
		}
		r.Errors[res.Channel] = status.Message(res.Status)
		self.Log.Errorf("station: channel=%d name=%s status=%s", res.Channel, self.names[res.Channel], status.Message(res.Status))
	}
	self.Tele.State(tele.StateOnline)
	if err := self.Tele.Reading(r); err != nil {
		self.Log.Errorf("station: reading err=%v", err)
	}
	self.Log.Debugf("station: poll done values=%d errors=%d", len(r.Values), len(r.Errors))
}

func (self *Station) query() ([]umb.Result, error) {
	if self.Config.Station.OneCall {
		return self.client.OnlineDataQueryMultiOneCall(self.device, self.channels)
	}
	return self.client.OnlineDataQueryMulti(self.device, self.channels)
}

func (self *Station) openTransport() (umb.Transport, error) {
	uc := &self.Config.Umb
	responseTimeout := helpers.IntMillisecondDefault(uc.ResponseTimeoutMs, 0)
	idleGap := helpers.IntMillisecondDefault(uc.IdleGapMs, 0)
	switch {
	case uc.NetAddress != "":
		self.Log.Debugf("station: umb transport net=%s", uc.NetAddress)
		return umb.NewNetTransport(uc.NetAddress, 0, responseTimeout, idleGap)
	case uc.SerialDevice != "":
		self.Log.Debugf("station: umb transport serial=%s baud=%d", uc.SerialDevice, uc.SerialBaud)
		return umb.NewFileTransport(uc.SerialDevice, uc.SerialBaud, responseTimeout, idleGap)
	}
	return nil, errors.Errorf("config: umb.net_address or umb.serial_device required")
}
