package tele

import (
	"context"
	"encoding/json"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/spq"
	"github.com/temoto/umb/helpers"
	"github.com/temoto/umb/log2"
	tele_config "github.com/temoto/umb/tele/config"
)

const (
	defaultStateInterval  = 5 * time.Minute
	defaultNetworkTimeout = 30 * time.Second
)

// Tele contract:
// - Init() fails only with invalid config, network issues ignored
// - Reading() blocks at most for disk write,
//   network may be slow or absent, messages will be delivered in background
// - queued messages survive restart on disk
// - Reading messages delivered at least once
// - State messages may be lost
type Tele struct { //nolint:maligned
	enabled       bool
	log           *log2.Log
	transport     Transporter
	q             *spq.Queue
	stateCh       chan State
	stopCh        chan struct{}
	stationId     int32
	stateInterval time.Duration
}

func New() *Tele { return &Tele{} }

// NewWithTransporter is the test entry, production Init picks MQTT.
func NewWithTransporter(trans Transporter) *Tele {
	return &Tele{transport: trans}
}

func (self *Tele) Init(ctx context.Context, log *log2.Log, teleConfig tele_config.Config) error {
	self.enabled = teleConfig.Enabled
	self.log = log.Clone(log2.LInfo)
	if teleConfig.LogDebug {
		self.log.SetLevel(log2.LDebug)
	}
	if !self.enabled {
		return nil
	}

	self.stopCh = make(chan struct{})
	self.stateCh = make(chan State)
	self.stationId = int32(teleConfig.StationId)
	self.stateInterval = helpers.IntSecondDefault(teleConfig.StateIntervalSec, defaultStateInterval)

	if teleConfig.PersistPath == "" {
		panic("code error must set teleConfig.PersistPath")
	}
	var err error
	self.q, err = spq.Open(teleConfig.PersistPath)
	if err != nil {
		return errors.Annotate(err, "tele queue")
	}

	willPayload := []byte{byte(StateDisconnected)}
	// test code sets .transport
	if self.transport == nil { // production path
		self.transport = &transportMqtt{}
	}
	if err := self.transport.Init(ctx, log, teleConfig, willPayload); err != nil {
		return errors.Annotate(err, "tele transport")
	}

	go self.qworker()
	go self.stateWorker()
	self.stateCh <- StateBoot
	return nil
}

func (self *Tele) Close() {
	if !self.enabled {
		return
	}
	close(self.stopCh)
	self.q.Close()
	self.transport.Close()
}

// State queues a status change. Only transitions are sent immediately,
// stateWorker repeats the current value on a timer.
func (self *Tele) State(next State) {
	if !self.enabled {
		return
	}
	select {
	case self.stateCh <- next:
	case <-self.stopCh:
	}
}

// Reading persists one poll cycle for background delivery.
func (self *Tele) Reading(r *Reading) error {
	if !self.enabled {
		return nil
	}
	if r.StationId == 0 {
		r.StationId = self.stationId
	}
	if r.Time == 0 {
		r.Time = time.Now().UnixNano()
	}
	return self.qpushTagJson(qReading, r)
}

func (self *Tele) stateWorker() {
	const retryInterval = 17 * time.Second
	var b [1]byte
	var sent bool
	tmrRegular := time.NewTicker(self.stateInterval)
	tmrRetry := time.NewTicker(retryInterval)
	defer tmrRegular.Stop()
	defer tmrRetry.Stop()
	for {
		select {
		case next := <-self.stateCh:
			if next != State(b[0]) {
				b[0] = byte(next)
				sent = self.transport.SendState(b[:])
			}

		case <-tmrRegular.C:
			sent = self.transport.SendState(b[:])

		case <-tmrRetry.C:
			if !sent {
				sent = self.transport.SendState(b[:])
			}

		case <-self.stopCh:
			return
		}
	}
}

// denote value type in persistent queue bytes form
const (
	qReading byte = 1
)

func (self *Tele) qworker() {
	for {
		box, err := self.q.Peek()
		switch err {
		case nil:
			// success path
			b := box.Bytes()
			var del bool
			del, err = self.qhandle(b)
			if err != nil {
				self.log.Errorf("tele qhandle b=%x err=%v", b, err)
			}
			if del {
				if err = self.q.Delete(box); err != nil {
					self.log.Errorf("tele qhandle Delete b=%x err=%v", b, err)
				}
			} else {
				if err = self.q.DeletePush(box); err != nil {
					self.log.Errorf("tele qhandle DeletePush b=%x err=%v", b, err)
				}
			}

		case spq.ErrClosed:
			select {
			case <-self.stopCh: // success path
			default:
				self.log.Errorf("CRITICAL tele spq closed unexpectedly")
			}
			return

		default:
			self.log.Errorf("CRITICAL tele spq err=%v", err)
			// here will go yet unhandled shit like disk full
			time.Sleep(1 * time.Second)
		}
	}
}

func (self *Tele) qhandle(b []byte) (bool, error) {
	if len(b) == 0 {
		self.log.Errorf("tele spq peek=empty")
		// what else can we do?
		return true, nil
	}

	switch b[0] {
	case qReading:
		return self.transport.SendReadings(b[1:]), nil

	default:
		return true, errors.Errorf("unknown kind=%d", b[0])
	}
}

func (self *Tele) qpushTagJson(tag byte, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		// retry will not help
		return errors.Annotatef(err, "tele marshal %#v", v)
	}
	buf := make([]byte, 0, 1+len(b))
	buf = append(buf, tag)
	buf = append(buf, b...)
	return self.q.Push(buf)
}
