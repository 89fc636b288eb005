package tele

import (
	"context"
	"testing"
	"time"

	"github.com/temoto/umb/log2"
	tele_config "github.com/temoto/umb/tele/config"
)

// MockTransport records outgoing payloads for tests, delivery blocks until
// somebody reads the Out channels or NetworkTimeout passes.
type MockTransport struct {
	T              testing.TB
	NetworkTimeout time.Duration
	OutBuffer      int
	OutReadings    chan []byte
	OutState       chan []byte
	Will           []byte
}

func (self *MockTransport) Init(ctx context.Context, log *log2.Log, teleConfig tele_config.Config, willPayload []byte) error {
	if self.NetworkTimeout == 0 {
		self.NetworkTimeout = defaultNetworkTimeout
	}
	self.Will = willPayload
	self.OutReadings = make(chan []byte, self.OutBuffer)
	self.OutState = make(chan []byte, self.OutBuffer)
	return nil
}

func (self *MockTransport) Close() {}

func (self *MockTransport) SendState(payload []byte) bool {
	select {
	case self.OutState <- copyBytes(payload):
		self.T.Logf("mock delivered state=%x", payload)
	case <-time.After(self.NetworkTimeout):
		self.T.Logf("mock network timeout")
		return false
	}
	return true
}

func (self *MockTransport) SendReadings(payload []byte) bool {
	select {
	case self.OutReadings <- copyBytes(payload):
		self.T.Logf("mock delivered readings=%s", payload)
	case <-time.After(self.NetworkTimeout):
		self.T.Logf("mock network timeout")
		return false
	}
	return true
}

// split send/receive buffer identity for safe concurrent access
func copyBytes(b []byte) []byte {
	c := make([]byte, len(b))
	copy(c, b)
	return c
}
