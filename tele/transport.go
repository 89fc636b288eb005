package tele

import (
	"context"

	"github.com/temoto/umb/log2"
	tele_config "github.com/temoto/umb/tele/config"
)

// Tele transport contract:
// - Init fails only with invalid config, ignores network errors
// - Send* deliver within timeout or return false; success includes broker ack
// - hide "connection" concept from upstream, application may start without network
// - assume worst network quality: packet loss, reorder, duplicates
type Transporter interface {
	Init(ctx context.Context, log *log2.Log, teleConfig tele_config.Config, willPayload []byte) error
	SendState(payload []byte) bool
	SendReadings(payload []byte) bool
	Close()
}
