// umbd polls a Lufft UMB weather device and ships readings to telemetry.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/daemon"
	"github.com/juju/errors"
	"github.com/temoto/umb/log2"
	"github.com/temoto/umb/station"
)

var BuildVersion string = "unknown" // set by ldflags -X

const watchdogStalePolls = 3

var log = log2.NewStderr(log2.LInfo)

func main() {
	cmdline := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	flagConfig := cmdline.String("config", "umb.hcl", "")
	_ = cmdline.Parse(os.Args[1:])

	if sdnotify("start") {
		// under systemd journal adds timestamps
		log.SetFlags(log2.LServiceFlags)
	} else {
		log.SetFlags(log2.LInteractiveFlags)
	}
	log.Infof("umbd version=%s", BuildVersion)

	config := station.MustReadConfig(log, station.NewOsFullReader(), *flagConfig)
	st := station.New(log)
	if err := st.Init(context.Background(), config); err != nil {
		log.Fatal(errors.ErrorStack(err))
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigs
		log.Infof("stop on signal=%v", sig)
		st.Alive.Stop()
	}()

	sdnotify(daemon.SdNotifyReady)
	if wdInterval, err := daemon.SdWatchdogEnabled(false); err != nil {
		log.Fatal("sd_watchdog: ", errors.ErrorStack(err))
	} else if wdInterval > 0 {
		go watchdog(st, wdInterval)
	}
	log.Infof("umbd init complete, polling")
	st.Run()
	st.Stop()
}

// watchdog pings systemd every interval/2. Pings stop when polls stall
// for watchdogStalePolls intervals after the first success, then systemd
// restarts the service. A device that never answered keeps pings going.
func watchdog(st *station.Station, interval time.Duration) {
	stale := watchdogStalePolls * st.PollInterval()
	tick := time.NewTicker(interval / 2)
	defer tick.Stop()
	for range tick.C {
		if !st.Alive.IsRunning() {
			return
		}
		if since := st.SinceLastOk(); since > stale {
			log.Errorf("umbd: polls stalled for %v, watchdog pings stop", since)
			return
		}
		sdnotify(daemon.SdNotifyWatchdog)
	}
}

func sdnotify(s string) bool {
	ok, err := daemon.SdNotify(false, s)
	if err != nil {
		log.Fatal("sdnotify: ", errors.ErrorStack(err))
	}
	return ok
}
