// umb-cli talks to one UMB device for diagnostics: interactive prompt, or
// one-shot channel queries with JSON output for scripts.
package main

import (
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	prompt "github.com/c-bata/go-prompt"
	"github.com/juju/errors"
	"github.com/temoto/umb/helpers/cli"
	"github.com/temoto/umb/log2"
	"github.com/temoto/umb/umb"
	"github.com/temoto/umb/umb/status"
)

const usage = `syntax: commands separated by whitespace
(main)
- NNN          online data query for channel NNN
- multi=N,N..  one-call query for listed channels
- seq=N,N..    sequential queries, one transaction per channel
- sN           pause N milliseconds
- @XX...       transmit raw frame from hex XX..., show response

(meta)
- log=yes  enable debug logging
- log=no   disable debug logging
- loop=N   repeat N times all commands on this line
`

var log = log2.NewStderr(log2.LDebug)

type env struct {
	client    *umb.Client
	transport umb.Transport
	device    byte
}

func main() {
	cmdline := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	devicePath := cmdline.String("device", "/dev/ttyUSB0", "serial port of the UMB transceiver")
	baud := cmdline.Int("baud", 19200, "serial baud rate")
	netAddress := cmdline.String("net", "", "host:port of serial-to-TCP bridge, overrides -device")
	deviceAddr := cmdline.Uint("addr", uint(umb.DefaultDeviceAddress), "UMB device id on the bus")
	timeoutMs := cmdline.Int("timeout-ms", 0, "response timeout, 0 = default")
	_ = cmdline.Parse(os.Args[1:])

	log.SetFlags(log2.LInteractiveFlags)
	if *deviceAddr < 1 || *deviceAddr > 0xff {
		log.Fatalf("-addr=%d not in 1..255", *deviceAddr)
	}

	responseTimeout := time.Duration(*timeoutMs) * time.Millisecond
	var t umb.Transport
	var err error
	if *netAddress != "" {
		t, err = umb.NewNetTransport(*netAddress, 0, responseTimeout, 0)
	} else {
		t, err = umb.NewFileTransport(*devicePath, *baud, responseTimeout, 0)
	}
	if err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
	e := &env{
		client:    umb.NewClient(t, log),
		transport: t,
		device:    byte(*deviceAddr),
	}
	defer e.client.Close()

	if args := cmdline.Args(); len(args) > 0 {
		if err := e.oneShot(args); err != nil {
			log.Fatal(errors.ErrorStack(err))
		}
		return
	}

	cli.MainLoop("umb-cli", e.newExecutor(), newCompleter())
}

// oneShot prints a JSON object of channel values, one query per channel.
// Bad statuses go to stderr and are left out of the JSON.
func (e *env) oneShot(args []string) error {
	values := make(map[uint16]float64, len(args))
	for _, arg := range args {
		n, err := strconv.ParseUint(arg, 10, 16)
		if err != nil {
			return errors.Annotatef(err, "channel=%s", arg)
		}
		if n < 100 || n > 29999 {
			return errors.Errorf("channel=%d not in 100..29999", n)
		}
		ch := uint16(n)
		r, err := e.client.OnlineDataQuery(e.device, ch)
		if err != nil {
			return errors.Annotatef(err, "channel=%d", ch)
		}
		if r.Status != umb.StatusOK {
			fmt.Fprintf(os.Stderr, "On channel %d got bad Status: %s\n", ch, status.Message(r.Status))
			continue
		}
		values[ch] = r.Value
	}
	b, err := json.Marshal(values)
	if err != nil {
		return errors.Trace(err)
	}
	fmt.Println(string(b))
	return nil
}

type cmdFunc func(e *env) error

func (e *env) newExecutor() func(string) {
	return func(line string) {
		cmds, loopn, err := parseLine(line)
		if err != nil {
			log.Errorf(errors.ErrorStack(err))
			return
		}
		if loopn == 0 {
			loopn = 1
		}
		for i := uint(0); i < loopn; i++ {
			for _, c := range cmds {
				if err := c(e); err != nil {
					log.Errorf(errors.ErrorStack(err))
					return
				}
			}
		}
	}
}

func newCompleter() func(d prompt.Document) []prompt.Suggest {
	suggests := []prompt.Suggest{
		prompt.Suggest{Text: "NNN", Description: "online data query for channel N"},
		prompt.Suggest{Text: "multi=", Description: "one-call query for channel list"},
		prompt.Suggest{Text: "seq=", Description: "sequential queries for channel list"},
		prompt.Suggest{Text: "sN", Description: "pause for N ms"},
		prompt.Suggest{Text: "loop=N", Description: "repeat line N times"},
		prompt.Suggest{Text: "@XX", Description: "transmit raw frame, show response"},
	}

	return func(d prompt.Document) []prompt.Suggest {
		return prompt.FilterFuzzy(suggests, d.GetWordBeforeCursor(), true)
	}
}

func parseLine(line string) ([]cmdFunc, uint, error) {
	words := strings.Fields(line)
	loopn := uint(0)
	cmds := make([]cmdFunc, 0, len(words))
	for _, word := range words {
		switch {
		case word == "help":
			cmds = append(cmds, func(*env) error { log.Infof(usage); return nil })
		case strings.HasPrefix(word, "loop="):
			if loopn != 0 {
				return nil, 0, errors.Errorf("multiple loop commands, expected at most one")
			}
			i, err := strconv.ParseUint(word[5:], 10, 32)
			if err != nil {
				return nil, 0, errors.Annotatef(err, "word=%s", word)
			}
			loopn = uint(i)
		default:
			c, err := parseCommand(word)
			if err != nil {
				return nil, 0, err
			}
			cmds = append(cmds, c)
		}
	}
	return cmds, loopn, nil
}

func parseCommand(word string) (cmdFunc, error) {
	switch {
	case word == "log=yes":
		return func(*env) error { log.SetLevel(log2.LDebug); return nil }, nil
	case word == "log=no":
		return func(*env) error { log.SetLevel(log2.LError); return nil }, nil
	case strings.HasPrefix(word, "multi="):
		channels, err := parseChannels(word[6:])
		if err != nil {
			return nil, errors.Annotatef(err, "word=%s", word)
		}
		return func(e *env) error { return e.queryMulti(channels) }, nil
	case strings.HasPrefix(word, "seq="):
		channels, err := parseChannels(word[4:])
		if err != nil {
			return nil, errors.Annotatef(err, "word=%s", word)
		}
		return func(e *env) error { return e.querySeq(channels) }, nil
	case word[0] == 's':
		i, err := strconv.ParseUint(word[1:], 10, 32)
		if err != nil {
			return nil, errors.Annotatef(err, "word=%s", word)
		}
		return func(*env) error { time.Sleep(time.Duration(i) * time.Millisecond); return nil }, nil
	case word[0] == '@':
		raw, err := hex.DecodeString(word[1:])
		if err != nil {
			return nil, errors.Annotatef(err, "word=%s", word)
		}
		return func(e *env) error { return e.rawTx(raw) }, nil
	default:
		ch64, err := strconv.ParseUint(word, 10, 16)
		if err != nil {
			return nil, errors.Errorf("error: invalid command: '%s'", word)
		}
		ch := uint16(ch64)
		return func(e *env) error { return e.queryOne(ch) }, nil
	}
}

func parseChannels(s string) ([]uint16, error) {
	parts := strings.Split(s, ",")
	channels := make([]uint16, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.ParseUint(p, 10, 16)
		if err != nil {
			return nil, errors.Annotatef(err, "channel=%s", p)
		}
		channels = append(channels, uint16(n))
	}
	return channels, nil
}

func (e *env) queryOne(ch uint16) error {
	r, err := e.client.OnlineDataQuery(e.device, ch)
	if err != nil {
		return err
	}
	if r.Status != umb.StatusOK {
		log.Errorf("channel=%d status=%s", ch, status.Message(r.Status))
		return nil
	}
	log.Infof("channel=%d value=%v", ch, r.Value)
	return nil
}

func (e *env) queryMulti(channels []uint16) error {
	rs, err := e.client.OnlineDataQueryMultiOneCall(e.device, channels)
	e.printResults(rs)
	return err
}

func (e *env) querySeq(channels []uint16) error {
	rs, err := e.client.OnlineDataQueryMulti(e.device, channels)
	e.printResults(rs)
	return err
}

// printResults shows whatever came back even when err is set, partial
// results help diagnose a half-broken bus.
func (e *env) printResults(rs []umb.Result) {
	for _, r := range rs {
		if r.Status != umb.StatusOK {
			log.Errorf("channel=%d status=%s", r.Channel, status.Message(r.Status))
			continue
		}
		log.Infof("channel=%d value=%v", r.Channel, r.Value)
	}
}

// rawTx writes bytes as-is, prints whatever comes back. For poking devices
// with frames the client does not speak.
func (e *env) rawTx(raw []byte) error {
	if err := e.transport.Send(raw); err != nil {
		return err
	}
	b, err := e.transport.Receive()
	if err != nil {
		return err
	}
	log.Infof("< %x", b)
	return nil
}
