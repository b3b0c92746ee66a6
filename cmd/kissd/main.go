// Command kissd is the CLI collaborator described in spec.md §6: it
// wires a Transport (serial device or TCP KISS endpoint) to a
// kiss.Session, exposes Prometheus counters on an HTTP endpoint, and
// logs structured events until an interrupt signal closes the session.
//
// Grounded on sparques-hamirc/main.go's flag-parse-then-wire shape,
// generalized from stdlib flag to spf13/pflag for the long-flag surface
// spec.md §6 names.
package main

import (
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/ke4ahr/kisscore/kiss"
	"github.com/ke4ahr/kisscore/kiss/config"
)

var (
	configPath   = pflag.String("config", "", "load session configuration from a YAML file, overriding the flags below")
	device       = pflag.String("device", "", "transport locator: a serial device path, \"tcp:host:port\", or a plain file/pty path")
	baud         = pflag.Int("baud", 9600, "baud rate, when --device is a serial port")
	pollingMode  = pflag.String("polling", "off", "polling mode: off, active, or passive")
	pollInterval = pflag.Duration("poll-interval", 0, "active-poll period (default 100ms)")
	checksum     = pflag.Bool("checksum", false, "enable XOR checksum on transmit")
	queueSize    = pflag.Int("queue-size", 0, "per-port passive queue capacity (default 100)")
	address      = pflag.Uint8("address", 0, "this host's multi-drop address (0-15)")
	multiDrop    = pflag.Bool("multi-drop", false, "interpret the type byte's high nibble as an XKISS address instead of a port")
	metricsAddr  = pflag.String("metrics", "", "address to serve Prometheus metrics on, e.g. :9100 (disabled if empty)")
)

func main() {
	pflag.Parse()
	log := logrus.StandardLogger()

	var cfg kiss.SessionConfig
	locator, baudRate := *device, *baud

	if *configPath != "" {
		file, fcfg, err := config.Load(*configPath)
		if err != nil {
			log.WithError(err).Error("could not load --config")
			os.Exit(2)
		}
		cfg, locator, baudRate = fcfg, file.Device, file.Baud
	} else {
		mode, err := parsePollingMode(*pollingMode)
		if err != nil {
			log.WithError(err).Error("invalid --polling")
			os.Exit(2)
		}
		cfg = kiss.SessionConfig{
			PollingMode:  mode,
			PollInterval: *pollInterval,
			ChecksumMode: *checksum,
			MaxQueueSize: *queueSize,
			OwnAddress:   *address,
			MultiDrop:    *multiDrop,
		}
	}

	if locator == "" {
		log.Error("--device (or config.device) is required")
		os.Exit(2)
	}

	transport, err := openTransport(locator, baudRate)
	if err != nil {
		log.WithError(err).Error("could not open transport")
		os.Exit(1)
	}

	session, err := kiss.Open(transport, cfg, log)
	if err != nil {
		if errors.Is(err, kiss.ErrInvalidConfig) {
			log.WithError(err).Error("invalid configuration")
			os.Exit(2)
		}
		log.WithError(err).Error("could not open session")
		os.Exit(1)
	}

	session.OnFrame(func(addr, port uint8, payload []byte) {
		log.WithFields(logrus.Fields{"address": addr, "port": port, "len": len(payload)}).Debug("rx data frame")
	})
	session.OnPoll(func(addr uint8) {
		log.WithField("address", addr).Debug("rx poll")
	})
	session.OnOverflow(func(addr, port uint8, dropped []byte) {
		log.WithFields(logrus.Fields{"address": addr, "port": port}).Warn("queue overflow, dropped oldest entry")
	})
	session.OnError(func(ev kiss.ErrorEvent) {
		log.WithField("kind", ev.Kind.String()).Warn(ev.Error())
	})

	if *metricsAddr != "" {
		prometheus.MustRegister(session.Collector())
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go func() {
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				log.WithError(err).Error("metrics server stopped")
			}
		}()
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	<-sig

	if err := session.Close(); err != nil {
		log.WithError(err).Error("error during close")
		os.Exit(1)
	}
}

func parsePollingMode(s string) (kiss.PollingMode, error) {
	switch strings.ToLower(s) {
	case "", "off":
		return kiss.PollOff, nil
	case "active":
		return kiss.PollActive, nil
	case "passive":
		return kiss.PollPassive, nil
	default:
		return 0, kiss.ErrInvalidConfig
	}
}

// openTransport dispatches on the locator string, matching
// sparques-hamirc/irc/server.go's ConnectTNC (tcp)/OpenTNC (file) split,
// plus a serial-port branch exercising go.bug.st/serial.
func openTransport(locator string, baud int) (kiss.Transport, error) {
	if rest, ok := strings.CutPrefix(locator, "tcp:"); ok {
		return kiss.DialTCP(rest)
	}
	if strings.HasPrefix(locator, "/dev/tty") || strings.HasPrefix(locator, "COM") {
		return kiss.OpenSerial(locator, baud)
	}
	return kiss.OpenFile(locator)
}
