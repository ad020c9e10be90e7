package main

import (
	"context"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vitalvas/gounwrap/pkg/config"
	"github.com/vitalvas/gounwrap/pkg/frame"
	"github.com/vitalvas/gounwrap/pkg/log"
	"github.com/vitalvas/gounwrap/pkg/metrics"
	"github.com/vitalvas/gounwrap/pkg/policy"
	"github.com/vitalvas/gounwrap/pkg/stream"
	"github.com/vitalvas/gounwrap/pkg/transport"
	"github.com/vitalvas/gounwrap/pkg/unwrap"
)

func main() {
	if err := runMain(os.Args[0], os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)

	fs.String("config", "", "Path to a YAML or TOML config file")
	fs.String("input", "", "Read captured lines from this file ('-' for stdin) instead of the ZeroMQ feed")
	fs.String("output", "-", "Where captured lines are echoed ('-' for stdout)")
	fs.String("serial-port", "", "Read lines from this serial port, e.g. /dev/ttyACM0 (env SERIAL_PORT); takes precedence over -input")
	fs.Int("baud", transport.DefaultBaud, "Serial port baud rate")
	fs.String("tcp-address", "", "ZeroMQ publisher to subscribe to (env TCP_ADDRESS, default "+transport.DefaultZMQAddress+")")
	fs.String("udp-address", "", "UDP address to receive raw frames on instead of ZeroMQ (env UDP_ADDRESS)")
	fs.String("auth-key", "", "Authentication key as hex (env AUTH_KEY, default 16 zero bytes)")
	fs.Int("melvec-len", 20, "Length of one Mel vector (env MELVEC_LEN)")
	fs.Int("num-melvecs", 10, "Number of Mel vectors per packet (env NUM_MELVECS)")
	fs.String("allowed-senders", "", "Comma separated allowed sender ids (env ALLOWED_SENDERS, default 0)")
	fs.String("algorithm", "", "MAC algorithm: aes-cbc-mac, hmac-sha256 or blake2b")
	fs.Int("tag-length", frame.DefaultTagLength, "Tag length in bytes")
	fs.Bool("no-auth", false, "Do not verify tags (test and bench use only)")
	fs.Bool("no-replay", false, "Accept repeated or decreasing counters")
	fs.String("metrics-address", "", "Serve Prometheus metrics on this address, e.g. :9100")
	fs.String("log-level", "", "Log level (env LOG_LEVEL, default info)")
	fs.String("log-format", "", "Log format: text or json")
	fs.Bool("q", false, "Do not print the startup banner")
	fs.String("seal", "", "Print a sealed DF:HEX line for sender:counter:payloadhex and exit")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags]\n\n", name)
		fmt.Fprintf(os.Stderr, "Parse packets from the MCU and perform authentication.\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s -tcp-address tcp://127.0.0.1:10000\n", name)
		fmt.Fprintf(os.Stderr, "  %s -serial-port /dev/ttyACM0\n", name)
		fmt.Fprintf(os.Stderr, "  %s -input capture.txt -auth-key 000102030405060708090a0b0c0d0e0f\n", name)
		fmt.Fprintf(os.Stderr, "  %s -udp-address 0.0.0.0:10000 -metrics-address :9100\n", name)
	}

	return fs
}

// loadConfig merges defaults, the config file, the environment and the
// flags set on fs, in that order
func loadConfig(fs *flag.FlagSet, lookup func(string) (string, bool)) (*config.Config, error) {
	cfg := config.Default()
	if path := fs.Lookup("config").Value.String(); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if err := cfg.ApplyEnv(lookup); err != nil {
		return nil, err
	}

	if err := applyFlags(fs, cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyFlags copies the flags explicitly set on fs into cfg
func applyFlags(fs *flag.FlagSet, cfg *config.Config) error {
	var flagErr error

	fs.Visit(func(f *flag.Flag) {
		if flagErr != nil {
			return
		}

		value := f.Value.(flag.Getter).Get()

		switch f.Name {
		case "input":
			cfg.Input.File = value.(string)
		case "output":
			cfg.Output.Path = value.(string)
		case "serial-port":
			cfg.Input.SerialPort = value.(string)
		case "baud":
			cfg.Input.Baud = value.(int)
		case "tcp-address":
			cfg.Input.TCPAddress = value.(string)
		case "udp-address":
			cfg.Input.UDPAddress = value.(string)
		case "auth-key":
			cfg.Auth.Key = value.(string)
		case "melvec-len":
			cfg.Frame.VectorLength = value.(int)
		case "num-melvecs":
			cfg.Frame.VectorsPerPacket = value.(int)
		case "allowed-senders":
			ids, err := policy.ParseSenders(value.(string))
			if err != nil {
				flagErr = fmt.Errorf("-allowed-senders: %w", err)
				return
			}
			cfg.Auth.AllowedSenders = make([]int, len(ids))
			for i, id := range ids {
				cfg.Auth.AllowedSenders[i] = int(id)
			}
		case "algorithm":
			cfg.Auth.Algorithm = value.(string)
		case "tag-length":
			cfg.Auth.TagLength = value.(int)
		case "no-auth":
			cfg.Auth.Authenticate = !value.(bool)
		case "no-replay":
			cfg.Auth.ReplayProtection = !value.(bool)
		case "metrics-address":
			cfg.Metrics.Address = value.(string)
		case "log-level":
			cfg.Logging.Level = value.(string)
		case "log-format":
			cfg.Logging.Format = value.(string)
		case "q":
			cfg.Output.Quiet = value.(bool)
		}
	})

	return flagErr
}

func runMain(name string, args []string) error {
	fs := newFlagSet(name)
	_ = fs.Parse(args)

	cfg, err := loadConfig(fs, os.LookupEnv)
	if err != nil {
		return err
	}

	logger := log.NewLoggerWithLevel(cfg.Logging.Level)
	if err := logger.SetFormat(cfg.Logging.Format); err != nil {
		return err
	}

	if seal := fs.Lookup("seal").Value.String(); seal != "" {
		return runSeal(cfg, seal)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		return fmt.Errorf("unwrap failed: %w", err)
	}
	return nil
}

func run(ctx context.Context, cfg *config.Config, logger *log.DefaultLogger) error {
	opts := []unwrap.Option{unwrap.WithLogger(logger)}

	if cfg.Metrics.Address != "" {
		reg := prometheus.NewRegistry()
		opts = append(opts, unwrap.WithObserver(metrics.New(reg)))

		srv := &http.Server{
			Addr:              cfg.Metrics.Address,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Infof("serving metrics on %s", cfg.Metrics.Address)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Errorf("metrics server: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	auth, err := cfg.NewAuthenticator(opts...)
	if err != nil {
		return err
	}

	key, err := cfg.Key()
	if err != nil {
		return err
	}

	echo, closeEcho, err := openOutput(cfg.Output.Path)
	if err != nil {
		return err
	}
	defer closeEcho()

	tr, err := openTransport(ctx, cfg, echo, logger)
	if err != nil {
		return err
	}
	defer tr.Close()

	if !cfg.Output.Quiet {
		fmt.Printf("Unwrapping packets with auth. key: %s\n", key)
		fmt.Printf("Frame layout: %s, algorithm %s, allowed senders %s\n",
			auth.Layout(), auth.Algorithm(), policy.NewAllowList(cfg.AllowedSenders()...))
		fmt.Printf("Reading packets from: %s\n", tr)
		fmt.Println("Use Ctrl-C (or Ctrl-D) to terminate.")
	}

	p := stream.NewProcessor(auth, os.Stdout, logger)
	if err := p.Run(ctx, tr); err != nil {
		return err
	}

	stats := p.Stats()
	logger.Infof("processed %d frames: %d accepted, %d rejected",
		stats.Frames, stats.Accepted, stats.Frames-stats.Accepted)
	return nil
}

func openTransport(ctx context.Context, cfg *config.Config, echo io.Writer, logger log.Logger) (transport.Transport, error) {
	opts := []transport.Option{transport.WithEcho(echo), transport.WithLogger(logger)}

	switch {
	case cfg.Input.SerialPort != "":
		return transport.OpenSerial(cfg.Input.SerialPort, cfg.Input.Baud, opts...)
	case cfg.Input.File == "-":
		return transport.NewLineTransport("stdin", os.Stdin, opts...), nil
	case cfg.Input.File != "":
		return transport.OpenFile(cfg.Input.File, opts...)
	case cfg.Input.UDPAddress != "":
		return transport.ListenUDP(cfg.Input.UDPAddress, opts...)
	default:
		return transport.DialZMQ(ctx, cfg.Input.TCPAddress, opts...)
	}
}

func openOutput(path string) (io.Writer, func(), error) {
	if path == "" || path == "-" {
		return os.Stdout, func() {}, nil
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output %s: %w", path, err)
	}
	return f, func() { _ = f.Close() }, nil
}

// runSeal prints a valid frame for "sender:counter:payloadhex"
func runSeal(cfg *config.Config, arg string) error {
	parts := strings.SplitN(arg, ":", 3)
	if len(parts) != 3 {
		return fmt.Errorf("invalid -seal %q (expected sender:counter:payloadhex)", arg)
	}

	sender, err := strconv.ParseUint(parts[0], 10, 8)
	if err != nil {
		return fmt.Errorf("invalid sender %q: %w", parts[0], err)
	}
	counter, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return fmt.Errorf("invalid counter %q: %w", parts[1], err)
	}
	payload, err := hex.DecodeString(parts[2])
	if err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}

	auth, err := cfg.NewAuthenticator()
	if err != nil {
		return err
	}

	raw, err := auth.Seal(frame.Header{SenderID: uint8(sender), Counter: uint32(counter)}, payload)
	if err != nil {
		return err
	}

	fmt.Println(transport.FormatLine(raw))
	return nil
}
