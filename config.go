package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	bind           string
	maxMessageSize int64
	messageBurst   int
	messageRate    float64
	metrics        bool
	pingInterval   time.Duration
	pongTimeout    time.Duration
	port           int
	prefix         string
	profile        bool
	sendBuffer     int
	tlsCert        string
	tlsKey         string
	verbose        bool
	version        bool
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.pingInterval <= 0 {
		return fmt.Errorf("invalid ping interval: %s", c.pingInterval)
	}
	if c.pongTimeout <= c.pingInterval {
		return fmt.Errorf("pong timeout (%s) must exceed ping interval (%s)", c.pongTimeout, c.pingInterval)
	}
	if c.sendBuffer < 1 {
		return fmt.Errorf("invalid send buffer size: %d", c.sendBuffer)
	}
	if c.maxMessageSize < 256 {
		return fmt.Errorf("max message size too small: %d", c.maxMessageSize)
	}
	if c.messageRate < 0 {
		return fmt.Errorf("invalid message rate: %f", c.messageRate)
	}
	if c.messageRate > 0 && c.messageBurst < 1 {
		return fmt.Errorf("invalid message burst: %d", c.messageBurst)
	}
	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("LIGHTTRAILS")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "lighttrails",
		Short:         "A shared canvas where everyone's light trails fade together.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return ServePage(cmd.Context(), cfg, args)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: LIGHTTRAILS_BIND)")
	fs.Int64Var(&cfg.maxMessageSize, "max-message-size", 4096, "largest inbound websocket message in bytes (env: LIGHTTRAILS_MAX_MESSAGE_SIZE)")
	fs.IntVar(&cfg.messageBurst, "message-burst", 240, "burst allowance for the drawing message rate limit (env: LIGHTTRAILS_MESSAGE_BURST)")
	fs.Float64Var(&cfg.messageRate, "message-rate", 120, "drawing messages allowed per second per connection, 0 to disable (env: LIGHTTRAILS_MESSAGE_RATE)")
	fs.BoolVar(&cfg.metrics, "metrics", false, "register prometheus /metrics handler (env: LIGHTTRAILS_METRICS)")
	fs.DurationVar(&cfg.pingInterval, "ping-interval", 30*time.Second, "how often to probe each connection for liveness (env: LIGHTTRAILS_PING_INTERVAL)")
	fs.DurationVar(&cfg.pongTimeout, "pong-timeout", 75*time.Second, "how long to wait for a probe reply before evicting (env: LIGHTTRAILS_PONG_TIMEOUT)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: LIGHTTRAILS_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: LIGHTTRAILS_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: LIGHTTRAILS_PROFILE)")
	fs.IntVar(&cfg.sendBuffer, "send-buffer", 32, "outbound messages buffered per connection before eviction (env: LIGHTTRAILS_SEND_BUFFER)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: LIGHTTRAILS_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: LIGHTTRAILS_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: LIGHTTRAILS_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: LIGHTTRAILS_VERSION)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("lighttrails v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
