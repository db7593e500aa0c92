package config

import (
	"fmt"
	"net/url"
	"time"

	flag "github.com/spf13/pflag"
)

type PlayerConfig struct {
	Player     Player
	Signaling  Signaling
	Webrtc     Webrtc
	Monitoring Monitoring
	Recording  Recording
	Version    Version
}

type Player struct {
	Debug   bool
	NoColor bool
	// VideoUrl is played right after the start when set.
	VideoUrl  string
	AudioOnly bool
	// StopTimeout is how long to wait for the server to end
	// the session on exit.
	StopTimeout time.Duration `default:"3s"`
}

type Signaling struct {
	Address   string `default:"ws://localhost:8001/ws"`
	Reconnect struct {
		Base time.Duration `default:"1s"`
		Max  time.Duration `default:"8s"`
	}
}

// URL returns the websocket address of the media server.
func (s *Signaling) URL() (url.URL, error) {
	u, err := url.Parse(s.Address)
	if err != nil {
		return url.URL{}, err
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return url.URL{}, fmt.Errorf("signaling address %q should be ws:// or wss://", s.Address)
	}
	if u.Host == "" {
		return url.URL{}, fmt.Errorf("signaling address %q has no host", s.Address)
	}
	return *u, nil
}

// NewPlayerConfig loads the config and applies command line flags on top.
// The config path can be changed with the --conf flag.
func NewPlayerConfig(args []string) (conf PlayerConfig, err error) {
	var path string
	pre := flag.NewFlagSet("conf", flag.ContinueOnError)
	pre.ParseErrorsWhitelist.UnknownFlags = true
	pre.Usage = func() {}
	pre.StringVar(&path, "conf", "", "")
	_ = pre.Parse(args)

	if err = LoadConfig(&conf, path); err != nil {
		return conf, fmt.Errorf("config: %w", err)
	}
	fs := flag.NewFlagSet("player", flag.ContinueOnError)
	fs.String("conf", path, "Set custom configuration file path")
	conf.WithFlags(fs)
	if err = fs.Parse(args); err != nil {
		return conf, err
	}
	return conf, conf.Validate()
}

// WithFlags defines flags with default values set to the current config params.
func (c *PlayerConfig) WithFlags(fs *flag.FlagSet) {
	fs.BoolVar(&c.Player.Debug, "debug", c.Player.Debug, "Verbose logging")
	fs.BoolVar(&c.Player.NoColor, "no-color", c.Player.NoColor, "Disable colored logs")
	fs.StringVarP(&c.Player.VideoUrl, "video-url", "u", c.Player.VideoUrl, "Video to play")
	fs.BoolVar(&c.Player.AudioOnly, "audio-only", c.Player.AudioOnly, "Ask only for audio")
	fs.StringVarP(&c.Signaling.Address, "address", "a", c.Signaling.Address, "Media server websocket address")
	fs.DurationVar(&c.Signaling.Reconnect.Base, "reconnect.base", c.Signaling.Reconnect.Base, "First reconnect delay")
	fs.DurationVar(&c.Signaling.Reconnect.Max, "reconnect.max", c.Signaling.Reconnect.Max, "Max reconnect delay")
	fs.BoolVar(&c.Recording.Enabled, "record", c.Recording.Enabled, "Save received media")
	fs.StringVar(&c.Recording.Folder, "record.folder", c.Recording.Folder, "Recording folder")
	fs.IntVar(&c.Monitoring.Port, "monitoring.port", c.Monitoring.Port, "Monitoring server port")
	fs.BoolVar(&c.Monitoring.MetricEnabled, "monitoring.metrics", c.Monitoring.MetricEnabled, "Serve Prometheus metrics")
}

func (c *PlayerConfig) Validate() error {
	if _, err := c.Signaling.URL(); err != nil {
		return err
	}
	if c.Signaling.Reconnect.Base <= 0 {
		return fmt.Errorf("reconnect base delay should be positive, got %v", c.Signaling.Reconnect.Base)
	}
	if c.Signaling.Reconnect.Max < c.Signaling.Reconnect.Base {
		return fmt.Errorf("reconnect max delay %v is less than base %v",
			c.Signaling.Reconnect.Max, c.Signaling.Reconnect.Base)
	}
	return c.Webrtc.validate()
}
