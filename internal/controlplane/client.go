// Package controlplane talks to a running lightningd through lightning-cli.
package controlplane

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/alexisbeaulieu97/reckless/internal/execx"
	"github.com/alexisbeaulieu97/reckless/internal/logger"
	recklesserrors "github.com/alexisbeaulieu97/reckless/pkg/errors"
)

// Timeouts for daemon calls.
const (
	DefaultTimeout     = 15 * time.Second
	ListConfigsTimeout = 10 * time.Second
)

// DefaultNetwork is the network lightning-cli assumes without --network.
const DefaultNetwork = "bitcoin"

const (
	codeInvalidParams    = -32602
	alreadyRegisteredMsg = "already registered"
)

// Client issues lightning-cli calls.
type Client struct {
	runner     execx.Runner
	binary     string
	args       []string
	timeout    time.Duration
	defaultDir string
	log        *logger.Logger
}

// Option customises a Client.
type Option func(*Client)

// WithTimeout overrides the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithDefaultLightningDir sets the directory lightning-cli uses when no
// --lightning-dir is passed. It defaults to ~/.lightning.
func WithDefaultLightningDir(dir string) Option {
	return func(c *Client) { c.defaultDir = dir }
}

// WithLogger attaches a logger.
func WithLogger(log *logger.Logger) Option {
	return func(c *Client) { c.log = log }
}

// New returns a client for binary. --network and --lightning-dir are only
// passed when they differ from lightning-cli's own defaults.
func New(runner execx.Runner, binary, network, lightningDir string, opts ...Option) *Client {
	c := &Client{runner: runner, binary: binary, timeout: DefaultTimeout}
	if home, err := os.UserHomeDir(); err == nil {
		c.defaultDir = filepath.Join(home, ".lightning")
	}
	for _, opt := range opts {
		opt(c)
	}
	if network != "" && network != DefaultNetwork {
		c.args = append(c.args, "--network="+network)
	}
	if lightningDir != "" && filepath.Clean(lightningDir) != filepath.Clean(c.defaultDir) {
		c.args = append(c.args, "--lightning-dir="+lightningDir)
	}
	return c
}

// Call runs one command. Exit status 0 yields the decoded JSON reply, or
// {"content": output} when the reply is not JSON. Exit status 1 is a
// *ControlPlaneError. Anything else means the daemon could not be reached.
func (c *Client) Call(ctx context.Context, timeout time.Duration, args ...string) (map[string]any, error) {
	if timeout <= 0 {
		timeout = c.timeout
	}
	cmd := execx.Command{
		Name:    c.binary,
		Args:    append(append([]string{}, c.args...), args...),
		Timeout: timeout,
	}
	c.log.WithField("command", cmd.String()).Debug("calling lightning-cli")

	res, err := c.runner.Run(ctx, cmd)
	code := 0
	if err != nil {
		code = res.ExitCode
		if res.TimedOut || errors.Is(err, context.DeadlineExceeded) || code == 0 {
			code = -1
		}
	}
	reply := decode(res.Stdout)

	switch code {
	case 0:
		return reply, nil
	case 1:
		return nil, refusal(reply, res)
	default:
		detail := strings.TrimSpace(res.Stderr)
		if detail == "" && err != nil {
			detail = err.Error()
		}
		return nil, fmt.Errorf("%w: %s", recklesserrors.ErrControlPlaneUnavailable, detail)
	}
}

// Start loads entrypoint into the running daemon. A plugin that is already
// running is not an error.
func (c *Client) Start(ctx context.Context, entrypoint string) error {
	_, err := c.Call(ctx, 0, "plugin", "start", entrypoint)
	var refused *recklesserrors.ControlPlaneError
	if errors.As(err, &refused) && strings.Contains(refused.Message, alreadyRegisteredMsg) {
		c.log.WithField("plugin", entrypoint).Debug("plugin already running")
		return nil
	}
	return err
}

// Stop unloads entrypoint from the running daemon. A plugin that is not
// running is not an error.
func (c *Client) Stop(ctx context.Context, entrypoint string) error {
	_, err := c.Call(ctx, 0, "plugin", "stop", entrypoint)
	var refused *recklesserrors.ControlPlaneError
	if errors.As(err, &refused) && refused.Code == codeInvalidParams {
		c.log.WithField("plugin", entrypoint).Debug("plugin not currently running")
		return nil
	}
	return err
}

// ListConfigs returns the daemon's active configuration.
func (c *Client) ListConfigs(ctx context.Context) (map[string]any, error) {
	reply, err := c.Call(ctx, ListConfigsTimeout, "listconfigs")
	if err != nil {
		return nil, err
	}
	configs, _ := reply["configs"].(map[string]any)
	if configs == nil {
		configs = map[string]any{}
	}
	return configs, nil
}

// ActiveConf returns the explicit config file lightningd was started with,
// if any.
func (c *Client) ActiveConf(ctx context.Context) (string, bool, error) {
	configs, err := c.ListConfigs(ctx)
	if err != nil {
		return "", false, err
	}
	entry, ok := configs["conf"].(map[string]any)
	if !ok {
		return "", false, nil
	}
	path, ok := entry["value_str"].(string)
	if !ok || path == "" {
		return "", false, nil
	}
	return path, true, nil
}

func decode(out string) map[string]any {
	out = strings.TrimSpace(out)
	if strings.HasPrefix(out, "{") {
		var reply map[string]any
		if err := json.Unmarshal([]byte(out), &reply); err == nil {
			return reply
		}
	}
	return map[string]any{"content": out}
}

func refusal(reply map[string]any, res execx.Result) error {
	refused := &recklesserrors.ControlPlaneError{}
	if code, ok := reply["code"].(float64); ok {
		refused.Code = int(code)
	}
	if msg, ok := reply["message"].(string); ok {
		refused.Message = msg
	} else {
		refused.Message = res.PrimaryOutput()
	}
	return refused
}
