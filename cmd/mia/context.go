package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"mia/internal/auth"
	"mia/internal/config"
	"mia/internal/controller"
	"mia/internal/daemonctl"
	"mia/internal/ipc"
	"mia/internal/logging"
	"mia/internal/media"
	"mia/internal/meeting"
	"mia/internal/permission"
	"mia/internal/statestore"
)

const daemonStartTimeout = 10 * time.Second

type commandContext struct {
	socketFlag *string
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(socketFlag, configFlag *string) *commandContext {
	return &commandContext{
		socketFlag: socketFlag,
		configFlag: configFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, _, _, err := config.Load(c.configPath())
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) configPath() string {
	if c.configFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.configFlag)
}

func (c *commandContext) socketPath() string {
	if c.socketFlag != nil && strings.TrimSpace(*c.socketFlag) != "" {
		return *c.socketFlag
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return defaultSocketPath()
	}
	return cfg.SocketPath()
}

func (c *commandContext) withClient(fn func(*ipc.Client) error) error {
	client, err := c.dialClient()
	if err != nil {
		return err
	}
	defer client.Close()
	return fn(client)
}

func (c *commandContext) dialClient() (*ipc.Client, error) {
	socket := c.socketPath()
	client, err := ipc.Dial(socket)
	if err != nil {
		return nil, wrapDialError(err, socket)
	}
	return client, nil
}

func (c *commandContext) withStore(fn func(*config.Config, *statestore.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := statestore.Open(cfg)
	if err != nil {
		return fmt.Errorf("open state store: %w", err)
	}
	defer store.Close()
	return fn(cfg, store)
}

// newController wires a Controller for one invocation. The gate prompts on
// the command's own input and output.
func (c *commandContext) newController(cmd *cobra.Command, cfg *config.Config, store *statestore.Store) (*controller.Controller, error) {
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("resolve executable: %w", err)
	}
	gate := permission.New(permission.NewGrants(store), terminalSurface(cmd), cfg.SettleDelay(), logger)
	return controller.New(controller.Deps{
		Launcher: daemonctl.Launcher{
			SocketPath:  c.socketPath(),
			Executable:  exe,
			Options:     daemonctl.LaunchOptions{ConfigPath: c.configPath()},
			WaitTimeout: daemonStartTimeout,
		},
		Resolver:    media.NewPulseResolver(cfg.Capture.PactlBinary, cfg.Capture.MicSource),
		Gate:        gate,
		Auth:        auth.NewFileProvider(cfg.Auth.SessionFile),
		Indicator:   controller.StoreIndicator{Store: store},
		Store:       store,
		Meetings:    meeting.NewExtractor(cfg.Meeting.Hosts...),
		GateTimeout: cfg.GateTimeout(),
		Logger:      logger,
	}), nil
}

func terminalSurface(cmd *cobra.Command) *permission.Terminal {
	in := cmd.InOrStdin()
	if in == os.Stdin {
		term := permission.NewTerminal()
		term.Out = cmd.OutOrStdout()
		return term
	}
	return &permission.Terminal{
		In:          bufio.NewReader(in),
		Out:         cmd.OutOrStdout(),
		Interactive: false,
	}
}

func wrapDialError(err error, socket string) error {
	switch {
	case errors.Is(err, syscall.ENOENT) || os.IsNotExist(err):
		return fmt.Errorf("connect to daemon: socket %s not found; start a recording with `mia start` or run `mia daemon`", socket)
	case errors.Is(err, syscall.ECONNREFUSED):
		return fmt.Errorf("connect to daemon: socket %s refused the connection; verify the daemon is running", socket)
	default:
		return fmt.Errorf("connect to daemon: %w", err)
	}
}

func defaultSocketPath() string {
	cfg := config.Default()
	stateDir, err := config.ExpandPath(cfg.Paths.StateDir)
	if err != nil {
		return filepath.Join(os.TempDir(), "mia.sock")
	}
	cfg.Paths.StateDir = stateDir
	return cfg.SocketPath()
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func isTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
