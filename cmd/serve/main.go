/*
Copyright © 2025 esmdev contributors

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

// Command serve is the C9 CLI entrypoint: it loads configuration from
// flags, environment, and an optional config file via viper, then starts
// the dev server and blocks until interrupted.
package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.esmdev.dev/server/config"
	"go.esmdev.dev/server/logger"
	"go.esmdev.dev/server/server"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newRootCmd builds the cobra command tree, adapted from the teacher's
// (deleted) cmd/root.go + cmd/serve.go flag set, narrowed to the flags this
// server actually understands.
func newRootCmd() *cobra.Command {
	var cfgFile string
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "serve [root]",
		Short: "Serve a project as no-bundle native ES modules with HMR",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v, cfgFile, args)
			if err != nil {
				return &config.ConfigError{Msg: "loading configuration", Err: err}
			}
			return run(cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfgFile, "config", "", "path to a config file (default: esmdev.yaml in the served root)")
	flags.Int("port", 3000, "HTTP listen port")
	flags.String("host", "localhost", "HTTP listen host")
	flags.String("watch-dir", "", "directory to watch (defaults to the served root)")
	flags.Bool("verbose", false, "enable debug logging")
	flags.String("target", "es2022", "esbuild compile target")
	flags.Duration("debounce", 150*time.Millisecond, "watcher debounce window")
	flags.StringSlice("ignore", nil, "additional glob patterns to exclude from the watcher")
	flags.String("client-path", "/@esmdev/client", "public path the HMR client runtime is served from")
	flags.String("env-path", "/@esmdev/env", "public path import.meta.env is served from")

	_ = v.BindPFlags(flags)
	v.SetEnvPrefix("ESMDEV")
	v.AutomaticEnv()

	return cmd
}

// loadConfig merges defaults, an optional config file, flags, and env vars
// (in viper's standard precedence order) into a config.ServerConfig.
func loadConfig(v *viper.Viper, cfgFile string, args []string) (*config.ServerConfig, error) {
	root := "."
	if len(args) == 1 {
		root = args[0]
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving root %q: %w", root, err)
	}

	if cfgFile == "" {
		cfgFile = filepath.Join(absRoot, "esmdev.yaml")
	}
	v.SetConfigFile(cfgFile)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config %q: %w", cfgFile, err)
		}
	}

	cfg := config.Default()
	cfg.Root = absRoot
	cfg.Port = v.GetInt("port")
	cfg.Host = v.GetString("host")
	cfg.WatchDir = v.GetString("watch-dir")
	cfg.Verbose = v.GetBool("verbose")
	cfg.Target = v.GetString("target")
	cfg.DebounceWindow = v.GetDuration("debounce")
	cfg.IgnoreGlobs = v.GetStringSlice("ignore")
	cfg.ClientPublicPath = v.GetString("client-path")
	cfg.EnvPublicPath = v.GetString("env-path")

	if err := v.UnmarshalKey("urlRewrites", &cfg.URLRewrites); err != nil {
		return nil, fmt.Errorf("parsing urlRewrites: %w", err)
	}

	return cfg, nil
}

func run(cfg *config.ServerConfig) error {
	log := logger.NewPtermLogger(cfg.Verbose)

	srv, err := server.New(cfg, log)
	if err != nil {
		return err
	}

	log.Start()
	defer log.Stop()

	if err := srv.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	log.SetStatus(fmt.Sprintf("serving %s on http://%s:%d", cfg.Root, cfg.Host, cfg.Port))

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	log.SetStatus("shutting down...")
	return srv.Close()
}
