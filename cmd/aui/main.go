// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command aui runs the Unified Agentic Orchestration Service.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/humanizer-ai/aui/pkg/aui"
	"github.com/humanizer-ai/aui/pkg/config"
	"github.com/humanizer-ai/aui/pkg/embedder"
	"github.com/humanizer-ai/aui/pkg/llms"
	"github.com/humanizer-ai/aui/pkg/logger"
	"github.com/humanizer-ai/aui/pkg/observability"
	"github.com/humanizer-ai/aui/pkg/server"
	"github.com/humanizer-ai/aui/pkg/store"
)

var version = "dev"

type cli struct {
	Serve   serveCmd   `cmd:"" help:"Start the service."`
	Version versionCmd `cmd:"" help:"Print the version."`
}

type versionCmd struct{}

func (v *versionCmd) Run() error {
	fmt.Println(version)
	return nil
}

type serveCmd struct {
	Config string `short:"c" default:"aui.yaml" help:"Path to the config file."`
}

func (s *serveCmd) Run() error {
	cfg, err := config.LoadConfig(s.Config)
	if err != nil {
		// Missing config runs with defaults; that is the zero-config path.
		if !errors.Is(err, os.ErrNotExist) {
			return err
		}
		cfg = &config.Config{}
		cfg.SetDefaults()
	}

	level, _ := logger.ParseLevel(cfg.Logging.Level)
	output := os.Stderr
	if cfg.Logging.File != "" {
		file, cleanup, err := logger.OpenLogFile(cfg.Logging.File)
		if err != nil {
			return err
		}
		defer cleanup()
		output = file
	}
	logger.Init(level, output, cfg.Logging.Format)

	st, err := openStore(cfg)
	if err != nil {
		return err
	}

	adapters := aui.Adapters{}
	for name, llmCfg := range cfg.LLMs {
		registry := llms.NewRegistry()
		provider, err := registry.CreateFromConfig(name, llmCfg)
		if err != nil {
			return err
		}
		adapters.LLM = provider
		break // map order is random: with several providers, any one becomes the default
	}
	for _, embCfg := range cfg.Embedders {
		adapters.Embedder = embedder.NewOllama(embedder.OllamaConfig{
			Host:    embCfg.Host,
			Model:   embCfg.Model,
			Timeout: embCfg.Timeout,
		})
		break
	}

	service, err := aui.New(cfg, st, adapters)
	if err != nil {
		return err
	}
	defer service.Close()

	metrics := observability.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return server.New(service, metrics, cfg.Server.Host, cfg.Server.Port).Start(ctx)
}

func openStore(cfg *config.Config) (store.Store, error) {
	switch cfg.Database.Driver {
	case "memory", "":
		return store.NewMemory()
	case "sqlite":
		db, err := sql.Open("sqlite3", cfg.Database.DSN)
		if err != nil {
			return nil, err
		}
		return store.NewSQLStore(db, "sqlite")
	case "mysql", "postgres":
		db, err := sql.Open(cfg.Database.Driver, cfg.Database.DSN)
		if err != nil {
			return nil, err
		}
		return store.NewSQLStore(db, cfg.Database.Driver)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
}

func main() {
	ctx := kong.Parse(&cli{},
		kong.Name("aui"),
		kong.Description("Unified agentic orchestration service."),
		kong.UsageOnError(),
	)
	if err := ctx.Run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
