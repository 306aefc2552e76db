// Copyright 2024 The ccd Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/ccdtools/ccd/internal/clientutil"
	"github.com/ccdtools/ccd/internal/config"
	"github.com/ccdtools/ccd/internal/wire"
)

// adminFlags are the ccd binary's own flags, recognized only when ccd
// is invoked under its own name — a compiler-forwarding invocation
// never reaches this parser. Mirrors cmdline.rs's args_from_usage
// block.
func buildApp(cfg config.Config) *cli.App {
	return &cli.App{
		Name:  "ccd",
		Usage: "compiler output cache daemon",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "show-stats", Aliases: []string{"s"}, Usage: "show cache statistics"},
			&cli.BoolFlag{Name: "zero-stats", Aliases: []string{"z"}, Usage: "zero statistics counters"},
			&cli.BoolFlag{Name: "start-server", Usage: "start background server"},
			&cli.BoolFlag{Name: "stop-server", Usage: "stop background server"},
			&cli.StringFlag{Name: "stats-format", Usage: "output format for --show-stats", Value: "text"},
		},
		Action: func(c *cli.Context) error {
			return runAdmin(c, cfg)
		},
	}
}

func runAdmin(c *cli.Context, cfg config.Config) error {
	set := 0
	for _, b := range []bool{c.Bool("show-stats"), c.Bool("zero-stats"), c.Bool("start-server"), c.Bool("stop-server")} {
		if b {
			set++
		}
	}
	if set > 1 {
		return cli.Exit("ccd: too many commands specified", 1)
	}

	addr := serverAddr(cfg)
	ctx := context.Background()

	switch {
	case c.Bool("show-stats"):
		client := clientutil.New(addr, spawner)
		stats, err := client.RequestStats(ctx)
		if err != nil {
			return cli.Exit(fmt.Sprintf("ccd: failed to fetch stats: %v", err), 2)
		}
		return printStats(stats, c.String("stats-format"))

	case c.Bool("zero-stats"):
		client := clientutil.New(addr, spawner)
		_, err := client.RequestZeroStats(ctx)
		if err != nil {
			return cli.Exit(fmt.Sprintf("ccd: failed to zero stats: %v", err), 2)
		}
		return nil

	case c.Bool("start-server"):
		if err := clientutil.SpawnDetached(selfPath(), []string{}); err != nil {
			return cli.Exit(fmt.Sprintf("ccd: failed to start server: %v", err), 2)
		}
		return nil

	case c.Bool("stop-server"):
		client := clientutil.New(addr, spawner)
		_, err := client.RequestShutdown(ctx)
		if err != nil {
			return cli.Exit(fmt.Sprintf("ccd: failed to stop server: %v", err), 2)
		}
		return nil

	case c.Args().Len() > 0:
		return runCompile(ctx, cfg, c.Args().First(), c.Args().Tail())

	default:
		cli.ShowAppHelp(c)
		return cli.Exit("", 1)
	}
}

func printStats(s wire.StatsSnapshot, format string) error {
	if format == "json" {
		enc := json.NewEncoder(os.Stdout)
		return enc.Encode(s)
	}
	fmt.Printf("Compile requests executed  %d\n", s.CompileRequests)
	fmt.Printf("Compile requests completed  %d\n", s.RequestsExecuted)
	fmt.Printf("Cache hits                  %d\n", s.CacheHits)
	fmt.Printf("Cache misses                %d\n", s.CacheMisses)
	fmt.Printf("Cache errors                %d\n", s.CacheErrors)
	fmt.Printf("Forced recaches             %d\n", s.ForcedRecaches)
	fmt.Printf("Cache write (moving sum ms) %d\n", s.CacheWriteDurationMillis)
	for reason, count := range s.NonCacheableReasons {
		fmt.Printf("Non-cacheable: %-20s %d\n", reason, count)
	}
	return nil
}

func selfPath() string {
	exe, err := os.Executable()
	if err != nil {
		return os.Args[0]
	}
	return exe
}
