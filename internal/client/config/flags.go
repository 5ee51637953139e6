package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   base URL of the identity backend
//	-b string   credential store backend: sqlite, redis, memory
//	-s string   path to the SQLite credential store
//	-r string   redis address (host:port)
//	-t int      request timeout in seconds
//	-v          verify the stored token's expiry at startup
//	-l string   log backend: slog, zerolog
//
// The function filters os.Args to only include the flags it knows about,
// using flagx.FilterArgs, to avoid interference with other components.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-b", "-s", "-r", "-t", "-v", "-l"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.BaseURL, "a", cfg.BaseURL, "base URL of the identity backend")
	fs.StringVar(&cfg.StoreBackend, "b", cfg.StoreBackend, "credential store backend (sqlite, redis, memory)")
	fs.StringVar(&cfg.StorePath, "s", cfg.StorePath, "path to the SQLite credential store")
	fs.StringVar(&cfg.RedisAddr, "r", cfg.RedisAddr, "redis address (host:port)")
	timeout := fs.Int("t", int(cfg.RequestTimeout.Seconds()), "request timeout (in seconds)")
	fs.BoolVar(&cfg.VerifyTokenOnStart, "v", cfg.VerifyTokenOnStart, "verify stored token expiry at startup")
	fs.StringVar(&cfg.LogBackend, "l", cfg.LogBackend, "log backend (slog, zerolog)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.RequestTimeout = time.Duration(*timeout) * time.Second
}
