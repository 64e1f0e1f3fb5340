package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/fatih/color"

	"github.com/kazz187/asmith/internal/bot"
	"github.com/kazz187/asmith/internal/config"
	"github.com/kazz187/asmith/pkg/clog"
)

var version = "dev"

var (
	app   = kingpin.New("asmith", "Matrix bot that keeps a to-do list per chat room")
	debug = app.Flag("debug", "Enable debug logging").Bool()

	runCmd         = app.Command("run", "Connect to the homeserver and serve commands").Default()
	runDataDir     = runCmd.Flag("data-dir", "Directory for snapshots and the session (local storage)").String()
	runHomeserver  = runCmd.Flag("homeserver", "Homeserver URL").String()
	runUserID      = runCmd.Flag("user-id", "Bot user id, e.g. @asmith:example.org").String()
	runPassword    = runCmd.Flag("password", "Login password").String()
	runAccessToken = runCmd.Flag("access-token", "Access token; skips password login").String()
	runMaxRetries  = runCmd.Flag("max-retries", "Consecutive transport failures before giving up").Int()

	superviseCmd = app.Command("supervise", "Run the bot as a child process and restart it when it exits or the binary changes")

	snapshotsCmd     = app.Command("snapshots", "Inspect saved snapshots")
	snapshotsListCmd = snapshotsCmd.Command("list", "List snapshot files, oldest first")
	snapshotsShowCmd = snapshotsCmd.Command("show", "Validate a snapshot file and print its task lists")
	snapshotsShowArg = snapshotsShowCmd.Arg("file", "Snapshot file name").Required().String()

	versionCmd = app.Command("version", "Print the version")
)

func main() {
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	if command == versionCmd.FullCommand() {
		fmt.Println(version)
		return
	}

	env, err := config.LoadEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load env: %v\n", err)
		os.Exit(1)
	}
	applyFlags(env)
	setupLogger(env)

	if err := env.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch command {
	case runCmd.FullCommand():
		err = runBot(ctx, env)
	case superviseCmd.FullCommand():
		err = supervise(ctx)
	case snapshotsListCmd.FullCommand():
		err = listSnapshots(ctx, env, os.Stdout)
	case snapshotsShowCmd.FullCommand():
		err = showSnapshot(ctx, env, *snapshotsShowArg, os.Stdout)
	}
	if err != nil {
		if errors.Is(err, bot.ErrRetryBudgetExhausted) {
			slog.Error("exiting after repeated connection failures")
		} else {
			slog.Error("command failed", "command", command, "error", err)
		}
		stop()
		os.Exit(1)
	}
}

// applyFlags lets command line flags override the environment.
func applyFlags(env *config.Env) {
	if *debug {
		env.LogLevel = "debug"
	}
	if *runDataDir != "" {
		env.BaseDir = *runDataDir
	}
	if *runHomeserver != "" {
		env.Homeserver = *runHomeserver
	}
	if *runUserID != "" {
		env.UserID = *runUserID
	}
	if *runPassword != "" {
		env.Credentials.Password = *runPassword
	}
	if *runAccessToken != "" {
		env.Credentials.AccessToken = *runAccessToken
	}
	if *runMaxRetries != 0 {
		env.MaxRetries = *runMaxRetries
	}
}

func setupLogger(env *config.Env) {
	level := env.SlogLevel()
	var handler slog.Handler
	if env.Env == "local" {
		handler = clog.NewTextHandler(os.Stderr, clog.WithLevel(level), clog.WithColor(!color.NoColor))
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(clog.NewAttributesHandler(handler)))
}
