package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/pflag"

	"github.com/chazu/workcell/pkg/config"
	"github.com/chazu/workcell/pkg/logging"
	"github.com/chazu/workcell/pkg/urdf"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "workcell:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags := pflag.NewFlagSet("workcell", pflag.ContinueOnError)
	var (
		configPath = flags.String("config", "", "configuration file (default $"+config.EnvVar+")")
		in         = flags.StringP("in", "i", "", "input document (.urdf, .wcl, .json, .wcb, .wcz)")
		out        = flags.StringP("out", "o", "", "output document (.urdf, .json, .wcb, .wcz)")
		pkgDir     = flags.String("package", "", "also write a description package under this directory")
		fixedFrame = flags.String("fixed-frame", "", "robot description: hold the root link at its pose under this frame")
		robotName  = flags.String("name", "", "robot description: robot name")
		logLevel   = flags.String("log-level", "", "override the configured log level")
	)
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *in == "" || (*out == "" && *pkgDir == "") {
		flags.Usage()
		return errors.New("--in and one of --out or --package are required")
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	log := logging.New(logging.Options{Level: level, Format: cfg.Log.Format, Component: "workcell"})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	app, err := NewApp(cfg, log)
	if err != nil {
		return err
	}
	defer app.Close()

	if *out != "" {
		opts := urdf.ExportOptions{Name: *robotName, FixedFrame: *fixedFrame}
		if err := app.Convert(ctx, *in, *out, opts); err != nil {
			return err
		}
	} else if err := app.Load(ctx, *in); err != nil {
		return err
	}
	if *pkgDir != "" {
		path, err := app.WritePackage(*pkgDir)
		if err != nil {
			return err
		}
		log.Info("wrote description package", "path", path)
	}
	return nil
}

// loadConfig reads path, or the file named by the environment. With
// neither, the defaults apply.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	cfg, err := config.Load()
	if errors.Is(err, config.ErrNoConfig) {
		return config.Default(), nil
	}
	return cfg, err
}
