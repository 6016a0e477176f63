package cmd

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/reftrack/internal/client"
	"github.com/reftrack/internal/config"
	"github.com/reftrack/internal/gitrepo"
	"github.com/reftrack/internal/mailnotify"
	"github.com/reftrack/internal/notify"
)

// NotifyCommand returns the notify command, the client half of the system.
// It is meant to run from a CI job or a git hook after refs change.
func NotifyCommand() *cli.Command {
	return &cli.Command{
		Name:  "notify",
		Usage: "Notify the tracking service about updated refs and wait for the re-sync",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "service-url",
				Aliases: []string{"s"},
				Usage:   "Base URL of the tracking service",
				EnvVars: []string{"REFTRACK_SERVICE_URL"},
			},
			&cli.StringFlag{
				Name:    "repository-url",
				Aliases: []string{"r"},
				Usage:   "Remote repository locator identifying this repository to the service",
				EnvVars: []string{"REFTRACK_REPOSITORY_URL"},
			},
			&cli.StringFlag{
				Name:  "ref",
				Usage: "Git ref to notify about; omit to read post-receive lines from stdin",
			},
			&cli.StringFlag{
				Name:  "sha",
				Usage: "Target object name; resolved with git rev-parse when omitted",
			},
			&cli.StringFlag{
				Name:    "username",
				Aliases: []string{"u"},
				Usage:   "Username supplied as HTTP authorization credentials",
			},
			&cli.StringFlag{
				Name:    "password",
				Aliases: []string{"p"},
				Usage:   "Password supplied as HTTP authorization credentials",
			},
			&cli.BoolFlag{
				Name:  "continue-on-error",
				Usage: "Keep processing remaining refs after a fatal failure on one",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug prints",
			},
			&cli.BoolFlag{
				Name:  "insecure-skip-verify",
				Usage: "Disable TLS certificate validation when accessing the service",
			},
		},
		Action: runNotify,
	}
}

func runNotify(c *cli.Context) error {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Flags override the configuration file.
	if v := c.String("service-url"); v != "" {
		cfg.Service.URL = v
	}
	if v := c.String("repository-url"); v != "" {
		cfg.Repository.URL = v
	}
	if v := c.String("username"); v != "" {
		cfg.Notify.Username = v
		cfg.Notify.SendUsernames = true
	}
	if v := c.String("password"); v != "" {
		cfg.Notify.Password = v
	}
	if c.Bool("continue-on-error") {
		cfg.Notify.ContinueOnError = true
	}
	if c.Bool("debug") {
		cfg.Notify.Debug = true
	}
	if c.Bool("insecure-skip-verify") {
		cfg.Notify.InsecureSkipVerify = true
	}

	if err := config.ValidateNotify(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	runLog := notify.NewRunLog(os.Stdout, cfg.Notify.Debug)

	changes, err := collectChanges(c)
	if err != nil {
		return err
	}
	if len(changes) == 0 {
		runLog.Debug("No ref changes to report.")
		return nil
	}

	sender := client.New(cfg.Service.URL, client.Options{
		Username:           cfg.Notify.Username,
		Password:           cfg.Notify.Password,
		InsecureSkipVerify: cfg.Notify.InsecureSkipVerify,
	})

	controller := notify.NewController(sender, runLog, notify.Options{
		RepositoryURL:     cfg.RepositoryURL(gitrepo.TopLevel),
		ConnectionTimeout: cfg.ConnectionTimeout(),
		UpdateTimeout:     cfg.UpdateTimeout(),
		SendUsernames:     cfg.Notify.SendUsernames,
		Username:          cfg.Notify.Username,
		ContinueOnError:   cfg.Notify.ContinueOnError,
	})

	if err := controller.ProcessAll(context.Background(), changes); err != nil {
		runLog.Error("%v", err)

		// Best-effort out-of-band notification with the full run log.
		notifier := &mailnotify.Notifier{
			Addr: cfg.Mail.SMTPAddr,
			From: cfg.Mail.From,
			To:   cfg.Mail.ContactAddress,
		}
		subject := fmt.Sprintf("reftrack notify failed on %s", hostFQDN())
		notifier.Notify(subject, runLog.Dump())

		// The CI job running this must fail on a fatal error.
		return err
	}

	return nil
}

// collectChanges builds the ref change list: a single --ref invocation, or
// post-receive hook lines from stdin.
func collectChanges(c *cli.Context) ([]notify.RefChange, error) {
	if ref := c.String("ref"); ref != "" {
		return []notify.RefChange{notify.SingleRefChange(ref, c.String("sha"))}, nil
	}
	return notify.ReadHookInput(os.Stdin)
}

func hostFQDN() string {
	if output, err := exec.Command("hostname", "--fqdn").Output(); err == nil {
		if fqdn := strings.TrimSpace(string(output)); fqdn != "" {
			return fqdn
		}
	}
	host, err := os.Hostname()
	if err != nil {
		return "unknown-host"
	}
	return host
}
