package main

import (
	"fmt"
	"io"
	"net"
	"os"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"toolhost/internal/config"
	"toolhost/internal/domain"
)

// checkReport prints pass/warn/fail lines and counts them.
type checkReport struct {
	out                    io.Writer
	passed, warned, failed int
}

func (r *checkReport) pass(check, detail string) {
	r.passed++
	r.line(color.New(color.FgGreen).Sprint("[PASS]"), check, detail)
}

func (r *checkReport) warn(check, detail string) {
	r.warned++
	r.line(color.New(color.FgYellow).Sprint("[WARN]"), check, detail)
}

func (r *checkReport) fail(check, detail string) {
	r.failed++
	r.line(color.New(color.FgRed).Sprint("[FAIL]"), check, detail)
}

func (r *checkReport) line(tag, check, detail string) {
	fmt.Fprintf(r.out, "  %s %-22s %s\n", tag, check, detail)
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check config, providers, planner and audit log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r := &checkReport{out: cmd.OutOrStdout()}
			fmt.Fprintf(r.out, "toolhost %s\n\n", version)

			cfgPath := resolveConfigPath()
			if _, err := os.Stat(cfgPath); err != nil {
				r.warn("Config file", fmt.Sprintf("not found at %s, using defaults (run 'toolhost init')", cfgPath))
			} else {
				r.pass("Config file", cfgPath)
			}

			cfg, err := loadConfig()
			if err != nil {
				r.fail("Config validation", err.Error())
				return r.finish()
			}
			r.pass("Config validation", "valid")

			c, err := buildContainer(cmd.Context(), true)
			if err != nil {
				r.fail("Services", err.Error())
				return r.finish()
			}
			defer closeContainer(c)

			catalogue := c.Registry().AllTools(cmd.Context())
			if len(catalogue) == 0 {
				r.fail("Providers", "none enabled")
			}
			for _, name := range c.Registry().Names() {
				if n := len(catalogue[name]); n > 0 {
					r.pass("Provider: "+name, strconv.Itoa(n)+" tools")
				} else {
					r.warn("Provider: "+name, "registered but offers no tools (missing credentials?)")
				}
			}

			if c.Planner() != nil {
				r.pass("Planner", c.Model())
			} else {
				r.warn("Planner", "unavailable; heuristic selection and plain summaries")
			}

			if a := c.Audit(); a != nil {
				if _, err := a.Recent(cmd.Context(), 1); err != nil {
					r.fail("Audit log", err.Error())
				} else {
					r.pass("Audit log", cfg.Audit.Path)
				}
			} else {
				r.warn("Audit log", "disabled")
			}

			resp := c.Orchestrator().Handle(cmd.Context(), domain.Request{UserQuery: "status check"})
			r.pass("Orchestrator", resp.FinalAnswer)

			if err := checkPort(cfg.Server); err != nil {
				r.warn("HTTP port", err.Error())
			} else {
				r.pass("HTTP port", net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))+" available")
			}
			return r.finish()
		},
	}
}

func (r *checkReport) finish() error {
	fmt.Fprintf(r.out, "\nResults: %d passed, %d warnings, %d failed\n", r.passed, r.warned, r.failed)
	if r.failed > 0 {
		return fmt.Errorf("%d check(s) failed", r.failed)
	}
	return nil
}

func checkPort(s config.ServerConfig) error {
	ln, err := net.Listen("tcp", net.JoinHostPort(s.Host, strconv.Itoa(s.Port)))
	if err != nil {
		return fmt.Errorf("port %d may be in use: %w", s.Port, err)
	}
	return ln.Close()
}
