package app

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/lakeflow/internal/data/db"
)

const redacted = "<redacted>"

// Flags are the command line options of the etl binary.
type Flags struct {
	ConfigPath  string
	Profile     string
	PrintConfig bool
}

func ParseFlags(fs *flag.FlagSet, args []string) (Flags, error) {
	var f Flags
	fs.StringVar(&f.ConfigPath, "config", "config.yaml", "path to the YAML config (optional)")
	fs.StringVar(&f.Profile, "profile", "", "override the profile: local or remote")
	fs.BoolVar(&f.PrintConfig, "print-config", false, "print the effective config and exit")
	if err := fs.Parse(args); err != nil {
		return f, err
	}
	if fs.NArg() > 0 {
		return f, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	return f, nil
}

// Run loads the config, builds the app and runs the pipeline once,
// writing the progress report to out.
func Run(ctx context.Context, flags Flags, out io.Writer) error {
	cfg, err := loadWithProfile(flags)
	if err != nil {
		return err
	}
	if flags.PrintConfig {
		return PrintConfig(out, cfg)
	}

	a, err := New(ctx, cfg)
	if err != nil {
		return err
	}
	_, runErr := a.Build(ctx, out)
	closeErr := a.Close(context.WithoutCancel(ctx))
	if runErr != nil {
		return runErr
	}
	return closeErr
}

func loadWithProfile(flags Flags) (*Config, error) {
	cfg, err := readConfig(flags.ConfigPath)
	if err != nil {
		return nil, err
	}
	if p := strings.TrimSpace(flags.Profile); p != "" {
		cfg.Profile = p
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// PrintConfig writes cfg as YAML with secrets masked.
func PrintConfig(out io.Writer, cfg *Config) error {
	c := *cfg
	if c.LogHashSalt != "" {
		c.LogHashSalt = redacted
	}
	if c.Remote.Credentials != "" {
		c.Remote.Credentials = redacted
	}
	if c.DataQuality.AlertWebhook != "" {
		c.DataQuality.AlertWebhook = redacted
	}
	if len(c.Otel.Headers) > 0 {
		headers := make(map[string]string, len(c.Otel.Headers))
		for k := range c.Otel.Headers {
			headers[k] = redacted
		}
		c.Otel.Headers = headers
	}
	c.LedgerDSN = db.RedactDSN(c.LedgerDSN)

	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(&c); err != nil {
		return fmt.Errorf("print config: %w", err)
	}
	return enc.Close()
}
