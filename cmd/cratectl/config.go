package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/danmuck/cratectl/internal/lint"
	"github.com/danmuck/cratectl/internal/report"
)

// fileConfig is the cratectl.toml schema.
type fileConfig struct {
	Root     string            `toml:"root"`
	Format   string            `toml:"format"`
	Index    string            `toml:"index"`
	Exclude  []string          `toml:"exclude"`
	Severity map[string]string `toml:"severity"`
}

type toolConfig struct {
	Root       string
	Format     report.Format
	Index      string
	Exclude    []string
	Severities map[string]lint.Severity
}

func defaultConfig() toolConfig {
	return toolConfig{
		Root:   ".",
		Format: report.FormatText,
	}
}

func loadConfig(path string) (toolConfig, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return toolConfig{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	var raw fileConfig
	if err := toml.Unmarshal(data, &raw); err != nil {
		return toolConfig{}, fmt.Errorf("config parse failed (%s): %w", path, err)
	}

	if v := strings.TrimSpace(raw.Root); v != "" {
		cfg.Root = v
	}
	if v := strings.TrimSpace(raw.Format); v != "" {
		f, err := report.ParseFormat(v)
		if err != nil {
			return toolConfig{}, fmt.Errorf("config (%s): %w", path, err)
		}
		cfg.Format = f
	}
	cfg.Index = strings.TrimSpace(raw.Index)
	cfg.Exclude = normalizeExclude(raw.Exclude)

	if len(raw.Severity) > 0 {
		cfg.Severities = make(map[string]lint.Severity, len(raw.Severity))
		for check, sev := range raw.Severity {
			parsed, err := lint.ParseSeverity(sev)
			if err != nil {
				return toolConfig{}, fmt.Errorf("config (%s): check %q: %w", path, check, err)
			}
			cfg.Severities[check] = parsed
		}
	}
	return cfg, nil
}

func normalizeExclude(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	for _, dir := range in {
		v := strings.TrimSpace(dir)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
