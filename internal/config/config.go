// Package config resolves gadr settings.
//
// Precedence, highest first: git config (the per-repo, team-shareable
// layer), a viper-loaded .gadr.yaml file or GADR_ environment variables,
// then compiled defaults. Resolution happens once per command; the
// resulting Config is threaded explicitly, never read from a global.
package config

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Git config keys. The file/env layer uses the same names with the
// "adr." prefix dropped and dots retained (e.g. "sync.merge_strategy").
const (
	KeyNamespace          = "adr.namespace"
	KeyArtifactsNamespace = "adr.artifactsnamespace"
	KeyTemplate           = "adr.template"
	KeyArtifactWarnSize   = "adr.artifactwarnsize"
	KeyArtifactMaxSize    = "adr.artifactmaxsize"
	KeyMergeStrategy      = "adr.sync.mergestrategy"
	KeyAutoPush           = "adr.sync.autopush"
	KeyAutoPull           = "adr.sync.autopull"
	KeyWikiPlatform       = "adr.wiki.platform"
	KeyAIProvider         = "adr.ai.provider"
	KeyAIModel            = "adr.ai.model"
)

// Defaults.
const (
	DefaultNamespace          = "refs/notes/adr"
	DefaultArtifactsNamespace = "refs/notes/adr-artifacts"
	DefaultTemplate           = "default"
	DefaultArtifactWarnSize   = int64(1 << 20)  // 1 MiB
	DefaultArtifactMaxSize    = int64(10 << 20) // 10 MiB
	DefaultMergeStrategy      = "union"
	DefaultAIModel            = "claude-sonnet-4-5"
)

// Config is the resolved settings snapshot for one command invocation.
type Config struct {
	Namespace          string
	ArtifactsNamespace string
	Template           string
	ArtifactWarnSize   int64
	ArtifactMaxSize    int64
	MergeStrategy      string
	AutoPush           bool
	AutoPull           bool
	WikiPlatform       string
	AIProvider         string
	AIModel            string
}

// GitSource reads the repository's config store. Satisfied by
// *gitx.Repo; a map-backed fake serves tests.
type GitSource interface {
	ConfigGet(ctx context.Context, key string) (string, bool)
}

// Load resolves the full configuration. dir is where the file layer
// looks for .gadr.yaml; empty means skip the file layer.
func Load(ctx context.Context, git GitSource, dir string) (Config, error) {
	v := viper.New()
	v.SetConfigName(".gadr")
	v.SetConfigType("yaml")
	if dir != "" {
		v.AddConfigPath(dir)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("reading .gadr.yaml: %w", err)
			}
		}
	}
	v.SetEnvPrefix("GADR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("namespace", DefaultNamespace)
	v.SetDefault("artifactsnamespace", DefaultArtifactsNamespace)
	v.SetDefault("template", DefaultTemplate)
	v.SetDefault("artifactwarnsize", DefaultArtifactWarnSize)
	v.SetDefault("artifactmaxsize", DefaultArtifactMaxSize)
	v.SetDefault("sync.mergestrategy", DefaultMergeStrategy)
	v.SetDefault("sync.autopush", false)
	v.SetDefault("sync.autopull", false)
	v.SetDefault("wiki.platform", "")
	v.SetDefault("ai.provider", "anthropic")
	v.SetDefault("ai.model", DefaultAIModel)

	cfg := Config{
		Namespace:          resolveString(ctx, git, v, KeyNamespace),
		ArtifactsNamespace: resolveString(ctx, git, v, KeyArtifactsNamespace),
		Template:           resolveString(ctx, git, v, KeyTemplate),
		MergeStrategy:      resolveString(ctx, git, v, KeyMergeStrategy),
		WikiPlatform:       resolveString(ctx, git, v, KeyWikiPlatform),
		AIProvider:         resolveString(ctx, git, v, KeyAIProvider),
		AIModel:            resolveString(ctx, git, v, KeyAIModel),
	}
	var err error
	if cfg.ArtifactWarnSize, err = resolveSize(ctx, git, v, KeyArtifactWarnSize); err != nil {
		return Config{}, err
	}
	if cfg.ArtifactMaxSize, err = resolveSize(ctx, git, v, KeyArtifactMaxSize); err != nil {
		return Config{}, err
	}
	if cfg.AutoPush, err = resolveBool(ctx, git, v, KeyAutoPush); err != nil {
		return Config{}, err
	}
	if cfg.AutoPull, err = resolveBool(ctx, git, v, KeyAutoPull); err != nil {
		return Config{}, err
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.MergeStrategy {
	case "ours", "theirs", "union":
	default:
		return fmt.Errorf("config %s: unknown merge strategy %q", KeyMergeStrategy, c.MergeStrategy)
	}
	if c.ArtifactMaxSize > 0 && c.ArtifactWarnSize > c.ArtifactMaxSize {
		return fmt.Errorf("config: warn size %d exceeds max size %d", c.ArtifactWarnSize, c.ArtifactMaxSize)
	}
	return nil
}

// fileKey maps a git config key to its file/env layer name.
func fileKey(key string) string {
	return strings.TrimPrefix(key, "adr.")
}

func resolveString(ctx context.Context, git GitSource, v *viper.Viper, key string) string {
	if git != nil {
		if val, ok := git.ConfigGet(ctx, key); ok {
			return val
		}
	}
	return v.GetString(fileKey(key))
}

func resolveBool(ctx context.Context, git GitSource, v *viper.Viper, key string) (bool, error) {
	if git != nil {
		if val, ok := git.ConfigGet(ctx, key); ok {
			b, err := strconv.ParseBool(val)
			if err != nil {
				return false, fmt.Errorf("config %s: %w", key, err)
			}
			return b, nil
		}
	}
	return v.GetBool(fileKey(key)), nil
}

// resolveSize parses sizes as plain bytes or with a k/m/g suffix
// (powers of 1024), matching git's own size syntax.
func resolveSize(ctx context.Context, git GitSource, v *viper.Viper, key string) (int64, error) {
	if git != nil {
		if val, ok := git.ConfigGet(ctx, key); ok {
			n, err := ParseSize(val)
			if err != nil {
				return 0, fmt.Errorf("config %s: %w", key, err)
			}
			return n, nil
		}
	}
	raw := v.GetString(fileKey(key))
	if raw == "" {
		return 0, nil
	}
	n, err := ParseSize(raw)
	if err != nil {
		return 0, fmt.Errorf("config %s: %w", key, err)
	}
	return n, nil
}

// ParseSize parses "1048576", "512k", "10m", or "1g".
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return 0, fmt.Errorf("empty size")
	}
	mult := int64(1)
	switch s[len(s)-1] {
	case 'k':
		mult, s = 1<<10, s[:len(s)-1]
	case 'm':
		mult, s = 1<<20, s[:len(s)-1]
	case 'g':
		mult, s = 1<<30, s[:len(s)-1]
	}
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	return n * mult, nil
}
