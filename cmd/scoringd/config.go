package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-interview-scoring/core"
	"github.com/spf13/viper"
)

const envPrefix = "SCORING"

type keyKind int

const (
	kindString keyKind = iota
	kindInt
	kindBool
	kindDuration
	kindStrings
)

// serviceKeys are the core.Config keys the CLI reads from the config file
// and SCORING_* environment variables.
var serviceKeys = map[string]keyKind{
	"service_name":                 kindString,
	"webhook.secret":               kindString,
	"webhook.secret_file":          kindString,
	"webhook.signature_header":     kindString,
	"webhook.replay_window":        kindDuration,
	"webhook.completion_status":    kindString,
	"webhook.graceful_end_reasons": kindStrings,
	"webhook.gate_on_end_reason":   kindBool,
	"enqueue.max_retries":          kindInt,
	"enqueue.initial_backoff":      kindDuration,
	"runner.scoring_timeout":       kindDuration,
	"runner.max_attempts":          kindInt,
	"runner.trigger_token":         kindString,
	"runner.trigger_token_file":    kindString,
	"runner.allow_duplicate_jobs":  kindBool,
	"alerts.title_prefix":          kindString,
	"alerts.timeout":               kindDuration,
	"alerts.webhook_url":           kindString,
	"alerts.redis_addr":            kindString,
	"alerts.redis_stream":          kindString,
	"http.address":                 kindString,
	"http.read_timeout":            kindDuration,
	"http.write_timeout":           kindDuration,
	"http.shutdown_timeout":        kindDuration,
	"database.driver":              kindString,
	"database.dsn":                 kindString,
	"database.debug":               kindBool,
	"database.cache_ttl":           kindDuration,
}

// providerKeys configure the collaborators wired by the CLI only.
var providerKeys = []string{
	"log.level",
	"log.json",
	"gemini.api_key",
	"gemini.api_key_file",
	"gemini.model",
	"rubrics.dir",
	"transcripts.url",
	"transcripts.api_key",
	"transcripts.api_key_header",
	"mailer.endpoint",
	"mailer.api_key",
	"mailer.from",
	"mailer.subject",
	"worker.enabled",
	"worker.idle",
}

// newViper reads the optional config file and binds SCORING_<SECTION>_<KEY>
// environment variables for every known key.
func newViper(configFile string) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for key := range serviceKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("command: bind env for %s: %w", key, err)
		}
	}
	for _, key := range providerKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("command: bind env for %s: %w", key, err)
		}
	}
	v.SetDefault("log.level", "info")
	v.SetDefault("worker.idle", time.Second)

	if configFile = strings.TrimSpace(configFile); configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("command: read config %s: %w", configFile, err)
		}
	}
	return v, nil
}

// ViperRawLoader hands the typed subset of viper settings to the cfgx
// config provider. Only keys that are set are emitted, so cfgx defaults
// fill the rest.
type ViperRawLoader struct {
	V *viper.Viper
}

func (l ViperRawLoader) LoadRaw(context.Context) (map[string]any, error) {
	raw := map[string]any{}
	if l.V == nil {
		return raw, nil
	}
	for key, kind := range serviceKeys {
		if !l.V.IsSet(key) {
			continue
		}
		var value any
		switch kind {
		case kindInt:
			value = l.V.GetInt(key)
		case kindBool:
			value = l.V.GetBool(key)
		case kindDuration:
			value = l.V.GetDuration(key)
		case kindStrings:
			value = l.V.GetStringSlice(key)
		default:
			value = l.V.GetString(key)
		}
		setPath(raw, key, value)
	}
	return raw, nil
}

func setPath(root map[string]any, key string, value any) {
	parts := strings.Split(key, ".")
	node := root
	for _, part := range parts[:len(parts)-1] {
		child, ok := node[part].(map[string]any)
		if !ok {
			child = map[string]any{}
			node[part] = child
		}
		node = child
	}
	node[parts[len(parts)-1]] = value
}

// loadConfig builds the service config through cfgx and resolves the
// file-backed secrets.
func loadConfig(ctx context.Context, v *viper.Viper) (core.Config, error) {
	provider := core.NewCfgxConfigProvider(ViperRawLoader{V: v})
	cfg, err := provider.Load(ctx, core.DefaultConfig())
	if err != nil {
		return core.Config{}, err
	}
	cfg = cfg.Normalized()

	secret, err := core.ResolveSecret(cfg.Webhook.Secret, cfg.Webhook.SecretFile)
	if err != nil {
		return core.Config{}, err
	}
	cfg.Webhook.Secret = secret
	token, err := core.ResolveSecret(cfg.Runner.TriggerToken, cfg.Runner.TriggerTokenFile)
	if err != nil {
		return core.Config{}, err
	}
	cfg.Runner.TriggerToken = token
	return cfg, nil
}

type providerSettings struct {
	LogLevel string
	LogJSON  bool

	GeminiAPIKey string
	GeminiModel  string
	RubricsDir   string

	TranscriptsURL       string
	TranscriptsAPIKey    string
	TranscriptsKeyHeader string

	MailerEndpoint string
	MailerAPIKey   string
	MailerFrom     string
	MailerSubject  string

	WorkerEnabled bool
	WorkerIdle    time.Duration
}

func loadProviderSettings(v *viper.Viper) (providerSettings, error) {
	apiKey, err := core.ResolveSecret(v.GetString("gemini.api_key"), v.GetString("gemini.api_key_file"))
	if err != nil {
		return providerSettings{}, err
	}
	return providerSettings{
		LogLevel:             v.GetString("log.level"),
		LogJSON:              v.GetBool("log.json"),
		GeminiAPIKey:         apiKey,
		GeminiModel:          strings.TrimSpace(v.GetString("gemini.model")),
		RubricsDir:           strings.TrimSpace(v.GetString("rubrics.dir")),
		TranscriptsURL:       strings.TrimSpace(v.GetString("transcripts.url")),
		TranscriptsAPIKey:    strings.TrimSpace(v.GetString("transcripts.api_key")),
		TranscriptsKeyHeader: strings.TrimSpace(v.GetString("transcripts.api_key_header")),
		MailerEndpoint:       strings.TrimSpace(v.GetString("mailer.endpoint")),
		MailerAPIKey:         strings.TrimSpace(v.GetString("mailer.api_key")),
		MailerFrom:           strings.TrimSpace(v.GetString("mailer.from")),
		MailerSubject:        strings.TrimSpace(v.GetString("mailer.subject")),
		WorkerEnabled:        v.GetBool("worker.enabled"),
		WorkerIdle:           v.GetDuration("worker.idle"),
	}, nil
}
