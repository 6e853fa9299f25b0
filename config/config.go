// Package config carrega a configuração declarativa do controle de admissão
// (regras de quota, store, fallback, logger) a partir de um arquivo YAML, com
// validação na carga e hot reload via fsnotify.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kruger4712/MealPrep-sub003/middleware/ratelimit/application"
	"github.com/kruger4712/MealPrep-sub003/middleware/ratelimit/domain"

	"gopkg.in/yaml.v3"
)

// Duration aceita strings no formato do time.ParseDuration ("50ms", "2s").
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string like \"50ms\": %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std converte para time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config é a configuração completa do gateway de admissão.
type Config struct {
	// Logger controla o nível de log estruturado.
	Logger LoggerConfig `yaml:"logger"`

	// Store aponta para o Redis compartilhado entre as instâncias.
	Store StoreConfig `yaml:"store"`

	// Fallback define o comportamento quando o store está inacessível.
	Fallback FallbackConfig `yaml:"fallback"`

	// SensitiveEndpoints lista caminhos com regras extras (login, reset de
	// senha, sugestões de IA). Normalizados na carga.
	SensitiveEndpoints []string `yaml:"sensitiveEndpoints,omitempty"`

	// Rules é a lista declarativa de regras de quota.
	Rules []RuleConfig `yaml:"rules"`
}

type LoggerConfig struct {
	// Level: debug, info, warn ou error. Vazio = info.
	Level string `yaml:"level,omitempty"`
}

type StoreConfig struct {
	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword,omitempty"`
	RedisDB       int    `yaml:"redisDB,omitempty"`

	// CallTimeout limita cada ida ao Redis; curto e independente do deadline
	// da requisição. Vazio = padrão do store (50ms).
	CallTimeout Duration `yaml:"callTimeout,omitempty"`

	// KeyPrefix prefixa todas as chaves no Redis. Vazio = padrão do store.
	KeyPrefix string `yaml:"keyPrefix,omitempty"`
}

type FallbackConfig struct {
	// Mode: "open" (admite, padrão recomendado) ou "closed" (rejeita).
	Mode string `yaml:"mode,omitempty"`

	// FailureThreshold é o número de falhas consecutivas do store que leva o
	// limiter ao modo degradado. Zero = padrão da política.
	FailureThreshold int `yaml:"failureThreshold,omitempty"`
}

// RuleConfig é a forma declarativa de uma domain.RateLimitRule.
type RuleConfig struct {
	ID          string `yaml:"id"`
	Scope       string `yaml:"scope"`
	Tier        string `yaml:"tier,omitempty"`
	Endpoint    string `yaml:"endpoint,omitempty"`
	Window      string `yaml:"window"`
	Limit       int64  `yaml:"limit"`
	Priority    int    `yaml:"priority,omitempty"`
	LimitType   string `yaml:"limitType,omitempty"`
	KeyTemplate string `yaml:"keyTemplate,omitempty"`
}

// LoadFromFile carrega e valida a configuração.
//
// Erro aqui é fatal na primeira carga; num reload ele rejeita o arquivo novo
// e o snapshot anterior permanece ativo.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// validate verifica a configuração inteira na carga; nada disso roda por
// requisição.
func (c *Config) validate() error {
	switch c.Logger.Level {
	case "", "debug", "info", "warn", "error":
		// OK
	default:
		return fmt.Errorf("unsupported log level: %s", c.Logger.Level)
	}

	if _, err := application.ParseFallbackMode(c.Fallback.Mode); err != nil {
		return err
	}
	if c.Fallback.FailureThreshold < 0 {
		return fmt.Errorf("fallback failureThreshold must be >= 0")
	}

	if c.Store.CallTimeout < 0 {
		return fmt.Errorf("store callTimeout must be >= 0")
	}

	if len(c.Rules) == 0 {
		return fmt.Errorf("no rate limit rules configured")
	}

	// A conversão completa valida cada regra (escopo, janela, limite, tier).
	if _, err := c.RuleSet(); err != nil {
		return err
	}
	return nil
}

// FallbackMode retorna o modo já convertido (só chamar após validação).
func (c *Config) FallbackMode() application.FallbackMode {
	mode, _ := application.ParseFallbackMode(c.Fallback.Mode)
	return mode
}

// RuleSet converte a configuração num snapshot imutável de regras.
// Cada chamada produz um snapshot novo (com ID próprio).
func (c *Config) RuleSet() (*domain.RuleSet, error) {
	rules := make([]domain.RateLimitRule, 0, len(c.Rules))
	for _, rc := range c.Rules {
		scope, err := domain.ParseRuleScope(rc.Scope)
		if err != nil {
			return nil, err
		}
		window, err := domain.ParseWindowKind(rc.Window)
		if err != nil {
			return nil, err
		}

		endpoint := rc.Endpoint
		if endpoint != "" {
			endpoint = domain.NormalizeEndpoint(endpoint)
		}

		rules = append(rules, domain.RateLimitRule{
			ID:          rc.ID,
			Scope:       scope,
			Tier:        domain.Tier(rc.Tier),
			Endpoint:    endpoint,
			KeyTemplate: rc.KeyTemplate,
			Window:      window,
			Limit:       rc.Limit,
			Priority:    rc.Priority,
			LimitType:   rc.LimitType,
		})
	}

	return domain.NewRuleSet(rules, c.SensitiveEndpoints)
}
