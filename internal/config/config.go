// Package config содержит логику чтения конфигурации сервиса оформления заказов.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	defaultRunAddress     = "localhost:8080"
	defaultPaymentGateway = "https://api.stripe.com"
)

// ErrNoOrderStore возвращается, если не задана ни база данных, ни удалённое API заказов.
var ErrNoOrderStore = errors.New("either database URI or order API address is required")

// Config содержит параметры конфигурации сервиса оформления заказов.
type Config struct {
	RunAddress            string `env:"RUN_ADDRESS"`
	DatabaseURI           string `env:"DATABASE_URI"`
	OrderAPIAddress       string `env:"ORDER_API_ADDRESS"`
	PaymentGatewayAddress string `env:"PAYMENT_GATEWAY_ADDRESS"`

	PaymentSecretKey string        `env:"PAYMENT_SECRET_KEY"`
	SessionSecret    string        `env:"SESSION_SECRET"`
	SessionTTL       time.Duration `env:"SESSION_TTL" envDefault:"30m"`
	UnpaidOrderTTL   time.Duration `env:"UNPAID_ORDER_TTL" envDefault:"24h"`
}

// Parse считывает конфигурацию из файла .env, флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами, файл .env не перекрывает окружение.
func Parse() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envOrderAPIAddress := cfg.OrderAPIAddress
	envPaymentGateway := cfg.PaymentGatewayAddress

	flag.StringVar(&cfg.RunAddress, "a", defaultRunAddress, "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.OrderAPIAddress, "o", "", "remote order API address")
	flag.StringVar(&cfg.PaymentGatewayAddress, "p", defaultPaymentGateway, "payment gateway address")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envOrderAPIAddress != "" {
		cfg.OrderAPIAddress = envOrderAPIAddress
	}
	if envPaymentGateway != "" {
		cfg.PaymentGatewayAddress = envPaymentGateway
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = defaultRunAddress
	}

	return cfg, nil
}

// Validate проверяет, что задано хранилище заказов.
func (c *Config) Validate() error {
	if c.DatabaseURI == "" && c.OrderAPIAddress == "" {
		return ErrNoOrderStore
	}
	return nil
}
