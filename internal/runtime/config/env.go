package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	errspkg "github.com/drblury/protoevents/internal/runtime/errors"
)

// EnvPrefix prefixes every variable read by FromEnv.
const EnvPrefix = "PROTOEVENTS_"

// LegacyClientIDEnv is read when PROTOEVENTS_CLIENT_ID is unset.
const LegacyClientIDEnv = "RABBITEVENTS_CLIENT_ID"

// FromEnv loads the given dotenv files, or ./.env when none are given, and
// builds a Config from PROTOEVENTS_* variables. Variables already present in
// the environment win over dotenv values. A missing default .env is ignored.
func FromEnv(files ...string) (*Config, error) {
	if err := loadDotenv(files); err != nil {
		return nil, err
	}

	r := envReader{}
	cfg := &Config{
		PubSubSystem:            r.str("PUBSUB_SYSTEM"),
		Client:                  r.str("CLIENT_ID"),
		Service:                 r.str("SERVICE"),
		Codec:                   r.str("CODEC"),
		CommunicationsLogLevel:  r.str("COMMUNICATIONS_LOG_LEVEL"),
		KafkaBrokers:            r.list("KAFKA_BROKERS"),
		KafkaConsumerGroup:      r.str("KAFKA_CONSUMER_GROUP"),
		RabbitMQURL:             r.str("RABBITMQ_URL"),
		NATSURL:                 r.str("NATS_URL"),
		NATSStreamName:          r.str("NATS_STREAM"),
		HTTPServerAddress:       r.str("HTTP_SERVER_ADDRESS"),
		HTTPPublisherURL:        r.str("HTTP_PUBLISHER_URL"),
		AWSRegion:               r.str("AWS_REGION"),
		AWSAccountID:            r.str("AWS_ACCOUNT_ID"),
		AWSAccessKeyID:          r.str("AWS_ACCESS_KEY_ID"),
		AWSSecretAccessKey:      r.str("AWS_SECRET_ACCESS_KEY"),
		AWSEndpoint:             r.str("AWS_ENDPOINT"),
		PoisonQueue:             r.str("POISON_QUEUE"),
		RetryMaxRetries:         r.int("RETRY_MAX_RETRIES"),
		RetryInitialInterval:    r.duration("RETRY_INITIAL_INTERVAL"),
		RetryMaxInterval:        r.duration("RETRY_MAX_INTERVAL"),
		MetricsEnabled:          r.bool("METRICS_ENABLED"),
		MetricsPort:             r.int("METRICS_PORT"),
		WebUIEnabled:            r.bool("WEBUI_ENABLED"),
		WebUIPort:               r.int("WEBUI_PORT"),
		WebUICORSAllowedOrigins: r.list("WEBUI_CORS_ALLOWED_ORIGINS"),
	}
	if cfg.Client == "" {
		cfg.Client = strings.TrimSpace(os.Getenv(LegacyClientIDEnv))
	}

	errs := append(r.errs, cfg.Validate())
	if err := errspkg.NewConfigValidationError(errors.Join(errs...)); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadDotenv(files []string) error {
	if len(files) > 0 {
		if err := godotenv.Load(files...); err != nil {
			return fmt.Errorf("failed to load env files: %w", err)
		}
		return nil
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	return nil
}

type envReader struct {
	errs []error
}

func (r *envReader) str(key string) string {
	return strings.TrimSpace(os.Getenv(EnvPrefix + key))
}

func (r *envReader) list(key string) []string {
	raw := r.str(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (r *envReader) int(key string) int {
	raw := r.str(key)
	if raw == "" {
		return 0
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
	}
	return v
}

func (r *envReader) bool(key string) bool {
	raw := r.str(key)
	if raw == "" {
		return false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
	}
	return v
}

func (r *envReader) duration(key string) time.Duration {
	raw := r.str(key)
	if raw == "" {
		return 0
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
	}
	return v
}
