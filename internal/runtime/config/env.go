package config

import (
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Environment variables consulted when an override is not given.
const (
	EnvDSN                = "SENTRY_DSN"
	EnvRelease            = "FAULTLINE_REVISION"
	EnvEnvironment        = "FAULTLINE_ENV"
	EnvSite               = "FAULTLINE_DOMAIN"
	EnvName               = "FAULTLINE_UNIT"
	EnvSoftRequestTimeout = "FAULTLINE_SOFT_REQUEST_TIMEOUT"
)

const (
	keyDSN                = "dsn"
	keyRelease            = "release"
	keyEnvironment        = "environment"
	keySite               = "site"
	keyName               = "name"
	keySoftRequestTimeout = "soft_request_timeout"
)

// newEnv returns a viper instance reading the process environment at call
// time, so values set after start-up are honoured.
func newEnv() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("FAULTLINE")
	v.AutomaticEnv()

	_ = v.BindEnv(keyDSN, EnvDSN)
	_ = v.BindEnv(keyRelease, EnvRelease)
	_ = v.BindEnv(keyEnvironment, EnvEnvironment)
	_ = v.BindEnv(keySite, EnvSite)
	_ = v.BindEnv(keyName, EnvName)
	_ = v.BindEnv(keySoftRequestTimeout, EnvSoftRequestTimeout)

	v.SetDefault("transport", DefaultTransport)
	v.SetDefault("topic", DefaultTopic)
	v.SetDefault("encoding", DefaultEncoding)
	return v
}

func transportFromEnv(v *viper.Viper) TransportConfig {
	return TransportConfig{
		Name:               v.GetString("transport"),
		Topic:              v.GetString("topic"),
		Encoding:           v.GetString("encoding"),
		KafkaBrokers:       splitList(v.GetString("kafka_brokers")),
		KafkaConsumerGroup: v.GetString("kafka_consumer_group"),
		RabbitMQURL:        v.GetString("rabbitmq_url"),
		NATSURL:            v.GetString("nats_url"),
		HTTPPublisherURL:   v.GetString("http_publisher_url"),
		HTTPServerAddress:  v.GetString("http_server_address"),
		IOFile:             v.GetString("io_file"),
		AWSRegion:          v.GetString("aws_region"),
		AWSAccountID:       v.GetString("aws_account_id"),
		AWSAccessKeyID:     v.GetString("aws_access_key_id"),
		AWSSecretAccessKey: v.GetString("aws_secret_access_key"),
		AWSEndpoint:        v.GetString("aws_endpoint"),
	}
}

// SoftRequestTimeout returns the request soft-timeout threshold from
// FAULTLINE_SOFT_REQUEST_TIMEOUT (milliseconds). The second result is false
// when the variable is unset, not an integer, or negative. A zero threshold
// is enabled and is exceeded by every request.
func SoftRequestTimeout() (time.Duration, bool) {
	raw := strings.TrimSpace(newEnv().GetString(keySoftRequestTimeout))
	if raw == "" {
		return 0, false
	}
	ms, err := strconv.Atoi(raw)
	if err != nil || ms < 0 {
		return 0, false
	}
	return time.Duration(ms) * time.Millisecond, true
}

func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
