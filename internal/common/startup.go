package common

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	commonconfig "github.com/ldbc/driver/internal/common/config"
)

const (
	baseConfigFileName = "config"
	envPrefix          = "LDBC"
	logLevelEnvVar     = "LOG_LEVEL"
)

// LoadConfig reads config.yaml from defaultPath, merges each of overrideConfigs on top of it in order and
// finally applies LDBC_ prefixed environment variables, e.g. LDBC_DB_NAME for db.name.
func LoadConfig(config interface{}, defaultPath string, overrideConfigs []string) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigName(baseConfigFileName)
	v.AddConfigPath(defaultPath)
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "error reading base config from %s", defaultPath)
	}
	log.Infof("Read base config from %s", v.ConfigFileUsed())

	for _, overrideConfig := range overrideConfigs {
		v.SetConfigFile(overrideConfig)
		if err := v.MergeInConfig(); err != nil {
			return nil, errors.Wrapf(err, "error reading config from %s", overrideConfig)
		}
		log.Infof("Read config from %s", v.ConfigFileUsed())
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	if err := v.Unmarshal(config, commonconfig.CustomHooks...); err != nil {
		return nil, errors.WithMessage(err, "error unmarshalling config")
	}
	return v, nil
}

// ConfigureLogging sets up logrus text logging to stdout at the level named by LOG_LEVEL (default info).
func ConfigureLogging() {
	log.SetFormatter(&log.TextFormatter{ForceColors: true, FullTimestamp: true})
	log.SetOutput(os.Stdout)
	level := log.InfoLevel
	if s, ok := os.LookupEnv(logLevelEnvVar); ok {
		parsed, err := log.ParseLevel(s)
		if err != nil {
			log.Warnf("Ignoring %s=%s: %s", logLevelEnvVar, s, err)
		} else {
			level = parsed
		}
	}
	log.SetLevel(level)
}

// ServeHttp serves mux on port in the background and returns a function that shuts the server down.
func ServeHttp(port uint16, mux http.Handler) (shutdown func()) {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Infof("Starting http server listening on %d", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Errorf("Http server listening on %d failed", port)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		log.Infof("Stopping http server listening on %d", port)
		if err := srv.Shutdown(ctx); err != nil {
			log.WithError(err).Warnf("Http server listening on %d did not shut down cleanly", port)
		}
	}
}
