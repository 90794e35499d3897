package utils

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"
)

// ImportEnv loads an optional .env file from the working directory into v
// and binds environment variables carrying prefix. A missing .env file is
// not an error.
func ImportEnv(v *viper.Viper, prefix string) error {
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.SetEnvPrefix(prefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return errors.Wrap(err, "fatal error config file")
		}
	}
	return nil
}
