package config

import (
	"strings"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// EnvPrefix is the prefix of environment variables overriding config keys,
// e.g. TAILORLINE_DATABASE_DSN for database.dsn.
const EnvPrefix = "TAILORLINE"

// NewViper returns a viper instance reading TAILORLINE_* variables. Dotenv files
// are loaded first when present; variables already set in the process win.
func NewViper(dotenvFiles ...string) *viper.Viper {
	for _, f := range dotenvFiles {
		_ = gotenv.Load(f)
	}
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// ApplyOverrides copies any keys set in v onto the config and re-validates it.
func (c *Config) ApplyOverrides(v *viper.Viper) error {
	if v == nil {
		return c.Validate()
	}
	str := func(key string, dst *string) {
		if s := v.GetString(key); s != "" {
			*dst = s
		}
	}
	num := func(key string, dst *int) {
		if v.IsSet(key) {
			*dst = v.GetInt(key)
		}
	}
	str("server.addr", &c.Server.Addr)
	str("server.base_path", &c.Server.BasePath)
	num("server.request_timeout_ms", &c.Server.RequestTimeoutMS)
	str("database.driver", &c.Database.Driver)
	str("database.workspace", &c.Database.Workspace)
	str("database.dsn", &c.Database.DSN)
	num("database.busy_timeout_ms", &c.Database.BusyTimeoutMS)
	num("database.max_open_conns", &c.Database.MaxOpenConns)
	str("log.level", &c.Log.Level)
	str("log.format", &c.Log.Format)
	str("log.output", &c.Log.Output)
	str("auth.jwt_secret", &c.Auth.JWTSecret)
	if v.IsSet("auth.allow_actor_header") {
		c.Auth.AllowActorHeader = v.GetBool("auth.allow_actor_header")
	}
	return c.Validate()
}
