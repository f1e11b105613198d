package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type EchoServer struct {
	Debug                     bool
	ListenAddress             string
	EnableRecoverMiddleware   bool
	EnableRequestIDMiddleware bool
	EnableLoggerMiddleware    bool
}

type ManagementServer struct {
	ReadinessTimeout        time.Duration
	LivenessTimeout         time.Duration
	ProbeWriteablePathsAbs  []string
	ProbeWriteableTouchfile string
}

type LoggerServer struct {
	Level              zerolog.Level
	RequestLevel       zerolog.Level
	PrettyPrintConsole bool
}

type FrameServer struct {
	// URL the wallet frame is reachable at, e.g. ws://localhost:8080/frame.
	URL string
	// AllowedOrigins may attach to the frame. It must list origins
	// explicitly; an empty list admits no host.
	AllowedOrigins   []string
	ReadinessTimeout time.Duration
	RequestTimeout   time.Duration
}

type WorkerServer struct {
	RequestTimeout time.Duration
}

type WalletServer struct {
	// Name is reported to hosts on connect.
	Name            string
	KeystorePath    string
	CoinType        uint32
	AutoLockTimeout time.Duration
	AutoApprove     bool
	// LightScrypt selects cheap scrypt parameters for new keystores. Never
	// use it outside of development.
	LightScrypt bool
	Password    string `json:"-"`
}

type Server struct {
	Echo       EchoServer
	Management ManagementServer
	Logger     LoggerServer
	Frame      FrameServer
	Worker     WorkerServer
	Wallet     WalletServer
}

// DefaultServiceConfigFromEnv returns the server config as parsed from
// environment variables and their respective defaults.
func DefaultServiceConfigFromEnv() Server {
	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	keystorePath := v.GetString("WALLET_KEYSTORE_PATH")

	return Server{
		Echo: EchoServer{
			Debug:                     v.GetBool("SERVER_ECHO_DEBUG"),
			ListenAddress:             v.GetString("SERVER_ECHO_LISTEN_ADDRESS"),
			EnableRecoverMiddleware:   v.GetBool("SERVER_ECHO_ENABLE_RECOVER_MIDDLEWARE"),
			EnableRequestIDMiddleware: v.GetBool("SERVER_ECHO_ENABLE_REQUEST_ID_MIDDLEWARE"),
			EnableLoggerMiddleware:    v.GetBool("SERVER_ECHO_ENABLE_LOGGER_MIDDLEWARE"),
		},
		Management: ManagementServer{
			ReadinessTimeout:        v.GetDuration("SERVER_MANAGEMENT_READINESS_TIMEOUT"),
			LivenessTimeout:         v.GetDuration("SERVER_MANAGEMENT_LIVENESS_TIMEOUT"),
			ProbeWriteablePathsAbs:  splitList(v.GetString("SERVER_MANAGEMENT_PROBE_WRITEABLE_PATHS_ABS"), filepath.Dir(keystorePath)),
			ProbeWriteableTouchfile: v.GetString("SERVER_MANAGEMENT_PROBE_WRITEABLE_TOUCHFILE"),
		},
		Logger: LoggerServer{
			Level:              parseLevel(v.GetString("SERVER_LOGGER_LEVEL"), zerolog.InfoLevel),
			RequestLevel:       parseLevel(v.GetString("SERVER_LOGGER_REQUEST_LEVEL"), zerolog.DebugLevel),
			PrettyPrintConsole: v.GetBool("SERVER_LOGGER_PRETTY_PRINT_CONSOLE"),
		},
		Frame: FrameServer{
			URL:              v.GetString("FRAME_URL"),
			AllowedOrigins:   splitList(v.GetString("FRAME_ALLOWED_ORIGINS")),
			ReadinessTimeout: v.GetDuration("FRAME_READINESS_TIMEOUT"),
			RequestTimeout:   v.GetDuration("FRAME_REQUEST_TIMEOUT"),
		},
		Worker: WorkerServer{
			RequestTimeout: v.GetDuration("WORKER_REQUEST_TIMEOUT"),
		},
		Wallet: WalletServer{
			Name:            v.GetString("WALLET_NAME"),
			KeystorePath:    keystorePath,
			CoinType:        v.GetUint32("WALLET_COIN_TYPE"),
			AutoLockTimeout: v.GetDuration("WALLET_AUTO_LOCK_TIMEOUT"),
			AutoApprove:     v.GetBool("WALLET_AUTO_APPROVE"),
			LightScrypt:     v.GetBool("WALLET_LIGHT_SCRYPT"),
			Password:        v.GetString("WALLET_PASSWORD"),
		},
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVER_ECHO_DEBUG", false)
	v.SetDefault("SERVER_ECHO_LISTEN_ADDRESS", ":8080")
	v.SetDefault("SERVER_ECHO_ENABLE_RECOVER_MIDDLEWARE", true)
	v.SetDefault("SERVER_ECHO_ENABLE_REQUEST_ID_MIDDLEWARE", true)
	v.SetDefault("SERVER_ECHO_ENABLE_LOGGER_MIDDLEWARE", true)

	v.SetDefault("SERVER_MANAGEMENT_READINESS_TIMEOUT", 4*time.Second)
	v.SetDefault("SERVER_MANAGEMENT_LIVENESS_TIMEOUT", 9*time.Second)
	v.SetDefault("SERVER_MANAGEMENT_PROBE_WRITEABLE_TOUCHFILE", ".healthy")

	v.SetDefault("SERVER_LOGGER_LEVEL", "info")
	v.SetDefault("SERVER_LOGGER_REQUEST_LEVEL", "debug")
	v.SetDefault("SERVER_LOGGER_PRETTY_PRINT_CONSOLE", false)

	v.SetDefault("FRAME_URL", "ws://localhost:8080/frame")
	v.SetDefault("FRAME_ALLOWED_ORIGINS", "http://localhost:3000")
	v.SetDefault("FRAME_READINESS_TIMEOUT", 10*time.Second)
	v.SetDefault("FRAME_REQUEST_TIMEOUT", 30*time.Second)

	v.SetDefault("WORKER_REQUEST_TIMEOUT", 30*time.Second)

	v.SetDefault("WALLET_NAME", "Thru Wallet")
	v.SetDefault("WALLET_KEYSTORE_PATH", "/app/keystore/keystore.json")
	v.SetDefault("WALLET_COIN_TYPE", 9999)
	v.SetDefault("WALLET_AUTO_LOCK_TIMEOUT", 15*time.Minute)
	v.SetDefault("WALLET_AUTO_APPROVE", false)
	v.SetDefault("WALLET_LIGHT_SCRYPT", false)
	v.SetDefault("WALLET_PASSWORD", "")
}

// LoadServiceConfig returns DefaultServiceConfigFromEnv overlaid with the
// TOML file named by CONFIG_FILE, if set, and validates the result.
func LoadServiceConfig() (Server, error) {
	cfg := DefaultServiceConfigFromEnv()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.ApplyFile(path); err != nil {
			return Server{}, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return Server{}, err
	}

	return cfg, nil
}

// fileConfig mirrors Server for TOML files. Only keys present in the file
// override the environment.
type fileConfig struct {
	Echo struct {
		Debug         *bool   `toml:"debug"`
		ListenAddress *string `toml:"listen_address"`
	} `toml:"echo"`
	Logger struct {
		Level              *string `toml:"level"`
		PrettyPrintConsole *bool   `toml:"pretty_print_console"`
	} `toml:"logger"`
	Frame struct {
		URL              *string        `toml:"url"`
		AllowedOrigins   []string       `toml:"allowed_origins"`
		ReadinessTimeout *time.Duration `toml:"readiness_timeout"`
		RequestTimeout   *time.Duration `toml:"request_timeout"`
	} `toml:"frame"`
	Worker struct {
		RequestTimeout *time.Duration `toml:"request_timeout"`
	} `toml:"worker"`
	Wallet struct {
		Name            *string        `toml:"name"`
		KeystorePath    *string        `toml:"keystore_path"`
		CoinType        *uint32        `toml:"coin_type"`
		AutoLockTimeout *time.Duration `toml:"auto_lock_timeout"`
		AutoApprove     *bool          `toml:"auto_approve"`
	} `toml:"wallet"`
}

// ApplyFile overlays the TOML file at path onto s.
func (s *Server) ApplyFile(path string) error {
	var f fileConfig
	md, err := toml.DecodeFile(path, &f)
	if err != nil {
		return errors.Wrapf(err, "failed to read config file %s", path)
	}
	for _, key := range md.Undecoded() {
		log.Warn().Str("key", key.String()).Str("file", path).Msg("Ignoring unknown config key")
	}

	set(&s.Echo.Debug, f.Echo.Debug)
	set(&s.Echo.ListenAddress, f.Echo.ListenAddress)

	if f.Logger.Level != nil {
		lvl, err := zerolog.ParseLevel(*f.Logger.Level)
		if err != nil {
			return errors.Wrapf(err, "invalid logger level %q", *f.Logger.Level)
		}
		s.Logger.Level = lvl
	}
	set(&s.Logger.PrettyPrintConsole, f.Logger.PrettyPrintConsole)

	set(&s.Frame.URL, f.Frame.URL)
	if f.Frame.AllowedOrigins != nil {
		s.Frame.AllowedOrigins = f.Frame.AllowedOrigins
	}
	set(&s.Frame.ReadinessTimeout, f.Frame.ReadinessTimeout)
	set(&s.Frame.RequestTimeout, f.Frame.RequestTimeout)

	set(&s.Worker.RequestTimeout, f.Worker.RequestTimeout)

	set(&s.Wallet.Name, f.Wallet.Name)
	set(&s.Wallet.KeystorePath, f.Wallet.KeystorePath)
	set(&s.Wallet.CoinType, f.Wallet.CoinType)
	set(&s.Wallet.AutoLockTimeout, f.Wallet.AutoLockTimeout)
	set(&s.Wallet.AutoApprove, f.Wallet.AutoApprove)

	return nil
}

// Validate checks that s can run a server.
func (s Server) Validate() error {
	err := vala.BeginValidation().Validate(
		vala.StringNotEmpty(s.Echo.ListenAddress, "Echo.ListenAddress"),
		vala.StringNotEmpty(s.Frame.URL, "Frame.URL"),
		vala.StringNotEmpty(s.Wallet.KeystorePath, "Wallet.KeystorePath"),
		vala.GreaterThan(int(s.Frame.ReadinessTimeout/time.Millisecond), 0, "Frame.ReadinessTimeout"),
		vala.GreaterThan(int(s.Frame.RequestTimeout/time.Millisecond), 0, "Frame.RequestTimeout"),
		vala.GreaterThan(int(s.Worker.RequestTimeout/time.Millisecond), 0, "Worker.RequestTimeout"),
		vala.GreaterThan(int(s.Wallet.AutoLockTimeout/time.Millisecond), 0, "Wallet.AutoLockTimeout"),
		explicitOrigins(s.Frame.AllowedOrigins, "Frame.AllowedOrigins"),
	).Check()
	if err != nil {
		return errors.Wrap(err, "invalid server config")
	}

	return nil
}

func explicitOrigins(origins []string, paramName string) vala.Checker {
	return func() (bool, string) {
		if len(origins) == 0 {
			return false, paramName + " must list at least one origin"
		}
		for _, o := range origins {
			if o == "*" {
				return false, paramName + " must list origins explicitly, not \"*\""
			}
		}
		return true, ""
	}
}

func set[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

func parseLevel(s string, fallback zerolog.Level) zerolog.Level {
	lvl, err := zerolog.ParseLevel(s)
	if err != nil {
		log.Warn().Str("level", s).Msg("Unknown log level, using default")
		return fallback
	}

	return lvl
}

// splitList splits a comma separated list, dropping empty entries. fallback
// is returned for an empty list.
func splitList(s string, fallback ...string) []string {
	out := []string{}
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 && len(fallback) > 0 {
		return fallback
	}

	return out
}
