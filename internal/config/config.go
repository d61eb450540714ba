package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"

	"github.com/dkeye/consult/internal/app"
	"github.com/dkeye/consult/internal/domain"
)

// Server configures the relay process.
type Server struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	Secret     string        `mapstructure:"secret"`

	Tenant   domain.Tenant   `mapstructure:"tenant"`
	Accounts []AccountConfig `mapstructure:"accounts"`
}

// AccountConfig is the flat on-disk shape of one provisioned account.
type AccountConfig struct {
	Token           string `mapstructure:"token"`
	Email           string `mapstructure:"email"`
	Name            string `mapstructure:"name"`
	Surname         string `mapstructure:"surname"`
	Patronymic      string `mapstructure:"patronymic"`
	Role            string `mapstructure:"role"`
	Avatar          string `mapstructure:"avatar"`
	HasAudio        bool   `mapstructure:"has_audio"`
	HasVideo        bool   `mapstructure:"has_video"`
	ChatText        bool   `mapstructure:"chat_text"`
	ChatFile        bool   `mapstructure:"chat_file"`
	Record          bool   `mapstructure:"record"`
	MaxParticipants int    `mapstructure:"max_participants"`
}

func (a AccountConfig) Account() app.Account {
	return app.Account{
		Token:  a.Token,
		Avatar: a.Avatar,
		Profile: domain.Profile{
			BaseProfile: domain.BaseProfile{
				Email:      a.Email,
				Name:       a.Name,
				Surname:    a.Surname,
				Patronymic: a.Patronymic,
				Role:       domain.Role{Role: a.Role},
			},
			Settings: domain.Settings{
				Streams: domain.StreamsSettings{
					Publisher: domain.StreamFlags{HasAudio: a.HasAudio, HasVideo: a.HasVideo},
				},
				Chat: domain.ChatSettings{Text: a.ChatText, File: a.ChatFile},
				Init: domain.InitSettings{Record: a.Record, MaxParticipants: a.MaxParticipants},
			},
		},
	}
}

// AccountList converts the configured fixtures to directory accounts.
func (s *Server) AccountList() []app.Account {
	out := make([]app.Account, 0, len(s.Accounts))
	for _, a := range s.Accounts {
		out = append(out, a.Account())
	}
	return out
}

// Client configures a participant process.
type Client struct {
	ServerURL   string `mapstructure:"server_url"`
	BackendURL  string `mapstructure:"backend_url"`
	Token       string `mapstructure:"token"`
	StoragePath string `mapstructure:"storage_path"`
	EchoPolicy  string `mapstructure:"echo_policy"`
}

type Config struct {
	Server Server `mapstructure:"server"`
	Client Client `mapstructure:"client"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("server.mode", "release")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.static_path", "./web")
	v.SetDefault("server.read_limit", 1<<20)
	v.SetDefault("server.ping_period", "54s")
	v.SetDefault("server.tenant.key", "consult")
	v.SetDefault("server.tenant.name", "Consult")
	v.SetDefault("client.server_url", "ws://localhost:8080/api/ws/signal")
	v.SetDefault("client.backend_url", "http://localhost:8080")
	v.SetDefault("client.storage_path", "")
	v.SetDefault("client.echo_policy", "suppress")

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("⚠️ Config file not found (%s), using defaults\n", fileName)
	} else {
		fmt.Printf("✅ Loaded config: %s\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	fmt.Printf("🧩 Mode: %s | Port: %d | Static: %s\n", cfg.Server.Mode, cfg.Server.Port, cfg.Server.StaticPath)
	return &cfg, nil
}
