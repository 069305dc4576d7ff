// Package config loads node settings from a .env file and the environment.
package config

import (
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"github.com/cockroachdb/errors"
	dbm "github.com/cometbft/cometbft-db"
	"github.com/joho/godotenv"

	"github.com/NethermindEth/agent-protocol/utils"
)

type Config struct {
	ChainID           string `env:"AGENT_CHAIN_ID"            envDefault:"agent-protocol"`
	HomeDir           string `env:"AGENT_HOME"                envDefault:"./data"`
	DBBackend         string `env:"AGENT_DB_BACKEND"          envDefault:"goleveldb"`
	ABCIAddress       string `env:"AGENT_ABCI_ADDRESS"        envDefault:"tcp://127.0.0.1:26658"`
	ABCITransport     string `env:"AGENT_ABCI_TRANSPORT"      envDefault:"socket"`
	APIAddress        string `env:"AGENT_API_ADDRESS"         envDefault:":8080"`
	NATSURL           string `env:"AGENT_NATS_URL"`
	NATSSubjectPrefix string `env:"AGENT_NATS_SUBJECT_PREFIX" envDefault:"agentprotocol.events"`
	LogLevel          string `env:"AGENT_LOG_LEVEL"           envDefault:"info"`
	EventBuffer       int    `env:"AGENT_EVENT_BUFFER"        envDefault:"256"`
	MetricsNamespace  string `env:"AGENT_METRICS_NAMESPACE"   envDefault:"agent_protocol"`
}

// Load reads envFile when it exists, then parses the environment. Variables
// already set in the environment win over the file.
func Load(envFile string) (Config, error) {
	var cfg Config
	if envFile != "" && utils.FileExists(envFile) {
		if err := godotenv.Load(envFile); err != nil {
			return cfg, errors.Wrapf(err, "load %s", envFile)
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return cfg, errors.Wrap(err, "parse env")
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	switch {
	case c.ChainID == "":
		return errors.New("config: chain id is required")
	case c.EventBuffer <= 0:
		return errors.Newf("config: event buffer must be positive, got %d", c.EventBuffer)
	}
	switch c.ABCITransport {
	case "socket", "grpc":
	default:
		return errors.Newf("config: unknown abci transport %q", c.ABCITransport)
	}
	switch dbm.BackendType(c.DBBackend) {
	case dbm.GoLevelDBBackend, dbm.MemDBBackend:
	default:
		return errors.Newf("config: unsupported db backend %q", c.DBBackend)
	}
	return nil
}

// DataDir is where the application database lives.
func (c Config) DataDir() string {
	return filepath.Join(c.HomeDir, "data")
}
