// Package params holds process configuration, loaded from a .env file
// and environment variables.
package params

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Stellar struct {
	// NetworkPassphrase selects the Stellar network transactions are
	// built for.
	NetworkPassphrase string
	// RPCURL is the Soroban RPC endpoint.
	RPCURL string
	// SettlementContractID is the deployed settlement contract (C...).
	SettlementContractID string
	// SigningKey is the matching engine's secret seed (S...), used to
	// sign settlement transactions. Optional; without it the engine
	// runs read-only against the chain.
	SigningKey string
}

type Server struct {
	RESTPort int
	LogFile  string
}

type Config struct {
	Stellar Stellar
	Server  Server
}

func Default() Config {
	return Config{
		Stellar: Stellar{
			NetworkPassphrase: "Test SDF Network ; September 2015",
			RPCURL:            "https://soroban-testnet.stellar.org",
		},
		Server: Server{
			RESTPort: 8080,
		},
	}
}

// LoadFromEnv loads configuration from a .env file (if present) and
// environment variables. Priority: ENV > .env file > defaults.
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if v := os.Getenv("STELLAR_NETWORK_PASSPHRASE"); v != "" {
		cfg.Stellar.NetworkPassphrase = v
	}
	if v := os.Getenv("SOROBAN_RPC_URL"); v != "" {
		cfg.Stellar.RPCURL = v
	}
	if v := os.Getenv("SETTLEMENT_CONTRACT_ID"); v != "" {
		cfg.Stellar.SettlementContractID = v
	}
	if v := os.Getenv("MATCHING_ENGINE_SIGNING_KEY"); v != "" {
		cfg.Stellar.SigningKey = v
	}
	if v := os.Getenv("REST_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.RESTPort = port
		}
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		cfg.Server.LogFile = v
	}

	return cfg
}
