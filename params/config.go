package params

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"

	"github.com/uhyunpark/dexkit/pkg/crypto"
	"github.com/uhyunpark/dexkit/pkg/dexerr"
)

// Addresses as they appear in the networks file. Token keys are symbols.
type Addresses struct {
	Dex               string            `json:"dex"`
	Governor          string            `json:"governor,omitempty"`
	CommissionManager string            `json:"commissionManager,omitempty"`
	Tokens            map[string]string `json:"tokens,omitempty"`
}

// Network is one entry of the networks file.
type Network struct {
	URI       string    `json:"uri"`
	ChainID   int64     `json:"chain_id"`
	Addresses Addresses `json:"addresses"`
}

type networksFile struct {
	Networks map[string]Network `json:"networks"`
}

type Tx struct {
	Confirmations    uint64
	GasMultiplierPct uint64 // gas limit = estimate * pct / 100
	PollInterval     time.Duration
	AwaitTimeout     time.Duration
}

type Gateway struct {
	ListenAddr     string
	AllowedOrigins []string // CORS origins
}

type Config struct {
	Network     string // profile name to resolve
	ConfigPath  string // networks file
	RPCURL      string // overrides the profile uri when set
	JournalPath string // empty disables the journal
	LogFile     string
	Tx          Tx
	Gateway     Gateway
	Networks    map[string]Network
}

func Default() Config {
	return Config{
		Network:    "dexTestnet",
		ConfigPath: "networks.json",
		Tx: Tx{
			Confirmations:    1,
			GasMultiplierPct: 110, // 10% over the estimate
			PollInterval:     2 * time.Second,
			AwaitTimeout:     3 * time.Minute,
		},
		Gateway: Gateway{
			ListenAddr:     ":8080",
			AllowedOrigins: []string{"http://localhost:3000", "http://localhost:3001"},
		},
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load() // loads .env from current directory
	}

	cfg.Network = getEnv("DEX_NETWORK", cfg.Network)
	cfg.ConfigPath = getEnv("DEX_CONFIG", cfg.ConfigPath)
	cfg.RPCURL = getEnv("DEX_RPC_URL", cfg.RPCURL)
	cfg.JournalPath = getEnv("DEX_JOURNAL_PATH", cfg.JournalPath)
	cfg.LogFile = getEnv("LOG_FILE", cfg.LogFile)
	cfg.Gateway.ListenAddr = getEnv("DEX_GATEWAY_ADDR", cfg.Gateway.ListenAddr)
	if v := os.Getenv("DEX_GATEWAY_ORIGINS"); v != "" {
		cfg.Gateway.AllowedOrigins = splitList(v)
	}

	if v := os.Getenv("DEX_CONFIRMATIONS"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Tx.Confirmations = n
		}
	}
	if v := os.Getenv("DEX_GAS_MULTIPLIER_PCT"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Tx.GasMultiplierPct = n
		}
	}
	if v := os.Getenv("DEX_POLL_INTERVAL_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.Tx.PollInterval = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("DEX_AWAIT_TIMEOUT_S"); v != "" {
		if s, err := strconv.Atoi(v); err == nil {
			cfg.Tx.AwaitTimeout = time.Duration(s) * time.Second
		}
	}

	return cfg
}

// Load applies the environment and then reads the networks file. path
// overrides DEX_CONFIG when non-empty.
func Load(envPath, path string) (Config, error) {
	cfg := LoadFromEnv(envPath)
	if path != "" {
		cfg.ConfigPath = path
	}
	networks, err := ReadNetworks(cfg.ConfigPath)
	if err != nil {
		return cfg, err
	}
	cfg.Networks = networks
	return cfg, nil
}

// ReadNetworks parses a networks file:
//
//	{"networks": {"dexTestnet": {"uri": "...", "chain_id": 31, "addresses": {"dex": "0x..."}}}}
func ReadNetworks(path string) (map[string]Network, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &dexerr.ConfigError{Reason: fmt.Sprintf("failed to read %s: %v", path, err)}
	}
	var f networksFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, &dexerr.ConfigError{Reason: fmt.Sprintf("failed to parse %s: %v", path, err)}
	}
	if len(f.Networks) == 0 {
		return nil, &dexerr.ConfigError{Reason: fmt.Sprintf("%s declares no networks", path)}
	}
	return f.Networks, nil
}

// NetworkProfile is the resolved, validated view of one network. Immutable.
type NetworkProfile struct {
	Name              string
	RPCURL            string
	ChainID           *big.Int
	Dex               common.Address
	Governor          common.Address // zero when not configured
	CommissionManager common.Address
	Tokens            map[string]common.Address
	Tx                Tx
}

// Resolve validates the named network and merges in the transaction settings.
func Resolve(cfg Config, name string) (NetworkProfile, error) {
	n, ok := cfg.Networks[name]
	if !ok {
		return NetworkProfile{}, &dexerr.ConfigError{
			Network: name,
			Reason:  fmt.Sprintf("unknown network (known: %s)", strings.Join(networkNames(cfg), ", ")),
		}
	}

	rpcURL := n.URI
	if cfg.RPCURL != "" {
		rpcURL = cfg.RPCURL
	}
	if rpcURL == "" {
		return NetworkProfile{}, &dexerr.ConfigError{Network: name, Reason: "missing rpc uri"}
	}
	if n.ChainID <= 0 {
		return NetworkProfile{}, &dexerr.ConfigError{Network: name, Reason: "missing chain_id"}
	}
	chainID := big.NewInt(n.ChainID)

	p := NetworkProfile{
		Name:    name,
		RPCURL:  rpcURL,
		ChainID: chainID,
		Tokens:  make(map[string]common.Address, len(n.Addresses.Tokens)),
		Tx:      cfg.Tx,
	}

	if n.Addresses.Dex == "" {
		return NetworkProfile{}, &dexerr.ConfigError{Network: name, Reason: "missing dex address"}
	}
	var err error
	if p.Dex, err = crypto.ParseAddress(n.Addresses.Dex, chainID); err != nil {
		return NetworkProfile{}, &dexerr.ConfigError{Network: name, Reason: "dex: " + err.Error()}
	}
	if n.Addresses.Governor != "" {
		if p.Governor, err = crypto.ParseAddress(n.Addresses.Governor, chainID); err != nil {
			return NetworkProfile{}, &dexerr.ConfigError{Network: name, Reason: "governor: " + err.Error()}
		}
	}
	if n.Addresses.CommissionManager != "" {
		if p.CommissionManager, err = crypto.ParseAddress(n.Addresses.CommissionManager, chainID); err != nil {
			return NetworkProfile{}, &dexerr.ConfigError{Network: name, Reason: "commissionManager: " + err.Error()}
		}
	}
	for sym, raw := range n.Addresses.Tokens {
		addr, err := crypto.ParseAddress(raw, chainID)
		if err != nil {
			return NetworkProfile{}, &dexerr.ConfigError{Network: name, Reason: fmt.Sprintf("token %s: %v", sym, err)}
		}
		p.Tokens[strings.ToUpper(sym)] = addr
	}
	if p.Tx.GasMultiplierPct < 100 {
		return NetworkProfile{}, &dexerr.ConfigError{Network: name, Reason: "gas multiplier below 100%"}
	}
	return p, nil
}

// Token resolves a symbol from the profile or a literal hex address.
func (p NetworkProfile) Token(symbolOrAddress string) (common.Address, error) {
	if addr, ok := p.Tokens[strings.ToUpper(symbolOrAddress)]; ok {
		return addr, nil
	}
	addr, err := crypto.ParseAddress(symbolOrAddress, p.ChainID)
	if err != nil {
		return common.Address{}, fmt.Errorf("unknown token %q: %w", symbolOrAddress, err)
	}
	return addr, nil
}

// Address parses a literal address with this network's checksum rules.
func (p NetworkProfile) Address(s string) (common.Address, error) {
	return crypto.ParseAddress(s, p.ChainID)
}

func networkNames(cfg Config) []string {
	names := make([]string, 0, len(cfg.Networks))
	for n := range cfg.Networks {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
