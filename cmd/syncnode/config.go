package main

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/docker/go-units"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/onflow/pos-sync/engine/common/requester"
	"github.com/onflow/pos-sync/engine/common/syncqueue"
	"github.com/onflow/pos-sync/model/flow"
	"github.com/onflow/pos-sync/network/p2p"
)

// Config holds the node settings. Flags, POSSYNC_ environment variables and
// the config file are merged by viper, in that order of precedence.
type Config struct {
	DataDir           string        `mapstructure:"datadir" validate:"required"`
	LogLevel          string        `mapstructure:"log-level" validate:"oneof=trace debug info warn error fatal panic"`
	ListenAddr        string        `mapstructure:"listen" validate:"required"`
	Peers             []string      `mapstructure:"peers"`
	NetworkKey        string        `mapstructure:"network-key" validate:"omitempty,hexadecimal"`
	MetricsPort       uint          `mapstructure:"metrics-port" validate:"lte=65535"`
	CacheSize         int           `mapstructure:"cache-size" validate:"gt=0"`
	ValueLogSize      string        `mapstructure:"value-log-size" validate:"required"`
	BufferMax         int           `mapstructure:"buffer-max" validate:"gt=0"`
	WindowMax         uint32        `mapstructure:"window-max" validate:"gt=0"`
	RequestAttempts   uint64        `mapstructure:"request-attempts" validate:"gt=0"`
	RequestWorkers    uint          `mapstructure:"request-workers" validate:"gt=0"`
	RequestTimeout    time.Duration `mapstructure:"request-timeout" validate:"gt=0"`
	ValidationTimeout time.Duration `mapstructure:"validation-timeout" validate:"gt=0"`
	ServeRate         float64       `mapstructure:"serve-rate" validate:"gt=0"`
	ServeBurst        int           `mapstructure:"serve-burst" validate:"gt=0"`

	// only read from the config file
	GenesisTimestamp uint64            `mapstructure:"genesis-timestamp"`
	Validators       []ValidatorConfig `mapstructure:"validators" validate:"required,min=1,dive"`
}

// ValidatorConfig is a validator set entry of the config file.
type ValidatorConfig struct {
	NodeID    string `mapstructure:"node-id" validate:"required,len=64,hexadecimal"`
	PublicKey string `mapstructure:"public-key" validate:"required,hexadecimal"`
	Address   string `mapstructure:"address"`
}

func DefaultConfig() Config {
	queue := syncqueue.DefaultConfig()
	req := requester.DefaultConfig()
	return Config{
		DataDir:           "data",
		LogLevel:          "info",
		ListenAddr:        "/ip4/0.0.0.0/tcp/3569",
		MetricsPort:       8080,
		CacheSize:         1000,
		ValueLogSize:      "256MiB",
		BufferMax:         queue.BufferMax,
		WindowMax:         queue.WindowMax,
		RequestAttempts:   req.MaxAttempts,
		RequestWorkers:    req.Workers,
		RequestTimeout:    p2p.DefaultStreamTimeout,
		ValidationTimeout: p2p.DefaultValidationTimeout,
		ServeRate:         float64(p2p.DefaultRequestRate),
		ServeBurst:        p2p.DefaultRequestBurst,
	}
}

func loadConfig() (Config, error) {
	if viper.ConfigFileUsed() != "" {
		err := viper.ReadInConfig()
		if err != nil {
			return Config{}, fmt.Errorf("could not read config file: %w", err)
		}
	}
	conf := DefaultConfig()
	err := viper.Unmarshal(&conf, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)))
	if err != nil {
		return Config{}, fmt.Errorf("could not decode config: %w", err)
	}
	err = conf.Validate()
	if err != nil {
		return Config{}, err
	}
	return conf, nil
}

// Validate checks the bounds of the settings.
func (c Config) Validate() error {
	err := validator.New().Struct(c)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	size, err := units.RAMInBytes(c.ValueLogSize)
	if err != nil {
		return fmt.Errorf("invalid config: value log size %q: %w", c.ValueLogSize, err)
	}
	// bounds enforced by badger
	if size < 1<<20 || size >= 2<<30 {
		return fmt.Errorf("invalid config: value log size %s must be at least 1MiB and below 2GiB", units.BytesSize(float64(size)))
	}
	return nil
}

// ValueLogFileSize returns the size of a badger value log file in bytes.
func (c Config) ValueLogFileSize() int64 {
	size, _ := units.RAMInBytes(c.ValueLogSize)
	return size
}

// ValidatorList decodes the configured validator set.
func (c Config) ValidatorList() ([]*flow.Validator, error) {
	validators := make([]*flow.Validator, 0, len(c.Validators))
	for i, v := range c.Validators {
		nodeID, err := flow.HexStringToIdentifier(v.NodeID)
		if err != nil {
			return nil, fmt.Errorf("invalid node ID of validator %d: %w", i, err)
		}
		publicKey, err := hex.DecodeString(v.PublicKey)
		if err != nil {
			return nil, fmt.Errorf("invalid public key of validator %d: %w", i, err)
		}
		validators = append(validators, &flow.Validator{
			NodeID:    nodeID,
			PublicKey: publicKey,
			Address:   v.Address,
		})
	}
	return validators, nil
}

// Genesis returns the genesis block all nodes of the network share.
func (c Config) Genesis() *flow.Block {
	return flow.NewBlock(flow.Header{
		Type:      flow.BlockTypeMacro,
		Number:    0,
		ParentID:  flow.ZeroID,
		Timestamp: c.GenesisTimestamp,
	}, nil)
}

// BootstrapPeers returns the configured peers plus the addresses of the validators.
func (c Config) BootstrapPeers() []string {
	addrs := append([]string{}, c.Peers...)
	for _, v := range c.Validators {
		if v.Address != "" {
			addrs = append(addrs, v.Address)
		}
	}
	return addrs
}
