package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var (
	flagConfig string
	log        zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "syncnode",
	Short: "Run a node which synchronizes and extends the chain from its peers",
	RunE: func(cmd *cobra.Command, _ []string) error {
		conf, err := loadConfig()
		if err != nil {
			return err
		}
		level, err := zerolog.ParseLevel(conf.LogLevel)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", conf.LogLevel, err)
		}
		log = log.Level(level)
		return run(cmd.Context(), log, conf)
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVarP(&flagConfig, "config", "c", "", "path of the config file holding the genesis and validator set")
	addFlags(flags)

	log = zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger()

	cobra.OnInitialize(initConfig)
}

func addFlags(flags *pflag.FlagSet) {
	defaults := DefaultConfig()
	flags.String("datadir", defaults.DataDir, "directory of the chain database")
	flags.String("log-level", defaults.LogLevel, "log level (panic, fatal, error, warn, info, debug)")
	flags.String("listen", defaults.ListenAddr, "libp2p listen multiaddress")
	flags.StringSlice("peers", defaults.Peers, "multiaddresses of peers to connect to on startup")
	flags.String("network-key", defaults.NetworkKey, "hex encoded secp256k1 network private key, generated if empty")
	flags.Uint("metrics-port", defaults.MetricsPort, "port of the prometheus metrics endpoint")
	flags.Int("cache-size", defaults.CacheSize, "number of chain infos held in the chain store cache")
	flags.String("value-log-size", defaults.ValueLogSize, "size of a database value log file, e.g. 256MiB")
	flags.Int("buffer-max", defaults.BufferMax, "maximum number of buffered blocks")
	flags.Uint32("window-max", defaults.WindowMax, "blocks further ahead of the head are not buffered")
	flags.Uint64("request-attempts", defaults.RequestAttempts, "attempts of a missing blocks request")
	flags.Uint("request-workers", defaults.RequestWorkers, "concurrent missing blocks requests")
	flags.Duration("request-timeout", defaults.RequestTimeout, "timeout of a single missing blocks request")
	flags.Duration("validation-timeout", defaults.ValidationTimeout, "time an announced block waits for its relay verdict")
	flags.Float64("serve-rate", defaults.ServeRate, "missing blocks requests served per second and peer")
	flags.Int("serve-burst", defaults.ServeBurst, "burst of missing blocks requests served per peer")

	if err := viper.BindPFlags(flags); err != nil {
		panic(err)
	}
}

func initConfig() {
	viper.SetEnvPrefix("POSSYNC")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	if flagConfig != "" {
		viper.SetConfigFile(flagConfig)
	}
}
