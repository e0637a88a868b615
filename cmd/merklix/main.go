// Command merklix is a thin CLI wrapper around the public Tree API
// (spec §6.4), in the flag/viper-bound cobra shape of flow-go's
// cmd/util/cmd tree (cmd/util/cmd/block_hash_by_height.go,
// cmd/util/cmd/execution-state-extract/cmd.go): one root command, a
// flag set bound through viper so it can also come from a config file
// or the environment (--prefix is still required on the command line),
// and one subcommand per tree operation.
package main

import (
	"os"

	"github.com/opentracing/opentracing-go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	jaegercfg "github.com/uber/jaeger-client-go/config"

	"github.com/dapperlabs/merklix/tracing"
)

var (
	flagPrefix      string
	flagBits        int
	flagHash        string
	flagStandalone  bool
	flagJaegerAgent string
)

var rootCmd = &cobra.Command{
	Use:   "merklix",
	Short: "inspect and mutate a Merklix tree key-value index",
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&flagPrefix, "prefix", "", "store directory path")
	rootCmd.PersistentFlags().IntVar(&flagBits, "bits", 256, "key width in bits, a positive multiple of 8")
	rootCmd.PersistentFlags().StringVar(&flagHash, "hash", "blake2b256", "digest function (blake2b256)")
	rootCmd.PersistentFlags().BoolVar(&flagStandalone, "standalone", true, "write/read meta records and support historical-root lookup")
	rootCmd.PersistentFlags().StringVar(&flagJaegerAgent, "jaeger-agent", "", "jaeger agent host:port to trace commit/prove spans to (empty disables tracing)")
	_ = rootCmd.MarkPersistentFlagRequired("prefix")

	_ = viper.BindPFlag("prefix", rootCmd.PersistentFlags().Lookup("prefix"))
	_ = viper.BindPFlag("bits", rootCmd.PersistentFlags().Lookup("bits"))
	_ = viper.BindPFlag("hash", rootCmd.PersistentFlags().Lookup("hash"))
	_ = viper.BindPFlag("standalone", rootCmd.PersistentFlags().Lookup("standalone"))
	_ = viper.BindPFlag("jaeger-agent", rootCmd.PersistentFlags().Lookup("jaeger-agent"))
}

// newTracer builds a jaeger-backed Tracer when --jaeger-agent is set,
// registering it as the global opentracing.Tracer the way any
// jaeger-client-go/config consumer does; an empty agent address
// disables tracing entirely.
func newTracer() *tracing.Tracer {
	if flagJaegerAgent == "" {
		return tracing.New(nil)
	}
	cfg := jaegercfg.Configuration{
		ServiceName: "merklix",
		Sampler: &jaegercfg.SamplerConfig{
			Type:  "const",
			Param: 1,
		},
		Reporter: &jaegercfg.ReporterConfig{
			LocalAgentHostPort: flagJaegerAgent,
		},
	}
	t, _, err := cfg.NewTracer()
	if err != nil {
		log.Warn().Err(err).Msg("merklix: could not start jaeger tracer, tracing disabled")
		return tracing.New(nil)
	}
	opentracing.SetGlobalTracer(t)
	return tracing.New(t)
}

func initConfig() {
	viper.SetEnvPrefix("merklix")
	viper.AutomaticEnv()
	viper.SetConfigName("merklix")
	viper.AddConfigPath(".")
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn().Err(err).Msg("merklix: could not read config file")
		}
	}
	flagPrefix = viper.GetString("prefix")
	flagBits = viper.GetInt("bits")
	flagHash = viper.GetString("hash")
	flagStandalone = viper.GetBool("standalone")
	flagJaegerAgent = viper.GetString("jaeger-agent")
}

func main() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("merklix: command failed")
		os.Exit(1)
	}
}
