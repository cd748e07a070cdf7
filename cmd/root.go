package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/chriserin/ftrp/internal/config"
	"github.com/chriserin/ftrp/internal/logging"
)

// Version is stamped at build time.
var Version = "dev"

var (
	cfgFile string
	cfg     *config.Config
	logger  = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:           "ftrp",
	Short:         "Report BDD test runs as launches of nested items",
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig(cmd)
	},
}

func Execute() {
	defer func() { _ = logger.Sync() }()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default: ./ftrp.yaml)")
	flags.String("store", "", "path of the sqlite store")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("log-format", "", "log format (console, json)")
}

func initConfig(cmd *cobra.Command) error {
	v, err := config.NewViper(cfgFile)
	if err != nil {
		return err
	}
	if err := bindFlags(v, cmd, map[string]string{
		"store.path":  "store",
		"log.level":   "log-level",
		"log.format":  "log-format",
		"launch.name": "name",
	}); err != nil {
		return err
	}

	c, err := config.New(v)
	if err != nil {
		return err
	}
	l, err := logging.New(cmd.ErrOrStderr(), c.Log.Level, c.Log.Format)
	if err != nil {
		return err
	}
	cfg, logger = c, l
	return nil
}

// bindFlags binds the named flags that the running command defines. Unset
// flags leave the config value alone.
func bindFlags(v *viper.Viper, cmd *cobra.Command, keys map[string]string) error {
	for key, name := range keys {
		f := cmd.Flags().Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return err
		}
	}
	return nil
}
