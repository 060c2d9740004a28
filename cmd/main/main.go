package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version, Commit and BuildDate are set via -ldflags at build time.
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// globalFlags are shared by every command.
type globalFlags struct {
	configPath string
	modelPath  string
}

var flags globalFlags

// rootCmd is the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "babbler",
	Short: "Train n-gram Markov models and generate text from them",
	Long: `Babbler learns which groups of words follow which in a body of text and
produces new text with the same local structure.

Train a model with 'babbler train corpus.txt', then try
'babbler generate --seed "some words"' or serve it over HTTP with 'babbler serve'.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "./babbler.toml", "Path to the TOML configuration file")
	rootCmd.PersistentFlags().StringVarP(&flags.modelPath, "model", "m", "", "Model file to use instead of server.model_path")

	rootCmd.AddCommand(
		newTrainCmd(),
		newGenerateCmd(),
		newStatsCmd(),
		newPruneCmd(),
		newModelsCmd(),
		newKeysCmd(),
		newServeCmd(),
		newVersionCmd(),
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration named by --config and applies --model.
func loadConfig() (*Config, error) {
	cfg, err := LoadConfig(flags.configPath)
	if err != nil {
		return nil, err
	}
	if flags.modelPath != "" {
		cfg.Server.ModelPath = flags.modelPath
	}
	return cfg, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "babbler %s (commit %s, built %s)\n", Version, Commit, BuildDate)
		},
	}
}
