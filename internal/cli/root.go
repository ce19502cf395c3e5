package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"ragctx/config"
	"ragctx/internal/logger"
)

var (
	cfgFile string
	cfg     *config.Config
	rootDir string
	log     logger.Logger
)

var rootCmd = &cobra.Command{
	Use:   "ragctx",
	Short: "Token-budgeted context assembly for retrieval-augmented prompts",
	Long: `ragctx indexes blog posts and text files into a vector store, retrieves
the passages most similar to a question, and packs as many of them as fit
into a prompt under a token budget before asking a chat model.

Example usage:
  ragctx index ./posts                         # Embed and store passages
  ragctx search "how do I brew green tea"      # Show nearest passages
  ragctx assemble "how do I brew green tea"    # Print the assembled prompt
  ragctx ask "how do I brew green tea"         # Answer from the passages
  ragctx tokens count "hello world"            # Count tokens`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error

		if rootDir == "" {
			rootDir, err = os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to get working directory: %w", err)
			}
		}

		if err := config.LoadEnv(rootDir); err != nil {
			return err
		}

		if cfgFile != "" {
			cfg, err = config.Load(cfgFile)
		} else {
			cfg, err = config.LoadFromDir(rootDir)
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		cfg.ResolveSecrets(nil)
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}

		log = logger.New(logger.Config{
			Level:  cfg.Logging.Level,
			JSON:   cfg.Logging.JSON,
			Output: cmd.ErrOrStderr(),
		})
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./ragctx.yaml)")
	rootCmd.PersistentFlags().StringVarP(&rootDir, "dir", "d", "", "root directory (default is current directory)")
}

func GetConfig() *config.Config {
	return cfg
}

func GetRootDir() string {
	return rootDir
}
