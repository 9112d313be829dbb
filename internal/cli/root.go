package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mgpai22/vaani/internal/config"
	"github.com/mgpai22/vaani/internal/logging"
)

var (
	verbose bool
	logger  *logging.Logger
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "vaani",
	Short: "Lecture recordings to transcripts, clips and bilingual summaries",
	Long: `Vaani transcribes a lecture recording, cuts it into short audio clips
aligned to word boundaries and summarizes it in English and Hindi.

Configuration is read from the environment (and a .env file if present);
command line flags take precedence.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger = logging.NewLogger(verbose)

		loaded, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		cfg = loaded
		return nil
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().
		BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringP("output", "o", "", "Output file path")
	rootCmd.PersistentFlags().
		StringP("language", "l", "", "Spoken language code (e.g., en, hi); empty enables detection")
}
