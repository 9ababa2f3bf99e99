package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var dlqCmd = &cobra.Command{
	Use:   "dlq",
	Short: "Dead-letter queue recovery",
	Long:  "Reprocess or purge messages from the dead-letter queue",
}

var dlqDrainCmd = &cobra.Command{
	Use:   "drain",
	Short: "Reprocess dead-letter messages",
	Long: `Pull messages from the dead-letter queue and run them back through
the reconciliation pipeline. Successfully processed messages are deleted
unless --keep is given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		batchSize, _ := cmd.Flags().GetInt("batch-size")
		keep, _ := cmd.Flags().GetBool("keep")
		maxBatches, _ := cmd.Flags().GetInt("max-batches")

		result, err := NewClient(serverURL).DLQDrain(batchSize, !keep, maxBatches)
		if err != nil {
			return fmt.Errorf("failed to drain dead-letter queue: %w", err)
		}

		outputFormat, _ := cmd.Flags().GetString("output")
		if outputFormat == "json" {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		}

		fmt.Printf("Processed:  %d\n", result.TotalProcessed)
		fmt.Printf("Successful: %d\n", result.Successful)
		fmt.Printf("Errors:     %d\n", result.Errors)
		fmt.Printf("Deleted:    %d\n", result.Deleted)
		return nil
	},
}

var dlqDeleteCmd = &cobra.Command{
	Use:   "delete [receipt-handle...]",
	Short: "Delete dead-letter messages by receipt handle",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		deleted, err := NewClient(serverURL).DLQDelete(args)
		if err != nil {
			return fmt.Errorf("failed to delete messages: %w", err)
		}
		fmt.Printf("Deleted %d message(s)\n", deleted)
		return nil
	},
}

func init() {
	dlqDrainCmd.Flags().Int("batch-size", 10, "messages per receive call (1-10)")
	dlqDrainCmd.Flags().Bool("keep", false, "leave successfully processed messages on the queue")
	dlqDrainCmd.Flags().Int("max-batches", 10, "maximum receive calls per drain")

	dlqCmd.AddCommand(dlqDrainCmd)
	dlqCmd.AddCommand(dlqDeleteCmd)
	rootCmd.AddCommand(dlqCmd)
}
