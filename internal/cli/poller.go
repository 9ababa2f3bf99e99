package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var pollerCmd = &cobra.Command{
	Use:   "poller",
	Short: "Queue poller control",
	Long:  "Inspect and control the delivery-status queue poller",
}

var pollerStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show poller status",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := NewClient(serverURL).PollerStatus()
		if err != nil {
			return fmt.Errorf("failed to fetch status: %w", err)
		}

		outputFormat, _ := cmd.Flags().GetString("output")
		if outputFormat == "json" {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(status)
		}

		fmt.Printf("Running:             %t\n", status.Running)
		fmt.Printf("Enabled:             %t\n", status.Enabled)
		fmt.Printf("Paused:              %t\n", status.Paused)
		fmt.Printf("State:               %s\n", status.State)
		fmt.Printf("Queue URL:           %s\n", status.QueueURL)
		fmt.Printf("Interval:            %s\n", status.Interval)
		fmt.Printf("Max batch size:      %d\n", status.MaxBatchSize)
		fmt.Printf("Messages processed:  %d\n", status.MessagesProcessed)
		fmt.Printf("Errors:              %d\n", status.ErrorsCount)
		fmt.Printf("Cycles completed:    %d\n", status.CyclesCompleted)
		if !status.LastPoll.IsZero() {
			fmt.Printf("Last poll:           %s\n", status.LastPoll.Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

var pollerPauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Pause scheduled polling",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := NewClient(serverURL).PollerPause(); err != nil {
			return fmt.Errorf("failed to pause poller: %w", err)
		}
		fmt.Println("Poller paused")
		return nil
	},
}

var pollerResumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume scheduled polling",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := NewClient(serverURL).PollerResume(); err != nil {
			return fmt.Errorf("failed to resume poller: %w", err)
		}
		fmt.Println("Poller resumed")
		return nil
	},
}

var pollerForceCycleCmd = &cobra.Command{
	Use:   "force-cycle",
	Short: "Run one polling cycle immediately",
	Long:  "Run one polling cycle immediately, bypassing the schedule and the paused flag",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, cycleErr, err := NewClient(serverURL).PollerForceCycle()
		if err != nil {
			return fmt.Errorf("failed to force cycle: %w", err)
		}
		if cycleErr != "" {
			fmt.Printf("Cycle %s: %s\n", status, cycleErr)
		} else {
			fmt.Printf("Cycle %s\n", status)
		}
		return nil
	},
}

func init() {
	pollerCmd.AddCommand(pollerStatusCmd)
	pollerCmd.AddCommand(pollerPauseCmd)
	pollerCmd.AddCommand(pollerResumeCmd)
	pollerCmd.AddCommand(pollerForceCycleCmd)
	rootCmd.AddCommand(pollerCmd)
}
