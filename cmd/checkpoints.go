package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/santolucito/neural/internal/store"
	"github.com/spf13/cobra"
)

var (
	checkpointDataDir   string
	checkpointStoreKind string
	olderThanDays       int
	forceClean          bool
)

var checkpointsCmd = &cobra.Command{
	Use:   "checkpoints",
	Short: "Manage search checkpoints",
	Long: `Manage search checkpoints including listing and cleaning old checkpoints.
Checkpoints allow resuming long-running searches from saved state.`,
}

var listCheckpointsCmd = &cobra.Command{
	Use:   "list",
	Short: "List all available checkpoints",
	Long:  `Display all checkpoints with job ID, objective, generation, best score, and age.`,
	RunE:  runListCheckpoints,
}

var cleanCheckpointsCmd = &cobra.Command{
	Use:   "clean",
	Short: "Clean old checkpoints",
	Long:  `Delete checkpoints older than the given retention window.`,
	RunE:  runCleanCheckpoints,
}

func init() {
	rootCmd.AddCommand(checkpointsCmd)

	checkpointsCmd.AddCommand(listCheckpointsCmd)
	checkpointsCmd.AddCommand(cleanCheckpointsCmd)

	checkpointsCmd.PersistentFlags().StringVar(&checkpointDataDir, "data-dir", "./data", "Checkpoint storage location")
	checkpointsCmd.PersistentFlags().StringVar(&checkpointStoreKind, "store", "fs", "Checkpoint store backend (fs, sqlite)")

	cleanCheckpointsCmd.Flags().IntVar(&olderThanDays, "older-than", 0, "Delete checkpoints older than N days (required)")
	cleanCheckpointsCmd.Flags().BoolVarP(&forceClean, "force", "f", false, "Skip confirmation prompt")
}

func openCheckpointStore() (store.Store, error) {
	path := checkpointDataDir
	if checkpointStoreKind == "sqlite" {
		path = filepath.Join(checkpointDataDir, "checkpoints.db")
	}

	checkpointStore, err := store.NewStore(checkpointStoreKind, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint store: %w", err)
	}
	return checkpointStore, nil
}

func runListCheckpoints(cmd *cobra.Command, args []string) error {
	checkpointStore, err := openCheckpointStore()
	if err != nil {
		return err
	}
	defer store.CloseIfSupported(checkpointStore)

	infos, err := checkpointStore.ListCheckpoints()
	if err != nil {
		return fmt.Errorf("failed to list checkpoints: %w", err)
	}

	if len(infos) == 0 {
		fmt.Println("No checkpoints found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "JOB ID\tOBJECTIVE\tDIM\tGENERATION\tBEST SCORE\tAGE")
	for _, info := range infos {
		age := time.Since(info.Timestamp).Round(time.Minute)
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%.4f\t%s\n",
			info.JobID, info.Objective, info.Dim, info.Generation, info.BestScore, age)
	}
	return w.Flush()
}

func runCleanCheckpoints(cmd *cobra.Command, args []string) error {
	if olderThanDays <= 0 {
		return fmt.Errorf("--older-than must be positive, got %d", olderThanDays)
	}

	checkpointStore, err := openCheckpointStore()
	if err != nil {
		return err
	}
	defer store.CloseIfSupported(checkpointStore)

	infos, err := checkpointStore.ListCheckpoints()
	if err != nil {
		return fmt.Errorf("failed to list checkpoints: %w", err)
	}

	expired := selectExpired(infos, time.Duration(olderThanDays)*24*time.Hour, time.Now())
	if len(expired) == 0 {
		fmt.Println("No checkpoints to clean.")
		return nil
	}

	if !forceClean {
		fmt.Printf("Delete %d checkpoint(s) older than %d day(s)? [y/N]: ", len(expired), olderThanDays)
		reader := bufio.NewReader(os.Stdin)
		answer, _ := reader.ReadString('\n')
		if strings.ToLower(strings.TrimSpace(answer)) != "y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	deleted := 0
	for _, jobID := range expired {
		if err := checkpointStore.DeleteCheckpoint(jobID); err != nil {
			fmt.Printf("Failed to delete %s: %v\n", jobID, err)
			continue
		}
		deleted++
	}

	fmt.Printf("Deleted %d checkpoint(s).\n", deleted)
	return nil
}

// selectExpired returns the job IDs of checkpoints older than the
// retention window.
func selectExpired(infos []store.CheckpointInfo, retention time.Duration, now time.Time) []string {
	var expired []string
	for _, info := range infos {
		if now.Sub(info.Timestamp) > retention {
			expired = append(expired, info.JobID)
		}
	}
	return expired
}
