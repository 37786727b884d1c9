package main

import (
	"fmt"
	"os"
	"time"

	"exforge/internal/exercise/access"
	"exforge/internal/exercise/statement"

	"github.com/spf13/cobra"
)

var decideFlags struct {
	before string
	after  string
	now    string
}

var decideCmd = &cobra.Command{
	Use:   "decide",
	Short: "Print the lock/unlock commands for a configuration change",
	Long: "Print the lock/unlock commands a configuration change would issue.\n" +
		"Both files hold startDate, dueDate (RFC3339) and allowOfflineIde.",
	RunE: runDecide,
}

var statementFlags struct {
	file string
}

var statementCmd = &cobra.Command{
	Use:   "statement",
	Short: "List the tasks and tests referenced by a problem statement",
	RunE:  runStatement,
}

func init() {
	f := decideCmd.Flags()
	f.StringVar(&decideFlags.before, "before", "", "Snapshot before the change (required)")
	f.StringVar(&decideFlags.after, "after", "", "Snapshot after the change (required)")
	f.StringVar(&decideFlags.now, "now", "", "Evaluation time (RFC3339), defaults to the current time")
	_ = decideCmd.MarkFlagRequired("before")
	_ = decideCmd.MarkFlagRequired("after")

	statementCmd.Flags().StringVar(&statementFlags.file, "file", "", "Problem statement markdown (required)")
	_ = statementCmd.MarkFlagRequired("file")

	// Both commands work offline.
	decideCmd.PersistentPreRunE = func(*cobra.Command, []string) error { return nil }
	statementCmd.PersistentPreRunE = decideCmd.PersistentPreRunE
}

type snapshotDocument struct {
	StartDate       *time.Time `yaml:"startDate"`
	DueDate         *time.Time `yaml:"dueDate"`
	AllowOfflineIDE bool       `yaml:"allowOfflineIde"`
}

func loadSnapshot(path string) (access.Snapshot, error) {
	var doc snapshotDocument
	if err := readDocument(path, &doc); err != nil {
		return access.Snapshot{}, err
	}
	return access.Snapshot{StartDate: doc.StartDate, DueDate: doc.DueDate, AllowOfflineIDE: doc.AllowOfflineIDE}, nil
}

func runDecide(cmd *cobra.Command, _ []string) error {
	before, err := loadSnapshot(decideFlags.before)
	if err != nil {
		return err
	}
	after, err := loadSnapshot(decideFlags.after)
	if err != nil {
		return err
	}
	now := time.Now()
	if decideFlags.now != "" {
		t, err := parseTime(decideFlags.now)
		if err != nil {
			return err
		}
		now = *t
	}

	out := cmd.OutOrStdout()
	commands := access.Decide(before, after, now)
	if len(commands) == 0 {
		fmt.Fprintln(out, "No access changes")
		return nil
	}
	for _, c := range commands {
		if c.Kind == access.LockParticipationsWithEarlierDueDate {
			fmt.Fprintf(out, "%s (repositories: %t)\n", c.Kind, c.WithRepositories)
			continue
		}
		fmt.Fprintln(out, c.Kind)
	}
	return nil
}

func runStatement(cmd *cobra.Command, _ []string) error {
	data, err := os.ReadFile(statementFlags.file)
	if err != nil {
		return fmt.Errorf("read %s: %w", statementFlags.file, err)
	}
	out := cmd.OutOrStdout()
	tasks := statement.ParseTasks(string(data))
	fmt.Fprintf(out, "Tasks: %d\n", len(tasks))
	for _, task := range tasks {
		fmt.Fprintf(out, "  %s\n", task.Name)
		for _, test := range task.Tests {
			if id, ok := statement.ParseIDToken(test); ok {
				fmt.Fprintf(out, "    #%d\n", id)
				continue
			}
			fmt.Fprintf(out, "    %s\n", test)
		}
	}
	return nil
}
