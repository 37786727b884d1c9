package main

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

// exerciseDocument mirrors the settings payload of the service.
type exerciseDocument map[string]interface{}

var importFlags struct {
	source   int64
	file     string
	recreate bool
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import an existing exercise into a new one",
	RunE:  runImport,
}

var createFlags struct {
	file string
}

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create and provision a new exercise",
	RunE:  runCreate,
}

var deleteCmd = &cobra.Command{
	Use:   "delete <exercise-id>",
	Short: "Delete an exercise with its repositories and build plans",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

var tasksCmd = &cobra.Command{
	Use:   "tasks <exercise-id>",
	Short: "Regenerate tasks from the problem statement",
	Args:  cobra.ExactArgs(1),
	RunE:  runTasks,
}

func init() {
	f := importCmd.Flags()
	f.Int64Var(&importFlags.source, "source", 0, "Source exercise id (required)")
	f.StringVar(&importFlags.file, "file", "", "Exercise settings file, YAML or JSON (required)")
	f.BoolVar(&importFlags.recreate, "recreate-build-plans", false, "Create fresh build plans instead of copying")
	_ = importCmd.MarkFlagRequired("source")
	_ = importCmd.MarkFlagRequired("file")

	createCmd.Flags().StringVar(&createFlags.file, "file", "", "Exercise settings file, YAML or JSON (required)")
	_ = createCmd.MarkFlagRequired("file")
}

func runImport(cmd *cobra.Command, _ []string) error {
	var settings exerciseDocument
	if err := readDocument(importFlags.file, &settings); err != nil {
		return err
	}
	resp, err := client.Call(cmd.Context(), http.MethodPost, fmt.Sprintf("/api/v1/exercises/%d/import", importFlags.source), map[string]interface{}{
		"exercise":           settings,
		"recreateBuildPlans": importFlags.recreate,
	})
	if err != nil {
		return err
	}
	return printResponse(cmd.OutOrStdout(), resp, *cliConfig.PrettyJSON)
}

func runCreate(cmd *cobra.Command, _ []string) error {
	var settings exerciseDocument
	if err := readDocument(createFlags.file, &settings); err != nil {
		return err
	}
	resp, err := client.Call(cmd.Context(), http.MethodPost, "/api/v1/exercises", settings)
	if err != nil {
		return err
	}
	return printResponse(cmd.OutOrStdout(), resp, *cliConfig.PrettyJSON)
}

func runDelete(cmd *cobra.Command, args []string) error {
	id, err := parseExerciseID(args[0])
	if err != nil {
		return err
	}
	if _, err := client.Call(cmd.Context(), http.MethodDelete, fmt.Sprintf("/api/v1/exercises/%d", id), nil); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Exercise #%d deleted\n", id)
	return nil
}

func runTasks(cmd *cobra.Command, args []string) error {
	id, err := parseExerciseID(args[0])
	if err != nil {
		return err
	}
	resp, err := client.Call(cmd.Context(), http.MethodPost, fmt.Sprintf("/api/v1/exercises/%d/tasks:regenerate", id), nil)
	if err != nil {
		return err
	}
	return printResponse(cmd.OutOrStdout(), resp, *cliConfig.PrettyJSON)
}
