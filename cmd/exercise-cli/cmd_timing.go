package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

var timingFlags struct {
	release       string
	start         string
	due           string
	assessmentDue string
	offlineIDE    bool
	onlineEditor  bool
}

var timingCmd = &cobra.Command{
	Use:   "timing <exercise-id>",
	Short: "Replace the dates and tool policy of an exercise",
	Long: "Replace the dates and tool policy of an exercise.\n" +
		"Omitted dates are cleared; omitted tool flags keep their value.",
	Args: cobra.ExactArgs(1),
	RunE: runTiming,
}

func init() {
	f := timingCmd.Flags()
	f.StringVar(&timingFlags.release, "release", "", "Release date (RFC3339)")
	f.StringVar(&timingFlags.start, "start", "", "Start date (RFC3339)")
	f.StringVar(&timingFlags.due, "due", "", "Due date (RFC3339)")
	f.StringVar(&timingFlags.assessmentDue, "assessment-due", "", "Assessment due date (RFC3339)")
	f.BoolVar(&timingFlags.offlineIDE, "offline-ide", false, "Allow the offline IDE")
	f.BoolVar(&timingFlags.onlineEditor, "online-editor", false, "Allow the online editor")
}

type timingRequest struct {
	ReleaseDate       *time.Time `json:"releaseDate,omitempty"`
	StartDate         *time.Time `json:"startDate,omitempty"`
	DueDate           *time.Time `json:"dueDate,omitempty"`
	AssessmentDueDate *time.Time `json:"assessmentDueDate,omitempty"`
	AllowOfflineIDE   *bool      `json:"allowOfflineIde,omitempty"`
	AllowOnlineEditor *bool      `json:"allowOnlineEditor,omitempty"`
}

func runTiming(cmd *cobra.Command, args []string) error {
	id, err := parseExerciseID(args[0])
	if err != nil {
		return err
	}
	var req timingRequest
	for _, d := range []struct {
		value string
		dst   **time.Time
	}{
		{timingFlags.release, &req.ReleaseDate},
		{timingFlags.start, &req.StartDate},
		{timingFlags.due, &req.DueDate},
		{timingFlags.assessmentDue, &req.AssessmentDueDate},
	} {
		if *d.dst, err = parseTime(d.value); err != nil {
			return err
		}
	}
	if cmd.Flags().Changed("offline-ide") {
		req.AllowOfflineIDE = &timingFlags.offlineIDE
	}
	if cmd.Flags().Changed("online-editor") {
		req.AllowOnlineEditor = &timingFlags.onlineEditor
	}

	resp, err := client.Call(cmd.Context(), http.MethodPut, fmt.Sprintf("/api/v1/exercises/%d/timing", id), req)
	if err != nil {
		return err
	}
	return printResponse(cmd.OutOrStdout(), resp, *cliConfig.PrettyJSON)
}
