package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"exforge/pkg/utils/response"

	"gopkg.in/yaml.v3"
)

// readDocument decodes a YAML or JSON file into out. JSON is valid YAML.
func readDocument(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func parseExerciseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid exercise id %q", arg)
	}
	return id, nil
}

func parseTime(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, fmt.Errorf("invalid time %q: want RFC3339", value)
	}
	return &t, nil
}

func printResponse(out io.Writer, resp *response.Response, pretty bool) error {
	var (
		data []byte
		err  error
	)
	if pretty {
		data, err = json.MarshalIndent(resp.Data, "", "  ")
	} else {
		data, err = json.Marshal(resp.Data)
	}
	if err != nil {
		return err
	}
	if resp.TraceID != "" {
		fmt.Fprintf(out, "# trace %s\n", resp.TraceID)
	}
	fmt.Fprintln(out, string(data))
	return nil
}
