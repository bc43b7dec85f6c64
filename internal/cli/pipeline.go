package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

func newSubmitCmd() *cobra.Command {
	var revision string

	cmd := &cobra.Command{
		Use:   "submit <hashed-name>",
		Short: "Submit an uploaded file to the classification pipeline",
		Long: `Submit a file that was already uploaded, by the hashed name the upload
returned. Prints the run hash id used by 'aab reports download'.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := GetContext(cmd)
			client, creds, err := getAPIClient()
			if err != nil {
				return err
			}
			c, err := creds.Resolve(ctx)
			if err != nil {
				return err
			}

			resp, err := client.SubmitPipeline(ctx, c, args[0], revision)
			if err != nil {
				return fmt.Errorf("failed to submit %s: %w", args[0], err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp.HashID)
			return nil
		},
	}
	cmd.Flags().StringVar(&revision, "revision", "", "Pipeline revision (default from config)")
	return cmd
}

func newClassifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify <sequence>",
		Short: "Classify a single sequence without running the pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sequence := strings.TrimSpace(args[0])
			if sequence == "" {
				return fmt.Errorf("sequence is empty")
			}

			ctx := GetContext(cmd)
			client, creds, err := getAPIClient()
			if err != nil {
				return err
			}
			c, err := creds.Resolve(ctx)
			if err != nil {
				return err
			}

			raw, err := client.ClassifySmall(ctx, c, sequence)
			if err != nil {
				return fmt.Errorf("classification failed: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), raw)
		},
	}
}

// printJSON indents raw for display, falling back to the bytes as received.
func printJSON(w io.Writer, raw json.RawMessage) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		buf.Reset()
		buf.Write(raw)
	}
	buf.WriteByte('\n')
	_, err := buf.WriteTo(w)
	return err
}
