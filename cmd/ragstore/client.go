package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	httpapi "github.com/fyrsmithlabs/ragstore/internal/http"
)

func newAddCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "add [file]",
		Short: "Add documents from a JSON file or stdin",
		Long: `Add documents to a running ragstore server.

The input is either {"documents": [...]} or a bare array of documents:

  [{"id": "D1", "content": "Cats are mammals.", "embedding": [1, 0, 0]}]

Examples:
  ragstore add docs.json
  cat docs.json | ragstore add -`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			req, err := parseDocuments(content)
			if err != nil {
				return err
			}

			var resp httpapi.AddDocumentsResponse
			if err := postJSON(opts.serverURL+"/api/v1/documents", req, &resp); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %d document(s)\n", resp.Added)
			return nil
		},
	}
}

func newSearchCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "search <embedding>",
		Short: "Find the documents nearest to an embedding",
		Long: `Search a running ragstore server. The embedding is a comma separated
list of numbers.

Examples:
  ragstore search 1,0,0
  ragstore search --json 0.12,-0.4,0.9`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			embedding, err := parseEmbedding(args[0])
			if err != nil {
				return err
			}

			var resp httpapi.SearchResponse
			if err := postJSON(opts.serverURL+"/api/v1/search", httpapi.SearchRequest{Embedding: embedding}, &resp); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(resp)
			}
			return printResults(out, resp)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw JSON response")
	return cmd
}

func newHealthCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check ragstore server health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client := &http.Client{Timeout: 5 * time.Second}

			resp, err := client.Get(opts.serverURL + "/health")
			if err != nil {
				return fmt.Errorf("failed to connect to %s: %w", opts.serverURL, err)
			}
			defer resp.Body.Close()

			var health httpapi.HealthResponse
			if err := decodeResponse(resp, &health); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Server Status: %s\n", health.Status)
			fmt.Fprintf(out, "Top K: %d\n", health.TopK)
			fmt.Fprintf(out, "Score Kind: %s\n", health.ScoreKind)
			if health.Documents != nil {
				fmt.Fprintf(out, "Documents: %d\n", *health.Documents)
			}
			return nil
		},
	}
}

func readInput(cmd *cobra.Command, args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		content, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("failed to read from stdin: %w", err)
		}
		return content, nil
	}
	content, err := os.ReadFile(args[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", args[0], err)
	}
	return content, nil
}

// parseDocuments accepts a request object or a bare array.
func parseDocuments(content []byte) (httpapi.AddDocumentsRequest, error) {
	var req httpapi.AddDocumentsRequest
	trimmed := bytes.TrimSpace(content)
	if len(trimmed) == 0 {
		return req, fmt.Errorf("no documents to add")
	}

	var err error
	if trimmed[0] == '[' {
		err = json.Unmarshal(trimmed, &req.Documents)
	} else {
		err = json.Unmarshal(trimmed, &req)
	}
	if err != nil {
		return req, fmt.Errorf("failed to parse documents: %w", err)
	}
	if len(req.Documents) == 0 {
		return req, fmt.Errorf("no documents to add")
	}
	return req, nil
}

func parseEmbedding(raw string) ([]float32, error) {
	parts := strings.Split(raw, ",")
	out := make([]float32, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseFloat(p, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid embedding component %q: %w", p, err)
		}
		out = append(out, float32(v))
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("embedding must contain at least one number")
	}
	return out, nil
}

func postJSON(url string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", url, err)
	}
	defer resp.Body.Close()

	return decodeResponse(resp, out)
}

func decodeResponse(resp *http.Response, out interface{}) error {
	if resp.StatusCode != http.StatusOK {
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return fmt.Errorf("server returned status %d (failed to read response body: %w)", resp.StatusCode, readErr)
		}
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func printResults(w io.Writer, resp httpapi.SearchResponse) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "RANK\tID\t%s\tSOURCE\tCONTENT\n", strings.ToUpper(string(resp.ScoreKind)))
	for i, r := range resp.Results {
		fmt.Fprintf(tw, "%d\t%s\t%.4f\t%s\t%s\n", i+1, r.Document.ID, r.Score, r.Document.SourceName, snippet(r.Document.Content))
	}
	return tw.Flush()
}

func snippet(content string) string {
	content = strings.Join(strings.Fields(content), " ")
	r := []rune(content)
	if len(r) <= 60 {
		return content
	}
	return string(r[:60]) + "..."
}
