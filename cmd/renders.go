package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/MimeLyc/subrender/internal/renderjobs"
)

func newRendersCommand() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "renders",
		Short: "List live render artifacts on a running server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			list, err := fetchRenders(ctx, addr)
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No live renders")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), formatRenders(list, time.Now()))
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "http://localhost:8000", "Base URL of the server")
	return cmd
}

func fetchRenders(ctx context.Context, addr string) ([]renderjobs.Summary, error) {
	url := strings.TrimRight(addr, "/") + "/api/renders"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("query %s: unexpected status %s", url, resp.Status)
	}
	var list []renderjobs.Summary
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("decode renders: %w", err)
	}
	return list, nil
}

func formatRenders(list []renderjobs.Summary, now time.Time) string {
	rows := make([][]string, 0, len(list))
	for _, job := range list {
		rows = append(rows, []string{
			job.ID,
			job.CompositionID,
			humanize.Bytes(uint64(max(job.FileSize, 0))),
			humanize.RelTime(job.CreatedAt, now, "ago", "from now"),
			(time.Duration(job.SecondsRemaining) * time.Second).String(),
		})
	}
	return renderTable(
		[]string{"ID", "Composition", "Size", "Created", "Expires In"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignRight},
	)
}
