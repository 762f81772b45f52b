package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"salesql/internal/assistant"
	"salesql/internal/salesmodel"

	"github.com/spf13/cobra"
)

type askOptions struct {
	route   string
	tables  []string
	session string
	measure string
	date    string
	showSQL bool
	asJSON  bool
}

func newAskCmd(s *session) *cobra.Command {
	opts := &askOptions{}
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer one question",
		Example: `  salesql ask "total sales last month" --route primary
  salesql ask "top 5 skus in Pune" --route shipment --show-sql`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := opts.request(strings.Join(args, " "))
			if err != nil {
				return err
			}

			pipeline, release, err := s.open(cmd.Context())
			if err != nil {
				return err
			}
			defer release()

			resp := pipeline.Assistant.Ask(cmd.Context(), req)
			if opts.asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(resp)
			}
			printResponse(cmd.OutOrStdout(), resp, opts.showSQL)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.route, "route", "", "Route to answer from (primary or shipment)")
	f.StringSliceVar(&opts.tables, "tables", nil, "Restrict the question to these tables")
	f.StringVar(&opts.session, "session", "", "Session ID carried between questions")
	f.StringVar(&opts.measure, "measure", "", "Measure column override")
	f.StringVar(&opts.date, "date-column", "", "Date column override")
	f.BoolVar(&opts.showSQL, "show-sql", false, "Print the executed SQL")
	f.BoolVar(&opts.asJSON, "json", false, "Print the full response as JSON")
	return cmd
}

func (o *askOptions) request(question string) (assistant.Request, error) {
	req := assistant.Request{
		Question:      strings.TrimSpace(question),
		AllowedTables: o.tables,
		SessionID:     o.session,
		MeasureColumn: o.measure,
		DateColumn:    o.date,
	}
	if req.Question == "" {
		return req, fmt.Errorf("question is required")
	}
	if o.route != "" {
		route, ok := salesmodel.ParseRoute(o.route)
		if !ok {
			return req, fmt.Errorf("--route must be primary or shipment, got %q", o.route)
		}
		req.Route = route
	}
	return req, nil
}

func printResponse(w io.Writer, resp assistant.Response, showSQL bool) {
	_, _ = fmt.Fprintln(w, resp.Answer)
	for _, note := range resp.Notes {
		_, _ = fmt.Fprintf(w, "note: %s\n", note)
	}
	if showSQL && resp.SQL != "" {
		_, _ = fmt.Fprintf(w, "\n-- route=%s intent=%s retries=%d\n%s\n", resp.Route, resp.Intent, resp.RetryCount, resp.SQL)
	}
}
