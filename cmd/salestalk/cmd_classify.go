package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/shahar-caura/salestalk/internal/intent"
)

type classifier interface {
	Classify(ctx context.Context, req intent.Request) (*intent.Result, error)
}

func newClassifyCmd(a *app) *cobra.Command {
	var (
		file        string
		tenant      string
		lang        string
		asJSON      bool
		concurrency int
	)

	cmd := &cobra.Command{
		Use:   "classify [question...]",
		Short: "Classify a question, or every line of --file",
		RunE: func(cmd *cobra.Command, args []string) error {
			var questions []string
			switch {
			case file != "" && len(args) > 0:
				return fmt.Errorf("give a question or --file, not both")
			case file != "":
				f, err := os.Open(file)
				if err != nil {
					return fmt.Errorf("opening questions: %w", err)
				}
				defer func() { _ = f.Close() }()
				if questions, err = readQuestions(f); err != nil {
					return fmt.Errorf("reading %s: %w", file, err)
				}
			case len(args) > 0:
				questions = []string{strings.Join(args, " ")}
			default:
				return fmt.Errorf("usage: salestalk classify <question> | --file <path>")
			}

			store, err := a.openStore()
			if err != nil {
				return err
			}
			c, err := a.newClassifier(cmd.Context(), store, nil)
			if err != nil {
				return err
			}

			tmpl := intent.Request{LanguageOverride: lang}
			if tenant != "" {
				tmpl.TenantContext = tenant
			}
			items := runBatch(cmd.Context(), c, questions, tmpl, concurrency)
			return printItems(cmd.OutOrStdout(), items, asJSON)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "classify every non-empty line of this file")
	cmd.Flags().StringVar(&tenant, "tenant", "", "tenant id passed as tenant context")
	cmd.Flags().StringVar(&lang, "lang", "", "skip detection and treat questions as this language")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print one JSON object per question")
	cmd.Flags().IntVarP(&concurrency, "concurrency", "c", 4, "questions classified in parallel")

	return cmd
}

// readQuestions returns the non-blank lines of r, skipping # comments.
func readQuestions(r io.Reader) ([]string, error) {
	var out []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out, sc.Err()
}

type batchItem struct {
	Question string         `json:"question"`
	Result   *intent.Result `json:"result,omitempty"`
	Err      error          `json:"-"`
	Error    string         `json:"error,omitempty"`
}

// runBatch classifies questions with at most concurrency in flight and
// returns the items in input order.
func runBatch(ctx context.Context, c classifier, questions []string, tmpl intent.Request, concurrency int) []batchItem {
	items := make([]batchItem, len(questions))

	var g errgroup.Group
	g.SetLimit(max(1, concurrency))
	for i, q := range questions {
		g.Go(func() error {
			req := tmpl
			req.Question = q
			res, err := c.Classify(ctx, req)
			items[i] = batchItem{Question: q, Result: res, Err: err}
			if err != nil {
				items[i].Error = err.Error()
			}
			return nil
		})
	}
	_ = g.Wait()
	return items
}

func printItems(w io.Writer, items []batchItem, asJSON bool) error {
	failed := 0
	enc := json.NewEncoder(w)
	for _, it := range items {
		if it.Err != nil {
			failed++
		}
		if asJSON {
			if err := enc.Encode(it); err != nil {
				return err
			}
			continue
		}
		printText(w, it)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d questions failed", failed, len(items))
	}
	return nil
}

func printText(w io.Writer, it batchItem) {
	fmt.Fprintf(w, "Q: %s\n", it.Question)
	if it.Err != nil {
		fmt.Fprintf(w, "  error: %v\n\n", it.Err)
		return
	}
	r := it.Result
	if r.Refused {
		fmt.Fprintf(w, "  refused: %s\n", r.RefusalReason)
	} else {
		fmt.Fprintf(w, "  intent=%s subject=%s measure=%s confidence=%.2f\n", r.Intent, r.Subject, r.Measure, r.Confidence.Overall)
		if !r.Dimension.Empty() {
			d, _ := json.Marshal(r.Dimension)
			fmt.Fprintf(w, "  dimension: %s\n", d)
		}
		if !r.Time.Empty() {
			t, _ := json.Marshal(r.Time)
			fmt.Fprintf(w, "  time: %s\n", t)
		}
	}
	fmt.Fprintf(w, "  language=%s coverage=%.2f repair_steps=%d\n", r.Metadata.DetectedLanguage, r.Metadata.NormalizationCoverage, r.Metadata.RepairSteps)
	if len(r.Metadata.CorrectionsApplied) > 0 {
		fmt.Fprintf(w, "  corrections: %s\n", strings.Join(r.Metadata.CorrectionsApplied, ", "))
	}
	fmt.Fprintln(w)
}
