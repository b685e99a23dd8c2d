package commands

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/jpark8215/internal-chatbot/internal/domain"
	"github.com/jpark8215/internal-chatbot/internal/service"
	"github.com/spf13/cobra"
)

type queryOptions struct {
	strategy  string
	topK      int
	decompose bool
	answer    bool
}

func QueryCmd() *cobra.Command {
	var opts queryOptions

	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: "Retrieve documents for a query",
		Long: "Rank stored chunks against a query. The strategy is chosen from the query unless --strategy is set. " +
			"--answer generates a grounded answer from the retrieved documents.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var strategy *domain.Strategy
			if opts.strategy != "" {
				st, err := domain.ParseStrategy(opts.strategy)
				if err != nil {
					return fmt.Errorf("%w: %q (want one of %v)", err, opts.strategy, domain.AllStrategies)
				}
				strategy = &st
			}

			ctx := context.Background()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			w := cmd.OutOrStdout()
			if opts.answer {
				ans, err := a.answers.Answer(ctx, args[0], opts.topK)
				if err != nil {
					return fmt.Errorf("answer failed: %w", err)
				}
				if outputJSON(cmd) {
					return printJSON(w, answerJSON(ans))
				}
				printAnswer(w, ans)
				return nil
			}

			var result *domain.RetrievalResult
			if opts.decompose && strategy == nil {
				var rw service.Rewrite
				result, rw, err = a.retrieval.RetrieveDecomposed(ctx, args[0], opts.topK)
				if err == nil && len(rw.Subqueries) > 1 && !outputJSON(cmd) {
					fmt.Fprintf(w, "Decomposed into %d subqueries:\n", len(rw.Subqueries))
					for _, q := range rw.Subqueries {
						fmt.Fprintf(w, "  - %s\n", q)
					}
					fmt.Fprintln(w)
				}
			} else {
				result, err = a.retrieval.Retrieve(ctx, args[0], opts.topK, strategy)
			}
			if err != nil {
				return fmt.Errorf("retrieval failed: %w", err)
			}

			if outputJSON(cmd) {
				return printJSON(w, retrievalJSON(result))
			}
			printRetrieval(w, result)
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.strategy, "strategy", "s", "", "Force a strategy: semantic, keyword, hybrid, enhanced or combined")
	cmd.Flags().IntVarP(&opts.topK, "top-k", "k", 0, "Number of documents to return (default CHATBOT_TOP_K)")
	cmd.Flags().BoolVar(&opts.decompose, "decompose", false, "Split compound questions into subqueries and merge the results")
	cmd.Flags().BoolVar(&opts.answer, "answer", false, "Generate an answer from the retrieved documents")
	addOutputFlag(cmd)

	return cmd
}

func retrievalJSON(r *domain.RetrievalResult) map[string]any {
	out := map[string]any{
		"query":                    r.Query,
		"strategy":                 r.StrategyUsed,
		"documents":                r.Documents,
		"retrieval_time_ms":        r.RetrievalTimeMS(),
		"embedding_time_ms":        r.EmbeddingTime.Milliseconds(),
		"total_documents_searched": r.TotalDocumentsSearched,
		"cache_hit":                r.CacheHit,
		"degraded":                 r.Degraded,
	}
	if r.Err != nil {
		out["error"] = r.Err.Error()
	}
	return out
}

func printRetrieval(w io.Writer, r *domain.RetrievalResult) {
	if r.Err != nil {
		fmt.Fprintf(w, "Warning: %v\n", r.Err)
	}
	if len(r.Documents) == 0 {
		fmt.Fprintln(w, "No results found.")
		return
	}

	flags := ""
	if r.CacheHit {
		flags += ", cached"
	}
	if r.Degraded {
		flags += ", degraded"
	}
	fmt.Fprintf(w, "Found %d results (%s, %.1fms%s):\n\n", len(r.Documents), r.StrategyUsed, r.RetrievalTimeMS(), flags)

	for i, doc := range r.Documents {
		fmt.Fprintf(w, "%d. %s [chunk %d] (confidence %.2f)\n", i+1, doc.SourceFile, doc.ChunkIndex, doc.Confidence)
		if doc.PageNumber != nil {
			fmt.Fprintf(w, "   Page: %d\n", *doc.PageNumber)
		}
		fmt.Fprintf(w, "   %s\n", truncate(doc.Content, 160))
		if i < len(r.Documents)-1 {
			separator(w)
		}
	}
}

func answerJSON(a *service.Answer) map[string]any {
	out := map[string]any{
		"query":              a.Query,
		"answer":             a.Text,
		"sources":            a.Sources,
		"strategy":           a.Strategy,
		"cached":             a.Cached,
		"generation_time_ms": a.GenerationTime.Milliseconds(),
	}
	return out
}

func printAnswer(w io.Writer, a *service.Answer) {
	fmt.Fprintln(w, a.Text)
	if len(a.Sources) == 0 {
		return
	}
	fmt.Fprintln(w)
	separator(w)
	for i, src := range a.Sources {
		page := ""
		if src.PageNumber != nil {
			page = fmt.Sprintf(", page %d", *src.PageNumber)
		}
		fmt.Fprintf(w, "[Source %d] %s%s (confidence %.2f)\n", i+1, src.DisplayName, page, src.Confidence)
	}
	if a.Cached {
		fmt.Fprintln(w, "(cached)")
	} else if a.GenerationTime > 0 {
		fmt.Fprintf(w, "(generated in %s)\n", a.GenerationTime.Round(time.Millisecond))
	}
}
