package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/newsdesk/internal/refine"
	"github.com/xxxsen/newsdesk/internal/tui"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "newsdesk",
		Short:         "retrieval grounded article drafting",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.json")

	rootCmd.AddCommand(
		newGenerateCmd(&configPath),
		newInteractiveCmd(&configPath),
		newSearchCmd(&configPath),
		newIndexCmd(&configPath),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logutil.GetLogger(context.Background()).Error("command failed", zap.Error(err))
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

func requireRequest(request string) (string, error) {
	request = strings.TrimSpace(request)
	if request == "" {
		return "", fmt.Errorf("--request is required")
	}
	return request, nil
}

func newGenerateCmd(configPath *string) *cobra.Command {
	var request string
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "draft an article and refine it until the critic is satisfied",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := requireRequest(request)
			if err != nil {
				return err
			}
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			ctrl, err := a.controller(ctx)
			if err != nil {
				return err
			}
			res, err := ctrl.Run(ctx, req)
			if err != nil {
				return err
			}
			printResult(cmd.OutOrStdout(), res)
			return nil
		},
	}
	cmd.Flags().StringVar(&request, "request", "", "article request")
	return cmd
}

func newInteractiveCmd(configPath *string) *cobra.Command {
	var request string
	cmd := &cobra.Command{
		Use:   "interactive",
		Short: "draft an article and ask for approval after every round",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := requireRequest(request)
			if err != nil {
				return err
			}
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			ctrl, err := a.controller(ctx)
			if err != nil {
				return err
			}
			session, err := ctrl.Start(ctx, req)
			if err != nil {
				return err
			}
			if err := tui.Run(ctx, ctrl, session); err != nil {
				return err
			}
			printResult(cmd.OutOrStdout(), session.Result())
			return nil
		},
	}
	cmd.Flags().StringVar(&request, "request", "", "article request")
	return cmd
}

func newSearchCmd(configPath *string) *cobra.Command {
	var (
		request string
		raw     bool
	)
	cmd := &cobra.Command{
		Use:   "search",
		Short: "list the articles relevant to a request",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := requireRequest(request)
			if err != nil {
				return err
			}
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			query := req
			if !raw {
				if err := a.enableNormalizer(ctx); err != nil {
					return err
				}
				if query, err = a.engine.Rewrite(ctx, req); err != nil {
					return err
				}
			}
			articles, err := a.engine.FindRelevantArticles(ctx, query)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "query: %s\n", query)
			if len(articles) == 0 {
				fmt.Fprintln(out, "no relevant articles")
				return nil
			}
			for i, art := range articles {
				fmt.Fprintf(out, "%2d. %s  max=%.4f avg=%.4f chunks=%d\n", i+1, art.SourceID, art.MaxScore, art.AvgScore, len(art.Chunks))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&request, "request", "", "search request")
	cmd.Flags().BoolVar(&raw, "raw", false, "search the request as is, skipping keyword normalization")
	return cmd
}

func printResult(w io.Writer, res *refine.Result) {
	fmt.Fprintln(w, res.Draft)
	fmt.Fprintln(w)
	score := "unscored"
	if res.Score != nil {
		score = fmt.Sprintf("%.1f/10", *res.Score)
	}
	fmt.Fprintf(w, "--- request %s: %d iteration(s), score %s, approved %t\n", res.RequestID, res.Iterations, score, res.Approved)
	if res.Comments.Strengths != "" {
		fmt.Fprintf(w, "strengths: %s\n", res.Comments.Strengths)
	}
	if res.Comments.Improvements != "" {
		fmt.Fprintf(w, "improvements: %s\n", res.Comments.Improvements)
	}
	if len(res.Sources) > 0 {
		fmt.Fprintf(w, "sources: %s\n", strings.Join(res.Sources, ", "))
	}
	if len(res.Citations) > 0 {
		fmt.Fprintf(w, "cited: %s\n", strings.Join(res.Citations, ", "))
	}
	if res.Interrupted != nil {
		fmt.Fprintf(w, "stopped early: %v\n", res.Interrupted)
	}
}
