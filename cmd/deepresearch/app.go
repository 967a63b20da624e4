package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"

	"github.com/Lin-Guanguo/my-deep-research/internal/agent"
	"github.com/Lin-Guanguo/my-deep-research/internal/gateway"
	"github.com/Lin-Guanguo/my-deep-research/internal/governance"
	"github.com/Lin-Guanguo/my-deep-research/internal/observability"
	"github.com/Lin-Guanguo/my-deep-research/internal/report"
	"github.com/Lin-Guanguo/my-deep-research/internal/store"
	"github.com/Lin-Guanguo/my-deep-research/internal/tools"
	"github.com/Lin-Guanguo/my-deep-research/internal/workflow"
)

// stdin is shared so the question prompt and the console reviewer never
// buffer each other's input.
var stdin = bufio.NewReader(os.Stdin)

// newPlanner builds the LLM planner against the OpenAI-compatible endpoint.
func newPlanner() (*agent.LLMPlanner, error) {
	if err := cfg.RequirePlanner(); err != nil {
		return nil, err
	}
	llm, err := openai.New(
		openai.WithToken(cfg.API.OpenRouterKey),
		openai.WithModel(cfg.Models.Planner),
		openai.WithBaseURL(cfg.Models.BaseURL),
	)
	if err != nil {
		return nil, fmt.Errorf("init planner model: %w", err)
	}

	p := agent.NewLLMPlanner(llm, cfg.Models.Planner, agent.NewPromptManager(cfg.Models.PromptsDir), logger)
	p.Temperature = cfg.Models.Temperature
	p.UseTools = cfg.Models.UseTools
	return p, nil
}

// newResearcher wires the configured search provider, the query policy and,
// when enabled, the article crawler. The returned func releases the browser.
func newResearcher() (*agent.Researcher, func(), error) {
	registry := tools.NewRegistry()
	registry.Register(tools.NewTavily())
	registry.Register(tools.NewDuckDuckGo())

	searcher, err := registry.Get(cfg.Search.Provider)
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.RequireSearch(); err != nil {
		logger.Warn("research steps will be blocked", zap.Error(err))
	}

	policy, err := governance.NewPolicyEngine(cfg.Search.DenyProviders, cfg.Search.DenyQueries)
	if err != nil {
		return nil, nil, err
	}

	r := agent.NewResearcher(searcher, cfg.SearchCredential(), logger)
	r.Policy = policy

	cleanup := func() {}
	if cfg.Search.FetchArticles {
		timeout := cfg.Search.Timeout()
		if cfg.Search.Browser {
			bc := tools.NewBrowserCrawler(timeout)
			r.Fetcher = bc
			cleanup = bc.Close
		} else {
			r.Fetcher = tools.NewCrawler(timeout)
		}
	}
	return r, cleanup, nil
}

// newReviewer picks the plan reviewer. kind is console, telegram or auto.
func newReviewer(kind string) (workflow.Reviewer, func(), error) {
	if kind == "" {
		kind = "console"
		if cfg.Gateways.Telegram.Enabled {
			kind = "telegram"
		}
	}

	var r workflow.Reviewer
	cleanup := func() {}
	switch kind {
	case "auto":
		r = workflow.AutoAccept
	case "console":
		r = gateway.NewConsoleReviewer(stdin, os.Stdout)
	case "telegram":
		if err := cfg.RequireTelegram(); err != nil {
			return nil, nil, err
		}
		tg := cfg.Gateways.Telegram
		m, err := gateway.NewTelegramMessenger(tg.Token, tg.ChatID, logger)
		if err != nil {
			return nil, nil, err
		}
		r = gateway.NewChatReviewer(m, logger)
		cleanup = m.Stop
	default:
		return nil, nil, fmt.Errorf("unknown reviewer %q (want console, telegram or auto)", kind)
	}
	return workflow.LimitAttempts(r, cfg.Runtime.MaxReviewAttempts), cleanup, nil
}

func engineOptions() workflow.Options {
	opts := workflow.DefaultOptions()
	opts.Locale = cfg.Runtime.Locale
	opts.HumanReview = cfg.Runtime.HumanReview
	opts.MaxIterations = cfg.Runtime.MaxIterations
	opts.MaxResults = cfg.Search.MaxQueries
	opts.SearchTimeout = cfg.Search.Timeout()
	opts.MaxNotes = cfg.Search.MaxNotes
	opts.DegradationHint = cfg.Runtime.Degradation
	return opts
}

// persistRun appends the run to the JSONL log and saves it to SQLite.
func persistRun(ctx context.Context, st *workflow.State) error {
	rec := store.NewRunRecord(st, time.Now())

	if err := store.AppendJSONL(cfg.Storage.PlansPath, rec); err != nil {
		return fmt.Errorf("append run log: %w", err)
	}
	logger.LogStore(st.RunID, "jsonl", cfg.Storage.PlansPath)

	if err := os.MkdirAll(filepath.Dir(cfg.Storage.DBPath), 0755); err != nil {
		return err
	}
	runs, err := store.NewRunStore(cfg.Storage.DBPath)
	if err != nil {
		return err
	}
	defer runs.Close()

	id, err := runs.SaveRun(ctx, rec, st.Metadata.ResearcherStatus)
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	logger.LogStore(st.RunID, "sqlite", id)
	return nil
}

// printMarkdown renders md for a terminal, or writes it raw when piped.
func printMarkdown(w io.Writer, md string) {
	if observability.IsTerminal() {
		if out, err := report.RenderTerminal(md, observability.TermWidth()); err == nil {
			fmt.Fprint(w, out)
			return
		}
	}
	fmt.Fprint(w, md)
}
