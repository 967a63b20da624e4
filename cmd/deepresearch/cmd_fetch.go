package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Lin-Guanguo/my-deep-research/internal/tools"
)

var (
	fetchBrowser bool
	fetchLimit   int
	fetchTimeout time.Duration
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <url>",
	Short: "Extract the readable article from a page",
	Args:  cobra.ExactArgs(1),
	RunE:  runFetch,
}

func init() {
	fetchCmd.Flags().BoolVar(&fetchBrowser, "browser", false, "Render the page in headless Chrome first")
	fetchCmd.Flags().IntVar(&fetchLimit, "limit", 2000, "Maximum characters of content to print")
	fetchCmd.Flags().DurationVar(&fetchTimeout, "timeout", 30*time.Second, "Fetch timeout")
}

func runFetch(cmd *cobra.Command, args []string) error {
	var fetcher tools.Fetcher
	if fetchBrowser {
		bc := tools.NewBrowserCrawler(fetchTimeout)
		defer bc.Close()
		fetcher = bc
	} else {
		fetcher = tools.NewCrawler(fetchTimeout)
	}

	article, err := fetcher.Fetch(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "# %s\n%s\n\n", article.Title, article.URL)
	fmt.Fprintln(out, article.Summary(fetchLimit))
	return nil
}
