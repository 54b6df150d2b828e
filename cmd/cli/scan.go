package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yourusername/grabber-go/internal/app"
	"github.com/yourusername/grabber-go/internal/domain"
	"github.com/yourusername/grabber-go/internal/infrastructure"
)

const cliContextID = "cli"

var scanCmd = &cobra.Command{
	Use:   "scan [page-url]",
	Short: "Detect downloadable media on a web page",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		config := loadConfig()
		log := newLogger()
		defer log.Sync()

		jsonOutput, _ := cmd.Flags().GetBool("json")
		cookieOut, _ := cmd.Flags().GetString("export-cookies")

		pageURL, ok := domain.Resolve(args[0], "")
		if !ok {
			fail("please enter a valid URL: %s", args[0])
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		aggregator := app.NewDetectionAggregator(nil, nil, log)
		aggregator.Navigated(cliContextID, pageURL)

		// The page is unknown until the fetch returns
		var mu sync.Mutex
		page := &infrastructure.Page{URL: pageURL}
		pageInfo := func() (string, string) {
			mu.Lock()
			defer mu.Unlock()
			return page.URL, page.Title
		}

		cookies := infrastructure.NewCookieStore()
		interceptor := infrastructure.NewInterceptor(domain.DefaultClassifier(), pageInfo, func(c domain.MediaCandidate) {
			aggregator.Record(cliContextID, c)
		}, log).WithCookieStore(cookies)

		client := &http.Client{
			Transport: interceptor.Transport(http.DefaultTransport),
			Timeout:   config.API.Timeout,
		}

		fetched, err := infrastructure.FetchPage(ctx, client, pageURL)
		if err != nil {
			fail("%v", err)
		}
		mu.Lock()
		page = fetched
		mu.Unlock()

		scanner := infrastructure.NewPageScanner(domain.DefaultClassifier(), log)
		for _, c := range scanner.Scan(fetched) {
			aggregator.Record(cliContextID, c)
		}
		media := aggregator.Query(cliContextID)

		if cookieOut != "" {
			writeCookies(cookieOut, fetched.URL, cookies, log)
		}

		if jsonOutput {
			out, _ := json.MarshalIndent(media, "", "  ")
			fmt.Println(string(out))
			return
		}

		if len(media) == 0 {
			fmt.Printf("No media found on %s\n", fetched.URL)
			return
		}
		printMedia(media)
	},
}

func writeCookies(path, pageURL string, cookies *infrastructure.CookieStore, log *zap.Logger) {
	text, ok := infrastructure.ExportNetscape(pageURL, cookies)
	if !ok {
		fmt.Fprintln(os.Stderr, "No cookies captured for this page")
		return
	}
	if err := os.WriteFile(path, []byte(text), 0600); err != nil {
		fail("failed to write cookie file: %v", err)
	}
	log.Debug("Cookie file written", zap.String("path", path), zap.Int("cookies", cookies.Len()))
}

func printMedia(media []domain.MediaCandidate) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tTYPE\tNAME\tURL")
	for i, m := range media {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n",
			i+1,
			m.SourceType,
			truncate(m.DisplayName(), 40),
			m.URL)
	}
	w.Flush()
}

func init() {
	scanCmd.Flags().BoolP("json", "j", false, "Output in JSON format")
	scanCmd.Flags().String("export-cookies", "", "Write cookies set by the page to this Netscape cookie file")
}
