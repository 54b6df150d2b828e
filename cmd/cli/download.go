package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yourusername/grabber-go/internal/app"
	"github.com/yourusername/grabber-go/internal/domain"
	"github.com/yourusername/grabber-go/internal/infrastructure"
)

var downloadCmd = &cobra.Command{
	Use:   "download [url]",
	Short: "Submit a download job and wait for it to finish",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		config := loadConfig()
		log := newLogger()
		defer log.Sync()

		audio, _ := cmd.Flags().GetBool("audio")
		maxHeight, _ := cmd.Flags().GetInt("max-height")
		bitrate, _ := cmd.Flags().GetInt("bitrate")
		cookieFile, _ := cmd.Flags().GetString("cookies")
		noCookies, _ := cmd.Flags().GetBool("no-cookies")

		if bitrate <= 0 {
			bitrate = config.Job.DefaultAudioBitrate
		}
		kind := domain.KindVideo
		if audio {
			kind = domain.KindAudio
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		cookies := ""
		switch {
		case cookieFile != "":
			cookies = loadCookieFile(cookieFile, args[0])
		case !noCookies:
			cookies = captureCookies(ctx, args[0], config.API.Timeout, log)
		}

		req, err := domain.NewDownloadRequest(args[0], kind, maxHeight, bitrate, cookies)
		if err != nil {
			fail("%v", err)
		}

		client := infrastructure.NewJobClient(config.API.BaseURL, config.API.Timeout, log)
		session := app.NewJobSession(client, config.Job, log, app.WithJobObserver(app.JobObserverFunc(printUpdate)))
		defer session.Close()

		if _, err := session.Submit(ctx, req); err != nil {
			os.Exit(1)
		}

		handle, err := session.Wait(ctx)
		if err != nil {
			if ctx.Err() != nil {
				fmt.Fprintln(os.Stderr, "Interrupted")
			}
			os.Exit(1)
		}
		if handle.ResultLink != "" {
			fmt.Printf("Link: %s\n", handle.ResultLink)
		}
	},
}

// loadCookieFile reads a Netscape cookie file and keeps the cookies that
// apply to rawURL
func loadCookieFile(path, rawURL string) string {
	file, err := os.Open(path)
	if err != nil {
		fail("failed to open cookie file: %v", err)
	}
	defer file.Close()

	parsed, err := infrastructure.ParseNetscape(file)
	if err != nil {
		fail("failed to parse cookie file: %v", err)
	}

	store := infrastructure.NewCookieStore()
	for _, c := range parsed {
		store.Add(c)
	}
	text, ok := infrastructure.ExportNetscape(rawURL, store)
	if !ok {
		fmt.Fprintln(os.Stderr, "Warning: no cookies in the file apply to this URL")
		return ""
	}
	return text
}

// captureCookies loads rawURL once and exports the cookies it sets. Any
// failure just means the job goes out without cookies.
func captureCookies(ctx context.Context, rawURL string, timeout time.Duration, log *zap.Logger) string {
	pageURL, ok := domain.Resolve(rawURL, "")
	if !ok {
		return ""
	}

	store := infrastructure.NewCookieStore()
	interceptor := infrastructure.NewInterceptor(domain.DefaultClassifier(), func() (string, string) {
		return pageURL, ""
	}, func(domain.MediaCandidate) {}, log).WithCookieStore(store)
	client := &http.Client{Transport: interceptor.Transport(http.DefaultTransport), Timeout: timeout}

	if _, err := infrastructure.FetchPage(ctx, client, pageURL); err != nil {
		log.Debug("Cookie capture failed", zap.String("url", pageURL), zap.Error(err))
		return ""
	}
	text, ok := infrastructure.ExportNetscape(pageURL, store)
	if !ok {
		return ""
	}
	return text
}

func printUpdate(u app.JobUpdate) {
	switch u.Indicator {
	case app.IndicatorFailed, app.IndicatorRejected:
		fmt.Fprintln(os.Stderr, u.Message)
	case app.IndicatorProgress:
		fmt.Printf("\r%s", u.Message)
	default:
		fmt.Printf("\r%s%s\n", u.Message, strings.Repeat(" ", 8))
	}
}

func init() {
	downloadCmd.Flags().BoolP("audio", "a", false, "Extract audio only")
	downloadCmd.Flags().Int("max-height", 0, "Maximum video height, e.g. 720 (default: best available)")
	downloadCmd.Flags().Int("bitrate", 0, "Audio bitrate in kbps (default from config)")
	downloadCmd.Flags().String("cookies", "", "Netscape cookie file to send with the job (default: cookies set by the page)")
	downloadCmd.Flags().Bool("no-cookies", false, "Send the job without cookies")
}
