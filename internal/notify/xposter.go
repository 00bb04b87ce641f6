package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/dghubble/oauth1"
	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"github.com/signalyard/metaengine/internal/config"
	"github.com/signalyard/metaengine/internal/models"
)

const (
	xAPIBase   = "https://api.twitter.com"
	tweetPath  = "/2/tweets"
	tweetLimit = 280

	// How many gated picks per engine make it into the post.
	xTopPerEngine = 3
)

// XPoster publishes the run's top picks to X via the v2 API. Requests
// go through an OAuth 1.0a user-context signing transport.
type XPoster struct {
	client *resty.Client
	logger *logrus.Logger
}

// NewXPoster creates a poster with the given credentials.
func NewXPoster(cfg config.XConfig, logger *logrus.Logger) *XPoster {
	oc := oauth1.NewConfig(cfg.APIKey, cfg.APISecret)
	token := oauth1.NewToken(cfg.AccessToken, cfg.AccessSecret)
	signed := oc.Client(oauth1.NoContext, token)

	return &XPoster{
		client: resty.NewWithClient(signed).SetBaseURL(xAPIBase).SetTimeout(15 * time.Second),
		logger: logger,
	}
}

// PostTopPicks publishes one post with the top gated picks from each
// engine. Empty pick lists produce no post.
func (x *XPoster) PostTopPicks(scanDate string, session models.Session, scored []models.ScoredPick) error {
	text := ComposePost(scanDate, session, scored)
	if text == "" {
		x.logger.Info("No gated picks to post to X")
		return nil
	}
	return x.post(text)
}

func (x *XPoster) post(text string) error {
	resp, err := x.client.R().
		SetBody(map[string]string{"text": text}).
		Post(tweetPath)
	if err != nil {
		return fmt.Errorf("x post failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("x post rejected: status %d: %s", resp.StatusCode(), resp.String())
	}

	x.logger.WithField("chars", len(text)).Info("Posted run summary to X")
	return nil
}

// ComposePost renders the post text within the character budget.
func ComposePost(scanDate string, session models.Session, scored []models.ScoredPick) string {
	bearish := topSymbols(scored, models.EnginePuts)
	bullish := topSymbols(scored, models.EngineMoonshot)
	if len(bearish) == 0 && len(bullish) == 0 {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Meta Engine %s %s\n", scanDate, session)
	if len(bearish) > 0 {
		fmt.Fprintf(&b, "Bearish: %s\n", strings.Join(bearish, " "))
	}
	if len(bullish) > 0 {
		fmt.Fprintf(&b, "Bullish: %s\n", strings.Join(bullish, " "))
	}
	b.WriteString("Paper trading, not advice")

	text := b.String()
	if len(text) > tweetLimit {
		text = text[:tweetLimit-3] + "..."
	}
	return text
}

func topSymbols(scored []models.ScoredPick, engine models.Engine) []string {
	var out []string
	for _, sp := range scored {
		if sp.Pick.Engine != engine || !sp.Passed {
			continue
		}
		out = append(out, "$"+sp.Pick.Symbol)
		if len(out) == xTopPerEngine {
			break
		}
	}
	return out
}
