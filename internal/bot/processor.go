// Package bot orchestrates one inbound chat message end to end: intent
// analysis, URL merging, proxy-link fan-out and reply composition.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/layerv/qurl-slack-bot/internal/analyzer"
	"github.com/layerv/qurl-slack-bot/internal/i18n"
	"github.com/layerv/qurl-slack-bot/internal/layerv"
	"github.com/layerv/qurl-slack-bot/internal/urlx"
)

type Analyzer interface {
	Analyze(ctx context.Context, text string) (analyzer.Result, error)
}

type LinkCreator interface {
	CreateQURL(ctx context.Context, req layerv.CreateRequest) (layerv.QURL, error)
}

type Options struct {
	Analyzer       Analyzer
	Links          LinkCreator
	Logger         *slog.Logger
	MaxConcurrency int
	CreateTimeout  time.Duration
}

type Processor struct {
	analyzer       Analyzer
	links          LinkCreator
	logger         *slog.Logger
	maxConcurrency int
	createTimeout  time.Duration
}

func NewProcessor(opts Options) (*Processor, error) {
	if opts.Analyzer == nil {
		return nil, fmt.Errorf("analyzer is required")
	}
	if opts.Links == nil {
		return nil, fmt.Errorf("link creator is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxConc := opts.MaxConcurrency
	if maxConc <= 0 {
		maxConc = 4
	}
	createTimeout := opts.CreateTimeout
	if createTimeout <= 0 {
		createTimeout = 30 * time.Second
	}
	return &Processor{
		analyzer:       opts.Analyzer,
		links:          opts.Links,
		logger:         logger,
		maxConcurrency: maxConc,
		createTimeout:  createTimeout,
	}, nil
}

type Incoming struct {
	Text   string
	UserID string
}

var (
	mentionPattern     = regexp.MustCompile(`<@[A-Z0-9]+>`)
	labeledLinkPattern = regexp.MustCompile(`<(https?://[^|>]+)\|[^>]+>`)
	bareLinkPattern    = regexp.MustCompile(`<(https?://[^>]+)>`)
)

// PreprocessText strips Slack mention markup and unwraps Slack link markup
// to plain URLs.
func PreprocessText(text string) string {
	text = labeledLinkPattern.ReplaceAllString(text, "$1")
	text = bareLinkPattern.ReplaceAllString(text, "$1")
	text = mentionPattern.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// HandleMessage processes one message and returns exactly one reply. All
// failures past input validation collapse into the localized
// processing-error reply; nothing escapes to the transport layer.
func (p *Processor) HandleMessage(ctx context.Context, msg Incoming) (reply string) {
	lang := i18n.DefaultLang
	mention := "<@" + msg.UserID + "> "
	msgID := "msg_" + uuid.NewString()

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("process_panic", "msg_id", msgID, "panic", fmt.Sprint(r))
			reply = mention + i18n.Message(lang, i18n.KeyProcessingError, fmt.Sprint(r))
		}
	}()

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return mention + i18n.Message(lang, i18n.KeyEmptyInput)
	}

	clean := PreprocessText(text)
	p.logger.Info("process_start", "msg_id", msgID, "user_id", msg.UserID, "text", clean)

	res, err := p.analyzer.Analyze(ctx, clean)
	if err != nil {
		p.logger.Error("analyze_error", "msg_id", msgID, "error", err.Error())
		return mention + i18n.Message(lang, i18n.KeyProcessingError, err.Error())
	}
	if res.Language != "" {
		lang = res.Language
	}
	p.logger.Info("analyze_done",
		"msg_id", msgID,
		"language", res.Language,
		"urls", len(res.URLs),
		"wants_proxy", res.WantsProxy,
		"expires_in", res.ExpiresIn,
	)

	merged := mergeURLs(res.URLs, urlx.Extract(text))
	if len(merged) == 0 {
		return mention + i18n.Message(lang, i18n.KeyNoURLDetected)
	}
	if !res.WantsProxy {
		return mention + i18n.Message(lang, i18n.KeyURLDetectedNoProxy, strings.Join(merged, ", "), merged[0])
	}

	outcomes := p.generate(ctx, msg.UserID, res, merged, lang)
	p.logger.Info("process_done", "msg_id", msgID, "urls", len(merged))
	return composeReply(mention, lang, outcomes)
}

// mergeURLs unions the analyzer's URLs with the extractor's finds,
// analyzer first, order stable. Deduplication compares normalized forms
// so `google.com` and `https://google.com` count as one URL.
func mergeURLs(analyzed, extracted []string) []string {
	seen := make(map[string]bool, len(analyzed)+len(extracted))
	var out []string
	for _, u := range append(append([]string(nil), analyzed...), extracted...) {
		if u == "" {
			continue
		}
		key := urlx.Normalize(u)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, u)
	}
	return out
}

type outcome struct {
	url     string
	link    layerv.QURL
	errLine string
}

// generate fans out one creation request per URL. Requests run
// concurrently under a bounded semaphore with a per-call timeout; a
// failure for one URL never aborts its siblings, and outcomes are written
// by input index so the reply keeps input order.
func (p *Processor) generate(ctx context.Context, userID string, res analyzer.Result, urls []string, lang string) []outcome {
	description := res.Reason
	if description == "" {
		description = fmt.Sprintf("Generated via Slack bot for user %s", userID)
	}

	outcomes := make([]outcome, len(urls))
	sem := make(chan struct{}, p.maxConcurrency)
	var wg sync.WaitGroup
	for i, raw := range urls {
		normalized := urlx.Normalize(raw)
		if !urlx.Valid(normalized) {
			outcomes[i] = outcome{url: normalized, errLine: i18n.Message(lang, i18n.KeyInvalidURL, normalized)}
			continue
		}
		wg.Add(1)
		go func(i int, target string) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					p.logger.Error("qurl_create_panic", "url", target, "panic", fmt.Sprint(r))
					outcomes[i] = outcome{url: target, errLine: i18n.Message(lang, i18n.KeyFailedItem, target, fmt.Sprint(r))}
				}
			}()
			sem <- struct{}{}
			defer func() { <-sem }()

			callCtx, cancel := context.WithTimeout(ctx, p.createTimeout)
			defer cancel()
			qurl, err := p.links.CreateQURL(callCtx, layerv.CreateRequest{
				TargetURL:   target,
				ExpiresIn:   res.ExpiresIn,
				Description: description,
			})
			if err != nil {
				p.logger.Error("qurl_create_error", "url", target, "error", err.Error())
				outcomes[i] = outcome{url: target, errLine: i18n.Message(lang, i18n.KeyFailedItem, target, err.Error())}
				return
			}
			outcomes[i] = outcome{url: target, link: qurl}
		}(i, normalized)
	}
	wg.Wait()
	return outcomes
}

func composeReply(mention, lang string, outcomes []outcome) string {
	var results, errLines []string
	for _, o := range outcomes {
		if o.errLine != "" {
			errLines = append(errLines, o.errLine)
			continue
		}
		results = append(results, i18n.Message(lang, i18n.KeyProxyItem, o.url, o.link.Link, o.link.ExpiresAt))
	}

	var b strings.Builder
	b.WriteString(strings.TrimSpace(mention))
	if len(results) > 0 {
		b.WriteString(i18n.Message(lang, i18n.KeyProxyGeneratedHdr))
		for _, line := range results {
			b.WriteString(line)
		}
	}
	if len(errLines) > 0 {
		b.WriteString(i18n.Message(lang, i18n.KeyFailedHeader))
		for _, line := range errLines {
			b.WriteString("\n" + line)
		}
	}
	return b.String()
}
