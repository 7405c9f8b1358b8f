// Package analyzer turns free-form chat text into a structured proxy-link
// request using a language model.
package analyzer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/layerv/qurl-slack-bot/internal/aliases"
	"github.com/layerv/qurl-slack-bot/internal/jsonutil"
)

// ChatClient is the single seam to the model provider.
type ChatClient interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Result is the structured decision extracted from one message. Immutable
// once returned.
type Result struct {
	Language   string
	URLs       []string
	WantsProxy bool
	ExpiresIn  string
	Reason     string
}

func defaultResult() Result {
	return Result{Language: "en"}
}

type modelReply struct {
	Language   string   `json:"language"`
	URLs       []string `json:"urls"`
	WantsProxy bool     `json:"wants_proxy"`
	ExpiresIn  *string  `json:"expires_in"`
	Reason     *string  `json:"reason"`
}

type Analyzer struct {
	chat    ChatClient
	aliases *aliases.Table
	logger  *slog.Logger
}

func New(chat ChatClient, table *aliases.Table, logger *slog.Logger) (*Analyzer, error) {
	if chat == nil {
		return nil, fmt.Errorf("chat client is required")
	}
	if table == nil {
		table = aliases.Empty()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{chat: chat, aliases: table, logger: logger}, nil
}

// Analyze extracts language, target URLs, proxy intent and expiry from text.
// It fails only when the provider call itself fails; an unparsable model
// reply degrades to the neutral default result. Alias names found in the
// raw text are appended after the model's URLs as a safety net for mappings
// the model missed.
func (a *Analyzer) Analyze(ctx context.Context, text string) (Result, error) {
	reply, err := a.chat.Complete(ctx, a.systemPrompt(), "Analyze the following user message:\n\n"+text)
	if err != nil {
		return Result{}, fmt.Errorf("analyze: %w", err)
	}

	var parsed modelReply
	if err := jsonutil.DecodeWithFallback(reply, &parsed); err != nil {
		a.logger.Warn("analyze_reply_unparsable", "error", err.Error())
		return defaultResult(), nil
	}

	res := Result{
		Language:   strings.TrimSpace(parsed.Language),
		URLs:       parsed.URLs,
		WantsProxy: parsed.WantsProxy,
	}
	if res.Language == "" {
		res.Language = "en"
	}
	if parsed.ExpiresIn != nil {
		res.ExpiresIn = strings.TrimSpace(*parsed.ExpiresIn)
	}
	if parsed.Reason != nil {
		res.Reason = strings.TrimSpace(*parsed.Reason)
	}
	res.URLs = a.appendResolvedAliases(res.URLs, text)
	return res, nil
}

// appendResolvedAliases scans the raw text for alias names and appends
// their URLs after the model's list. It never removes model URLs.
func (a *Analyzer) appendResolvedAliases(urls []string, text string) []string {
	out := append([]string(nil), urls...)
	present := make(map[string]bool, len(out))
	for _, u := range out {
		present[u] = true
	}
	tokens := strings.FieldsFunc(text, func(r rune) bool {
		return r == ',' || r == '.' || unicode.IsSpace(r)
	})
	for _, token := range tokens {
		resolved, ok := a.aliases.Resolve(token)
		if !ok || present[resolved] {
			continue
		}
		present[resolved] = true
		out = append(out, resolved)
	}
	return out
}

func (a *Analyzer) systemPrompt() string {
	return fmt.Sprintf(systemPromptTemplate, a.aliases.PromptSection())
}

const systemPromptTemplate = `You are an intelligent assistant responsible for analyzing user messages and extracting structured information.

Your task is to extract the following information from user messages:
1. language - IMPORTANT: Detect the language of the user's message. Return "en" for English, "zh" for Chinese.
   - If the message is in English (e.g., "please give me", "I need", "help me"), return "en"
   - If the message is in Chinese (e.g., "请给我", "我需要", "帮我"), return "zh"
   - Default to "en" if uncertain
2. urls - List of URLs the user wants to access (MUST be complete URLs starting with https://)
3. wants_proxy - Whether the user needs a proxy/QURL link
4. expires_in - The validity period specified by the user (format like "1h", "24h", "7d", "1w")
5. reason - A brief description of the user's request (optional)

%s

URL Recognition Rules:
- IMPORTANT: First check if the mentioned name matches any custom internal domain alias above. If so, use that exact URL.
- If user mentions a website NAME (not a full URL), convert it to a complete URL:
  - "Amazon" or "亚马逊" -> "https://amazon.com"
  - "Google" or "谷歌" -> "https://google.com"
  - "GitHub" -> "https://github.com"
  - "YouTube" or "油管" -> "https://youtube.com"
  - "Twitter" or "X" or "推特" -> "https://x.com"
  - "Facebook" or "脸书" -> "https://facebook.com"
  - "Instagram" or "Ins" -> "https://instagram.com"
  - "Netflix" or "奈飞" -> "https://netflix.com"
  - "Reddit" -> "https://reddit.com"
  - "LinkedIn" or "领英" -> "https://linkedin.com"
  - "Baidu" or "百度" -> "https://baidu.com"
  - "Taobao" or "淘宝" -> "https://taobao.com"
  - "ChatGPT" or "OpenAI" -> "https://chat.openai.com"
  - For other website names, use "https://{name}.com" format
- If user provides a partial URL like "amazon.com", convert to "https://amazon.com"
- If user provides a full URL, keep it as is
- Always return URLs with https:// prefix

Criteria for determining wants_proxy:
- User explicitly requests proxy, QURL, access link, secure link, etc.
- User asks how to access a website
- User mentions needing to bypass restrictions, VPN, etc.
- Chinese keywords: 代理, 访问, 链接, 打开, 连接, 翻墙, 科学上网, qurl
- English keywords: proxy, access, link, open, connect, vpn, qurl
- If the user only sends a URL/website name without explicitly requesting a proxy, wants_proxy should be false

Validity period recognition:
- "1小时" / "1 hour" -> "1h"
- "24小时" / "24 hours" -> "24h"
- "1天" / "1 day" -> "1d"
- "7天" / "一周" / "7 days" / "1 week" -> "7d"
- If not specified, return null

IMPORTANT: Always return results in JSON format without any other text.

Examples:
- Input: "please give me the QURL of Amazon" -> {"language": "en", "urls": ["https://amazon.com"], "wants_proxy": true, "expires_in": null, "reason": null}
- Input: "帮我生成谷歌的代理链接" -> {"language": "zh", "urls": ["https://google.com"], "wants_proxy": true, "expires_in": null, "reason": null}
- Input: "CRM proxy please, 7 days" -> {"language": "en", "urls": ["https://crm.mycompany.com"], "wants_proxy": true, "expires_in": "7d", "reason": null}`
