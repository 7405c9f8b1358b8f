// Package i18n holds the localized reply strings.
package i18n

import "fmt"

const DefaultLang = "en"

const (
	KeyEmptyInput         = "empty_input"
	KeyNoURLDetected      = "no_url_detected"
	KeyURLDetectedNoProxy = "url_detected_no_proxy"
	KeyProxyGeneratedHdr  = "proxy_generated_header"
	KeyProxyItem          = "proxy_item"
	KeyFailedHeader       = "failed_header"
	KeyFailedItem         = "failed_item"
	KeyInvalidURL         = "invalid_url"
	KeyProcessingError    = "processing_error"
	KeyWelcomeTitle       = "welcome_title"
	KeyWelcomeBody        = "welcome_body"
)

var messages = map[string]map[string]string{
	"zh": {
		KeyEmptyInput: "请输入您想要访问的网址，例如：`google.com 请给我代理地址`",
		KeyNoURLDetected: "未检测到有效的网址。请输入您想要访问的网址，例如：\n" +
			"• `google.com 请给我代理地址`\n" +
			"• `https://example.com 帮我生成访问链接`",
		KeyURLDetectedNoProxy: "检测到网址：%s\n如果您需要代理访问链接，请说：`%s 请给我代理地址`",
		KeyProxyGeneratedHdr:  "\n*代理链接已生成:*",
		KeyProxyItem:          "\n• 原始网址: `%s`\n  代理链接: %s\n  有效期至: %s",
		KeyFailedHeader:       "\n\n*以下网址处理失败:*",
		KeyFailedItem:         "• %s: 生成失败 - %s",
		KeyInvalidURL:         "• %s: 无效的网址格式",
		KeyProcessingError:    "处理请求时发生错误，请稍后重试。错误信息: %s",
		KeyWelcomeTitle:       "*欢迎使用 QURL 代理机器人!*",
		KeyWelcomeBody: "这个机器人使用 AI 智能理解您的需求，帮助您生成安全的代理链接。\n\n" +
			"*使用方法:*\n" +
			"• 直接发送消息给我，或在频道中 @提及我\n" +
			"• 用自然语言描述您的需求\n\n" +
			"*示例:*\n" +
			"• `我想访问 google.com，帮我生成代理链接`\n" +
			"• `github.com 需要代理，有效期7天`\n" +
			"• `帮我访问这个网站 https://example.com`",
	},
	"en": {
		KeyEmptyInput: "Please enter the URL you want to access, e.g.: `google.com I need a proxy`",
		KeyNoURLDetected: "No valid URL detected. Please enter the URL you want to access, e.g.:\n" +
			"• `google.com I need a proxy`\n" +
			"• `https://example.com generate access link`",
		KeyURLDetectedNoProxy: "Detected URL: %s\nIf you need a proxy link, please say: `%s I need a proxy`",
		KeyProxyGeneratedHdr:  "\n*Proxy link generated:*",
		KeyProxyItem:          "\n• Original URL: `%s`\n  Proxy link: %s\n  Expires at: %s",
		KeyFailedHeader:       "\n\n*The following URLs failed:*",
		KeyFailedItem:         "• %s: Generation failed - %s",
		KeyInvalidURL:         "• %s: Invalid URL format",
		KeyProcessingError:    "An error occurred while processing your request. Please try again later. Error: %s",
		KeyWelcomeTitle:       "*Welcome to QURL Proxy Bot!*",
		KeyWelcomeBody: "This bot uses AI to understand your needs and help you generate secure proxy links.\n\n" +
			"*How to use:*\n" +
			"• Send me a direct message or @mention me in a channel\n" +
			"• Describe your needs in natural language\n\n" +
			"*Examples:*\n" +
			"• `I want to access google.com, generate a proxy link`\n" +
			"• `github.com need proxy, valid for 7 days`\n" +
			"• `Help me access this website https://example.com`",
	},
}

// Message returns the localized, formatted string for key. Unknown
// languages fall back to English; unknown keys fall back to the English
// table, then to the key itself.
func Message(lang, key string, args ...any) string {
	table, ok := messages[lang]
	if !ok {
		table = messages[DefaultLang]
	}
	tmpl, ok := table[key]
	if !ok {
		tmpl, ok = messages[DefaultLang][key]
	}
	if !ok {
		return key
	}
	if len(args) == 0 {
		return tmpl
	}
	return fmt.Sprintf(tmpl, args...)
}
