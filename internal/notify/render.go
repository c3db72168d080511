package notify

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sheetpulse/sheetpulse/internal/compare"
)

// Webhook types.
const (
	TypeFeishu = "feishu"
	TypeSlack  = "slack"
	TypeTeams  = "teams"
	TypeHTTP   = "http"
)

// Render encodes c as the JSON body expected by a webhook of the given type.
func Render(typ string, c *Card) ([]byte, error) {
	var payload any
	switch typ {
	case TypeFeishu, "":
		payload = feishuPayload(c)
	case TypeSlack:
		payload = map[string]string{"text": plainText(c, "*")}
	case TypeTeams:
		payload = map[string]any{
			"@type":      "MessageCard",
			"@context":   "http://schema.org/extensions",
			"themeColor": statusColor(c.Status),
			"summary":    c.Business,
			"title":      c.Title,
			"text":       strings.ReplaceAll(plainText(c, "**"), "\n", "  \n"),
		}
	case TypeHTTP:
		payload = map[string]any{"report": c}
	default:
		return nil, fmt.Errorf("notify: unknown webhook type %q", typ)
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("notify: encode %s payload: %w", typ, err)
	}
	return b, nil
}

// feishuPayload builds an interactive message card.
func feishuPayload(c *Card) map[string]any {
	fields := make([]map[string]any, 0, len(c.Fields))
	for _, f := range c.Fields {
		fields = append(fields, map[string]any{
			"is_short": true,
			"text": map[string]string{
				"tag": "lark_md",
				"content": fmt.Sprintf("**%s**\n本周均值: %s\n差异: %s **%s**",
					f.Metric, f.Trailing, f.Trend, f.Diff),
			},
		})
	}
	card := map[string]any{
		"config": map[string]bool{"wide_screen_mode": true},
		"header": map[string]any{
			"title":    map[string]string{"tag": "plain_text", "content": c.Title},
			"template": "blue",
		},
		"elements": []any{
			map[string]any{"tag": "div", "text": map[string]string{
				"tag":     "lark_md",
				"content": "**🤖 业务动态总结：**\n" + c.StatusLine,
			}},
			map[string]string{"tag": "hr"},
			map[string]any{"tag": "div", "fields": fields},
			map[string]any{"tag": "note", "elements": []map[string]string{
				{"tag": "plain_text", "content": c.Footer},
			}},
		},
	}
	return map[string]any{"msg_type": "interactive", "card": card}
}

// plainText renders c as markdown-ish text, bolding with the given marker.
func plainText(c *Card, bold string) string {
	var b strings.Builder
	b.WriteString(bold + c.Title + bold + "\n")
	b.WriteString(c.StatusLine + "\n")
	for _, f := range c.Fields {
		fmt.Fprintf(&b, "%s%s%s 本周均值 %s, 差异 %s %s\n", bold, f.Metric, bold, f.Trailing, f.Trend, f.Diff)
	}
	b.WriteString("_" + c.Footer + "_")
	return b.String()
}

func statusColor(status string) string {
	if status == compare.StatusWorsened {
		return "FF4F6A"
	}
	return "2EB67D"
}
