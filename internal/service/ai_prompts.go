package service

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// 直连模型时使用的系统提示词。边缘函数自带提示词，不经过这里
var rewritePrompts = map[string]string{
	"motivation": "Du bist ein einfühlsamer Coach für angehende Selbstständige. " +
		"Formuliere die Notizen der Person klar, motivierend und in der Ich-Form um. " +
		"Behalte alle Fakten bei, erfinde nichts dazu und antworte nur mit dem überarbeiteten Text.",
	"vision": "Du hilfst Menschen, ihre unternehmerische Vision zu schärfen. " +
		"Verdichte die Notizen zu einer konkreten, positiven Zukunftsbeschreibung in der Ich-Form. " +
		"Antworte nur mit dem überarbeiteten Text.",
	"reframe": "Du bist ein Mindset-Coach. Verwandle die genannte Blockade in einen stärkenden Gedanken. " +
		"Antworte mit genau einem kurzen Leitsatz und danach höchstens drei nummerierten, konkreten Schritten.",
}

const defaultRewritePrompt = "Überarbeite die Notizen der Person sprachlich, ohne den Inhalt zu verändern. " +
	"Antworte nur mit dem überarbeiteten Text."

// buildRewritePrompt 生成系统提示词与用户消息；输入按键名排序，便于复现
func buildRewritePrompt(in RewriteInput) (string, string, error) {
	system, ok := rewritePrompts[in.PromptType]
	if !ok {
		system = defaultRewritePrompt
	}

	keys := make([]string, 0, len(in.Inputs))
	for k := range in.Inputs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		switch v := in.Inputs[k].(type) {
		case string:
			if v == "" {
				continue
			}
			fmt.Fprintf(&b, "%s: %s\n", k, v)
		default:
			raw, err := json.Marshal(v)
			if err != nil {
				return "", "", fmt.Errorf("encode input %s: %w", k, err)
			}
			fmt.Fprintf(&b, "%s: %s\n", k, raw)
		}
	}
	return system, strings.TrimSpace(b.String()), nil
}
