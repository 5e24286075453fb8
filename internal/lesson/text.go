package lesson

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

var (
	bulletLine    = regexp.MustCompile(`^(\d+[.)]|[-*•])\s+`)
	sentenceSplit = regexp.MustCompile(`[.!?]\s+`)
)

// normalizeText 统一换行，并把内容里字面量的 "\n" 转成真正的换行
func normalizeText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, `\n`, "\n")
}

// CompactReframe 把模型输出压缩为一句引导语加最多三条编号步骤
func CompactReframe(raw string) string {
	text := strings.TrimSpace(strings.ReplaceAll(raw, "\r", ""))
	if text == "" {
		return ""
	}

	var first string
	for _, p := range strings.Split(text, "\n") {
		if p = strings.TrimSpace(p); p != "" {
			first = p
			break
		}
	}
	head := truncateRunes(strings.Join(firstSentences(first, 2), " "), 200)

	var bullets []string
	for _, l := range strings.Split(text, "\n") {
		l = strings.TrimSpace(l)
		if !bulletLine.MatchString(l) {
			continue
		}
		bullets = append(bullets, fmt.Sprintf("%d. %s", len(bullets)+1, bulletLine.ReplaceAllString(l, "")))
		if len(bullets) == 3 {
			break
		}
	}

	out := strings.TrimSpace(strings.Join(append([]string{head, ""}, bullets...), "\n"))
	if out == "" {
		return truncateRunes(text, 400)
	}
	return out
}

// firstSentences 按句末标点切分，保留标点
func firstSentences(s string, n int) []string {
	var out []string
	rest := s
	for len(out) < n {
		loc := sentenceSplit.FindStringIndex(rest)
		if loc == nil {
			if rest != "" {
				out = append(out, rest)
			}
			break
		}
		out = append(out, rest[:loc[0]+1])
		rest = rest[loc[1]:]
	}
	return out
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// firstString 返回第一个非空字符串字段
func firstString(r gjson.Result, paths ...string) string {
	for _, p := range paths {
		if v := r.Get(p); v.Type == gjson.String && v.Str != "" {
			return v.Str
		}
	}
	return ""
}

func stringList(r gjson.Result) []string {
	var out []string
	r.ForEach(func(_, v gjson.Result) bool {
		if v.Type == gjson.String {
			out = append(out, v.Str)
		}
		return true
	})
	return out
}

func intOr(r gjson.Result, def int) int {
	if r.Type != gjson.Number {
		return def
	}
	return int(r.Int())
}

func indexOf(list []string, v string) int {
	for i, x := range list {
		if x == v {
			return i
		}
	}
	return -1
}

func without(list []string, v string) []string {
	out := make([]string, 0, len(list))
	for _, x := range list {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}
