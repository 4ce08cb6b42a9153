package pkg

import (
	"regexp"
	"strings"
)

var (
	tagPattern     = regexp.MustCompile(`(?:^|[^\p{L}\p{N}_&])#([\p{L}\p{N}_]+)`)
	mentionPattern = regexp.MustCompile(`(?:^|[^\p{L}\p{N}_])@([\p{L}\p{N}_\-]+(?:\.[\p{L}\p{N}_\-]+)*)`)
)

// ExtractTags 小写、去重，保持出现顺序
func ExtractTags(content string) []string {
	return extract(tagPattern, content, true)
}

// ExtractMentions 内容中 @ 的用户名，去重
func ExtractMentions(content string) []string {
	return extract(mentionPattern, content, false)
}

func extract(re *regexp.Regexp, content string, lower bool) []string {
	matches := re.FindAllStringSubmatch(content, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		v := m[1]
		if lower {
			v = strings.ToLower(v)
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
