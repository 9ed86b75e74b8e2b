package extract

import (
	"strings"
	"testing"
)

func TestNormalizeMarkdownBold(t *testing.T) {
	got := NormalizeMarkdown("これは**大事**なポイントと__もう一つ__です。")
	if strings.Contains(got, "**") || strings.Contains(got, "__") {
		t.Errorf("Bold markers must be removed: %q", got)
	}
	got = NormalizeMarkdown("**a** and **b** on one line")
	if got != "a and b on one line" {
		t.Errorf("All bold spans on a line must unwrap, got %q", got)
	}
}

func TestNormalizeMarkdownHeadings(t *testing.T) {
	got := NormalizeMarkdown("## 今日のまとめ\n本文です。\n### 詳細\nさらに本文。")
	if strings.Contains(got, "#") {
		t.Errorf("Heading markers must be removed: %q", got)
	}
	if !strings.Contains(got, "■ 今日のまとめ") || !strings.Contains(got, "■ 詳細") {
		t.Errorf("Headings should be flattened with the heading glyph: %q", got)
	}
}

func TestNormalizeMarkdownBullets(t *testing.T) {
	got := NormalizeMarkdown("- ごはん\n* みそ汁\n  - 豆腐入り")
	lines := strings.Split(got, "\n")
	if len(lines) != 3 {
		t.Fatalf("Expected 3 lines, got %d: %q", len(lines), got)
	}
	if lines[0] != "・ごはん" || lines[1] != "・みそ汁" {
		t.Errorf("Bullets should use the bullet glyph: %q", got)
	}
	if lines[2] != "  ・豆腐入り" {
		t.Errorf("Nested bullet indent should survive: %q", lines[2])
	}
}

func TestNormalizeMarkdownCodeAndBackticks(t *testing.T) {
	got := NormalizeMarkdown("```json\n{\"a\": 1}\n```\nそして `kcal` は単位です。")
	if strings.Contains(got, "```") || strings.Contains(got, "`") {
		t.Errorf("Fences and inline backticks must be removed: %q", got)
	}
	if !strings.Contains(got, "kcal") {
		t.Errorf("Inline code content should survive: %q", got)
	}
}

func TestNormalizeMarkdownCollapsesBlankRuns(t *testing.T) {
	got := NormalizeMarkdown("一行目\n\n\n\n二行目")
	if strings.Contains(got, "\n\n\n") {
		t.Errorf("Blank line runs should collapse: %q", got)
	}
	if !strings.Contains(got, "一行目") || !strings.Contains(got, "二行目") {
		t.Errorf("Content lost during collapse: %q", got)
	}
}

func TestNormalizeMarkdownPlainTextUntouched(t *testing.T) {
	in := "記録しました。明日も頑張りましょう！"
	if got := NormalizeMarkdown(in); got != in {
		t.Errorf("Plain text should pass through, got %q", got)
	}
}
