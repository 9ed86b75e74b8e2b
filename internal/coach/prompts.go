// Package coach contains the conversation pipeline.
// This file contains the prompt contract: the persona instruction and
// the control tags the model is asked to embed in its output.
package coach

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nutrilog/nutri-linebot-go/internal/storage"
)

// Control tag names the extractor recognizes. These must match the
// names the persona prompt teaches the model to emit.
const (
	TagNutritionLog  = "NUTRITION_LOG"
	TagProfileUpdate = "PROFILE_UPDATE"
)

// personaPrompt is the fixed instruction block. The tag contract is
// spelled out explicitly: exact keyword, colon, single-line JSON. The
// extractor tolerates more than this, but a tight contract keeps the
// model's emissions parseable.
const personaPrompt = `あなたはLINEで栄養相談に応えるAI栄養コーチです。短く、優しく、断定しすぎない口調で返してください。最後に一言アドバイスを添えてください。

ユーザーが食事の内容を報告したり食事の写真を送ったときは、返答の末尾に次の形式で推定栄養情報を1行で記録してください:
NUTRITION_LOG: {"item": "料理名", "kcal": 数値, "protein_g": 数値, "fat_g": 数値, "carbs_g": 数値}

ユーザーが体重・身長・目標などプロフィールに関わる情報を伝えたときは、次の形式で記録してください:
PROFILE_UPDATE: {"weight_kg": 数値}

記録行はユーザーには見えません。記録すべき情報がないときは記録行を出力しないでください。数値は必ず引用符なしの数値で出力してください。`

// photoPromptText stands in for the user's caption when a photo
// arrives without text.
const photoPromptText = "この食事の写真を見て、栄養を推定してアドバイスしてください。"

// fallbackReply is delivered when generation or delivery of the real
// answer fails. Fixed wording, never generated.
const fallbackReply = "いま応答の生成に失敗しました。少し時間をおいて、もう一度送ってください。"

// welcomeReply greets a user who just added the bot.
const welcomeReply = "はじめまして！AI栄養コーチです。食事の内容や写真を送ってくれたら、栄養バランスを見てアドバイスします。体重や目標も教えてくださいね。"

// buildSystemContext assembles the system prompt: persona, the user's
// profile snapshot, and today's logged totals. The record count is
// included so the model can tell "ate nothing logged yet" apart from
// "logged meals that sum to zero".
func buildSystemContext(profile storage.Profile, todays []storage.Record, now time.Time) string {
	var sb strings.Builder
	sb.WriteString(personaPrompt)

	sb.WriteString("\n\n現在日時: ")
	sb.WriteString(now.Format("2006-01-02 15:04"))

	if len(profile) > 0 {
		doc, err := json.Marshal(profile)
		if err == nil {
			sb.WriteString("\n\nユーザープロフィール: ")
			sb.Write(doc)
		}
	}

	sb.WriteString(fmt.Sprintf("\n\n今日の食事記録: %d件", len(todays)))
	if len(todays) > 0 {
		totals := sumNumericFields(todays)
		sb.WriteString(" 合計: ")
		sb.WriteString(formatTotals(totals))
	}

	return sb.String()
}

// sumNumericFields adds up every numeric leaf across the payloads,
// keyed by field name. Non-numeric fields are skipped.
func sumNumericFields(records []storage.Record) map[string]float64 {
	totals := make(map[string]float64)
	for _, rec := range records {
		for k, v := range rec.Payload {
			if n, ok := v.(float64); ok {
				totals[k] += n
			}
		}
	}
	return totals
}

// formatTotals renders the totals map deterministically: well-known
// fields first, anything else alphabetical would be overkill for a
// prompt, so remaining fields are simply omitted.
func formatTotals(totals map[string]float64) string {
	order := []string{"kcal", "protein_g", "fat_g", "carbs_g"}
	parts := make([]string, 0, len(order))
	for _, k := range order {
		if v, ok := totals[k]; ok {
			parts = append(parts, fmt.Sprintf("%s=%s", k, formatNumber(v)))
		}
	}
	return strings.Join(parts, " ")
}

// formatNumber renders a float without a trailing ".0" for whole numbers.
func formatNumber(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%.1f", v)
}
