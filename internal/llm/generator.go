// Package llm generates a full itinerary with Gemini. The engine treats it
// as one optional source; any failure falls through to the rule-based build.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"google.golang.org/genai"

	"github.com/hikaruusa1016-cmyk/date-ai.v2/internal/domain"
)

const defaultModel = "gemini-2.0-flash"

type Generator struct {
	client *genai.Client
	model  string
}

func New(ctx context.Context, apiKey, model string) (*Generator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("llm: api key is required")
	}
	if model == "" {
		model = defaultModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("llm: create client: %w", err)
	}
	return &Generator{client: client, model: model}, nil
}

// Generate asks the model for a complete plan in the fixed JSON shape and
// maps it onto the domain types.
func (g *Generator) Generate(ctx context.Context, cond domain.Conditions, adjustment string) (*domain.Plan, error) {
	prompt := BuildPrompt(cond, adjustment)
	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}
	result, err := g.client.Models.GenerateContent(ctx, g.model, contents, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return nil, fmt.Errorf("llm: generate: %w", err)
	}
	text := result.Text()
	if text == "" {
		return nil, fmt.Errorf("llm: empty response")
	}
	return ParsePlan(text)
}

// BuildPrompt renders the generation prompt, mirroring the conditions the
// rule-based path honors so the two sources stay interchangeable.
func BuildPrompt(cond domain.Conditions, adjustment string) string {
	var b strings.Builder
	b.WriteString("あなたはデートプラン生成の専門家です。以下の条件に基づいて、完璧なデートプランをJSON形式で生成してください。\n\n")
	b.WriteString("【ユーザーの条件】\n")
	fmt.Fprintf(&b, "- エリア: %s\n", cond.Area)
	fmt.Fprintf(&b, "- デートの段階: %s\n", cond.Phase)
	fmt.Fprintf(&b, "- 時間帯: %s\n", cond.TimeSlot)
	fmt.Fprintf(&b, "- デート予算レベル: %s\n", cond.Budget)
	if cond.Mood != "" {
		fmt.Fprintf(&b, "- 今日の気分: %s\n", cond.Mood)
	}
	if len(cond.NGConditions) > 0 {
		fmt.Fprintf(&b, "- NG条件: %s\n", strings.Join(cond.NGConditions, ", "))
	}
	if cond.CustomRequest != "" {
		fmt.Fprintf(&b, "- ユーザーの自由入力リクエスト: %s\n", cond.CustomRequest)
	}
	if m := cond.Movement; m != nil {
		fmt.Fprintf(&b, "- 移動方針: %s（%s）。%s\n", m.Label, m.Description, m.Focus)
	}
	if len(cond.PreferredAreas) > 0 {
		fmt.Fprintf(&b, "- 途中で立ち寄りたいエリア: %s（可能な範囲で経路に組み込む）\n", strings.Join(cond.PreferredAreas, ", "))
	}
	if adjustment != "" {
		fmt.Fprintf(&b, "\n【ユーザーからの調整リクエスト】\n%s\n前回のプランを基に、このリクエストを反映して修正したプランを生成してください。\n", adjustment)
	}
	b.WriteString(`
【出力形式（必ず以下のJSON形式で返してください）】
{
  "plan_summary": "このプランの説明（1文）",
  "plan_reason": "プラン全体の意図",
  "total_estimated_cost": "予算の目安（例：6000-8000）",
  "schedule": [
    {
      "time": "時刻（HH:MM形式）",
      "type": "lunch|dinner|activity|walk|cafe",
      "place_name": "場所の名前",
      "area": "エリア",
      "price_range": "価格帯（例：1500-2000）",
      "duration": "所要時間（例：60min）",
      "reason": "このスポットを選んだ理由",
      "reason_tags": ["タグ1", "タグ2"]
    }
  ],
  "adjustable_points": ["調整できるポイント"],
  "conversation_topics": ["話題1", "話題2", "話題3"],
  "next_step_phrase": "次回につなげる一言"
}

【ルール】
1. 初デートの場合は、密室や長時間拘束を避けてください
2. 予算レベルを超えないようにしてください
3. 指定されたエリア周辺で現実的な移動範囲内にしてください
4. スケジュールは時間帯に応じて自然な流れで構成してください
5. NG条件を避けたスポットを選んでください
6. ユーザーの自由入力があれば、必ずスケジュールに組み込んでください`)
	return b.String()
}

type wirePlan struct {
	PlanSummary        string     `json:"plan_summary"`
	PlanReason         string     `json:"plan_reason"`
	TotalEstimatedCost string     `json:"total_estimated_cost"`
	Schedule           []wireItem `json:"schedule"`
	AdjustablePoints   []string   `json:"adjustable_points"`
	ConversationTopics []string   `json:"conversation_topics"`
	NextStepPhrase     string     `json:"next_step_phrase"`
}

type wireItem struct {
	Time       string   `json:"time"`
	Type       string   `json:"type"`
	PlaceName  string   `json:"place_name"`
	Area       string   `json:"area"`
	PriceRange string   `json:"price_range"`
	Duration   string   `json:"duration"`
	Reason     string   `json:"reason"`
	ReasonTags []string `json:"reason_tags"`
}

// ParsePlan decodes the model's JSON output, tolerating prose around the
// object by retrying on the outermost brace pair.
func ParsePlan(text string) (*domain.Plan, error) {
	var wp wirePlan
	if err := json.Unmarshal([]byte(text), &wp); err != nil {
		start := strings.Index(text, "{")
		end := strings.LastIndex(text, "}")
		if start < 0 || end <= start {
			return nil, fmt.Errorf("llm: response is not json: %w", err)
		}
		if err := json.Unmarshal([]byte(text[start:end+1]), &wp); err != nil {
			return nil, fmt.Errorf("llm: parse plan: %w", err)
		}
	}
	if len(wp.Schedule) == 0 {
		return nil, fmt.Errorf("llm: plan has no schedule")
	}
	plan := &domain.Plan{
		Summary:            wp.PlanSummary,
		Reason:             wp.PlanReason,
		EstimatedCost:      wp.TotalEstimatedCost,
		AdjustablePoints:   wp.AdjustablePoints,
		ConversationTopics: wp.ConversationTopics,
		NextStepPhrase:     wp.NextStepPhrase,
		GeneratedBy:        "model",
	}
	for _, it := range wp.Schedule {
		plan.Schedule = append(plan.Schedule, domain.ScheduleItem{
			Time:            it.Time,
			Kind:            parseKind(it.Type),
			PlaceName:       it.PlaceName,
			Area:            it.Area,
			PriceRange:      it.PriceRange,
			DurationMinutes: parseDurationMinutes(it.Duration),
			Reason:          it.Reason,
			ReasonTags:      it.ReasonTags,
		})
	}
	return plan, nil
}

func parseKind(s string) domain.ItemKind {
	switch domain.ItemKind(strings.ToLower(strings.TrimSpace(s))) {
	case domain.KindLunch, domain.KindDinner, domain.KindCafe, domain.KindWalk, domain.KindMeeting, domain.KindTravel, domain.KindFarewell, domain.KindCustom:
		return domain.ItemKind(strings.ToLower(strings.TrimSpace(s)))
	default:
		return domain.KindActivity
	}
}

// parseDurationMinutes reads "60min", "90分" or a bare number; anything else
// defaults to 60.
func parseDurationMinutes(s string) int {
	digits := strings.TrimFunc(s, func(r rune) bool { return r < '0' || r > '9' })
	if i := strings.IndexFunc(digits, func(r rune) bool { return r < '0' || r > '9' }); i >= 0 {
		digits = digits[:i]
	}
	if n, err := strconv.Atoi(digits); err == nil && n > 0 {
		return n
	}
	return 60
}
