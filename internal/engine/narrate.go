package engine

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/hikaruusa1016-cmyk/date-ai.v2/internal/domain"
)

// reasonAndTags picks the per-slot recommendation copy from the phase, mood,
// and budget the plan was built for.
func reasonAndTags(kind domain.ItemKind, cond domain.Conditions) (string, []string) {
	switch kind {
	case domain.KindLunch:
		switch cond.Phase {
		case domain.PhaseFirst:
			return "初対面でも会話しやすい落ち着いた環境を選びました", []string{"初デート向け", "会話しやすい"}
		case domain.PhaseAnniversary:
			return "記念日にふさわしい特別な雰囲気のお店を選びました", []string{"記念日", "特別感"}
		case domain.PhaseCasual:
			return "カジュアルに楽しめる雰囲気のお店を選びました", []string{"カジュアル", "気軽"}
		default:
			return "リラックスして会話を楽しめる場所を選びました", []string{"リラックス", "会話向き"}
		}
	case domain.KindActivity, domain.KindWalk:
		switch cond.Mood {
		case domain.MoodActive:
			return "アクティブに楽しめる体験を重視しました", []string{"アクティブ", "体験重視"}
		case domain.MoodRomantic:
			return "ロマンチックな雰囲気を楽しめる場所を選びました", []string{"ロマンチック", "雰囲気◎"}
		case domain.MoodRelax:
			return "ゆったりと落ち着いて楽しめる場所を選びました", []string{"リラックス", "落ち着き"}
		default:
			return "一緒に楽しめる体験を重視しました", []string{"楽しめる", "体験"}
		}
	case domain.KindCafe:
		switch {
		case cond.Phase == domain.PhaseAnniversary:
			return "記念日らしい上質な空間で特別な時間を", []string{"記念日", "上質"}
		case cond.Mood == domain.MoodRomantic:
			return "雰囲気のある空間でゆっくり過ごせます", []string{"雰囲気◎", "ゆったり"}
		default:
			return "おしゃれな空間でリフレッシュできる場所を選びました", []string{"おしゃれ", "リフレッシュ"}
		}
	case domain.KindDinner:
		switch {
		case cond.Budget == domain.BudgetHigh:
			return "特別な時間を過ごせる高級感のある場所を選びました", []string{"高級感", "特別"}
		case cond.Phase == domain.PhaseAnniversary:
			return "記念日を彩る素敵なディナーを楽しめます", []string{"記念日", "ディナー"}
		case cond.Mood == domain.MoodRomantic:
			return "ロマンチックな雰囲気でゆっくり関係を深められます", []string{"ロマンチック", "落ち着き"}
		default:
			return "ゆったりとした時間で会話を楽しめる場所を選びました", []string{"ゆったり", "会話向き"}
		}
	}
	return "楽しい時間を過ごせる場所を選びました", nil
}

func planSummary(phase domain.Phase) string {
	switch phase {
	case domain.PhaseFirst:
		return "落ち着いて会話しやすい初デート向けプラン"
	case domain.PhaseSecond:
		return "より親密になる2〜3回目デート向けプラン"
	case domain.PhaseAnniversary:
		return "記念日を彩る特別なデートプラン"
	default:
		return "カジュアルに楽しむデートプラン"
	}
}

func nextStepPhrase(phase domain.Phase) string {
	switch phase {
	case domain.PhaseFirst:
		return "今日は本当に楽しかった。また会いたい。"
	case domain.PhaseSecond:
		return "この前よりも君のこともっと知りたいな。"
	case domain.PhaseAnniversary:
		return "これからもずっと一緒にいたいね。"
	default:
		return "また気軽に会おうね。"
	}
}

func adjustablePoints() []string {
	return []string{"予算", "所要時間", "屋内/屋外", "グルメのジャンル"}
}

func conversationTopics() []string {
	return []string{"最近やってみたいこと", "子どもの頃の思い出", "お互いの家族について"}
}

// customRequestOutcome classifies how well the free-text request made it into
// the final schedule.
type customRequestOutcome int

const (
	customAbsent customRequestOutcome = iota
	customOnTime
	customShifted
	customDropped
)

// customOutcome scans the final schedule for the request's item and checks
// whether it landed within 20 minutes of the preferred time.
func customOutcome(schedule []domain.ScheduleItem, request string) customRequestOutcome {
	if request == "" {
		return customAbsent
	}
	found := false
	for _, it := range schedule {
		if !it.IsCustom && !hasTag(it.ReasonTags, "リクエスト反映") {
			continue
		}
		found = true
		if it.PreferredStartMinutes == 0 {
			return customOnTime
		}
		diff := domain.ClockToMinutes(it.Time) - it.PreferredStartMinutes
		if diff < 0 {
			diff = -diff
		}
		if diff <= 20 {
			return customOnTime
		}
	}
	if found {
		return customShifted
	}
	return customDropped
}

func hasTag(tags []string, want string) bool {
	for _, t := range tags {
		if t == want {
			return true
		}
	}
	return false
}

var budgetNames = map[domain.Budget]string{
	domain.BudgetLow:    "カジュアル",
	domain.BudgetMedium: "程よい",
	domain.BudgetHigh:   "特別な",
}

var phaseNames = map[domain.Phase]string{
	domain.PhaseFirst:       "初めてのデート",
	domain.PhaseSecond:      "2〜3回目のデート",
	domain.PhaseAnniversary: "記念日のデート",
	domain.PhaseCasual:      "カジュアルなデート",
}

var phaseFocus = map[domain.Phase]string{
	domain.PhaseFirst:       "落ち着いて会話できる場所を中心に",
	domain.PhaseSecond:      "一緒に楽しめるアクティビティを多めに",
	domain.PhaseAnniversary: "特別な時間を過ごせる場所を",
	domain.PhaseCasual:      "気軽に楽しめる場所を",
}

var timeSlotNames = map[domain.TimeSlot]string{
	domain.SlotLunch:   "ランチタイム",
	domain.SlotDinner:  "ディナータイム",
	domain.SlotHalfDay: "半日",
	domain.SlotFullDay: "1日",
}

var moodNames = map[domain.Mood]string{
	domain.MoodRelax:    "リラックスした雰囲気",
	domain.MoodActive:   "アクティブな体験",
	domain.MoodRomantic: "ロマンチックな雰囲気",
	domain.MoodCasual:   "気軽な雰囲気",
}

var ngNames = map[string]string{
	"outdoor": "屋外",
	"indoor":  "屋内のみ",
	"crowd":   "混雑",
	"quiet":   "静かすぎる場所",
	"walk":    "長時間歩く",
	"rain":    "雨天不可",
}

// planReason narrates the whole plan's intent as one Japanese paragraph.
func (e *Engine) planReason(cond domain.Conditions, outcome customRequestOutcome, adjustment string) string {
	var reasons []string

	phaseName := phaseNames[cond.Phase]
	if phaseName == "" {
		phaseName = "デート"
	}
	focus := phaseFocus[cond.Phase]
	if focus == "" {
		focus = "楽しめる場所を"
	}
	reasons = append(reasons, fmt.Sprintf("%sということで、%s選びました", phaseName, focus))
	reasons = append(reasons, fmt.Sprintf("%sを中心としたプランです", timeSlotNames[cond.TimeSlot]))

	if cond.Mood != "" {
		name := moodNames[cond.Mood]
		if name == "" {
			name = string(cond.Mood)
		}
		reasons = append(reasons, fmt.Sprintf("今日の気分は%sとのことで、それに合わせたスポットを選びました", name))
	}
	if m := cond.Movement; m != nil && m.Label != "" {
		focus := m.Focus
		if focus == "" {
			focus = "移動時間を抑えて巡れるように構成しました"
		}
		reasons = append(reasons, fmt.Sprintf("移動方針は「%s」。%s", m.Label, focus))
	}
	// totalCost values already carry the 円 suffix.
	reasons = append(reasons, fmt.Sprintf("予算は%sな%s程度で設定しています", budgetNames[cond.Budget], e.totalCost(cond.Budget)))

	if len(cond.NGConditions) > 0 {
		names := make([]string, 0, len(cond.NGConditions))
		for _, ng := range cond.NGConditions {
			if name, ok := ngNames[ng]; ok {
				names = append(names, name)
			} else {
				names = append(names, ng)
			}
		}
		reasons = append(reasons, fmt.Sprintf("%sは避けるよう配慮しています", strings.Join(names, "、")))
	}

	switch outcome {
	case customOnTime:
		reasons = append(reasons, fmt.Sprintf("自由入力のリクエスト「%s」をスケジュール内に反映しています", cond.CustomRequest))
	case customShifted:
		reasons = append(reasons, fmt.Sprintf("自由入力のリクエスト「%s」は希望時刻ちょうどには難しいため、近い時間帯で提案しています", cond.CustomRequest))
	case customDropped:
		reasons = append(reasons, fmt.Sprintf("自由入力のリクエスト「%s」はデートエリアと離れているため、今回はプランに含められませんでした", cond.CustomRequest))
	}

	out := strings.Join(reasons, "。") + "。"
	if adjustment != "" {
		out += fmt.Sprintf("\n\n✨ 調整内容「%s」を反映しました！", adjustment)
	}
	return out
}

var photoPalette = []string{"#667eea", "#764ba2", "#ff6b6b"}

// placeholderPhoto renders an inline SVG gradient card so every stop has
// imagery even when no provider photo exists.
func placeholderPhoto(title string, variant int) string {
	bg := photoPalette[variant%len(photoPalette)]
	if title == "" {
		title = "Spot"
	}
	title = strings.ReplaceAll(title, `"`, "")
	svg := fmt.Sprintf(`<svg xmlns='http://www.w3.org/2000/svg' width='800' height='500'>`+
		`<defs><linearGradient id='g%d' x1='0' y1='0' x2='1' y2='1'>`+
		`<stop offset='0%%' stop-color='%s' stop-opacity='0.9'/>`+
		`<stop offset='100%%' stop-color='#1c1c28' stop-opacity='0.8'/>`+
		`</linearGradient></defs>`+
		`<rect width='800' height='500' fill='url(#g%d)'/>`+
		`<text x='50%%' y='50%%' dominant-baseline='middle' text-anchor='middle' font-family='Arial' font-size='42' fill='white' opacity='0.9'>%s</text>`+
		`</svg>`, variant, bg, variant, title)
	return "data:image/svg+xml;utf8," + url.PathEscape(svg)
}

func placeholderPhotos(title string) []string {
	return []string{
		placeholderPhoto(title, 0),
		placeholderPhoto(title, 1),
		placeholderPhoto(title, 2),
	}
}

// mockReviews backs synthetic stops with plausible visitor voices.
func mockReviews(title string) []domain.Review {
	if title == "" {
		title = "このスポット"
	}
	return []domain.Review{
		{Author: "Aさん", Rating: 4.6, Text: title + "は雰囲気がよく、会話しやすかったです。"},
		{Author: "Bさん", Rating: 4.2, Text: title + "のスタッフが親切で、初デートでも安心でした。"},
		{Author: "Cさん", Rating: 4.4, Text: title + "の周辺も散策しやすくて移動がスムーズでした。"},
	}
}

// applyMedia fills photo placeholders for visit items that ended hydration
// without imagery. Travel and bookend rows carry no media.
func applyMedia(items []domain.ScheduleItem) []domain.ScheduleItem {
	for i := range items {
		if !items[i].Kind.IsVisit() || items[i].Kind == domain.KindWalk {
			continue
		}
		if len(items[i].Photos) == 0 {
			items[i].Photos = placeholderPhotos(items[i].PlaceName)
		}
		if items[i].Reviews == nil {
			items[i].Reviews = []domain.Review{}
		}
	}
	return items
}
