package service

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"NotaLink/internal/modules/scheduler/domain/entity"
)

// 置信度：两种周期形态最高，一次性与固定间隔次之，
// 泛化的 schedule 形态再次，无法解析出时间表达接近零
const (
	confRecurring  = 0.95
	confOneTime    = 0.9
	confInterval   = 0.9
	confGeneric    = 0.85
	confUnresolved = 0.2
	defaultHour    = 9 // 未给出钟点时的默认触发时刻
)

// SupportedExamples 解析失败时返回给用户的示例话术
func SupportedExamples() []string {
	return []string{
		"remind me at 5pm to call Alex",
		"remind me in 30 minutes to stand up",
		"every monday at 9am send me a summary",
		"every day at 8:30pm remind me to journal",
		"every 15 minutes check the build status",
		"schedule a digest for tomorrow at noon",
	}
}

// ParseResult 自然语言解析结果。TriggerAt 仅一次性触发使用，
// CronExpr / EverySeconds 分别对应周期与间隔触发。
type ParseResult struct {
	TriggerType  int
	TriggerAt    *time.Time
	CronExpr     string
	EverySeconds int64
	ActionType   int
	Payload      entity.ActionPayloadBody
	Title        string
	Confidence   float64
	Examples     []string
}

type ParserService interface {
	Parse(text string) *ParseResult
	// ParseAt 以给定参考时刻解析，相对与"明天"类表达据此换算
	ParseAt(text string, now time.Time) *ParseResult
}

const clockPat = `(?:noon|midnight|\d{1,2}(?::\d{2})?\s*(?:am|pm)?)`

var (
	reInterval  = regexp.MustCompile(`(?i)\bevery\s+(\d+)\s*(seconds?|secs?|minutes?|mins?|hours?|hrs?)\b`)
	reWeekly    = regexp.MustCompile(`(?i)\bevery\s+(monday|tuesday|wednesday|thursday|friday|saturday|sunday)(?:\s+at\s+(` + clockPat + `))?`)
	reDaily     = regexp.MustCompile(`(?i)\b(?:every\s+day|daily)(?:\s+at\s+(` + clockPat + `))?`)
	reRelative  = regexp.MustCompile(`(?i)\bin\s+(\d+)\s*(seconds?|secs?|minutes?|mins?|hours?|hrs?|days?)\b`)
	reOnWeekday = regexp.MustCompile(`(?i)\b(?:on|next)\s+(monday|tuesday|wednesday|thursday|friday|saturday|sunday)(?:\s+at\s+(` + clockPat + `))?`)
	reTomorrow  = regexp.MustCompile(`(?i)\btomorrow(?:\s+at\s+(` + clockPat + `))?`)
	reAtClock   = regexp.MustCompile(`(?i)\b(?:at|for)\s+(` + clockPat + `)\b`)

	reClockParts = regexp.MustCompile(`^(\d{1,2})(?::(\d{2}))?\s*(am|pm)?$`)
	reURL        = regexp.MustCompile(`https?://[^\s]+`)
	reRunCmd     = regexp.MustCompile(`(?i)\brun\s+(\S[^,.;]*)`)
	reLeadVerb   = regexp.MustCompile(`(?i)^\s*(?:please\s+)?(?:remind\s+me(?:\s+to)?|schedule|set\s+(?:a\s+|an\s+)?(?:reminder|task)(?:\s+to)?)\s*`)
	reLeadConn   = regexp.MustCompile(`(?i)^(?:to|that|about)\s+`)
	reTrailConn  = regexp.MustCompile(`(?i)\s+(?:to|for|at|on|in|every)\s*$`)
	reSpaces     = regexp.MustCompile(`\s{2,}`)
)

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

type parserServiceImpl struct{}

func NewParserService() ParserService {
	return &parserServiceImpl{}
}

func (p *parserServiceImpl) Parse(text string) *ParseResult {
	return p.ParseAt(text, time.Now())
}

func (p *parserServiceImpl) ParseAt(text string, now time.Time) *ParseResult {
	trimmed := strings.TrimSpace(text)
	res := &ParseResult{TriggerType: entity.TriggerOnce}
	if trimmed == "" {
		res.Confidence = confUnresolved
		res.Examples = SupportedExamples()
		return res
	}

	var spans [][]int

	switch {
	case p.matchInterval(trimmed, res, &spans):
	case p.matchWeekly(trimmed, res, &spans):
	case p.matchDaily(trimmed, res, &spans):
	case p.matchRelative(trimmed, now, res, &spans):
	case p.matchOnWeekday(trimmed, now, res, &spans):
	case p.matchTomorrow(trimmed, now, res, &spans):
	case p.matchAtClock(trimmed, now, res, &spans):
	default:
		res.Confidence = confUnresolved
		res.Examples = SupportedExamples()
		p.inferAction(trimmed, trimmed, res)
		return res
	}

	// 泛化的 schedule 形态置信度略低，周期形态不受影响
	if res.TriggerType == entity.TriggerOnce &&
		strings.Contains(strings.ToLower(trimmed), "schedule") {
		res.Confidence = confGeneric
	}

	content := stripSpans(trimmed, spans)
	p.inferAction(trimmed, content, res)
	return res
}

func (p *parserServiceImpl) matchInterval(text string, res *ParseResult, spans *[][]int) bool {
	m := reInterval.FindStringSubmatchIndex(text)
	if m == nil {
		return false
	}
	n, _ := strconv.ParseInt(text[m[2]:m[3]], 10, 64)
	if n <= 0 {
		return false
	}
	res.TriggerType = entity.TriggerInterval
	res.EverySeconds = n * unitSeconds(text[m[4]:m[5]])
	res.Confidence = confInterval
	*spans = append(*spans, []int{m[0], m[1]})
	return true
}

func (p *parserServiceImpl) matchWeekly(text string, res *ParseResult, spans *[][]int) bool {
	m := reWeekly.FindStringSubmatchIndex(text)
	if m == nil {
		return false
	}
	day := weekdays[strings.ToLower(text[m[2]:m[3]])]
	hour, minute := defaultHour, 0
	if m[4] >= 0 {
		if h, mi, ok := parseClock(text[m[4]:m[5]]); ok {
			hour, minute = h, mi
		}
	}
	res.TriggerType = entity.TriggerCron
	res.CronExpr = fmt.Sprintf("%d %d * * %d", minute, hour, int(day))
	res.Confidence = confRecurring
	*spans = append(*spans, []int{m[0], m[1]})
	return true
}

func (p *parserServiceImpl) matchDaily(text string, res *ParseResult, spans *[][]int) bool {
	m := reDaily.FindStringSubmatchIndex(text)
	if m == nil {
		return false
	}
	hour, minute := defaultHour, 0
	if m[2] >= 0 {
		if h, mi, ok := parseClock(text[m[2]:m[3]]); ok {
			hour, minute = h, mi
		}
	}
	res.TriggerType = entity.TriggerCron
	res.CronExpr = fmt.Sprintf("%d %d * * *", minute, hour)
	res.Confidence = confRecurring
	*spans = append(*spans, []int{m[0], m[1]})
	return true
}

func (p *parserServiceImpl) matchRelative(text string, now time.Time, res *ParseResult, spans *[][]int) bool {
	m := reRelative.FindStringSubmatchIndex(text)
	if m == nil {
		return false
	}
	n, _ := strconv.ParseInt(text[m[2]:m[3]], 10, 64)
	if n <= 0 {
		return false
	}
	at := now.Add(time.Duration(n*unitSeconds(text[m[4]:m[5]])) * time.Second)
	res.TriggerType = entity.TriggerOnce
	res.TriggerAt = &at
	res.Confidence = confOneTime
	*spans = append(*spans, []int{m[0], m[1]})
	return true
}

func (p *parserServiceImpl) matchOnWeekday(text string, now time.Time, res *ParseResult, spans *[][]int) bool {
	m := reOnWeekday.FindStringSubmatchIndex(text)
	if m == nil {
		return false
	}
	day := weekdays[strings.ToLower(text[m[2]:m[3]])]
	hour, minute := defaultHour, 0
	if m[4] >= 0 {
		if h, mi, ok := parseClock(text[m[4]:m[5]]); ok {
			hour, minute = h, mi
		}
	}
	at := nextWeekday(now, day, hour, minute)
	res.TriggerType = entity.TriggerOnce
	res.TriggerAt = &at
	res.Confidence = confOneTime
	*spans = append(*spans, []int{m[0], m[1]})
	return true
}

func (p *parserServiceImpl) matchTomorrow(text string, now time.Time, res *ParseResult, spans *[][]int) bool {
	m := reTomorrow.FindStringSubmatchIndex(text)
	if m == nil {
		return false
	}
	hour, minute := defaultHour, 0
	if m[2] >= 0 {
		if h, mi, ok := parseClock(text[m[2]:m[3]]); ok {
			hour, minute = h, mi
		}
	}
	day := now.AddDate(0, 0, 1)
	at := time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, now.Location())
	res.TriggerType = entity.TriggerOnce
	res.TriggerAt = &at
	res.Confidence = confOneTime
	*spans = append(*spans, []int{m[0], m[1]})
	return true
}

func (p *parserServiceImpl) matchAtClock(text string, now time.Time, res *ParseResult, spans *[][]int) bool {
	m := reAtClock.FindStringSubmatchIndex(text)
	if m == nil {
		return false
	}
	hour, minute, ok := parseClock(text[m[2]:m[3]])
	if !ok {
		return false
	}
	at := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !at.After(now) {
		at = at.AddDate(0, 0, 1)
	}
	res.TriggerType = entity.TriggerOnce
	res.TriggerAt = &at
	res.Confidence = confOneTime
	*spans = append(*spans, []int{m[0], m[1]})
	return true
}

// inferAction 从动词与关键词线索推断动作类型并组装载荷
func (p *parserServiceImpl) inferAction(full string, content string, res *ParseResult) {
	lower := strings.ToLower(full)
	body := content
	if body == "" {
		body = "Reminder"
	}

	if url := reURL.FindString(full); url != "" &&
		(strings.Contains(lower, "webhook") || strings.Contains(lower, "call ") || strings.Contains(lower, "post ")) {
		res.ActionType = entity.ActionWebhook
		res.Payload = entity.ActionPayloadBody{URL: url, Method: "POST"}
		res.Title = truncateTitle(body)
		return
	}

	if m := reRunCmd.FindStringSubmatch(content); m != nil {
		res.ActionType = entity.ActionCommand
		res.Payload = entity.ActionPayloadBody{Command: strings.TrimSpace(m[1])}
		res.Title = truncateTitle(content)
		return
	}

	for _, cue := range []string{"summary", "summarize", "digest", "report", "brief"} {
		if strings.Contains(lower, cue) {
			res.ActionType = entity.ActionAIPrompt
			res.Payload = entity.ActionPayloadBody{Prompt: body}
			res.Title = truncateTitle(body)
			return
		}
	}

	res.ActionType = entity.ActionSendMessage
	res.Payload = entity.ActionPayloadBody{Message: body}
	res.Title = truncateTitle(body)
}

func parseClock(s string) (int, int, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "noon":
		return 12, 0, true
	case "midnight":
		return 0, 0, true
	}
	m := reClockParts.FindStringSubmatch(s)
	if m == nil {
		return 0, 0, false
	}
	hour, _ := strconv.Atoi(m[1])
	minute := 0
	if m[2] != "" {
		minute, _ = strconv.Atoi(m[2])
	}
	switch m[3] {
	case "pm":
		if hour < 12 {
			hour += 12
		}
	case "am":
		if hour == 12 {
			hour = 0
		}
	}
	if hour > 23 || minute > 59 {
		return 0, 0, false
	}
	return hour, minute, true
}

func unitSeconds(unit string) int64 {
	switch {
	case strings.HasPrefix(strings.ToLower(unit), "sec"):
		return 1
	case strings.HasPrefix(strings.ToLower(unit), "min"):
		return 60
	case strings.HasPrefix(strings.ToLower(unit), "h"):
		return 3600
	default:
		return 86400
	}
}

func nextWeekday(now time.Time, day time.Weekday, hour, minute int) time.Time {
	at := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	offset := (int(day) - int(now.Weekday()) + 7) % 7
	if offset == 0 && !at.After(now) {
		offset = 7
	}
	return at.AddDate(0, 0, offset)
}

// stripSpans 去掉时间表达与先导动词，剩下的就是任务内容
func stripSpans(text string, spans [][]int) string {
	sort.Slice(spans, func(i, j int) bool { return spans[i][0] < spans[j][0] })
	var b strings.Builder
	last := 0
	for _, s := range spans {
		if s[0] > last {
			b.WriteString(text[last:s[0]])
		}
		last = s[1]
	}
	if last < len(text) {
		b.WriteString(text[last:])
	}

	out := strings.TrimSpace(b.String())
	out = reLeadVerb.ReplaceAllString(out, "")
	out = reLeadConn.ReplaceAllString(out, "")
	out = reTrailConn.ReplaceAllString(out, "")
	out = reSpaces.ReplaceAllString(out, " ")
	return strings.Trim(out, " ,.;:")
}

func truncateTitle(s string) string {
	if s == "" {
		return "Reminder"
	}
	runes := []rune(s)
	if len(runes) <= 64 {
		return s
	}
	return string(runes[:64])
}
