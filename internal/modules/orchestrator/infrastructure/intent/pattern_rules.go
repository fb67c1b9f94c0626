package intent

import (
	"regexp"
	"strings"
)

// 规则动作类型
const (
	ActionCapability       = 0 // 直接调用指定能力
	ActionListCapabilities = 1 // 列出能力目录
	ActionSessionControl   = 2 // 会话控制
)

// 会话控制动作
const (
	ControlPause  = "pause"
	ControlResume = "resume"
	ControlEnd    = "end"
)

// Rule 一条确定性意图规则。规则按注册顺序匹配，命中即停，
// 绕过 Responder 直接执行，保证这类意图的处理与模型无关。
type Rule struct {
	Name       string
	Action     int
	Capability string
	Control    string
	re         *regexp.Regexp
	buildArgs  func(text string, groups []string) map[string]interface{}
}

// Match 一次规则命中
type Match struct {
	Rule *Rule
	Args map[string]interface{}
}

// Matcher 有序规则集
type Matcher struct {
	rules []*Rule
}

// NewMatcher 构建默认规则集。匹配忽略大小写，提取出的参数保留原文。
func NewMatcher() *Matcher {
	return &Matcher{rules: defaultRules()}
}

func (m *Matcher) Match(text string) (*Match, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, false
	}
	for _, r := range m.rules {
		groups := r.re.FindStringSubmatch(trimmed)
		if groups == nil {
			continue
		}
		match := &Match{Rule: r, Args: map[string]interface{}{}}
		if r.buildArgs != nil {
			match.Args = r.buildArgs(trimmed, groups)
		}
		return match, true
	}
	return nil, false
}

func defaultRules() []*Rule {
	return []*Rule{
		{
			Name:    "session-pause",
			Action:  ActionSessionControl,
			Control: ControlPause,
			re:      regexp.MustCompile(`(?i)^(?:pause|hold on|pause this conversation)[.!]?$`),
		},
		{
			Name:    "session-resume",
			Action:  ActionSessionControl,
			Control: ControlResume,
			re:      regexp.MustCompile(`(?i)^(?:resume|continue|unpause)[.!]?$`),
		},
		{
			Name:    "session-end",
			Action:  ActionSessionControl,
			Control: ControlEnd,
			re:      regexp.MustCompile(`(?i)^(?:end session|end this session|goodbye|bye)[.!]?$`),
		},
		{
			Name:   "capability-listing",
			Action: ActionListCapabilities,
			re:     regexp.MustCompile(`(?i)^(?:help|what can you do\??|list capabilities|show capabilities)$`),
		},
		{
			Name:       "list-reminders",
			Action:     ActionCapability,
			Capability: "list_tasks",
			re:         regexp.MustCompile(`(?i)^(?:list|show)(?: my| all)? (?:reminders|tasks|scheduled tasks)[.!?]?$`),
		},
		{
			Name:       "cancel-reminder",
			Action:     ActionCapability,
			Capability: "cancel_task",
			re:         regexp.MustCompile(`(?i)^cancel (?:reminder|task) ([A-Za-z0-9_-]+)[.!]?$`),
			buildArgs: func(text string, groups []string) map[string]interface{} {
				return map[string]interface{}{"task_id": groups[1]}
			},
		},
		{
			// 任意 "remind me ..." / "every ..." / "schedule ..." 都走定时任务，
			// 原文整句交给解析器，解析失败时由其给出示例话术。
			Name:       "schedule-reminder",
			Action:     ActionCapability,
			Capability: "schedule_task",
			re:         regexp.MustCompile(`(?i)^(?:please )?(?:remind me\b|every\b|schedule\b)`),
			buildArgs: func(text string, groups []string) map[string]interface{} {
				return map[string]interface{}{"text": text}
			},
		},
		{
			Name:       "research-mission",
			Action:     ActionCapability,
			Capability: "research_mission",
			re:         regexp.MustCompile(`(?i)^deploy a research mission (?:on|about) (.+)$`),
			buildArgs: func(text string, groups []string) map[string]interface{} {
				return map[string]interface{}{"topic": strings.TrimRight(groups[1], ".!?")}
			},
		},
		{
			Name:       "list-notebooks",
			Action:     ActionCapability,
			Capability: "list_notebooks",
			re:         regexp.MustCompile(`(?i)^(?:list|show)(?: my)? notebooks[.!?]?$`),
		},
		{
			Name:       "open-notebook",
			Action:     ActionCapability,
			Capability: "open_notebook",
			re:         regexp.MustCompile(`(?i)^open notebook ([A-Za-z0-9_-]+)[.!]?$`),
			buildArgs: func(text string, groups []string) map[string]interface{} {
				return map[string]interface{}{"notebook_id": groups[1]}
			},
		},
		{
			Name:       "close-notebook",
			Action:     ActionCapability,
			Capability: "close_notebook",
			re:         regexp.MustCompile(`(?i)^close notebook ([A-Za-z0-9_-]+)[.!]?$`),
			buildArgs: func(text string, groups []string) map[string]interface{} {
				return map[string]interface{}{"notebook_id": groups[1]}
			},
		},
	}
}
