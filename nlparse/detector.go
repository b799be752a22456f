package nlparse

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// maxBranchDepth bounds recursive detection of nested "if ... then" clauses.
const maxBranchDepth = 3

// DetectorOptions configures a Detector.
type DetectorOptions struct {
	// Clock supplies the default event time. Nil means time.Now.
	Clock Clock

	// RecursiveBranches re-runs detection on the then/else text of a
	// conditional. When false the then branch is left empty.
	RecursiveBranches bool
}

// Detector recognises common automation phrasing with a fixed, ordered list
// of intent matchers. It holds no mutable state and is safe for concurrent use.
type Detector struct {
	now       Clock
	recursive bool
}

// NewDetector creates a Detector.
func NewDetector(opts DetectorOptions) *Detector {
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	return &Detector{now: now, recursive: opts.RecursiveBranches}
}

// Detection is the raw output of pattern detection.
type Detection struct {
	Name         string
	Steps        []Step
	RequiredApps []string
}

// Detect scans instruction for known intents. It never fails: an instruction
// that matches nothing yields an empty step list.
func (d *Detector) Detect(instruction string) Detection {
	steps := d.detectSteps(instruction, "step_", 0)
	return Detection{
		Name:         workflowName(instruction),
		Steps:        steps,
		RequiredApps: collectApps(steps),
	}
}

// hit is one fired matcher. offset is where the intent starts in the text;
// steps are ordered by it so the chain follows the order the user wrote.
type hit struct {
	offset   int
	step     Step
	thenText string
	elseText string
}

type matcher func(d *Detector, text string) (hit, bool)

// matchers run in this fixed order. Each contributes at most one step.
var matchers = []matcher{
	(*Detector).matchEmail,
	(*Detector).matchIssue,
	(*Detector).matchMessage,
	(*Detector).matchSchedule,
	(*Detector).matchDelay,
	(*Detector).matchConditional,
}

func (d *Detector) detectSteps(text, idPrefix string, depth int) []Step {
	var hits []hit
	for _, m := range matchers {
		if h, ok := m(d, text); ok {
			hits = append(hits, h)
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].offset < hits[j].offset })

	steps := make([]Step, 0, len(hits))
	for i, h := range hits {
		s := h.step
		s.ID = idPrefix + strconv.Itoa(i+1)
		if i > 0 {
			s.DependsOn = []string{steps[i-1].ID}
		}
		if s.Condition != nil && d.recursive && depth < maxBranchDepth {
			s.Condition.Then = d.detectSteps(h.thenText, s.ID+"_then_", depth+1)
			if h.elseText != "" {
				if alt := d.detectSteps(h.elseText, s.ID+"_else_", depth+1); len(alt) > 0 {
					s.Condition.Else = alt
				}
			}
		}
		steps = append(steps, s)
	}
	return steps
}

var displayNames = map[string]string{
	"gmail":           "Gmail",
	"github":          "GitHub",
	"jira":            "Jira",
	"linear":          "Linear",
	"slack":           "Slack",
	"discord":         "Discord",
	"teams":           "Microsoft Teams",
	"google_calendar": "Google Calendar",
}

func displayName(app string) string {
	if n, ok := displayNames[app]; ok {
		return n
	}
	return app
}

var chatApps = map[string]bool{"slack": true, "discord": true, "teams": true}

var emailRe = regexp.MustCompile(`(?i)\b(?:send|write|compose)\s+(?:an?\s+|the\s+)?(e-?mail|mail|message)\b(?:\s+to\s+([^\s,;]+)|\s+([^\s,;]+@[^\s,;]+))?`)

func (d *Detector) matchEmail(text string) (hit, bool) {
	for _, m := range emailRe.FindAllStringSubmatchIndex(text, -1) {
		noun := strings.ToLower(text[m[2]:m[3]])
		recipient := ""
		switch {
		case m[4] >= 0:
			recipient = text[m[4]:m[5]]
		case m[6] >= 0:
			recipient = text[m[6]:m[7]]
		}
		recipient = strings.TrimRight(recipient, ".!?)\"'")

		// "send a message to slack" and "send a message to #dev" belong to
		// the chat matcher.
		if noun == "message" && chatApps[strings.ToLower(recipient)] {
			continue
		}
		if strings.HasPrefix(recipient, "#") {
			continue
		}

		to := Template("user.email")
		desc := "Send an email to the current user"
		if recipient != "" {
			to = String(recipient)
			desc = "Send an email to " + recipient
		}
		return hit{
			offset: m[0],
			step: Step{
				Type:        StepAction,
				Name:        "Send Email",
				Description: desc,
				App:         "gmail",
				Action:      "send_email",
				Parameters: Parameters{
					"to":      to,
					"subject": String(extractSubject(text)),
					"body":    String(extractBody(text)),
				},
			},
		}, true
	}
	return hit{}, false
}

var (
	issueRe      = regexp.MustCompile(`(?i)\b(?:create|add|open)\s+(?:an?\s+)?(?:new\s+)?(?:issue|ticket)\s+(?:in|on|for)\s+(github|jira|linear)\b`)
	issueShortRe = regexp.MustCompile(`(?i)\b(?:create|add|open)\s+(?:an?\s+)?(?:new\s+)?(github|jira|linear)\s+(?:issue|ticket)\b`)
)

func (d *Detector) matchIssue(text string) (hit, bool) {
	var best []int
	for _, re := range []*regexp.Regexp{issueRe, issueShortRe} {
		if m := re.FindStringSubmatchIndex(text); m != nil && (best == nil || m[0] < best[0]) {
			best = m
		}
	}
	if best == nil {
		return hit{}, false
	}
	app := strings.ToLower(text[best[2]:best[3]])
	return hit{
		offset: best[0],
		step: Step{
			Type:        StepAction,
			Name:        "Create Issue",
			Description: "Create a new issue in " + displayName(app),
			App:         app,
			Action:      "create_issue",
			Parameters: Parameters{
				"title": String(extractTitle(text)),
				"body":  String(extractBody(text)),
			},
		},
	}, true
}

var messageRe = regexp.MustCompile(`(?i)\b(?:post|send|message)\s+(?:(?:a|an|the)\s+(?:message|notification|update)\s+)?to\s+(slack|discord|teams)\b`)

// messageChannelRe matches "post to #dev on slack".
var messageChannelRe = regexp.MustCompile(`(?i)\b(?:post|send|message)\s+(?:(?:a|an|the)\s+(?:message|notification|update)\s+)?to\s+#[\w-]+\s+(?:on|in)\s+(slack|discord|teams)\b`)

func (d *Detector) matchMessage(text string) (hit, bool) {
	m := messageRe.FindStringSubmatchIndex(text)
	if alt := messageChannelRe.FindStringSubmatchIndex(text); alt != nil && (m == nil || alt[0] < m[0]) {
		m = alt
	}
	if m == nil {
		return hit{}, false
	}
	app := strings.ToLower(text[m[2]:m[3]])
	channel := extractChannel(text)
	shown := "#" + channel
	if channel == "" {
		channel = defaultChannel
		shown = defaultChannel
	}
	return hit{
		offset: m[0],
		step: Step{
			Type:        StepAction,
			Name:        "Post Message",
			Description: fmt.Sprintf("Post a message to %s channel %s", displayName(app), shown),
			App:         app,
			Action:      "send_message",
			Parameters: Parameters{
				"channel": String(channel),
				"text":    String(extractBody(text)),
			},
		},
	}, true
}

var scheduleRe = regexp.MustCompile(`(?i)\b(?:schedule|create|book)\s+an?\s+(meeting|event|appointment)\b`)

func (d *Detector) matchSchedule(text string) (hit, bool) {
	m := scheduleRe.FindStringSubmatchIndex(text)
	if m == nil {
		return hit{}, false
	}
	kind := strings.ToLower(text[m[2]:m[3]])
	start := extractTime(text, d.now)
	params := Parameters{
		"title":      String(extractTitle(text)),
		"start_time": String(start),
	}
	if minutes, ok := extractDuration(text); ok {
		params["duration"] = Int(minutes)
	}
	return hit{
		offset: m[0],
		step: Step{
			Type:        StepAction,
			Name:        "Schedule " + strings.ToUpper(kind[:1]) + kind[1:],
			Description: fmt.Sprintf("Schedule a %s at %s", kind, start),
			App:         "google_calendar",
			Action:      "create_event",
			Parameters:  params,
		},
	}, true
}

var delayRe = regexp.MustCompile(`(?i)\b(?:wait|delay|pause)\s+for\s+(\d+)\s*(seconds?|secs?|minutes?|mins?|hours?|hrs?|days?)\b`)

func unitMillis(unit string) (int64, string) {
	switch u := strings.ToLower(unit); {
	case strings.HasPrefix(u, "s"):
		return 1000, "second"
	case strings.HasPrefix(u, "m"):
		return 60 * 1000, "minute"
	case strings.HasPrefix(u, "h"):
		return 60 * 60 * 1000, "hour"
	default:
		return 24 * 60 * 60 * 1000, "day"
	}
}

func (d *Detector) matchDelay(text string) (hit, bool) {
	m := delayRe.FindStringSubmatchIndex(text)
	if m == nil {
		return hit{}, false
	}
	n, err := strconv.ParseInt(text[m[2]:m[3]], 10, 64)
	if err != nil || n <= 0 {
		return hit{}, false
	}
	per, unit := unitMillis(text[m[4]:m[5]])
	if n > math.MaxInt64/per {
		return hit{}, false
	}
	if n != 1 {
		unit += "s"
	}
	return hit{
		offset: m[0],
		step: Step{
			Type:        StepDelay,
			Name:        "Wait",
			Description: fmt.Sprintf("Wait for %d %s", n, unit),
			Parameters:  Parameters{"duration": Int(n * per)},
		},
	}, true
}

var (
	conditionalRe = regexp.MustCompile(`(?is)\bif\s+(.+?)\s+then\s+(.+)`)
	elseRe        = regexp.MustCompile(`(?i)[\s,;]+(?:else|otherwise)\s+`)
)

func (d *Detector) matchConditional(text string) (hit, bool) {
	m := conditionalRe.FindStringSubmatchIndex(text)
	if m == nil {
		return hit{}, false
	}
	expr := strings.TrimSpace(text[m[2]:m[3]])
	thenText := text[m[4]:m[5]]
	elseText := ""
	if loc := elseRe.FindStringIndex(thenText); loc != nil {
		elseText = thenText[loc[1]:]
		thenText = thenText[:loc[0]]
	}
	return hit{
		offset: m[0],
		step: Step{
			Type:        StepCondition,
			Name:        "Check Condition",
			Description: "If " + expr,
			Condition: &Condition{
				Expression: expr,
				Then:       []Step{},
			},
		},
		thenText: thenText,
		elseText: elseText,
	}, true
}
