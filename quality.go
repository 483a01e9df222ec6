package taskory

import (
	"fmt"
	"regexp"
	"strings"
)

// The quality gate validates and normalizes a synthesized plan draft
// before it becomes a Plan. Validation collects every reason instead of
// short-circuiting; normalization is best-effort and idempotent. A
// draft that still fails after normalization is dropped and the caller
// must answer conversationally instead.

var (
	placeholderRe = regexp.MustCompile(`\[[^\]]*\]|\{[^}]*\}|<[^>]*>`)
	todoWordRe    = regexp.MustCompile(`(?i)\b(todo|tbd|fixme|placeholder|xxx)\b`)
)

// vagueVerbs make a short step description meaningless on its own.
var vagueVerbs = []string{
	"determine", "figure out", "decide", "consider", "think about",
	"work out", "explore options",
}

var researchAskRe = regexp.MustCompile(`(?i)\b(research|investigate|look into|find out|dig into)\b`)

const (
	minStepDescription = 10
	vagueStepCeiling   = 30
	descriptiveGoalLen = 40
)

// validateDraft checks a synthesized draft against the original
// request and returns every violated rule.
func validateDraft(draft *planDraft, request string) []string {
	var reasons []string

	goal := strings.TrimSpace(draft.Goal)
	request = strings.TrimSpace(request)

	switch {
	case goal == "":
		reasons = append(reasons, "goal is empty")
	case strings.EqualFold(goal, request):
		reasons = append(reasons, "goal is a verbatim restatement of the request")
	case len(goal) < len(request)/2 && len(goal) < descriptiveGoalLen:
		reasons = append(reasons, "goal is too short to describe the request")
	}
	if placeholderRe.MatchString(goal) || todoWordRe.MatchString(goal) {
		reasons = append(reasons, "goal contains placeholder tokens")
	}

	if len(draft.Steps) == 0 {
		reasons = append(reasons, "plan has no steps")
	}

	if len(draft.Steps) == 1 && isResearchStep(draft.Steps[0]) && !researchAskRe.MatchString(request) {
		reasons = append(reasons, "single research step without an explicit research request")
	}

	for _, step := range draft.Steps {
		desc := strings.TrimSpace(step.Description)
		if len(desc) < minStepDescription {
			reasons = append(reasons, fmt.Sprintf("step %q description is too short", step.ID))
			continue
		}
		if len(desc) < vagueStepCeiling && startsWithVagueVerb(desc) {
			reasons = append(reasons, fmt.Sprintf("step %q is a vague meta step", step.ID))
		}
	}

	return reasons
}

// normalizeDraft repairs an invalid draft where possible and re-runs
// validation once. It returns nil when the draft remains invalid; the
// caller must not store or execute a rejected draft. Running
// normalizeDraft on its own output yields an unchanged draft.
func normalizeDraft(draft *planDraft, request string) *planDraft {
	out := draft.clone()
	request = strings.TrimSpace(request)

	out.Goal = normalizeGoal(out.Goal, request)

	if len(out.Steps) == 1 && isResearchStep(out.Steps[0]) && !researchAskRe.MatchString(request) {
		out.Steps[0] = draftStep{
			ID:          out.Steps[0].ID,
			Description: "Ask the user what outcome they expect from: " + request,
			Type:        string(CapabilityConversation),
		}
	}

	out.Steps = dedupeSteps(out.Steps)
	resequenceSteps(out.Steps)

	if reasons := validateDraft(out, request); len(reasons) > 0 {
		return nil
	}
	return out
}

func normalizeGoal(goal, request string) string {
	goal = strings.TrimSpace(goal)
	prefix := "For the request \"" + request + "\""

	if goal == "" {
		return prefix + ": complete it as described."
	}
	if strings.HasPrefix(goal, prefix) {
		return goal
	}
	underSpecified := strings.EqualFold(goal, request) ||
		(len(goal) < len(request)/2 && len(goal) < descriptiveGoalLen)
	if underSpecified {
		return prefix + ": " + goal
	}
	return goal
}

// dedupeSteps drops steps whose normalized description already
// appeared, redirecting dependencies on a dropped step to the survivor.
func dedupeSteps(steps []draftStep) []draftStep {
	seen := map[string]string{} // normalized description -> surviving id
	remap := map[string]string{}
	var kept []draftStep

	for _, step := range steps {
		key := normalizeDescription(step.Description)
		if survivor, ok := seen[key]; ok {
			remap[step.ID] = survivor
			continue
		}
		seen[key] = step.ID
		kept = append(kept, step)
	}

	if len(remap) == 0 {
		return kept
	}
	for i := range kept {
		for j, dep := range kept[i].DependsOn {
			if survivor, ok := remap[dep]; ok {
				kept[i].DependsOn[j] = survivor
			}
		}
		kept[i].DependsOn = dedupeStrings(kept[i].DependsOn)
	}
	return kept
}

// resequenceSteps reassigns ids to t1..tN in order and rewrites
// dependencies accordingly. Already-sequenced drafts come out
// unchanged.
func resequenceSteps(steps []draftStep) {
	remap := make(map[string]string, len(steps))
	for i := range steps {
		next := fmt.Sprintf("t%d", i+1)
		if steps[i].ID != "" {
			remap[steps[i].ID] = next
		}
		steps[i].ID = next
	}
	for i := range steps {
		for j, dep := range steps[i].DependsOn {
			if next, ok := remap[dep]; ok {
				steps[i].DependsOn[j] = next
			}
		}
	}
}

func normalizeDescription(desc string) string {
	desc = strings.ToLower(strings.TrimSpace(desc))
	desc = strings.TrimRight(desc, ".!?")
	return strings.Join(strings.Fields(desc), " ")
}

func dedupeStrings(in []string) []string {
	seen := map[string]struct{}{}
	out := in[:0]
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func isResearchStep(step draftStep) bool {
	if strings.EqualFold(strings.TrimSpace(step.Type), "research") {
		return true
	}
	desc := strings.ToLower(strings.TrimSpace(step.Description))
	return strings.HasPrefix(desc, "research ") || strings.HasPrefix(desc, "investigate ")
}

func startsWithVagueVerb(desc string) bool {
	lower := strings.ToLower(desc)
	for _, verb := range vagueVerbs {
		if strings.HasPrefix(lower, verb) {
			return true
		}
	}
	return false
}
