package taskory

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"strings"
	"text/template"

	"github.com/m-mizutani/goerr/v2"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed templates/planner_prompt.md
var plannerPromptTemplate string

//go:embed templates/plan_schema.json
var planSchemaJSON string

var (
	plannerTmpl *template.Template
	planSchema  *jsonschema.Schema
)

func init() {
	plannerTmpl = template.Must(template.New("planner").Parse(plannerPromptTemplate))

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(planSchemaJSON))
	if err != nil {
		panic(err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("plan_schema.json", doc); err != nil {
		panic(err)
	}
	planSchema = compiler.MustCompile("plan_schema.json")
}

type plannerTemplateData struct {
	History      string
	Request      string
	Capabilities string
}

// synthesisKind is the verdict of one synthesis pass.
type synthesisKind int

const (
	synthesisConversation synthesisKind = iota
	synthesisTask
	synthesisCommand
)

// synthesisResult is the outcome of turning conversation history into
// either a conversational verdict or a structured plan draft.
type synthesisResult struct {
	kind    synthesisKind
	draft   *planDraft
	command string

	// fallback is set when a task classification degraded to a
	// conversational verdict because the model output had no usable
	// JSON shape.
	fallback string
}

// planDraft is the synthesizer's raw plan payload. Step types are kept
// as strings here; coercion into the Capability enum and graph
// validation happen at plan construction, after the quality gate has
// seen the original values.
type planDraft struct {
	Goal  string      `json:"goal"`
	Title string      `json:"title"`
	Mode  string      `json:"mode,omitempty"`
	Steps []draftStep `json:"steps"`
}

type draftStep struct {
	ID          string   `json:"id"`
	Description string   `json:"description"`
	Type        string   `json:"type,omitempty"`
	DependsOn   []string `json:"depends_on,omitempty"`
}

func (d *planDraft) clone() *planDraft {
	steps := make([]draftStep, len(d.Steps))
	for i, s := range d.Steps {
		steps[i] = draftStep{
			ID:          s.ID,
			Description: s.Description,
			Type:        s.Type,
			DependsOn:   append([]string(nil), s.DependsOn...),
		}
	}
	return &planDraft{Goal: d.Goal, Title: d.Title, Mode: d.Mode, Steps: steps}
}

const synthesisAttempts = 2

// synthesizer turns conversation history into a classification verdict
// and, for task turns, a structured plan draft.
type synthesizer struct {
	llm          LLMClient
	temperature  float64
	capabilities []Capability
}

func newSynthesizer(llm LLMClient, capabilities []Capability) *synthesizer {
	return &synthesizer{
		llm:          llm,
		temperature:  0.2,
		capabilities: capabilities,
	}
}

// synthesize classifies the latest message and, for task turns, issues
// one completion request whose output must be a single JSON object.
// Transport errors are fatal for the turn; shape errors degrade to a
// conversational fallback, never to a partially formed plan.
func (s *synthesizer) synthesize(ctx context.Context, history []Message) (*synthesisResult, error) {
	logger := LoggerFromContext(ctx)

	latest := latestUserMessage(history)
	if latest == "" {
		return &synthesisResult{kind: synthesisConversation}, nil
	}

	switch classifyIntent(latest) {
	case intentCommand:
		return &synthesisResult{
			kind:    synthesisCommand,
			command: strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(latest), "/")),
		}, nil
	case intentChat:
		return &synthesisResult{kind: synthesisConversation}, nil
	}

	prompt, err := s.renderPrompt(history, latest)
	if err != nil {
		return nil, err
	}

	ssn, err := s.llm.NewSession(ctx,
		WithSessionContentType(ContentTypeJSON),
		WithSessionTemperature(s.temperature),
	)
	if err != nil {
		return nil, goerr.Wrap(ErrCompletionFailed, "failed to create planner session", goerr.V("cause", err))
	}

	for attempt := 0; attempt < synthesisAttempts; attempt++ {
		resp, err := ssn.GenerateContent(ctx, Text(prompt))
		if err != nil {
			return nil, goerr.Wrap(ErrCompletionFailed, "planner completion failed",
				goerr.V("cause", err), goerr.V("attempt", attempt))
		}
		if len(resp.Texts) == 0 {
			logger.Warn("planner returned empty response", "attempt", attempt)
			continue
		}

		draft, err := parseDraft(strings.Join(resp.Texts, "\n"))
		if err != nil {
			logger.Warn("planner output had no usable JSON shape",
				"attempt", attempt, "error", err)
			continue
		}

		return &synthesisResult{kind: synthesisTask, draft: draft}, nil
	}

	// Shape failure on every attempt: degrade to conversation.
	return &synthesisResult{
		kind:     synthesisConversation,
		fallback: "planner output could not be parsed",
	}, nil
}

func (s *synthesizer) renderPrompt(history []Message, latest string) (string, error) {
	var rendered strings.Builder
	for _, msg := range history {
		rendered.WriteString(string(msg.Role))
		rendered.WriteString(": ")
		rendered.WriteString(msg.Content)
		rendered.WriteString("\n")
	}

	kinds := make([]string, len(s.capabilities))
	for i, c := range s.capabilities {
		kinds[i] = string(c)
	}

	var buf bytes.Buffer
	if err := plannerTmpl.Execute(&buf, plannerTemplateData{
		History:      rendered.String(),
		Request:      latest,
		Capabilities: strings.Join(kinds, ", "),
	}); err != nil {
		return "", goerr.Wrap(err, "failed to render planner prompt")
	}
	return buf.String(), nil
}

// parseDraft extracts, schema-checks and decodes a plan draft from raw
// completion output.
func parseDraft(text string) (*planDraft, error) {
	raw, err := extractJSON(text)
	if err != nil {
		return nil, err
	}

	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, goerr.Wrap(err, "extracted JSON is not decodable")
	}
	if err := planSchema.Validate(doc); err != nil {
		return nil, goerr.Wrap(err, "plan payload does not match schema")
	}

	var draft planDraft
	if err := json.Unmarshal(raw, &draft); err != nil {
		return nil, goerr.Wrap(err, "failed to decode plan payload")
	}
	return &draft, nil
}

func latestUserMessage(history []Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == RoleUser {
			return history[i].Content
		}
	}
	return ""
}
