package prompt

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type NormalizerPrompts struct {
	System string
}

type PlannerPrompts struct {
	System          string
	ContextHeader   string
	User            string
	UserWithContext string
}

type DrafterPrompts struct {
	System              string
	ContextHeader       string
	User                string
	FeedbackHeader      string
	FeedbackInstruction string
}

type CriticPrompts struct {
	System         string
	ReviewTemplate string
	ResponseFormat string
}

// Templates carries the prompt text of every stage. Placeholders are
// written as {name} and filled by Render.
type Templates struct {
	Normalizer NormalizerPrompts
	Planner    PlannerPrompts
	Drafter    DrafterPrompts
	Critic     CriticPrompts
}

func Defaults() *Templates {
	return &Templates{
		Normalizer: NormalizerPrompts{
			System: "You turn article requests into search queries. " +
				"Extract exhaustive but concise themes and keywords suited for semantic search. " +
				"Return only the keywords as a single comma separated line.",
		},
		Planner: PlannerPrompts{
			System: "You are a helpful assistant specialized in create details plan for press articles. " +
				"Give exhaustive plan with title, subtitles, sources etc.",
			ContextHeader: "Be inspired by these relevant articles:",
			User: "Create a comprehensive plan for the following article request:\n\n" +
				"{request}\n\n" +
				"The plan should include:\n" +
				"- A compelling title\n" +
				"- Clear subtitles and sections\n" +
				"- A structured outline",
			UserWithContext: "Based on the user's request below and the relevant articles provided in the system context, " +
				"create a comprehensive plan for the article.\n\n" +
				"User request: {request}\n\n" +
				"The plan should include:\n" +
				"- A compelling title\n" +
				"- Clear subtitles and sections\n" +
				"- References to the relevant articles provided\n" +
				"- A structured outline that addresses the user's request",
		},
		Drafter: DrafterPrompts{
			System: "You are an expert journalist and writer specialized in creating high-quality press articles. " +
				"Your articles are well-structured, engaging, and follow professional journalistic standards. " +
				"You write clear, informative content with proper formatting, including titles, subtitles, " +
				"paragraphs, and appropriate emphasis where needed. " +
				"It is essential that all information and data published in the article cite their sources. " +
				"You must clearly indicate the origin/source of any referenced or paraphrased idea, " +
				"notably by citing the articles provided in context (with source/filename if available).",
			ContextHeader: "Reference articles for context and inspiration (please cite these sources if used in your writing):",
			User: "Write a complete, well-formatted press article based on the following information:\n\n" +
				"User request: {request}\n\n" +
				"Plan to follow:\n{outline}\n" +
				"{feedback}" +
				"\nThe article should:\n" +
				"- Follow the plan structure closely\n" +
				"- Use appropriate journalistic style and tone\n" +
				"- Incorporate information from context articles when relevant\n" +
				"- Explicitly cite sources (especially articles provided in context) each time a fact, quote, or idea is used from them " +
				"(e.g. at minimum by referencing the source filename such as [source: EXAMPLE.txt] in the text)\n" +
				"- Start every line with one of the tags [title], [subtitle] or [paragraph]\n" +
				"- Be complete and ready for publication\n" +
				"{feedback_instruction}",
			FeedbackHeader:      "Feedback and comments to incorporate:",
			FeedbackInstruction: "- Incorporate the provided feedback and comments to improve the article\n",
		},
		Critic: CriticPrompts{
			System: "You are an experienced editor-in-chief tasked with evaluating and critiquing press articles. " +
				"You are objective, precise, encouraging, but demanding regarding quality of content and form. " +
				"Your feedback must include a structured analysis divided into two parts:\n" +
				"- strengths (successful aspects, qualities, positive points)\n" +
				"- improvements (weaknesses, areas to correct, suggestions for improvement)\n" +
				"Analyze the content, structure, style, clarity, and relevance. " +
				"Add an overall score out of 10 (decimals allowed).",
			ReviewTemplate: "Article to critique (in English):\n" +
				"{draft}\n" +
				"\nYour response MUST STRICTLY FOLLOW this JSON format (key, value):\n" +
				"{response_format}",
			ResponseFormat: "{\n" +
				"  \"comments\": {\n" +
				"    \"strengths\": \"Detailed list or paragraph of strengths, qualities, positive aspects, successes, etc.\",\n" +
				"    \"improvements\": \"Detailed list or paragraph of areas for improvement, flaws, corrections, suggestions\"\n" +
				"  },\n" +
				"  \"note\": \"Score out of 10, decimals allowed\"\n" +
				"}\n" +
				"Return ONLY the JSON, without any additional text or comments outside the specified format. Respond in English ONLY.",
		},
	}
}

// Load returns the defaults overlaid with the sections of a YAML file:
//
//	critic:
//	  system: "..."
//	  review_template: "..."
//
// Unknown sections are ignored and blank values keep the default.
func Load(path string) (*Templates, error) {
	t := Defaults()
	if strings.TrimSpace(path) == "" {
		return t, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompts: %w", err)
	}
	var overlay map[string]map[string]string
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return nil, fmt.Errorf("decode prompts: %w", err)
	}
	fields := t.fields()
	for stage, sections := range overlay {
		known := fields[strings.ToLower(stage)]
		if known == nil {
			continue
		}
		for name, value := range sections {
			dst := known[strings.ToLower(name)]
			if dst == nil || strings.TrimSpace(value) == "" {
				continue
			}
			*dst = strings.TrimSpace(value)
		}
	}
	return t, nil
}

func (t *Templates) fields() map[string]map[string]*string {
	return map[string]map[string]*string{
		"normalizer": {
			"system": &t.Normalizer.System,
		},
		"planner": {
			"system":            &t.Planner.System,
			"context_header":    &t.Planner.ContextHeader,
			"user":              &t.Planner.User,
			"user_with_context": &t.Planner.UserWithContext,
		},
		"drafter": {
			"system":               &t.Drafter.System,
			"context_header":       &t.Drafter.ContextHeader,
			"user":                 &t.Drafter.User,
			"feedback_header":      &t.Drafter.FeedbackHeader,
			"feedback_instruction": &t.Drafter.FeedbackInstruction,
		},
		"critic": {
			"system":          &t.Critic.System,
			"review_template": &t.Critic.ReviewTemplate,
			"response_format": &t.Critic.ResponseFormat,
		},
	}
}

// Render substitutes {key} placeholders in a single pass, so values are
// never re-expanded.
func Render(tpl string, vars map[string]string) string {
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(tpl)
}
