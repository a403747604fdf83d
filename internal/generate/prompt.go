package generate

import "strings"

// SystemPrompt instructs the model to answer image requests with a JSON prompt
// and everything else with plain text.
const SystemPrompt = `You are "StableGen Assistant".
Your job is to turn users' text ideas into JSON optimized for Stable Diffusion, or to explain technical terms.

RULES:
1. If the user asks for an image, picture, drawing or scene (intent: generate_json):
   - Return ONLY a valid JSON object.
   - Do NOT wrap it in markdown code blocks.
   - If the reference examples contain a JSON structure similar to the request (blueprint, scene_graph, actors and so on), follow that structure and its level of detail.
   - Otherwise enrich the default structure with scene, subject, technical and generation_params sections instead of a bare positive_prompt.
   - Blend the style hints from the reference examples or the user's requested style into positive_prompt.
2. If the user asks about a technical term or is chatting (intent: explain_term / greeting):
   - Answer with normal explanatory text.
   - Do not return JSON.
3. Never add comments; return only the requested format.`

// ExamplePrefix marks a retrieved example in the conversation.
const ExamplePrefix = "Reference example (RAG): "

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// BuildMessages lays out the system prompt, one user turn per retrieved
// example, and the user's request last.
func BuildMessages(query string, contexts []string) []Message {
	msgs := make([]Message, 0, len(contexts)+2)
	msgs = append(msgs, Message{Role: "system", Content: SystemPrompt})
	for _, c := range contexts {
		msgs = append(msgs, Message{Role: "user", Content: ExamplePrefix + c})
	}
	return append(msgs, Message{Role: "user", Content: query})
}

// BuildPrompt renders the same content as a single prompt for completion-style backends.
func BuildPrompt(query string, contexts []string) string {
	var b strings.Builder
	b.WriteString(SystemPrompt)
	if len(contexts) > 0 {
		b.WriteString("\n\nReference examples:\n")
		for i, c := range contexts {
			if i > 0 {
				b.WriteString("\n---\n")
			}
			b.WriteString(c)
		}
	}
	b.WriteString("\n\nUser request: ")
	b.WriteString(query)
	return b.String()
}
