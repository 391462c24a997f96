package prompts

import "fmt"

// SummarySystem is the system message for summary generation.
const SummarySystem = "You are a conversation summarizer."

// SummaryPrompt builds the prompt condensing one slice of turns. Each
// summary is independent: it covers only the turns provided and is later
// retrieved by relevance, not sequence.
func SummaryPrompt(botName, userName, conversations string) string {
	return fmt.Sprintf(`You are summarizing a conversation between %s and %s.

**CRITICAL**: This is an INDEPENDENT summary for ONLY the specific conversations provided below.
- Summarize ONLY the conversations shown in this prompt
- Do NOT include content from any previous summaries or earlier conversations
- This summary will be stored separately and retrieved by relevance later

Please summarize the core content of the following conversation, requiring:
1. Within 300 words
2. Include key information points
3. Maintain chronological order
4. Note events, emotions, and attitudes
5. Use third-person perspective (e.g., "%s said...", "%s mentioned...")
6. Write the summary in the SAME LANGUAGE as the main language used in the conversation below
7. Output only the summary itself, no additional text

Conversations to summarize (focus ONLY on these):
%s

Summary:`, botName, userName, botName, userName, conversations)
}
