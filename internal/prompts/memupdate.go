package prompts

import "fmt"

// MemoryUpdateSystem is the system message for profile patch generation.
const MemoryUpdateSystem = "You generate JSON patches for memory updates."

// CompleteDocumentSystem is the system message for whole-document
// regeneration when a patch failed.
const CompleteDocumentSystem = "You generate complete persona documents for memory updates."

// MemoryUpdatePrompt builds the prompt asking the tool model for an RFC
// 6902 JSON Patch updating the persona document from freshly summarised
// conversations. timeInfo is an optional line describing when the
// conversations took place.
func MemoryUpdatePrompt(conversations, currentDocument, timeInfo string) string {
	return fmt.Sprintf(`Based on the conversation below, generate a JSON Patch (RFC 6902) to update the persona document.
%s
The document structure:
- bot: the assistant's personality and self-awareness
  - /bot/name, /bot/gender, /bot/birthday, /bot/role, /bot/appearance (strings)
  - /bot/likes, /bot/dislikes (arrays of strings)
  - /bot/language_style: {description: string, examples: array}
  - /bot/personality: {mbti: string, description: string, worldview_and_values: string}
  - /bot/emotions_and_needs: {long_term: string, short_term: string}
  - /bot/relationship_with_user (string)
- user: the assistant's understanding of the user
  - /user/name, /user/gender, /user/birthday (strings)
  - /user/personal_facts, /user/abilities, /user/likes, /user/dislikes (arrays of strings)
  - /user/personality: {mbti: string, description: string, worldview_and_values: string}
  - /user/emotions_and_needs: {long_term: string, short_term: string}
- /memorable_events (array of {"time": "YYYY-MM-DD", "details": string})
  LIMIT: maximum 20 events. When adding events would exceed this, remove less important or older events first.
- /commands_and_agreements (array of strings)

Rules:
1. Output ONLY a JSON array of patch operations, no other text
2. Use "add" for new array items (path ending in /-), "replace" for changed values, "remove" for obsolete entries
3. Only patch what the conversation actually changed; an empty array [] is valid when nothing changed
4. Keep values in the same language the conversation used

Current document:
%s

Conversation:
%s

JSON Patch:`, timeInfo, currentDocument, conversations)
}

// CompleteDocumentPrompt builds the fallback prompt asking for a full
// replacement document after a patch failed to parse or apply.
func CompleteDocumentPrompt(conversations, currentDocument, errorMessage, timeInfo string) string {
	return fmt.Sprintf(`A JSON Patch update to the persona document failed:
%s

Generate the COMPLETE updated persona document instead, incorporating what the conversation below changed.
%s
Requirements:
1. Output ONLY the complete JSON object, no markdown fences, no commentary
2. Keep every top-level field: bot, user, memorable_events, commands_and_agreements
3. memorable_events holds at most 20 entries; drop the least important first
4. Preserve everything from the current document that the conversation did not change

Current document:
%s

Conversation:
%s

Complete document:`, errorMessage, timeInfo, currentDocument, conversations)
}
