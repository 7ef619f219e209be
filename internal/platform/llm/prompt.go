package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/wardround/wardround/internal/domain/wardupdate"
)

const systemPrompt = `You are a clinical documentation assistant on a hospital ward round.
Given a clinician's dictation and the patient's current record, produce a JSON object:

{
  "diff": {
    "new_issues": [{"title": "...", "status": "open", "subpoints": [...]}],
    "issue_updates": [{"issue_id": "<uuid from the record>", "status": "resolved", "new_subpoints": [...]}],
    "investigations": [{"name": "...", "kind": "lab"|"imaging", "points": [{"date": "YYYY-MM-DD", "value": "..."}], "summary": "..."}],
    "new_tasks": [{"text": "..."}],
    "complete_task_ids": ["<uuid>"],
    "complete_task_texts": ["..."],
    "discharge_date": {"old": "YYYY-MM-DD or empty", "new": "YYYY-MM-DD"},
    "admission_flags": {"admission_done": true, "discharge_done": false},
    "skip_checklist": ["..."]
  },
  "assistant_message": "questions or caveats for the clinician",
  "human_summary": "one-paragraph summary of the proposed changes"
}

Subpoints are {"kind": "note", "text": "..."} or
{"kind": "procedure", "name": "...", "date": "YYYY-MM-DD", "checklist_key": "..."} or
{"kind": "antibiotic", "name": "...", "date": "YYYY-MM-DD", "stop_date": "..."}.
Only reference issue and task ids that exist in the record. Omit empty fields.
When the discharge date changes, "old" must be the record's current value.
If the dictation proposes nothing actionable, return a null diff and explain why.
Respond with the JSON object only.`

// buildMessages assembles the chat transcript: system instructions, the
// serialized patient snapshot, then each prior turn as a user/assistant pair
// so refinement requests ("actually make that twice daily") are interpreted
// against the earlier diff.
func (c *Client) buildMessages(req wardupdate.InterpretRequest) ([]chatMessage, error) {
	snapshot, err := json.MarshalIndent(req.Snapshot, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("serialize snapshot: %w", err)
	}

	messages := []chatMessage{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: "Current patient record:\n" + string(snapshot)},
	}

	for _, turn := range req.PriorTurns {
		messages = append(messages, chatMessage{Role: "user", Content: turn.Dictation})
		reply, err := json.Marshal(interpretationPayload{
			Diff:             turn.Diff,
			AssistantMessage: turn.AssistantMessage,
			HumanSummary:     turn.HumanSummary,
		})
		if err != nil {
			return nil, fmt.Errorf("serialize prior turn: %w", err)
		}
		messages = append(messages, chatMessage{Role: "assistant", Content: string(reply)})
	}

	messages = append(messages, chatMessage{Role: "user", Content: strings.TrimSpace(req.Dictation)})
	return messages, nil
}
