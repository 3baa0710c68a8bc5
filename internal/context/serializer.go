// internal/context/serializer.go
package context

import (
	"encoding/base64"
	"encoding/json"

	"github.com/jerhadf/voice-computer-use/internal/types"
	"github.com/jerhadf/voice-computer-use/pkg/llm"
)

// Serialize converts log entries into backend turns. A ToolUse is emitted
// only when its ToolResult is present somewhere in events, and the result
// is moved to directly follow it. Error entries are dropped. The input is
// not modified.
func Serialize(events []types.Event) []llm.Message {
	results := make(map[types.ToolUseID]*types.ToolResult)
	for i := range events {
		if events[i].Kind == types.KindToolResult && events[i].ToolResult != nil {
			if _, seen := results[events[i].ToolResult.ToolUseID]; !seen {
				results[events[i].ToolResult.ToolUseID] = events[i].ToolResult
			}
		}
	}

	var turns []llm.Message
	for i := range events {
		ev := &events[i]
		switch ev.Kind {
		case types.KindUserInput:
			turns = appendTurn(turns, llm.RoleUser, llm.TextBlock(ev.Text))

		case types.KindAssistantOutput:
			turns = appendTurn(turns, llm.RoleAssistant, llm.TextBlock(ev.Text))

		case types.KindToolUse:
			if ev.ToolUse == nil {
				continue
			}
			result, ok := results[ev.ToolUse.ID]
			if !ok {
				continue
			}
			turns = appendTurn(turns, llm.RoleAssistant, toolUseBlock(ev.ToolUse))
			turns = appendTurn(turns, llm.RoleUser, toolResultBlock(result))
		}
	}
	return turns
}

// appendTurn adds block as a new turn, or into the previous turn when both
// share a role and the previous turn ends in a block of the same tool kind.
func appendTurn(turns []llm.Message, role string, block llm.ContentBlock) []llm.Message {
	if n := len(turns); n > 0 {
		prev := &turns[n-1]
		kind := prev.LastKind()
		if prev.Role == role && (kind == llm.BlockToolUse || kind == llm.BlockToolResult) && block.Type == kind {
			prev.Content = append(prev.Content, block)
			return turns
		}
	}
	return append(turns, llm.Message{Role: role, Content: []llm.ContentBlock{block}})
}

func toolUseBlock(use *types.ToolUse) llm.ContentBlock {
	input := use.Input
	if len(input) == 0 {
		input = json.RawMessage(`{}`)
	}
	return llm.ContentBlock{
		Type:  llm.BlockToolUse,
		ID:    string(use.ID),
		Name:  use.Name,
		Input: append(json.RawMessage(nil), input...),
	}
}

func withSystem(system, text string) string {
	if system == "" {
		return text
	}
	return "<system>" + system + "</system>\n" + text
}

func toolResultBlock(r *types.ToolResult) llm.ContentBlock {
	block := llm.ContentBlock{Type: llm.BlockToolResult, ToolUseID: string(r.ToolUseID)}
	if r.Failed() {
		block.IsError = true
		block.Content = []llm.ContentBlock{llm.TextBlock(withSystem(r.System, r.Error))}
		return block
	}
	if r.Output != "" {
		block.Content = append(block.Content, llm.TextBlock(withSystem(r.System, r.Output)))
	}
	if len(r.Image) > 0 {
		block.Content = append(block.Content, llm.Base64ImageBlock("image/png", base64.StdEncoding.EncodeToString(r.Image)))
	}
	return block
}

// CountImages returns the number of image sub-blocks inside tool results.
func CountImages(turns []llm.Message) int {
	n := 0
	for _, turn := range turns {
		for _, block := range turn.Content {
			if block.Type != llm.BlockToolResult {
				continue
			}
			for _, sub := range block.Content {
				if sub.Type == llm.BlockImage {
					n++
				}
			}
		}
	}
	return n
}

// PruneImages removes the oldest tool-result images so that at most keep
// remain, removing only in multiples of chunk. Non-image sub-blocks are
// kept. It returns the number removed. keep < 0 disables pruning.
func PruneImages(turns []llm.Message, keep, chunk int) int {
	if keep < 0 {
		return 0
	}
	if chunk <= 0 {
		chunk = 1
	}
	total := CountImages(turns)
	if total <= keep {
		return 0
	}
	toRemove := total - keep
	toRemove -= toRemove % chunk

	removed := 0
	for i := range turns {
		for j := range turns[i].Content {
			block := &turns[i].Content[j]
			if block.Type != llm.BlockToolResult || toRemove == removed {
				continue
			}
			kept := make([]llm.ContentBlock, 0, len(block.Content))
			for _, sub := range block.Content {
				if sub.Type == llm.BlockImage && removed < toRemove {
					removed++
					continue
				}
				kept = append(kept, sub)
			}
			block.Content = kept
		}
	}
	return removed
}
