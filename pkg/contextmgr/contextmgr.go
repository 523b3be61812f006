// Package contextmgr holds the conversation buffer of a tool loop run, with token accounting.
package contextmgr

import (
	"fmt"
	"sort"
	"strings"

	"codegen/pkg/agent/llm"
	"codegen/pkg/utils"
)

// Message is one turn of the conversation.
type Message struct {
	Role        string
	Content     string
	ToolCalls   []llm.ToolCall
	ToolResults []llm.ToolResult
}

// ContextManager buffers a conversation. Tool results are collected until the
// next request is built, then sent back as a single user turn so every tool call
// of an assistant turn is answered together.
type ContextManager struct {
	messages       []Message
	pendingResults []llm.ToolResult
	maxTokens      int
}

// NewContextManager creates an empty context with no token ceiling.
func NewContextManager() *ContextManager {
	return &ContextManager{messages: make([]Message, 0)}
}

// NewContextManagerWithLimit creates a context that reports ShouldCompact once
// the conversation passes maxTokens.
func NewContextManagerWithLimit(maxTokens int) *ContextManager {
	return &ContextManager{messages: make([]Message, 0), maxTokens: maxTokens}
}

// AddMessage stores a role/content pair. Empty content is dropped.
func (cm *ContextManager) AddMessage(role, content string) {
	content = strings.TrimSpace(content)
	if content == "" {
		return
	}
	cm.flushToolResults()
	cm.messages = append(cm.messages, Message{Role: role, Content: content})
}

// AddAssistantMessage stores a model reply without tool calls.
func (cm *ContextManager) AddAssistantMessage(content string) {
	cm.AddAssistantMessageWithTools(content, nil)
}

// AddAssistantMessageWithTools stores a model reply together with the tool calls it made.
// The turn is kept even with empty content when it carries calls.
func (cm *ContextManager) AddAssistantMessageWithTools(content string, calls []llm.ToolCall) {
	if strings.TrimSpace(content) == "" && len(calls) == 0 {
		return
	}
	cm.flushToolResults()
	cm.messages = append(cm.messages, Message{
		Role:      string(llm.RoleAssistant),
		Content:   content,
		ToolCalls: append([]llm.ToolCall(nil), calls...),
	})
}

// AddToolResult queues the answer to one tool call.
func (cm *ContextManager) AddToolResult(callID, toolName, content string, isError bool) {
	cm.pendingResults = append(cm.pendingResults, llm.ToolResult{
		ToolCallID: callID,
		ToolName:   toolName,
		Content:    content,
		IsError:    isError,
	})
}

// PendingToolResults returns the number of queued tool results.
func (cm *ContextManager) PendingToolResults() int {
	return len(cm.pendingResults)
}

func (cm *ContextManager) flushToolResults() {
	if len(cm.pendingResults) == 0 {
		return
	}
	cm.messages = append(cm.messages, Message{
		Role:        string(llm.RoleUser),
		ToolResults: cm.pendingResults,
	})
	cm.pendingResults = nil
}

// CompletionMessages flushes queued tool results and returns the conversation in
// the shape LLM clients expect.
func (cm *ContextManager) CompletionMessages() []llm.CompletionMessage {
	cm.flushToolResults()
	out := make([]llm.CompletionMessage, len(cm.messages))
	for i := range cm.messages {
		m := &cm.messages[i]
		out[i] = llm.CompletionMessage{
			Role:        llm.CompletionRole(m.Role),
			Content:     m.Content,
			ToolCalls:   m.ToolCalls,
			ToolResults: m.ToolResults,
		}
	}
	return out
}

// CountTokens estimates the size of the conversation with the shared tokenizer.
// Tool call names and result bodies count as well as message text.
func (cm *ContextManager) CountTokens() int {
	total := 0
	for i := range cm.messages {
		total += countMessage(&cm.messages[i])
	}
	for i := range cm.pendingResults {
		total += utils.CountTokensSimple(cm.pendingResults[i].Content)
	}
	return total
}

func countMessage(m *Message) int {
	n := utils.CountTokensSimple(m.Role) + utils.CountTokensSimple(m.Content)
	for i := range m.ToolCalls {
		n += utils.CountTokensSimple(m.ToolCalls[i].Name)
		n += utils.CountTokensSimple(fmt.Sprint(m.ToolCalls[i].Parameters))
	}
	for i := range m.ToolResults {
		n += utils.CountTokensSimple(m.ToolResults[i].Content)
	}
	return n
}

// ShouldCompact reports whether the conversation has outgrown its token ceiling.
// Always false without a ceiling.
func (cm *ContextManager) ShouldCompact() bool {
	return cm.maxTokens > 0 && cm.CountTokens() > cm.maxTokens
}

// GetMessages returns a copy of all flushed messages.
func (cm *ContextManager) GetMessages() []Message {
	result := make([]Message, len(cm.messages))
	copy(result, cm.messages)
	return result
}

// Clear removes all messages and queued results.
func (cm *ContextManager) Clear() {
	cm.messages = cm.messages[:0]
	cm.pendingResults = nil
}

// GetMessageCount returns the number of flushed messages.
func (cm *ContextManager) GetMessageCount() int {
	return len(cm.messages)
}

// GetContextSummary returns a brief summary of the context state.
func (cm *ContextManager) GetContextSummary() string {
	if len(cm.messages) == 0 {
		return "Empty context"
	}

	roleCounts := make(map[string]int)
	for i := range cm.messages {
		roleCounts[cm.messages[i].Role]++
	}
	roles := make([]string, 0, len(roleCounts))
	for role := range roleCounts {
		roles = append(roles, role)
	}
	sort.Strings(roles)

	breakdown := make([]string, len(roles))
	for i, role := range roles {
		breakdown[i] = fmt.Sprintf("%s: %d", role, roleCounts[role])
	}
	return fmt.Sprintf("%d messages (%d tokens) - %s",
		len(cm.messages), cm.CountTokens(), strings.Join(breakdown, ", "))
}
