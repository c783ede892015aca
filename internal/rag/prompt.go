package rag

import (
	"fmt"
	"strings"

	"chatpdf/internal/ai"
)

const (
	DefaultMaxHistory = 5

	// NoContextSentinel stands in for the context block when nothing was retrieved.
	NoContextSentinel = "No relevant context found."

	contextSeparator = "\n\n---\n\n"
)

const SystemPrompt = `You are a helpful AI assistant that answers questions based on the provided PDF document context.

Instructions:
- Answer questions using ONLY the information from the provided context
- If the context doesn't contain enough information to answer the question, say so
- Be concise but thorough in your answers
- Reference specific pages when relevant
- If asked about something not in the context, politely explain that you can only answer based on the provided document`

// HistoryTurn is one earlier message of the conversation.
type HistoryTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type PromptBuilder struct {
	MaxHistory int
}

func NewPromptBuilder(maxHistory int) PromptBuilder {
	if maxHistory < 0 {
		maxHistory = DefaultMaxHistory
	}
	return PromptBuilder{MaxHistory: maxHistory}
}

// Build returns the system message, the most recent MaxHistory turns oldest
// first, and a final user message carrying the context block and the question.
func (b PromptBuilder) Build(query string, chunks []RetrievedChunk, history []HistoryTurn) []ai.ChatMessage {
	window := history
	if len(window) > b.MaxHistory {
		window = window[len(window)-b.MaxHistory:]
	}

	messages := make([]ai.ChatMessage, 0, len(window)+2)
	messages = append(messages, ai.ChatMessage{Role: ai.RoleSystem, Content: SystemPrompt})
	for _, turn := range window {
		switch turn.Role {
		case ai.RoleUser, ai.RoleAssistant:
			messages = append(messages, ai.ChatMessage{Role: turn.Role, Content: turn.Content})
		}
	}
	messages = append(messages, ai.ChatMessage{
		Role:    ai.RoleUser,
		Content: "Context from the document:\n" + BuildContext(chunks) + "\n\nQuestion: " + query,
	})
	return messages
}

// BuildContext renders chunks in the given order, each with its page tag when known.
func BuildContext(chunks []RetrievedChunk) string {
	if len(chunks) == 0 {
		return NoContextSentinel
	}
	parts := make([]string, len(chunks))
	for i, c := range chunks {
		if c.PageNumber != nil {
			parts[i] = fmt.Sprintf("[Page %d]\n%s", *c.PageNumber, c.Text)
		} else {
			parts[i] = c.Text
		}
	}
	return strings.Join(parts, contextSeparator)
}
