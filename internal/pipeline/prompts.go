package pipeline

import (
	"fmt"
	"strings"

	"github.com/quillforge/quill/pkg/types"
)

// genericPersona is the chat system preamble used when no article context is
// supplied.
const genericPersona = "You are Quill, a knowledgeable writing assistant for a content platform. " +
	"Answer questions clearly and concisely. If you are unsure about something, say so."

func classifyPrompt(tree string, content string) string {
	var b strings.Builder
	b.WriteString("Classify the following content into the category tree below.\n\n")
	b.WriteString("Category tree:\n")
	b.WriteString(tree)
	b.WriteString("\n\nRespond with a single JSON object with these fields:\n")
	b.WriteString(`  "primaryCategory": the best matching category path` + "\n")
	b.WriteString(`  "secondaryCategory": an alternative path, or "" if none fits` + "\n")
	b.WriteString(`  "suggestedTags": up to 5 short lowercase tags` + "\n")
	b.WriteString(`  "newCategory": a proposed new category path if nothing fits, else ""` + "\n")
	b.WriteString("\nContent:\n")
	b.WriteString(content)
	return b.String()
}

func summarizePrompt(item types.NewsItem) string {
	var b strings.Builder
	b.WriteString("Summarize the following item in English.\n")
	b.WriteString("Respond with a single JSON object with these fields:\n")
	b.WriteString(`  "title": a concise English title` + "\n")
	b.WriteString(`  "summary": 2-3 sentence summary` + "\n")
	b.WriteString(`  "category": one broad category such as "tech", "science", "business"` + "\n")
	b.WriteString(`  "tags": up to 5 short lowercase tags` + "\n\n")
	if item.Language != "" && item.Language != "en" {
		fmt.Fprintf(&b, "The item is written in %q; translate while summarizing.\n\n", item.Language)
	}
	fmt.Fprintf(&b, "Title: %s\n\n%s", item.Title, item.Content)
	return b.String()
}

func generatePrompt(topic string) string {
	return fmt.Sprintf(`Write a comprehensive, well-structured article about: %s

Requirements:
- Start with a single "# " title line.
- Include an "## Overview" section first, then at least three more "## " sections.
- Define important terms inline, e.g. RAG (retrieval-augmented generation).
- Use Markdown throughout. Do not include any text before the title.`, topic)
}

func researchPrompt(question, contextBlock string) string {
	var b strings.Builder
	b.WriteString("Answer the question below using the provided sources. ")
	b.WriteString("Synthesize rather than quote; note disagreements between sources.\n\n")
	b.WriteString("Sources:\n")
	b.WriteString(contextBlock)
	b.WriteString("\n\nQuestion: ")
	b.WriteString(question)
	return b.String()
}
