package jira

// Doc wraps plain text in an Atlassian Document Format document: one
// paragraph holding the text, or an empty paragraph when text is empty.
func Doc(text string) map[string]any {
	content := []any{}
	if text != "" {
		content = append(content, map[string]any{"type": "text", "text": text})
	}
	return map[string]any{
		"type":    "doc",
		"version": 1,
		"content": []any{
			map[string]any{"type": "paragraph", "content": content},
		},
	}
}
