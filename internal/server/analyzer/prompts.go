package analyzer

import "fmt"

const systemPrompt = `You analyze study materials. Reply with a single JSON object and nothing else:
{
  "title": "short descriptive title",
  "summary": "three to five sentence summary",
  "outline": [{"title": "section heading", "level": 1, "summary": "one sentence"}]
}
Use level 1 for top-level sections and increase it for nested sections.
Keep the outline in document order. Use the language of the material.`

func userPrompt(text, mimeType string) string {
	return fmt.Sprintf("Material type: %s\n\n%s", mimeType, text)
}
