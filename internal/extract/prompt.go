package extract

import (
	"fmt"
	"strings"

	"github.com/djsydney04/wrapshot/internal/chunker"
)

const ExtractionPrompt = `You are a script supervisor preparing a production breakdown. You will receive one section of a screenplay. Identify every scene that begins or continues in this section and return a single JSON object of the form {"scenes": [...]}. Each scene object must have these fields:

- "scene_number": the number printed on the scene heading, as a string ("" if unnumbered)
- "int_ext": "INT", "EXT" or "BOTH"
- "set_name": the location from the heading, without INT/EXT or time of day (string, required)
- "time_of_day": the time from the heading, e.g. "DAY", "NIGHT", "CONTINUOUS"
- "page_eighths": the scene length in eighths of a page (integer, 1 eighth = 1/8 page)
- "synopsis": one sentence describing what happens (string)
- "characters": speaking and featured characters (list of strings)
- "start_page": the page within THIS SECTION where the scene starts (integer, first page of the section = 1)
- "end_page": the page within THIS SECTION where the scene ends (integer)

Rules:
- You see only part of the script. Do not invent scenes from outside this section.
- Report a scene that continues from a previous section with its original number if visible.
- Do not merge distinct scenes that share a location.
- Return {"scenes": []} if the section contains no scenes.

Respond with ONLY the JSON object, no other text.`

// BuildChunkPrompt creates the user message for one chunk, telling the model
// which part of the script it is seeing.
func BuildChunkPrompt(docTitle string, c chunker.Chunk, total int) string {
	var sb strings.Builder
	sb.WriteString("---\n")
	if docTitle != "" {
		sb.WriteString(fmt.Sprintf("Script: %q\n", docTitle))
	}
	sb.WriteString(fmt.Sprintf("Section: %d of %d\n", c.Index+1, total))
	if c.FirstPage == c.LastPage {
		sb.WriteString(fmt.Sprintf("Estimated pages: %d\n", c.FirstPage))
	} else {
		sb.WriteString(fmt.Sprintf("Estimated pages: %d-%d\n", c.FirstPage, c.LastPage))
	}
	sb.WriteString("---\n")
	sb.WriteString(c.Text)
	return sb.String()
}
