package processor

import (
	"strconv"

	"github.com/aescanero/dago-node-llmworker/internal/eval/cel"
)

// maxContentRunes caps the document text placed in a prompt
const maxContentRunes = 200000

var contentBlock = "Here is the document content:\n\n{{{truncate content " + strconv.Itoa(maxContentRunes) + "}}}"

// prompts are handlebars templates rendered with task.Vars
type prompts struct {
	system string
	user   string
}

var summaryPrompts = prompts{
	system: "You are a document analyst. Summarize the document provided by the user. " +
		"Identify its main topic and purpose, then summarize the key points and findings " +
		"in a logical order. Include important figures from tables when present.",
	user: contentBlock,
}

var questionPrompts = prompts{
	system: "You answer questions about a document. Answer using only the provided content. " +
		"If the content does not contain the answer, say that it does not.",
	user: "Question: {{{trim question}}}\n\n" + contentBlock,
}

var summaryRules = []cel.Rule{
	{Condition: `task.content != ""`, Message: "content is required"},
	{Condition: `task.model != ""`, Message: "model is required"},
}

var questionRules = []cel.Rule{
	{Condition: `task.content != ""`, Message: "content is required"},
	{Condition: `task.question != ""`, Message: "question is required"},
	{Condition: `task.model != ""`, Message: "model is required"},
}
