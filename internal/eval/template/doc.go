// Package template provides a Handlebars template engine for rendering LLM prompts.
//
// Example usage:
//
//	engine := template.NewEngine()
//
//	data := map[string]interface{}{
//	    "content":  "Quarterly revenue grew 4%...",
//	    "question": "  How much did revenue grow? ",
//	}
//
//	prompt, err := engine.Render("Question: {{{trim question}}}\n\n{{{content}}}", data)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Use triple braces for document text: double braces HTML-escape the value.
//
// Built-in helpers:
//   - trim - Trim whitespace from string
//   - truncate - Cut a string to at most n characters
package template
