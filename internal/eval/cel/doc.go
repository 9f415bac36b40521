// Package cel provides a CEL (Common Expression Language) evaluator for task
// admission rules.
//
// CEL is a non-Turing complete expression language that provides fast, safe
// evaluation of conditions. Processors use it to decide whether a task carries
// everything it needs before any model is resolved or called.
//
// Example usage:
//
//	evaluator := cel.NewEvaluator()
//
//	vars := map[string]interface{}{
//	    "task": map[string]interface{}{
//	        "content":  "lorem ipsum",
//	        "question": "",
//	    },
//	}
//
//	failed, err := evaluator.Check(ctx, []cel.Rule{
//	    {Condition: `task.content != ""`, Message: "content is required"},
//	    {Condition: `task.question != ""`, Message: "question is required"},
//	}, vars)
//	// failed.Message == "question is required"
//
// Compiled programs are cached per expression, so rules are only parsed once.
package cel
