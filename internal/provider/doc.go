// Package provider calls LLM APIs on behalf of task processors.
//
// Every supported provider has an explicit adapter that builds a langchaingo
// model for a resolved router.Target and extracts token usage from the
// provider-specific generation info, so callers only ever see a normalized
// Completion:
//
//	factory := provider.NewLangChainFactory(logger)
//	client, err := factory.NewClient(ctx, target)
//	if err != nil {
//	    return err
//	}
//	completion, err := client.Complete(ctx, provider.Request{
//	    System: "Summarize the document.",
//	    User:   content,
//	})
//	fmt.Println(completion.Text, completion.Usage.InputTokens)
//
// Any failure, including a response without usable text, is reported wrapped
// in ErrProvider.
package provider
