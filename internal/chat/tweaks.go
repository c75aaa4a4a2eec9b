package chat

import "github.com/ffaiyaz23/flowchat/internal/flow"

// DefaultTweaks lists the components of the analytics flow. Each gets an
// empty override so the flow runs with its saved configuration.
func DefaultTweaks() flow.Tweaks {
	components := []string{
		"ChatInput-ufonD",
		"ParseData-nVbw4",
		"Prompt-Mbumw",
		"SplitText-gcj2y",
		"ChatOutput-kKsN3",
		"AstraDB-s0C8l",
		"OpenAIEmbeddings-QECx2",
		"File-kj26O",
		"AstraDBToolComponent-6ImZP",
		"OpenAIModel-pgFdD",
		"MistralModel-sTyFL",
	}
	t := make(flow.Tweaks, len(components))
	for _, c := range components {
		t[c] = map[string]any{}
	}
	return t
}
