package llama

import "strings"

// Template carries the chat markup and sampling defaults for one model
// family. Temperature and output length come from the caller per pass.
type Template struct {
	Render          func(system, user string) string
	Stop            []string
	TopP            float64
	TopK            int
	PresencePenalty float64
	RepeatPenalty   float64
	CachePrompt     bool
}

// templateFor picks the template for a model name. Unknown models get plain
// ChatML, which most instruction-tuned GGUF builds accept.
func templateFor(model string) Template {
	name := strings.ToLower(model)
	switch {
	case strings.Contains(name, "qwen3"):
		return qwen3Template
	case strings.Contains(name, "gemma"):
		return gemmaTemplate
	default:
		return chatmlTemplate
	}
}

var chatmlTemplate = Template{
	Render:      renderChatML,
	Stop:        []string{"<|im_end|>", "<|endoftext|>"},
	CachePrompt: true,
}

// Qwen3 runs in non-thinking mode. The /no_think marker suppresses the
// reasoning block and the sampling values follow the model card for that
// mode. The presence penalty keeps quantized builds from looping.
var qwen3Template = Template{
	Render: func(system, user string) string {
		return renderChatML(system, user+" /no_think")
	},
	Stop:            []string{"<|im_end|>", "<|endoftext|>"},
	TopP:            0.8,
	TopK:            20,
	PresencePenalty: 1.5,
	CachePrompt:     true,
}

// Gemma has no system role, so the system prompt is folded into the user
// turn.
var gemmaTemplate = Template{
	Render: func(system, user string) string {
		var b strings.Builder
		b.WriteString("<start_of_turn>user\n")
		if system != "" {
			b.WriteString(system)
			b.WriteString("\n\n")
		}
		b.WriteString(user)
		b.WriteString("<end_of_turn>\n<start_of_turn>model\n")
		return b.String()
	},
	Stop:          []string{"<end_of_turn>", "<eos>"},
	TopP:          0.95,
	TopK:          40,
	RepeatPenalty: 1.1,
	CachePrompt:   true,
}

func renderChatML(system, user string) string {
	var b strings.Builder
	if system != "" {
		b.WriteString("<|im_start|>system\n")
		b.WriteString(system)
		b.WriteString("<|im_end|>\n")
	}
	b.WriteString("<|im_start|>user\n")
	b.WriteString(user)
	b.WriteString("<|im_end|>\n<|im_start|>assistant\n")
	return b.String()
}
