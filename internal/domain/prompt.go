package domain

type PromptDocument struct {
	Key    string `json:"key"`
	Prompt string `json:"prompt"`
}

type PromptUpdate struct {
	Prompt string `json:"prompt"`
}
