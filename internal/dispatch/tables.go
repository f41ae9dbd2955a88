package dispatch

import (
	"encoding/json"
	"net/url"
	"strconv"
)

// endpoint is one candidate speech route on the gateway. POST endpoints send
// a JSON payload variant; GET endpoints encode the variant as query
// parameters.
type endpoint struct {
	path string
	post bool
}

// endpoints is the ordered route table, POST shapes first. Order is a
// behavioural contract: the first combination that yields playable audio
// wins, so do not reorder.
var endpoints = []endpoint{
	{"/v1/tts", true},
	{"/tts", true},
	{"/audio/speech", true},
	{"/v1/audio/speech", true},
	{"/v1/speech", true},
	{"/api/tts", true},
	{"/audio", false},
	{"/api/audio", false},
	{"/speak", true},
	{"/api/speak", true},
	{"/api/tts.mp3", false},
	{"/tts", false},
	{"/speak", false},
}

// variantCount is the number of payload shapes tried per POST endpoint.
const variantCount = 9

// Gateway voice/preset identifiers cycled through the payload variants.
const (
	presetDefault  = "jp_female"
	presetAlt      = "en_female"
	presetFallback = "jp_male"
	outputFormat   = "wav"
	voicePrimary   = "alloy"
	voiceFallback  = "nova"
	modelPrimary   = "tts-1"
	modelFallback  = "gpt-4o-mini-tts"
)

type reference struct {
	Type     string `json:"type"`
	PresetID string `json:"preset_id"`
}

type output struct {
	Format string `json:"format"`
}

type llmOptions struct {
	Temperature float64 `json:"temperature"`
}

// nestedPayload is the richest request shape: preset reference plus optional
// output format and LLM knobs.
type nestedPayload struct {
	Text      string      `json:"text"`
	Reference reference   `json:"reference"`
	Output    *output     `json:"output,omitempty"`
	LLM       *llmOptions `json:"llm,omitempty"`
}

// flatPayload is the flattened convention some gateways use.
type flatPayload struct {
	Text   string `json:"text"`
	Preset string `json:"preset"`
	Format string `json:"format"`
}

// openAIPayload mimics the OpenAI speech API request shape.
type openAIPayload struct {
	Input          string `json:"input"`
	Model          string `json:"model"`
	Voice          string `json:"voice"`
	ResponseFormat string `json:"response_format"`
}

// payloadBody renders JSON request body variant v for text. Variants cycle
// preset and field-naming conventions; the last adds LLM sampling options.
func payloadBody(text string, v int) ([]byte, error) {
	preset := func(id string, withOutput bool) nestedPayload {
		p := nestedPayload{Text: text, Reference: reference{Type: "preset", PresetID: id}}
		if withOutput {
			p.Output = &output{Format: outputFormat}
		}
		return p
	}

	var body any
	switch v % variantCount {
	case 0:
		body = preset(presetDefault, true)
	case 1:
		body = preset(presetAlt, true)
	case 2:
		body = preset(presetFallback, true)
	case 3:
		body = flatPayload{Text: text, Preset: presetDefault, Format: outputFormat}
	case 4:
		body = preset(presetDefault, false)
	case 5:
		body = preset(presetAlt, true)
	case 6:
		body = openAIPayload{Input: text, Model: modelPrimary, Voice: voicePrimary, ResponseFormat: outputFormat}
	case 7:
		body = openAIPayload{Input: text, Model: modelFallback, Voice: voiceFallback, ResponseFormat: outputFormat}
	default:
		p := preset(presetFallback, true)
		p.LLM = &llmOptions{Temperature: 0.85}
		body = p
	}
	return json.Marshal(body)
}

// queryParams renders the GET parameter set for variant v. The text is always
// present; later variants progressively add format, speaker, voice, and model
// hints.
func queryParams(text string, v int) url.Values {
	v = v % variantCount
	q := url.Values{}
	q.Set("text", text)
	if v > 0 {
		q.Set("response_format", outputFormat)
	}
	if v >= 4 {
		q.Set("speaker", strconv.Itoa(0))
	}
	if v == 5 || v == 7 {
		q.Set("voice", voicePrimary)
	}
	if v == 6 || v == 8 {
		q.Set("model", modelPrimary)
	}
	return q
}
