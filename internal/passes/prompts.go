package passes

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fablecast/dramatis/internal/budget"
)

// jsonReminder closes every user prompt. Small models drop trailing commas
// into output without it.
const jsonReminder = "\nEnsure the JSON is valid and contains no trailing commas."

// maxPromptNames caps the name list embedded in a dialogue prompt.
const maxPromptNames = 10

const namesSystem = "You are a character name extraction engine. Extract ONLY character names that appear in the provided text."

func namesUser(text string) string {
	return fmt.Sprintf(`STRICT RULES:
- Extract ONLY proper names explicitly written in the text (e.g., "Harry Potter", "Hermione", "Mr. Dursley")
- Do NOT include pronouns (he, she, they, etc.)
- Do NOT include generic descriptions (the boy, the woman, the teacher)
- Do NOT include group references (the family, the crowd, the students)
- Do NOT include titles alone (Professor, Sir, Madam) unless used as the character's actual name
- Do NOT infer or guess names not explicitly mentioned
- Do NOT split full names: if "Harry Potter" appears, do NOT list "Potter" separately
- Do NOT include names of characters who are only mentioned but not present/acting in the scene
- Include a name only if the character speaks, acts, or is directly described in this specific page

OUTPUT FORMAT (valid JSON only):
{"characters": ["Name1", "Name2", "Name3"]}

TEXT:
%s
%s`, text, jsonReminder)
}

const dialogueSystem = "You are a dialog extraction engine. Extract quoted speech and attribute it to the correct speaker. Output valid JSON only."

func dialogueUser(names []string, text string) string {
	if len(names) > maxPromptNames {
		names = names[:maxPromptNames]
	}
	namesJSON, _ := json.Marshal(names)
	return fmt.Sprintf(`CHARACTERS ON THIS PAGE: %s

EXTRACTION RULES:
1. DIALOGS - Extract text within quotation marks ("..." or '...'):
   - Attribute each dialog to the nearest character name appearing BEFORE or AFTER the quote (within ~200 chars)
   - Use attribution patterns: "said [Name]", "[Name] said", "[Name]:", "[Name] asked", "[Name] replied", "whispered", "shouted", "muttered", etc.
   - If a pronoun (he/she/they) refers to a recently mentioned character, attribute to that character
   - If speaker cannot be determined, use "Unknown"

2. NARRATOR TEXT - Extract descriptive prose between dialogs:
   - Scene descriptions, action descriptions, internal thoughts (if not in quotes)
   - Attribute narrator text to "Narrator"
   - Keep narrator segments reasonably sized (1-3 sentences each)

3. EMOTION DETECTION - For each segment:
   - Infer emotion: neutral, happy, sad, angry, surprised, fearful, excited, worried, curious, defiant
   - Estimate intensity: 0.0 (very mild) to 1.0 (very intense)
   - Use context clues: exclamation marks, word choice, described actions

4. ORDERING - Maintain the order of appearance in the text

OUTPUT FORMAT (valid JSON only):
{
  "dialogs": [
    {"speaker": "Character Name", "text": "Exact quoted speech or narrator text", "emotion": "neutral", "intensity": 0.5},
    {"speaker": "Narrator", "text": "Descriptive prose between dialogs", "emotion": "neutral", "intensity": 0.3}
  ]
}

TEXT:
%s
%s`, namesJSON, text, jsonReminder)
}

const voiceSystem = "You are a character analyst for TTS voice casting. Extract observable traits and suggest voice profile. JSON only."

// voiceUser renders the combined trait and profile prompt for a group of
// characters, each with its own dialogue sample already cut to size.
func voiceUser(subjects []VoiceSubject) string {
	var b strings.Builder
	for _, s := range subjects {
		fmt.Fprintf(&b, "CHARACTER: %q\n\nTEXT:\n%s\n\n", s.Name, s.Context)
	}
	b.WriteString(`EXTRACT CONCISE TRAITS (1-2 words only):
- Examples: "gravelly voice", "nervous fidgeting", "dry humor", "rambling", "high-pitched", "slow pacing"
- DO NOT write verbose descriptions like "TTS Voice Traits: Pitch: Low..."

TRAIT ` + "→" + ` VOICE MAPPING:
- "gravelly/deep/commanding" ` + "→" + ` pitch: 0.8-0.9
- "bright/light/young" ` + "→" + ` pitch: 1.1-1.2
- "nervous/anxious/frantic" ` + "→" + ` speed: 1.1-1.2, energy: 0.8
- "calm/measured/authoritative" ` + "→" + ` speed: 0.9, energy: 0.6
- "energetic/excited/enthusiastic" ` + "→" + ` energy: 0.9-1.0

GENDER/AGE from traits:
- Male indicators: "male", "man", "mr", "sir", "lord", "king"
- Female indicators: "female", "woman", "mrs", "miss", "lady", "queen"
- Young: "young", "child", "teen", "boy", "girl"
- Elderly: "old", "elderly", "aged", "senior"

SPEAKER_ID (0-108 VCTK range):
- Female young: 10-30
- Female adult: 31-50
- Male young: 51-70
- Male adult: 71-90
- Elderly/character: 91-108

OUTPUT FORMAT (valid JSON only), one entry per character, in the order given:
[
  {"character": "Name", "traits": ["trait1", "trait2", "trait3"], "voice_profile": {"pitch": 1.0, "speed": 1.0, "energy": 0.7, "gender": "male|female", "age": "child|young|middle-aged|elderly", "tone": "brief description", "speaker_id": 45}}
]
`)
	b.WriteString(jsonReminder)
	return b.String()
}

func traitsSystem(name string) string {
	return fmt.Sprintf("You are a trait extraction engine. Extract ONLY the explicitly stated traits for the character %q from the provided text.", name)
}

func traitsUser(name, text string) string {
	return fmt.Sprintf(`STRICT RULES:
- Extract ONLY traits directly stated or shown in the text
- Include physical descriptions if explicitly mentioned (e.g., "tall", "red hair", "scarred")
- Include behavioral traits if explicitly shown (e.g., "spoke softly", "slammed the door", "laughed nervously")
- Include speech patterns if demonstrated (e.g., "stutters", "uses formal language", "speaks with accent")
- Include emotional states if explicitly described (e.g., "angry", "frightened", "cheerful")
- Do NOT infer personality from actions
- Do NOT add interpretations or assumptions
- Do NOT include traits of other characters
- If no traits are found for this character on this page, return an empty list

OUTPUT FORMAT (valid JSON only):
{"character": %q, "traits": ["trait1", "trait2", "trait3"]}

TEXT:
%s
%s`, name, text, jsonReminder)
}

func personalitySystem(name string) string {
	return fmt.Sprintf("You are a personality analysis engine. Infer the personality of %q based ONLY on the traits provided below.", name)
}

func personalityUser(name string, traits []string) string {
	traitsText := "No explicit traits found."
	if len(traits) > 0 {
		traitsText = strings.Join(traits, "\n- ")
	}
	traitsJSON, _ := json.Marshal(traits)
	return fmt.Sprintf(`TRAITS:
- %s

STRICT RULES:
- Base your inference ONLY on the provided traits
- Do NOT introduce new traits not in the list
- Do NOT contradict the provided traits
- Synthesize the traits into coherent personality descriptors
- Keep descriptions concise and grounded in the evidence
- Provide 3-5 personality points maximum
- If traits list is empty or insufficient, provide minimal inference

OUTPUT FORMAT (valid JSON only):
{"character": %q, "personality": ["personality_point1", "personality_point2", "personality_point3"]}

TRAITS:
%s
%s`, traitsText, name, traitsJSON, jsonReminder)
}

func profileSystem(name string) string {
	return fmt.Sprintf("You are a voice casting director. Suggest a voice profile for %q based ONLY on the personality description below.", name)
}

func profileUser(name string, personality []string) string {
	personalityText := "No personality traits inferred."
	if len(personality) > 0 {
		personalityText = strings.Join(personality, "\n- ")
	}
	personalityJSON, _ := json.Marshal(personality)
	return fmt.Sprintf(`PERSONALITY:
- %s

STRICT RULES:
- Base suggestions ONLY on the provided personality description
- Suggest specific voice qualities: pitch (low/medium/high), speed (slow/medium/fast), tone
- Infer likely gender if personality suggests it
- Infer likely age range if personality suggests it
- Output must be compatible with TTS parameters: pitch (0.5-1.5), speed (0.5-1.5), energy (0.5-1.5)

OUTPUT FORMAT (valid JSON only):
{
  "character": %q,
  "voice_profile": {
    "pitch": 1.0, "speed": 1.0, "energy": 1.0,
    "gender": "male|female|neutral", "age": "young|middle-aged|elderly",
    "tone": "description", "accent": "neutral"
  }
}

PERSONALITY:
%s
%s`, personalityText, name, personalityJSON, jsonReminder)
}

// fitEach cuts every subject's context to an equal share of the allowance.
func fitEach(subjects []VoiceSubject, allowanceChars int) []VoiceSubject {
	if len(subjects) == 0 {
		return nil
	}
	share := allowanceChars / len(subjects)
	out := make([]VoiceSubject, len(subjects))
	for i, s := range subjects {
		out[i] = VoiceSubject{Name: s.Name, Context: budget.Truncate(s.Context, share)}
	}
	return out
}
