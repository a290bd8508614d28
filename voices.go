package main

import "strings"

// VoiceStyle selects the tone the analysis prompt asks the model to use.
type VoiceStyle string

const (
	VoiceDirect      VoiceStyle = "direct"
	VoiceSupportive  VoiceStyle = "supportive"
	VoiceAnalytical  VoiceStyle = "analytical"
	VoiceMinimal     VoiceStyle = "minimal"
	VoiceGentleNudge VoiceStyle = "gentle_nudge"
	VoiceCustom      VoiceStyle = "custom"
)

const DefaultVoice = VoiceSupportive

// VoiceSpec is the immutable descriptor behind each style. RequiresCustom
// marks the style whose prompt text must come from the user.
type VoiceSpec struct {
	Name           string
	Description    string
	Prompt         string
	RequiresCustom bool
}

var voiceCatalog = map[VoiceStyle]VoiceSpec{
	VoiceDirect: {
		Name:        "Direct",
		Description: "Just the facts, no fluff",
		Prompt: `Be direct and factual. State what you see clearly.
No emojis. No encouragement. No sugar-coating.
Just tell them what matches and what doesn't.`,
	},
	VoiceSupportive: {
		Name:        "Supportive",
		Description: "Encouraging, acknowledges effort",
		Prompt: `Be warm and encouraging. Acknowledge progress and effort.
Frame things positively - what's working, then what needs attention.
Celebrate small wins. Use occasional emojis sparingly.`,
	},
	VoiceAnalytical: {
		Name:        "Analytical",
		Description: "Spots patterns, references history",
		Prompt: `Focus on patterns and data. Reference the history provided.
Help the user see trends over time. Be observational, not judgmental.
Point out what's recurring and what's improving.`,
	},
	VoiceMinimal: {
		Name:        "Minimal",
		Description: "List only, no commentary",
		Prompt: `Just the list. No commentary, no observations, no advice.
Keep notes to a single short sentence if absolutely necessary.
Prefer silence over filler.`,
	},
	VoiceGentleNudge: {
		Name:        "Gentle Nudge",
		Description: "Soft suggestions for tough days",
		Prompt: `Be gentle and low-pressure. Suggest rather than state.
Acknowledge that some days are harder than others.
Frame everything as optional, not demands. Be kind.`,
	},
	VoiceCustom: {
		Name:           "Custom",
		Description:    "Your own voice",
		RequiresCustom: true,
	},
}

// KnownVoice reports whether style names a catalog entry.
func KnownVoice(style VoiceStyle) bool {
	_, ok := voiceCatalog[style]
	return ok
}

// ResolveVoicePrompt picks the prompt text for a check: the user's custom
// text when style is custom and text was provided, otherwise the preset's
// prompt, otherwise empty.
func ResolveVoicePrompt(style VoiceStyle, customPrompt string) string {
	spec, ok := voiceCatalog[style]
	if !ok {
		spec = voiceCatalog[DefaultVoice]
	}
	if spec.RequiresCustom {
		return strings.TrimSpace(customPrompt)
	}
	return spec.Prompt
}

// SpotType keys a definition template used when a spot's config carries no
// explicit definition.
type SpotType string

const (
	SpotTypeWork     SpotType = "work"
	SpotTypeChill    SpotType = "chill"
	SpotTypeSleep    SpotType = "sleep"
	SpotTypeKitchen  SpotType = "kitchen"
	SpotTypeEntryway SpotType = "entryway"
	SpotTypeStorage  SpotType = "storage"
	SpotTypeCustom   SpotType = "custom"
)

var spotTemplates = map[SpotType]string{
	SpotTypeWork: `This is my work area. I need a clear surface to focus.

Things that should be here:
- Laptop/monitor
- Notebook and pen
- Water bottle

Things that shouldn't be here:
- Dirty dishes or cups
- Random papers or mail
- Clothes`,
	SpotTypeChill: `This is where I relax. Should feel calm and uncluttered.

Things that are fine here:
- Remote controls in their spot
- A book or two
- Throw blanket folded

Things that shouldn't pile up:
- Empty glasses or plates
- Random stuff from pockets
- Laundry`,
	SpotTypeSleep: `This is my sleep space. Should be calm and ready for rest.

Ready state:
- Bed made (or at least neat)
- Nightstand clear except lamp/phone charger
- No clothes on floor
- Blinds/curtains in position`,
	SpotTypeKitchen: `This is my kitchen area. Should be clear and ready to use.

Ready state:
- Counters wiped and clear
- Dishes washed or in dishwasher
- No food left out
- Sink empty`,
	SpotTypeEntryway: `This is my entryway. First thing I see coming home.

Ready state:
- Shoes in rack or lined up
- Keys/wallet in their spot
- No bags dumped on floor
- Coat hung up`,
	SpotTypeStorage: `This is a storage area. Things should be organised.

What belongs here:
- [List your items]

Signs it needs sorting:
- Things not in their containers
- Items blocking access
- Stuff that doesn't belong here`,
	SpotTypeCustom: `Describe this spot in your own words.

What is it for?

What should it look like when ready?

What are signs it needs attention?`,
}

// KnownSpotType reports whether t names a template.
func KnownSpotType(t SpotType) bool {
	_, ok := spotTemplates[t]
	return ok
}

// TemplateDefinition returns the canned definition for a spot type.
func TemplateDefinition(t SpotType) string {
	if tpl, ok := spotTemplates[t]; ok {
		return tpl
	}
	return spotTemplates[SpotTypeCustom]
}
