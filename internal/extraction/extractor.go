package extraction

import (
	"regexp"
	"strings"
	"time"
)

// Extractor implements heuristic entity and intent extraction. It is a pure
// function of the input text plus the configured timezone; it never fails on
// malformed input and returns empty collections when nothing matches.
type Extractor struct {
	loc         *time.Location
	maxTitleLen int
	now         func() time.Time
}

// peopleRe matches a capitalized name after an anchor word.
var peopleRe = regexp.MustCompile(`(?:^|\s)(?i:with|call|text|email|meet|met|ask|tell|ping|remind)\s+([A-Z][a-z]+(?:\s+[A-Z][a-z]+)?)`)

// placeRe matches a capitalized location after a place preposition.
var placeRe = regexp.MustCompile(`(?:^|\s)(?i:at|near|in)\s+(?:the\s+)?([A-Z][A-Za-z']+(?:\s+[A-Z][A-Za-z']+)?)`)

// nameDenylist keeps weekday and month names out of people/place matches.
var nameDenylist = map[string]bool{
	"monday": true, "tuesday": true, "wednesday": true, "thursday": true,
	"friday": true, "saturday": true, "sunday": true,
	"january": true, "february": true, "march": true, "april": true,
	"may": true, "june": true, "july": true, "august": true,
	"september": true, "october": true, "november": true, "december": true,
	"today": true, "tomorrow": true, "tonight": true,
}

const (
	personConfidence = 85
	placeConfidence  = 80
)

// New creates an extractor from config. An invalid timezone falls back to
// the system local zone.
func New(cfg Config) *Extractor {
	loc := time.Local
	if cfg.Timezone != "" {
		if l, err := time.LoadLocation(cfg.Timezone); err == nil {
			loc = l
		}
	}
	maxTitleLen := cfg.MaxTitleLen
	if maxTitleLen <= 0 {
		maxTitleLen = DefaultConfig().MaxTitleLen
	}
	return &Extractor{
		loc:         loc,
		maxTitleLen: maxTitleLen,
		now:         time.Now,
	}
}

// Extract finds people, places, and dates in the text.
func (x *Extractor) Extract(text string) Entities {
	ents := Entities{
		People: []Person{},
		Places: []Place{},
		Dates:  []Date{},
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return ents
	}

	ents.Dates = x.extractDates(text)
	ents.People = extractPeople(text)
	ents.Places = extractPlaces(text, ents.People)

	return ents
}

func extractPeople(text string) []Person {
	people := []Person{}
	seen := map[string]bool{}
	for _, m := range peopleRe.FindAllStringSubmatch(text, -1) {
		name := strings.TrimSpace(m[1])
		if denied(name) || seen[strings.ToLower(name)] {
			continue
		}
		seen[strings.ToLower(name)] = true
		people = append(people, Person{
			Name:       name,
			Confidence: personConfidence,
			Span:       strings.TrimSpace(m[0]),
		})
	}
	return people
}

func extractPlaces(text string, people []Person) []Place {
	places := []Place{}
	seen := map[string]bool{}
	for _, p := range people {
		seen[strings.ToLower(p.Name)] = true
	}
	for _, m := range placeRe.FindAllStringSubmatch(text, -1) {
		name := strings.TrimSpace(m[1])
		if denied(name) || seen[strings.ToLower(name)] {
			continue
		}
		seen[strings.ToLower(name)] = true
		places = append(places, Place{
			Name:       name,
			Confidence: placeConfidence,
			Span:       strings.TrimSpace(m[0]),
		})
	}
	return places
}

// denied reports whether a candidate name hits the weekday/month denylist.
func denied(name string) bool {
	for _, word := range strings.Fields(name) {
		if nameDenylist[strings.ToLower(word)] {
			return true
		}
	}
	return false
}

// taskVerbs are leading verbs that mark a capture as a task.
var taskVerbs = map[string]bool{
	"buy": true, "call": true, "email": true, "text": true, "send": true,
	"schedule": true, "book": true, "fix": true, "pay": true, "order": true,
	"clean": true, "finish": true, "submit": true, "pick": true, "get": true,
	"write": true, "review": true, "cancel": true, "renew": true, "return": true,
}

// Classify maps capture text to an intent type. Unknown text classifies as
// a note; the router decides what to do with each intent.
func (x *Extractor) Classify(text string) Intent {
	trimmed := strings.TrimSpace(strings.ToLower(text))
	if trimmed == "" {
		return IntentNote
	}
	words := strings.Fields(trimmed)

	if strings.Contains(trimmed, "project") {
		return IntentProject
	}
	if containsAny(trimmed, "idea:", "what if", "maybe we", "could we", "would be cool") ||
		words[0] == "idea" {
		return IntentIdea
	}
	if containsAny(trimmed, "phone number", "email address", "birthday", "met ") ||
		strings.HasPrefix(trimmed, "met ") {
		return IntentPerson
	}
	if containsAny(trimmed, "restaurant", "cafe", "coffee shop", "address is", "great place") {
		return IntentPlace
	}
	if taskVerbs[strings.Trim(words[0], ".,!?")] ||
		containsAny(trimmed, "need to", "have to", "must ", "remind me", "don't forget", "todo") {
		return IntentTask
	}
	return IntentNote
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
