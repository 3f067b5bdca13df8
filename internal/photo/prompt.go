package photo

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	placeholderUnknown    = "unknown"
	placeholderCompanions = "alone"
	placeholderSituation  = "no situation given"
	placeholderCoordinate = "none"
)

func (a AnalysisContext) withDefaults() AnalysisContext {
	a.Mood = orDefault(a.Mood, placeholderUnknown)
	a.Place = orDefault(a.Place, placeholderUnknown)
	a.Age = orDefault(a.Age, placeholderUnknown)
	a.Companions = orDefault(a.Companions, placeholderCompanions)
	a.Personality = orDefault(a.Personality, placeholderUnknown)
	a.Situation = orDefault(a.Situation, placeholderSituation)
	return a
}

// Caption summarises the context exactly as it was sent to the model.
func (a AnalysisContext) Caption() string {
	a = a.withDefaults()
	return fmt.Sprintf("Mood: %s\nPlace: %s\nAge: %s\nCompanions: %s\nPersonality: %s\nSituation: %s",
		a.Mood, a.Place, a.Age, a.Companions, a.Personality, a.Situation)
}

func BuildPrompt(p Photo, a AnalysisContext) string {
	a = a.withDefaults()
	var b strings.Builder
	b.WriteString("You are writing a blog post on my behalf. Write a post about the following photo using the details below.\n\n")
	fmt.Fprintf(&b, "- Mood of the writing: %s\n", a.Mood)
	fmt.Fprintf(&b, "- Approximate place: %s\n", a.Place)
	fmt.Fprintf(&b, "- Photo name: %s\n", p.FileName)
	fmt.Fprintf(&b, "- Latitude: %s\n", formatCoordinate(p.Latitude))
	fmt.Fprintf(&b, "- Longitude: %s\n", formatCoordinate(p.Longitude))
	fmt.Fprintf(&b, "- Age: %s\n", a.Age)
	fmt.Fprintf(&b, "- Companions: %s\n", a.Companions)
	fmt.Fprintf(&b, "- Personality type: %s\n", a.Personality)
	fmt.Fprintf(&b, "- Situation: %s\n\n", a.Situation)
	b.WriteString("Do not invent facts. Write an honest post that is useful and engaging for readers, in a relaxed and natural tone.")
	return b.String()
}

func formatCoordinate(v *float64) string {
	if v == nil {
		return placeholderCoordinate
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return strings.TrimSpace(v)
}
