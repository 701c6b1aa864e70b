package intake

import (
	"regexp"
	"strings"

	"github.com/wolfman30/evidens-whatsapp-bot/internal/store"
)

// Doctor display names stored in the conversation context.
const (
	PrimarySpecialist   = "Dr. Gabriel"
	SecondarySpecialist = "Dr. Rômulo"
)

// Preferred period labels stored in the conversation context.
const (
	PeriodAfternoon = "Tarde (13h30-18h)"
	PeriodEvening   = "Noite (18h-20h)"
	PeriodSaturday  = "Sábado"
)

// ProfileUpdate is the patient-level change derived from one utterance.
// Returning is one-way: it is never reported as false after being seen.
type ProfileUpdate struct {
	Name      string
	Returning bool
}

// Empty reports whether the update changes nothing.
func (u ProfileUpdate) Empty() bool {
	return u.Name == "" && !u.Returning
}

// PatientUpdate converts the extraction result into a store update.
func (u ProfileUpdate) PatientUpdate() store.PatientUpdate {
	var upd store.PatientUpdate
	if u.Name != "" {
		name := u.Name
		upd.Name = &name
	}
	if u.Returning {
		returning := true
		upd.IsReturning = &returning
	}
	return upd
}

// Extractor derives qualification fields from a patient utterance.
type Extractor interface {
	Extract(ctx store.Context, utterance string) (store.Context, ProfileUpdate)
}

var (
	namePattern = regexp.MustCompile(`(?i)(?:meu nome é|me chamo|sou (?:o|a))\s+([A-Za-zÀ-ÿ\s]+)`)
	// Go's \b is ASCII-only, so the boundary around "já" is spelled out.
	alreadyPattern = regexp.MustCompile(`(?:^|[^\p{L}\p{N}_])já(?:$|[^\p{L}\p{N}_])`)
)

type concernRule struct {
	keyword string
	concern string
	doctor  string
}

var concernRules = []concernRule{
	{keyword: "pele", concern: "pele", doctor: PrimarySpecialist},
	{keyword: "cabelo", concern: "cabelo", doctor: SecondarySpecialist},
	{keyword: "unha", concern: "unhas", doctor: PrimarySpecialist},
}

type periodRule struct {
	keywords []string
	period   string
}

var periodRules = []periodRule{
	{keywords: []string{"tarde"}, period: PeriodAfternoon},
	{keywords: []string{"noite"}, period: PeriodEvening},
	{keywords: []string{"sábado", "sabado"}, period: PeriodSaturday},
}

var returningKeywords = []string{"retorno", "voltando"}

// KeywordExtractor matches fixed Portuguese keywords. It only ever adds or
// overwrites fields, so applying it twice to the same utterance is a no-op.
type KeywordExtractor struct{}

var _ Extractor = KeywordExtractor{}

// Extract returns a new context; the input is not modified.
func (KeywordExtractor) Extract(ctx store.Context, utterance string) (store.Context, ProfileUpdate) {
	out := store.NormalizeContext(ctx)
	var update ProfileUpdate

	if m := namePattern.FindStringSubmatch(utterance); m != nil {
		if name := strings.TrimSpace(m[1]); name != "" {
			out[store.KeyName] = name
			update.Name = name
		}
	}

	lower := strings.ToLower(utterance)
	for _, rule := range concernRules {
		if strings.Contains(lower, rule.keyword) {
			out[store.KeyConcern] = rule.concern
			out[store.KeyDoctor] = rule.doctor
			break
		}
	}

period:
	for _, rule := range periodRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				out[store.KeyPreferredPeriod] = rule.period
				break period
			}
		}
	}

	update.Returning = isReturningSignal(lower)
	return out, update
}

func isReturningSignal(lower string) bool {
	if alreadyPattern.MatchString(lower) {
		return true
	}
	for _, kw := range returningKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
