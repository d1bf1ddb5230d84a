// Package notify composes chat-webhook cards for smoke runs and delivers them
// with a single best-effort POST.
package notify

// Card colors.
const (
	ColorFailure = "FF0000"
	ColorSuccess = "00FF00"
	ColorWarning = "FFA500"
)

// Card is a connector MessageCard.
type Card struct {
	Type            string    `json:"@type"`
	Context         string    `json:"@context"`
	ThemeColor      string    `json:"themeColor"`
	Summary         string    `json:"summary"`
	Title           string    `json:"title"`
	Sections        []Section `json:"sections"`
	PotentialAction []Action  `json:"potentialAction,omitempty"`
}

// Section is one block of a card.
type Section struct {
	ActivityTitle    string `json:"activityTitle,omitempty"`
	ActivitySubtitle string `json:"activitySubtitle,omitempty"`
	Text             string `json:"text,omitempty"`
	Facts            []Fact `json:"facts,omitempty"`
	Markdown         bool   `json:"markdown"`
}

// Fact is a name/value row in a section.
type Fact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Action is a button on the card.
type Action struct {
	Type    string   `json:"@type"`
	Name    string   `json:"name"`
	Targets []Target `json:"targets"`
}

// Target is where an OpenUri action points.
type Target struct {
	OS  string `json:"os"`
	URI string `json:"uri"`
}

// NewCard returns a card with the MessageCard envelope filled in.
func NewCard(title, color string) Card {
	return Card{
		Type:       "MessageCard",
		Context:    "http://schema.org/extensions",
		ThemeColor: color,
		Summary:    title,
		Title:      title,
	}
}

// OpenURI returns an action that opens uri.
func OpenURI(name, uri string) Action {
	return Action{
		Type:    "OpenUri",
		Name:    name,
		Targets: []Target{{OS: "default", URI: uri}},
	}
}
