package workflow

// Well-known memory keys. Each agent declares which of these it reads and
// writes, so inter-step contracts stay typed instead of ad-hoc map lookups.
const (
	KeyScoutResults     = "scout_results"
	KeyQualifierResults = "qualifier_results"
	KeyCarouselOutput   = "carousel_output"
	KeyGeneratedImages  = "generated_images"
	KeyOutreachResults  = "outreach_results"
	KeyContentOutput    = "content_output"
)

// OutputKey returns the memory key a generic agent writes its result under.
func OutputKey(kind AgentKind) string {
	return string(kind) + "_output"
}

// Lead is a single prospect found by the scout and enriched downstream.
type Lead struct {
	Name     string `json:"name"`
	Company  string `json:"company,omitempty"`
	Email    string `json:"email,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Website  string `json:"website,omitempty"`
	Location string `json:"location,omitempty"`
	Score    int    `json:"score,omitempty"`
}

// ScoutResults is what the scout agent writes under KeyScoutResults.
type ScoutResults struct {
	LeadsFound int    `json:"leads_found"`
	Niche      string `json:"niche,omitempty"`
	Location   string `json:"location,omitempty"`
	Leads      []Lead `json:"leads"`
}

// QualifierResults is what the qualifier writes under KeyQualifierResults.
type QualifierResults struct {
	Qualified int    `json:"qualified"`
	MinScore  int    `json:"min_score"`
	Leads     []Lead `json:"leads"`
}

// CarouselOutput is what the carousel generator writes under
// KeyCarouselOutput. ImagePrompts lets the image generator chain off it.
type CarouselOutput struct {
	Topic        string   `json:"topic"`
	Slides       []string `json:"slides"`
	ImagePrompts []string `json:"image_prompts"`
}

// GeneratedImages is what the image generator writes under KeyGeneratedImages.
type GeneratedImages struct {
	Count int      `json:"count"`
	URLs  []string `json:"urls"`
}

// BatchItem is one per-recipient record of a batch outreach step.
type BatchItem struct {
	Recipient string `json:"recipient"`
	Status    string `json:"status"` // "sent" or "failed"
	MessageID string `json:"message_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// BatchSummary summarizes a batch step: totals plus a capped sample of
// per-item results so step output stays bounded.
type BatchSummary struct {
	Attempted int         `json:"attempted"`
	Succeeded int         `json:"succeeded"`
	Failed    int         `json:"failed"`
	Sample    []BatchItem `json:"sample"`
}
