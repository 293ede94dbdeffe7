package workflow

import "fmt"

// AgentKind identifies which executor handles a step. The set is closed:
// dispatch is a tagged table keyed by kind, not string-built routes.
type AgentKind string

const (
	KindScout             AgentKind = "scout"
	KindQualifier         AgentKind = "qualifier"
	KindOutreachEmail     AgentKind = "outreach_email"
	KindOutreachSMS       AgentKind = "outreach_sms"
	KindBooker            AgentKind = "booker"
	KindResearcher        AgentKind = "researcher"
	KindContentWriter     AgentKind = "content_writer"
	KindImageGenerator    AgentKind = "image_generator"
	KindMediaBuyer        AgentKind = "media_buyer"
	KindWebsiteAuditor    AgentKind = "website_auditor"
	KindSlideGenerator    AgentKind = "slide_generator"
	KindCarouselGenerator AgentKind = "carousel_generator"
	KindBrowserOperator   AgentKind = "browser_operator"
	KindSendLink          AgentKind = "send_link"
	KindDream100Discover  AgentKind = "dream100_discover"
	KindDream100Outreach  AgentKind = "dream100_outreach"
)

// Kinds lists every known agent kind in a stable order.
var Kinds = []AgentKind{
	KindScout, KindQualifier, KindOutreachEmail, KindOutreachSMS,
	KindBooker, KindResearcher, KindContentWriter, KindImageGenerator,
	KindMediaBuyer, KindWebsiteAuditor, KindSlideGenerator,
	KindCarouselGenerator, KindBrowserOperator, KindSendLink,
	KindDream100Discover, KindDream100Outreach,
}

// ParseKind validates a raw string against the closed kind set.
func ParseKind(s string) (AgentKind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown agent kind %q", s)
}

// CatalogEntry describes one agent for the planner prompt.
type CatalogEntry struct {
	Kind        AgentKind
	Description string
	ParamHint   string
}

// Catalog enumerates the available agents with the parameter shapes the
// planner is expected to emit for each.
var Catalog = []CatalogEntry{
	{KindScout, "finds leads for a niche in a location", `{"niche": string, "location": string, "count": number}`},
	{KindQualifier, "scores and filters previously found leads", `{"min_score": number}`},
	{KindOutreachEmail, "emails a batch of qualified leads", `{"subject": string, "template": string}`},
	{KindOutreachSMS, "texts a batch of qualified leads", `{"template": string}`},
	{KindBooker, "books meetings with leads that replied", `{"calendar_link": string}`},
	{KindResearcher, "researches a topic or company in depth", `{"topic": string}`},
	{KindContentWriter, "writes marketing copy or articles", `{"topic": string, "tone": string}`},
	{KindImageGenerator, "generates marketing images", `{"prompt": string, "count": number}`},
	{KindMediaBuyer, "drafts paid ad campaigns", `{"platform": string, "budget": number}`},
	{KindWebsiteAuditor, "audits a website for conversion issues", `{"url": string}`},
	{KindSlideGenerator, "builds a slide deck outline", `{"topic": string, "slides": number}`},
	{KindCarouselGenerator, "creates a social carousel with image prompts", `{"topic": string, "slides": number}`},
	{KindBrowserOperator, "performs a scripted browsing task", `{"task": string}`},
	{KindSendLink, "sends a link to a contact", `{"to": string, "url": string}`},
	{KindDream100Discover, "discovers dream-100 target accounts", `{"niche": string, "count": number}`},
	{KindDream100Outreach, "runs outreach against the dream-100 list", `{"template": string}`},
}
