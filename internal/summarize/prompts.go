package summarize

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// EmptyMarker is the literal a summary section shows when nothing
// qualified. The fusion stage relies on it to tell "checked, found nothing"
// apart from "not checked", so both contracts must keep it stable.
const EmptyMarker = "- none"

// Output caps enforced by the fusion contract.
const (
	MaxLinks       = 10
	MaxNamedPeople = 3
)

// Profile selects the corroboration bar for confirmed recommendations.
// Exactly one policy applies per deployment; the two are never blended.
type Profile string

const (
	// ProfileDirect accepts a single explicit recommendation with a named
	// subject and a stated reason.
	ProfileDirect Profile = "direct"

	// ProfileCommunity raises the bar for group chats: a recommendation is
	// confirmed only when two or more independent messages support it.
	ProfileCommunity Profile = "community"
)

// Override file names looked up in the bot home directory.
const (
	PartialOverrideFile = "partial_prompt.txt"
	FusionOverrideFile  = "fusion_prompt.txt"
)

const partialContract = `You summarize one slice of a group chat. Lines look like "[HH:MM] author: text".

Hard rules:
- Use only what the text says. Never invent names, places, items, or links.
- A purchase counts only when someone clearly states a completed decision to buy, with a concrete item and a concrete place or link.
- A recommendation counts only with a named subject and a stated reason.
- A link may be reported only if its URL literally appears in the text. Never infer a link from a brand or place name.

Write these sections, in this order, each as short bullets:
Scenes:
Facts:
Purchases:
Recommendations:
Unconfirmed:
Links:
Plans:

Put anything that failed the rules above under Unconfirmed. If a section has nothing that qualifies, write exactly "- none" under its heading. Keep the whole summary under 12 bullets.

Transcript slice:
`

const fusionContractHeader = `You fuse several partial summaries of one group chat into a single digest. The partials share one section layout and use "- none" for sections where nothing was found.

Rules:
- Merge duplicates: a fact repeated across partials appears once.
- Re-check every item against the bars: a purchase needs a stated completed decision with a concrete item and source; %s Drop anything that no longer qualifies, or move it to Unconfirmed.
- List at most %d links, only ones taken verbatim from a partial's Links section.
- Name at most %d individual people across the whole digest.
- Open with one short paragraph on what the chat was about, in a light storytelling tone.
- Then write the sections Scenes, Purchases, Recommendations, Unconfirmed, Links, Plans with at most 3 bullets each, writing exactly "- none" under any empty section.

Partial summaries:
`

// profile clauses spliced into the fusion contract.
const (
	directClause    = `a recommendation needs a named subject and a stated reason; one clear, explicit recommendation is enough.`
	communityClause = `a recommendation counts as confirmed only when at least two different messages independently support it; single mentions go under Unconfirmed.`
)

// fusionContract renders the fusion instruction for the given profile.
func fusionContract(profile Profile) string {
	clause := directClause
	if profile == ProfileCommunity {
		clause = communityClause
	}
	return fmt.Sprintf(fusionContractHeader, clause, MaxLinks, MaxNamedPeople)
}

// PromptSet holds the two stage contracts. Contracts can be replaced from
// override files and hot-reloaded while runs are in flight, so reads go
// through an RWMutex.
type PromptSet struct {
	mu      sync.RWMutex
	partial string
	fusion  string
}

// NewPromptSet builds the built-in contracts for the given profile.
func NewPromptSet(profile Profile) *PromptSet {
	return &PromptSet{
		partial: partialContract,
		fusion:  fusionContract(profile),
	}
}

// Partial renders the Stage-1 prompt for one block.
func (p *PromptSet) Partial(block string) string {
	p.mu.RLock()
	tmpl := p.partial
	p.mu.RUnlock()
	return tmpl + block
}

// Fusion renders the Stage-2 prompt over all partial summaries in block
// order.
func (p *PromptSet) Fusion(partials []string) string {
	p.mu.RLock()
	tmpl := p.fusion
	p.mu.RUnlock()
	return tmpl + strings.Join(partials, "\n\n")
}

// LoadOverrides replaces contracts from override files in dir when present
// and non-empty. Missing files leave the built-in contract untouched.
// Returns the file names applied, for logging.
func (p *PromptSet) LoadOverrides(dir string) []string {
	var applied []string
	if text, ok := readOverride(filepath.Join(dir, PartialOverrideFile)); ok {
		p.mu.Lock()
		p.partial = text
		p.mu.Unlock()
		applied = append(applied, PartialOverrideFile)
	}
	if text, ok := readOverride(filepath.Join(dir, FusionOverrideFile)); ok {
		p.mu.Lock()
		p.fusion = text
		p.mu.Unlock()
		applied = append(applied, FusionOverrideFile)
	}
	return applied
}

func readOverride(path string) (string, bool) {
	b, err := os.ReadFile(path)
	if err != nil || len(strings.TrimSpace(string(b))) == 0 {
		return "", false
	}
	return string(b), true
}
