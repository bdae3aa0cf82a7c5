package graph

import (
	"regexp"
	"strings"
)

// Edge labels of the exported graph.
const (
	RelTransitionsTo = "TRANSITIONS_TO"
	RelPartOf        = "PART_OF"
	RelInvolvedIn    = "INVOLVED_IN"
	RelInteractsWith = "INTERACTS_WITH"
)

// Roles an element plays in a transition.
const (
	RoleSends    = "SENDS"
	RoleReceives = "RECEIVES"
)

// relationVerbs are leading verbs that name an element relationship on
// their own ("sends registration request to" -> SENDS).
var relationVerbs = regexp.MustCompile(`^(sends|receives|authenticates|requests|provides|manages|controls|forwards|processes|initiates|terminates|connects|disconnects|registers|deregisters|allocates|deallocates|establishes|releases|monitors|updates|verifies|validates|configures|coordinates|handles|routes|transmits|stores|retrieves|generates|maintains|synchronizes|notifies|informs|checks|authorizes|rejects|accepts|acknowledges|triggers|implements|supports|enables|facilitates|performs|executes|delivers|serves|hosts|contains|includes|requires|depends|selects|identifies|detects|locates|tracks|protects|secures|encrypts|decrypts|signs|interacts|communicates|interfaces|queries|subscribes|exposes|discovers|anchors|pages|relays)\s`)

var nonWord = regexp.MustCompile(`[^\w\s]`)

// RelationshipType turns relationship text into an edge label: a leading
// verb from relationVerbs, else the first three words, else INTERACTS_WITH.
func RelationshipType(text string) string {
	t := strings.ToLower(strings.TrimSpace(text)) + " "
	if m := relationVerbs.FindStringSubmatch(t); m != nil {
		return strings.ToUpper(m[1])
	}
	words := strings.Fields(nonWord.ReplaceAllString(t, ""))
	if len(words) == 0 {
		return RelInteractsWith
	}
	if len(words) > 3 {
		words = words[:3]
	}
	label := strings.ToUpper(strings.Join(words, "_"))
	if label == "" || (label[0] >= '0' && label[0] <= '9') {
		return RelInteractsWith
	}
	return label
}
