package extract

import (
	"regexp"
	"sort"
	"strings"
)

// statePattern matches 5GMM and 5GSM state names, including substates
// written with dot notation.
var statePattern = regexp.MustCompile(`\b(5GMM-[A-Z]+(?:-[A-Z]+)*(?:\.[A-Z0-9]+(?:-[A-Z0-9]+)*)?|PDU SESSION (?:ACTIVE PENDING|INACTIVE PENDING|MODIFICATION PENDING|ACTIVE|INACTIVE)|PROCEDURE TRANSACTION (?:PENDING|INACTIVE))\b`)

// messagePattern matches upper-case NAS message names such as
// "REGISTRATION REQUEST" or "PDU SESSION ESTABLISHMENT ACCEPT".
var messagePattern = regexp.MustCompile(`\b((?:[A-Z0-9][A-Z0-9/-]*\s+){1,5}(?:REQUEST|ACCEPT|REJECT|COMPLETE|COMMAND|RESPONSE|FAILURE|RESULT|INDICATION|NOTIFICATION|STATUS|TRANSPORT))\b`)

var timerPattern = regexp.MustCompile(`\bT3\d{3}\b`)

var timerAction = regexp.MustCompile(`(?i)\b(?:start|stop|restart|reset)\w*\s+(?:the\s+)?timers?\s+T3\d{3}\b`)

var (
	targetPrefix = regexp.MustCompile(`(?i)\b(?:enter|enters|entering|entered|move to|moves to|moving to|return to|returns to|remain in|remains in|stay in|stays in)\s+(?:the\s+)?(?:sub)?(?:state\s+)?$`)
	sourcePrefix = regexp.MustCompile(`(?i)\bin\s+(?:the\s+)?(?:sub)?(?:state\s+)?$`)
)

var (
	triggerPattern   = regexp.MustCompile(`(?i)\b(?:upon|on|after|when)\s+(?:receipt|receiving|reception|expiry|expiration|completion|the|a|an)\b[^,;]*`)
	conditionPattern = regexp.MustCompile(`(?i)\bif\s+[^,;]+`)
	sendPattern      = regexp.MustCompile(`(?i)\b(?:send|sends|sending|initiat\w*|transmit\w*)\b`)
	receivePattern   = regexp.MustCompile(`(?i)\b(?:receipt of|receiving|receives|received)\b`)
	subjectPattern   = regexp.MustCompile(`\b(UE|MS|AMF|SMF|MME|network)\b[^.,;]{0,80}?\b(?:shall|enters|moves|remains)\b`)
)

// elements are the network functions recognised in running text, longest
// first so that "NG-RAN" wins over "RAN".
var elements = []string{
	"UE", "AMF", "SMF", "UPF", "PCF", "NRF", "AUSF", "SEAF", "UDM", "UDR",
	"NSSF", "NEF", "SMSF", "N3IWF", "NG-RAN", "RAN", "LMF", "MME",
}

var elementPattern = func() *regexp.Regexp {
	names := append([]string(nil), elements...)
	sort.SliceStable(names, func(i, j int) bool { return len(names[i]) > len(names[j]) })
	for i, n := range names {
		names[i] = regexp.QuoteMeta(n)
	}
	return regexp.MustCompile(`\b(` + strings.Join(names, "|") + `)\b`)
}()

var peerPattern = regexp.MustCompile(`(?i)\b(to|from)\s+the\s+(` + strings.Join(elements, "|") + `|network)\b`)

// messageName strips element prefixes from a messagePattern match. It
// returns "" when the match is a state name.
func messageName(s string) string {
	fields := strings.Fields(s)
	for len(fields) > 1 && isElement(fields[0]) {
		fields = fields[1:]
	}
	name := strings.Join(fields, " ")
	if statePattern.MatchString(name) || strings.HasPrefix(name, "5GMM-") {
		return ""
	}
	return name
}

func isElement(s string) bool {
	for _, e := range elements {
		if s == e {
			return true
		}
	}
	return false
}

// relevant reports whether text mentions anything a state machine can be
// built from.
func relevant(text string) bool {
	return statePattern.MatchString(text) || messagePattern.MatchString(text)
}
