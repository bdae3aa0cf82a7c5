package normalize

import "github.com/brunobiangulo/nasgraph/model"

// Synonym maps a documented naming variant onto its canonical state name.
// A synonym with Side UNSPECIFIED applies on every side; otherwise it only
// applies to names seen on that side.
type Synonym struct {
	Side model.Side `json:"side" yaml:"side"`
	From string     `json:"from" yaml:"from"`
	To   string     `json:"to" yaml:"to"`
}

// DefaultSynonyms are the variants observed in TS 24.501 extractions.
var DefaultSynonyms = []Synonym{
	{Side: model.SideUE, From: "5GMM-REGISTERING", To: "5GMM-REGISTERED-INITIATED"},
	{Side: model.SideUE, From: "5GMM-SERVICE-REQUEST", To: "5GMM-SERVICE-REQUEST-INITIATED"},
	{Side: model.SideUnspecified, From: "5GMM-DEREGISTERING", To: "5GMM-DEREGISTERED-INITIATED"},
	{Side: model.SideNetwork, From: "5GMM-REGISTERED-INITIATED", To: "5GMM-COMMON-PROCEDURE-INITIATED"},
	{Side: model.SideNetwork, From: "5GMM-REGISTERING", To: "5GMM-COMMON-PROCEDURE-INITIATED"},
}

// DefaultVocabulary lists the states each side's machine defines in
// TS 24.501 clauses 5.1.3 and 6.1.3.
var DefaultVocabulary = map[model.Side][]string{
	model.SideUE: {
		"5GMM-NULL",
		"5GMM-DEREGISTERED",
		"5GMM-REGISTERED-INITIATED",
		"5GMM-REGISTERED",
		"5GMM-DEREGISTERED-INITIATED",
		"5GMM-SERVICE-REQUEST-INITIATED",
		"5GMM-DEREGISTERED.NORMAL-SERVICE",
		"5GMM-DEREGISTERED.LIMITED-SERVICE",
		"5GMM-DEREGISTERED.ATTEMPTING-REGISTRATION",
		"5GMM-DEREGISTERED.PLMN-SEARCH",
		"5GMM-DEREGISTERED.NO-SUPI",
		"5GMM-DEREGISTERED.NO-CELL-AVAILABLE",
		"5GMM-DEREGISTERED.ECALL-INACTIVE",
		"5GMM-DEREGISTERED.INITIAL-REGISTRATION-NEEDED",
		"5GMM-REGISTERED.NORMAL-SERVICE",
		"5GMM-REGISTERED.NON-ALLOWED-SERVICE",
		"5GMM-REGISTERED.ATTEMPTING-REGISTRATION-UPDATE",
		"5GMM-REGISTERED.LIMITED-SERVICE",
		"5GMM-REGISTERED.PLMN-SEARCH",
		"5GMM-REGISTERED.UPDATE-NEEDED",
		"5GMM-REGISTERED.NO-CELL-AVAILABLE",
		"5GMM-IDLE",
		"5GMM-CONNECTED",
		"PDU SESSION INACTIVE",
		"PDU SESSION ACTIVE PENDING",
		"PDU SESSION ACTIVE",
		"PDU SESSION INACTIVE PENDING",
		"PDU SESSION MODIFICATION PENDING",
		"PROCEDURE TRANSACTION INACTIVE",
		"PROCEDURE TRANSACTION PENDING",
	},
	model.SideNetwork: {
		"5GMM-DEREGISTERED",
		"5GMM-COMMON-PROCEDURE-INITIATED",
		"5GMM-REGISTERED",
		"5GMM-DEREGISTERED-INITIATED",
		"5GMM-IDLE",
		"5GMM-CONNECTED",
		"PDU SESSION INACTIVE",
		"PDU SESSION ACTIVE",
		"PDU SESSION INACTIVE PENDING",
		"PDU SESSION MODIFICATION PENDING",
		"PROCEDURE TRANSACTION INACTIVE",
		"PROCEDURE TRANSACTION PENDING",
	},
}

// KnownElements maps long-form 5GC function names to their abbreviation.
var KnownElements = map[string]string{
	"USER EQUIPMENT":                                 "UE",
	"ACCESS AND MOBILITY MANAGEMENT FUNCTION":        "AMF",
	"SESSION MANAGEMENT FUNCTION":                    "SMF",
	"USER PLANE FUNCTION":                            "UPF",
	"POLICY CONTROL FUNCTION":                        "PCF",
	"NETWORK REPOSITORY FUNCTION":                    "NRF",
	"AUTHENTICATION SERVER FUNCTION":                 "AUSF",
	"SECURITY ANCHOR FUNCTION":                       "SEAF",
	"UNIFIED DATA MANAGEMENT":                        "UDM",
	"UNIFIED DATA REPOSITORY":                        "UDR",
	"NETWORK SLICE SELECTION FUNCTION":               "NSSF",
	"NETWORK EXPOSURE FUNCTION":                      "NEF",
	"APPLICATION FUNCTION":                           "AF",
	"SHORT MESSAGE SERVICE FUNCTION":                 "SMSF",
	"NON-3GPP INTERWORKING FUNCTION":                 "N3IWF",
	"RADIO ACCESS NETWORK":                           "RAN",
	"NEXT GENERATION RADIO ACCESS NETWORK":           "NG-RAN",
	"DATA NETWORK":                                   "DN",
	"SECURITY CONTEXT MANAGEMENT FUNCTION":           "SCMF",
	"SUBSCRIPTION IDENTIFIER DE-CONCEALING FUNCTION": "SIDF",
	"LOCATION MANAGEMENT FUNCTION":                   "LMF",
	"MOBILITY MANAGEMENT ENTITY":                     "MME",
}
