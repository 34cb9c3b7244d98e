package classify

// SIT ids for the built-in sample detectors
const (
	SITEmail        = "sample-email-address"
	SITUSSSN        = "sample-us-ssn"
	SITCreditCard   = "sample-credit-card-number"
	SITUSPhone      = "sample-us-phone-number"
	SITIPAddress    = "sample-ipv4-address"
	SITAWSAccessKey = "sample-aws-access-key"
	SITIBAN         = "sample-iban"
	SITJSONWebToken = "sample-json-web-token"
)

// SamplePresets returns the built-in sample detectors. Each call returns a
// fresh slice the caller may modify.
func SamplePresets() []Detector {
	return []Detector{
		{
			ID:              "sample-email",
			Name:            "Email Address",
			Description:     "Detects email addresses",
			Pattern:         PatternDescriptor{Source: `[A-Z0-9._%+-]+@[A-Z0-9.-]+\.[A-Z]{2,}`},
			MinCount:        1,
			Confidence:      ScoreOf(60),
			SensitiveTypeID: SITEmail,
			Source:          SourceSample,
		},
		{
			ID:              "sample-ssn",
			Name:            "U.S. Social Security Number",
			Description:     "Detects dash-separated US Social Security Numbers",
			Pattern:         PatternDescriptor{Source: `\b\d{3}-\d{2}-\d{4}\b`},
			MinCount:        1,
			Confidence:      ScoreOf(75),
			SensitiveTypeID: SITUSSSN,
			Source:          SourceSample,
		},
		{
			ID:              "sample-credit-card",
			Name:            "Credit Card Number",
			Description:     "Detects 15 and 16 digit card numbers, optionally grouped",
			Pattern:         PatternDescriptor{Source: `\b(?:\d{4}[-\s]?\d{4}[-\s]?\d{4}[-\s]?\d{4}|\d{15,16})\b`},
			MinCount:        1,
			Confidence:      ScoreOf(75),
			SensitiveTypeID: SITCreditCard,
			Source:          SourceSample,
		},
		{
			ID:              "sample-us-phone",
			Name:            "U.S. Phone Number",
			Description:     "Detects North American phone numbers",
			Pattern:         PatternDescriptor{Source: `(?:\+?1[-.\s]?)?\(?[2-9]\d{2}\)?[-.\s]?\d{3}[-.\s]?\d{4}\b`},
			MinCount:        1,
			Confidence:      ScoreOf(55),
			SensitiveTypeID: SITUSPhone,
			Source:          SourceSample,
		},
		{
			ID:          "sample-ipv4",
			Name:        "IPv4 Address",
			Description: "Detects dotted-quad IPv4 addresses",
			Pattern: PatternDescriptor{Source: `\b(?:(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\.){3}` +
				`(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\b`},
			MinCount:        1,
			Confidence:      ScoreOf(50),
			SensitiveTypeID: SITIPAddress,
			Source:          SourceSample,
		},
		{
			ID:              "sample-aws-access-key",
			Name:            "AWS Access Key ID",
			Description:     "Detects AWS access key identifiers",
			Pattern:         PatternDescriptor{Source: `\b(?:AKIA|ABIA|ACCA|ASIA)[A-Z0-9]{16}\b`, Flags: "g"},
			MinCount:        1,
			Confidence:      ScoreOf(85),
			SensitiveTypeID: SITAWSAccessKey,
			Source:          SourceSample,
		},
		{
			ID:              "sample-iban",
			Name:            "International Bank Account Number",
			Description:     "Detects IBAN-shaped account numbers",
			Pattern:         PatternDescriptor{Source: `\b[A-Z]{2}\d{2}[A-Z0-9]{4}\d{7}[A-Z0-9]{0,16}\b`, Flags: "g"},
			MinCount:        1,
			Confidence:      ScoreOf(65),
			SensitiveTypeID: SITIBAN,
			Source:          SourceSample,
		},
		{
			ID:              "sample-jwt",
			Name:            "JSON Web Token",
			Description:     "Detects header.payload.signature JWTs",
			Pattern:         PatternDescriptor{Source: `eyJ[A-Za-z0-9_-]{10,}\.eyJ[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}`, Flags: "g"},
			MinCount:        1,
			Confidence:      ScoreOf(80),
			SensitiveTypeID: SITJSONWebToken,
			Source:          SourceSample,
		},
	}
}

// PresetByID returns the sample detector with the given id
func PresetByID(id string) (Detector, bool) {
	for _, d := range SamplePresets() {
		if d.ID == id {
			return d, true
		}
	}
	return Detector{}, false
}
