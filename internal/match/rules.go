package match

// defaultSynonyms returns the built-in label equivalence groups. Terms are
// written in normalized form; LoadPolicy normalizes user supplied terms.
func defaultSynonyms() [][]string {
	return [][]string{
		// Names
		{"first name", "given name", "fname", "forename", "first"},
		{"last name", "surname", "family name", "lname", "last"},
		{"middle name", "middle initial", "mi", "middle"},
		{"full name", "name", "applicant name", "print name", "printed name"},

		// Contact
		{"email", "email address", "e mail", "e mail address", "mail"},
		{"phone", "phone number", "telephone", "telephone number", "tel", "home phone", "primary phone", "daytime phone"},
		{"mobile", "mobile phone", "mobile number", "cell", "cell phone", "cell number"},

		// Address
		{"address", "street address", "street", "address line 1", "address 1", "mailing address", "home address", "residential address"},
		{"address line 2", "address 2", "apt", "apartment", "suite", "unit"},
		{"city", "town", "city town"},
		{"state", "province", "region", "state province"},
		{"zip", "zip code", "zipcode", "postal code", "postcode", "post code"},
		{"country", "nation", "country of residence"},

		// Identity
		{"date of birth", "dob", "birth date", "birthdate", "birthday"},
		{"ssn", "social security number", "social security", "social security no", "ss number"},
		{"drivers license number", "drivers license", "driver license", "license number", "dl number", "dl"},

		// Employment
		{"employer", "company", "company name", "employer name", "organization"},
		{"position", "job title", "title", "occupation", "position applied for"},

		// Dates
		{"date", "today", "todays date", "current date", "date signed", "signature date"},
	}
}

// defaultStopwords are dropped before fuzzy token comparison
func defaultStopwords() []string {
	return []string{
		"a", "an", "and", "any", "box", "check", "enter", "field", "for",
		"here", "if", "in", "my", "of", "on", "or", "please", "text", "the",
		"to", "your",
	}
}
