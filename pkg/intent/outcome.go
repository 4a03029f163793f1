package intent

// Outcome is the result of trying to understand a query: either a validated
// intent or the raw text that could not be parsed. Downstream decision
// functions are total over these two variants; there is no third shape.
type Outcome struct {
	parsed bool
	intent QueryIntent
	raw    string
	err    error
}

func Parsed(q QueryIntent) Outcome {
	return Outcome{parsed: true, intent: q}
}

func Unparsed(raw string, err error) Outcome {
	return Outcome{raw: raw, err: err}
}

// Intent returns the validated intent and whether one exists.
func (o Outcome) Intent() (QueryIntent, bool) {
	return o.intent, o.parsed
}

func (o Outcome) Raw() string { return o.raw }

func (o Outcome) Err() error { return o.err }
