package stats

// Topic names a statistics message.
type Topic string

// One-shot topics, emitted at most once per run and stage.
const (
	TopicContactSource         Topic = "contact_source"          // rows, elapsed
	TopicFirstValidationResult Topic = "first_validation_result" // time of the first verdict
	TopicValidation            Topic = "validation"              // verdicts, elapsed
	TopicXJoin                 Topic = "xjoin"                   // pairs, matched, unmatched
	TopicPostProcessing        Topic = "post_processing"         // rows, elapsed
	TopicException             Topic = "exception"               // stage, error
	TopicTimeout               Topic = "timeout"                 // stage gave up waiting on an input
)

// Field names used in message payloads
const (
	FieldRows      = "rows"
	FieldElapsed   = "elapsed"
	FieldVerdicts  = "verdicts"
	FieldPairs     = "pairs"
	FieldMatched   = "matched"
	FieldUnmatched = "unmatched"
	FieldStage     = "stage"
	FieldTimestamp = "timestamp"
	FieldErrorCode = "error_code"
)
