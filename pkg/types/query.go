package types

// Category is the detected intent of a question. It selects the channel
// weight profile and the base gate threshold.
type Category string

const (
	CategoryPurpose        Category = "purpose"
	CategoryImplementation Category = "implementation"
	CategoryParameter      Category = "parameter"
	CategoryDefault        Category = "default"
)

// QueryContext holds everything derived from one raw question.
type QueryContext struct {
	Question string
	Keywords []string
	Symbols  []string
	Variants []string
	Category Category
}
