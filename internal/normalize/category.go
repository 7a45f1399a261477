package normalize

import "strings"

// Category is the semantic type inferred from a field name.
type Category int

const (
	CategoryGeneric Category = iota
	CategoryEmail
	CategoryPhone
	CategoryDate
	CategoryAmount
	CategoryAddress
	CategoryName
)

func (c Category) String() string {
	switch c {
	case CategoryEmail:
		return "email"
	case CategoryPhone:
		return "phone"
	case CategoryDate:
		return "date"
	case CategoryAmount:
		return "amount"
	case CategoryAddress:
		return "address"
	case CategoryName:
		return "name"
	default:
		return "generic"
	}
}

type categoryRule struct {
	category Category
	keywords []string
}

// Checked in order; the first rule with a matching keyword wins.
var categoryRules = []categoryRule{
	{CategoryEmail, []string{"email"}},
	{CategoryPhone, []string{"phone"}},
	{CategoryDate, []string{"date"}},
	{CategoryAmount, []string{"amount", "price", "total", "cost", "fee", "tax", "sum"}},
	{CategoryAddress, []string{"address", "street", "city", "state", "zip", "postal"}},
	{CategoryName, []string{"name", "customer", "client", "vendor", "supplier"}},
}

// CategoryOf matches the field name, case-insensitively, against the keyword
// table.
func CategoryOf(fieldName string) Category {
	lower := strings.ToLower(fieldName)
	for _, rule := range categoryRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.category
			}
		}
	}
	return CategoryGeneric
}

// Apply runs the normalizer for the category. Generic values pass through.
func Apply(c Category, value string) string {
	switch c {
	case CategoryEmail:
		return Email(value)
	case CategoryPhone:
		return Phone(value)
	case CategoryDate:
		return Date(value)
	case CategoryAmount:
		return Amount(value)
	case CategoryAddress:
		return Address(value)
	case CategoryName:
		return Name(value)
	default:
		return value
	}
}

// Field normalizes value using the normalizer selected by fieldName.
func Field(fieldName, value string) string {
	return Apply(CategoryOf(fieldName), value)
}
