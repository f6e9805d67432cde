// Package steps implements the posting step library: named, independently
// retryable operations that drive one screen of the target marketplace's
// create-listing flow. A single implementation is parameterized by a Platform
// table (selectors, keyword tables, labels, patterns) instead of duplicating
// the library per marketplace.
package steps

import (
	"regexp"

	"github.com/crosslister/postflow/internal/dom"
)

// Logical target keys looked up in a Platform's Targets table.
const (
	TargetTitle           = "title"
	TargetPrice           = "price"
	TargetDescription     = "description"
	TargetCategoryOpener  = "category_opener"
	TargetCategoryOption  = "category_option"
	TargetConditionOpener = "condition_opener"
	TargetConditionOption = "condition_option"
	TargetFileInput       = "file_input"
	TargetLocation        = "location"
	TargetGroupOption     = "group_option"
)

// Category pairs an option name with the keyword set used to infer it from
// listing text. Table order is the tie-break: earlier entries win ties.
type Category struct {
	Name     string
	Keywords []string
}

// Platform is the per-marketplace parameter table. Everything site-specific
// lives here; the step functions themselves are platform-agnostic.
type Platform struct {
	Name string

	// Targets maps logical element names to ordered fallback chains.
	Targets map[string]dom.Target

	// Categories drives keyword inference; DefaultCategory is the zero-match
	// fallback. Aliases is a smaller table resolving ambiguous option names
	// ("Home & Garden" style) with the same scorer.
	Categories      []Category
	Aliases         []Category
	DefaultCategory string

	// Conditions are the option labels the site offers, in display order.
	Conditions []string

	// NextLabels and PublishLabels feed the tiered button discovery.
	NextLabels    []string
	PublishLabels []string
	// DisabledClasses are class-name fragments that mark a button inactive.
	DisabledClasses []string

	// SuccessPhrases and PostPublishPattern are the advisory publish
	// confirmation signals. LoginPathPattern identifies auth pages.
	SuccessPhrases     []string
	PostPublishPattern *regexp.Regexp
	LoginPathPattern   *regexp.Regexp
}

// Target returns the fallback chain for a logical element name.
func (p *Platform) Target(name string) (dom.Target, bool) {
	t, ok := p.Targets[name]
	return t, ok
}

// Marketplace returns the default platform table for the marketplace
// create-listing flow.
func Marketplace() *Platform {
	return &Platform{
		Name: "marketplace",
		Targets: map[string]dom.Target{
			TargetTitle: dom.NewTarget("title field",
				dom.ByAttr("aria-label", "Title"),
				dom.ByAttr("name", "title"),
				dom.ByPlaceholder("title"),
				dom.ByLabel("Title"),
			),
			TargetPrice: dom.NewTarget("price field",
				dom.ByAttr("aria-label", "Price"),
				dom.ByAttr("name", "price"),
				dom.ByPlaceholder("price"),
				dom.ByLabel("Price"),
			),
			TargetDescription: dom.NewTarget("description field",
				dom.ByAttr("aria-label", "Description"),
				dom.ByAttr("name", "description"),
				dom.ByPlaceholder("description"),
				dom.ByLabel("Description"),
			),
			TargetCategoryOpener: dom.NewTarget("category selector",
				dom.ByAttr("aria-label", "Category"),
				dom.ByLabel("Category"),
				dom.ByText("Category"),
			),
			TargetCategoryOption: dom.NewTarget("category options",
				dom.ByXPath(`//*[@role='listbox']//*[@role='option']`),
				dom.ByXPath(`//*[@role='option']`),
				dom.ByXPath(`//*[@role='menu']//*[@role='menuitem']`),
			),
			TargetConditionOpener: dom.NewTarget("condition selector",
				dom.ByAttr("aria-label", "Condition"),
				dom.ByLabel("Condition"),
				dom.ByText("Condition"),
			),
			TargetConditionOption: dom.NewTarget("condition options",
				dom.ByXPath(`//*[@role='listbox']//*[@role='option']`),
				dom.ByXPath(`//*[@role='option']`),
			),
			TargetFileInput: dom.NewTarget("photo file input",
				dom.ByXPath(`//input[@type='file']`),
			),
			TargetLocation: dom.NewTarget("location field",
				dom.ByAttr("aria-label", "Location"),
				dom.ByPlaceholder("location"),
				dom.ByLabel("Location"),
			),
			TargetGroupOption: dom.NewTarget("group options",
				dom.ByXPath(`//*[@role='checkbox']`),
				dom.ByXPath(`//input[@type='checkbox']`),
			),
		},
		Categories: []Category{
			{Name: "Cell Phones & Accessories", Keywords: []string{
				"iphone", "android", "samsung", "pixel", "phone", "charger",
				"cable", "case", "screen protector", "airpods", "earbuds",
			}},
			{Name: "Electronics", Keywords: []string{
				"tv", "laptop", "computer", "monitor", "camera", "headphone",
				"speaker", "console", "tablet", "keyboard", "router",
			}},
			{Name: "Furniture", Keywords: []string{
				"couch", "sofa", "chair", "table", "desk", "dresser",
				"bookshelf", "bed", "mattress", "cabinet",
			}},
			{Name: "Home & Garden", Keywords: []string{
				"garden", "plant", "grill", "lawn", "patio", "tool",
				"kitchen", "vacuum", "lamp", "rug",
			}},
			{Name: "Clothing & Accessories", Keywords: []string{
				"shirt", "jacket", "dress", "jeans", "shoes", "sneakers",
				"coat", "handbag", "watch", "sunglasses",
			}},
		},
		Aliases: []Category{
			{Name: "Home & Garden", Keywords: []string{"home", "garden", "household", "patio & garden"}},
			{Name: "Cell Phones & Accessories", Keywords: []string{"cell phones", "mobile phones", "phones"}},
			{Name: "Clothing & Accessories", Keywords: []string{"apparel", "clothing", "fashion"}},
		},
		DefaultCategory: "Miscellaneous",
		Conditions: []string{
			"New", "Used - Like New", "Used - Good", "Used - Fair",
		},
		NextLabels:      []string{"Next", "Continue"},
		PublishLabels:   []string{"Publish", "Post", "List item"},
		DisabledClasses: []string{"disabled", "is-disabled", "btn-disabled"},
		SuccessPhrases: []string{
			"your listing is now published",
			"listing published",
			"your item is now listed",
			"posted to marketplace",
		},
		PostPublishPattern: regexp.MustCompile(`(?i)/marketplace/(?:item/|selling|you/selling)`),
		LoginPathPattern:   regexp.MustCompile(`(?i)/(login|signin|auth|checkpoint)(/|\?|$)`),
	}
}
