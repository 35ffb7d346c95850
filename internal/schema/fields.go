// Package schema holds the static knowledge about POS exports: the canonical
// destination fields, their kinds, and the alias table that maps raw header
// labels onto them.
package schema

// Kind is the value type a canonical field is coerced to.
type Kind int

const (
	KindText Kind = iota
	KindDate
	KindNumber
)

func (k Kind) String() string {
	switch k {
	case KindDate:
		return "date"
	case KindNumber:
		return "number"
	default:
		return "text"
	}
}

// Field is one canonical column of the normalized table.
type Field struct {
	Name string
	Kind Kind
}

const (
	// KeyField is the business key every row is upserted on.
	KeyField = "sale_id"

	// DateField is the secondary attribute used for collision detection.
	DateField = "sale_date"

	// SourceFileColumn carries provenance in both destination tables.
	SourceFileColumn = "raw_source_file"
)

// canonicalFields is the normalized table layout, in column order.
var canonicalFields = []Field{
	{KeyField, KindText},
	{DateField, KindDate},
	{"est_delivery_date", KindDate},
	{"delivery_confirmed_date", KindDate},
	{"last_payment_date", KindDate},

	{"salesperson", KindText},
	{"location", KindText},
	{"receipt_no", KindText},

	{"subtotal", KindNumber},
	{"adjustments", KindNumber},
	{"additional_fees", KindNumber},
	{"tax", KindNumber},
	{"grand_total", KindNumber},
	{"store_credit_applied", KindNumber},
	{"previous_paid", KindNumber},
	{"total_collected", KindNumber},

	{"total_finance_amt", KindNumber},
	{"finance_fee", KindNumber},
	{"finance_balance", KindNumber},
	{"lwy_balance", KindNumber},

	{"cost", KindNumber},
	{"profit", KindNumber},
	{"gross_margin", KindNumber},

	{"customer_name", KindText},
	{"phone", KindText},
	{"print_letter", KindText},
	{"delivery", KindText},
	{"note", KindText},
	{"sale_type", KindText},
	{"sale_status", KindText},
	{"city", KindText},
	{"state", KindText},
	{"zip", KindText},
}

// defaultAliases maps header labels as they appear in POS exports to
// canonical field names. Several labels may point at the same field; some of
// them are typos carried by the source system and must stay as authored.
var defaultAliases = map[string]string{
	"Sales#":               KeyField,
	"Sale #":               KeyField,
	"Date of Sale":         DateField,
	"Est Date of Delivery": "est_delivery_date",
	"Date Deliv Confirmed": "delivery_confirmed_date",
	"Date of Last PMT":     "last_payment_date",

	"Sales Person":   "salesperson",
	"Sales Location": "location",

	"Receitp#":  "receipt_no",
	"Receipt#":  "receipt_no",
	"Receipt #": "receipt_no",

	"Subtotal":                             "subtotal",
	"Adjustments before and after tax":     "adjustments",
	"Additional Fees before and after tax": "additional_fees",
	"Tax":                                  "tax",
	"Grand Total":                          "grand_total",
	"Store Credit Applied":                 "store_credit_applied",
	"Previous Paid":                        "previous_paid",
	"Total Collected":                      "total_collected",

	"Total Finance AMT": "total_finance_amt",
	"Finance Balance":   "finance_balance",
	"Finance Fee":       "finance_fee",
	"Lwy Balance":       "lwy_balance",

	"Cost":         "cost",
	"Profit":       "profit",
	"Gross Margin": "gross_margin",

	"Customer Name": "customer_name",
	"Phone #":       "phone",
	"Phone#":        "phone",
	"Print Letter":  "print_letter",
	"Delivery":      "delivery",
	"Note":          "note",
	"Sale Type":     "sale_type",
	"Sale Status":   "sale_status",
	"City":          "city",
	"State":         "state",
	"Zip":           "zip",
}
