package receipt

import (
	"fmt"
	"time"
)

// Field is a single canonical value. A field that was absent, null or a
// marker string in the extractor output is unknown rather than empty.
type Field struct {
	Value         string `json:"value,omitempty"`
	Known         bool   `json:"known"`
	LowConfidence bool   `json:"low_confidence,omitempty"`
}

// Known returns a field holding v
func Known(v string) Field {
	return Field{Value: v, Known: true}
}

// Unknown returns the explicit unknown marker
func Unknown() Field {
	return Field{}
}

// String returns the value, or an empty string when unknown
func (f Field) String() string {
	if !f.Known {
		return ""
	}
	return f.Value
}

// Item is one purchased line. Empty strings mean the extractor did not provide the value.
type Item struct {
	Name     string `json:"name,omitempty"`
	Quantity string `json:"quantity,omitempty"`
	Price    string `json:"price,omitempty"`
	Amount   string `json:"amount,omitempty"`
}

// Record is the canonical receipt. Items is nil when unknown.
type Record struct {
	SellerName    Field      `json:"seller_name"`
	BuyerName     Field      `json:"buyer_name"`
	IssueDate     Field      `json:"issue_date"`
	IssueTime     Field      `json:"issue_time"`
	InvoiceNumber Field      `json:"invoice_number"`
	TotalAmount   Field      `json:"total_amount"`
	Subtotal      Field      `json:"subtotal"`
	Tax           Field      `json:"tax"`
	Currency      Field      `json:"currency"`
	PaymentMethod Field      `json:"payment_method"`
	Items         []Item     `json:"items"`
	RawText       string     `json:"raw_text,omitempty"`
	Unparsed      bool       `json:"unparsed,omitempty"`
	Provenance    Provenance `json:"provenance"`
}

// AsMap renders the record with canonical keys, unknown values as nil
func (r Record) AsMap() map[string]any {
	m := map[string]any{}
	for _, f := range r.fields() {
		if f.field.Known {
			m[f.key] = f.field.Value
		} else {
			m[f.key] = nil
		}
	}
	if r.Items == nil {
		m["items"] = nil
	} else {
		items := make([]any, 0, len(r.Items))
		for _, it := range r.Items {
			obj := map[string]any{}
			if it.Name != "" {
				obj["name"] = it.Name
			}
			if it.Quantity != "" {
				obj["quantity"] = it.Quantity
			}
			if it.Price != "" {
				obj["price"] = it.Price
			}
			if it.Amount != "" {
				obj["amount"] = it.Amount
			}
			items = append(items, obj)
		}
		m["items"] = items
	}
	if r.RawText != "" {
		m["raw_text"] = r.RawText
	}
	if r.Unparsed {
		m["unparsed"] = true
	}
	return m
}

type namedField struct {
	key   string
	field Field
}

func (r Record) fields() []namedField {
	return []namedField{
		{"seller_name", r.SellerName},
		{"buyer_name", r.BuyerName},
		{"issue_date", r.IssueDate},
		{"issue_time", r.IssueTime},
		{"invoice_number", r.InvoiceNumber},
		{"total_amount", r.TotalAmount},
		{"subtotal", r.Subtotal},
		{"tax", r.Tax},
		{"currency", r.Currency},
		{"payment_method", r.PaymentMethod},
	}
}

// Provenance identifies where a record came from. It is unique within a batch.
type Provenance struct {
	DocumentID string `json:"document_id"`
	Page       int    `json:"page"`
	Receipt    int    `json:"receipt"`
}

// String renders the provenance for humans, with 1-based page and receipt numbers
func (p Provenance) String() string {
	return fmt.Sprintf("%s (page %d, receipt %d)", p.DocumentID, p.Page+1, p.Receipt+1)
}

// Failure describes a document, or a page of a document, that produced no records
type Failure struct {
	DocumentID string    `json:"document_id"`
	Page       int       `json:"page"` // -1 for the whole document
	Kind       ErrorKind `json:"kind"`
	Message    string    `json:"error"`
}

// Attempt is one strategy execution against a page, or against the whole
// document for native text (page -1)
type Attempt struct {
	DocumentID string        `json:"document_id"`
	Strategy   Strategy      `json:"strategy"`
	Page       int           `json:"page"`
	Units      int           `json:"units"`
	Kind       ErrorKind     `json:"kind,omitempty"`
	Message    string        `json:"error,omitempty"`
	Degraded   bool          `json:"degraded,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// OK reports whether the attempt produced usable units
func (a Attempt) OK() bool {
	return a.Kind == ""
}

// BatchResult is the outcome of one batch run
type BatchResult struct {
	ID           string    `json:"id"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
	Documents    int       `json:"documents"`
	Cancelled    bool      `json:"cancelled,omitempty"`
	Records      []Record  `json:"records"`
	Failures     []Failure `json:"failures"`
	PageFailures []Failure `json:"page_failures"`
	Attempts     []Attempt `json:"attempts"`
}

// BatchSummary is the listing view of a stored batch
type BatchSummary struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Documents  int       `json:"documents"`
	Records    int       `json:"records"`
	Failures   int       `json:"failures"`
	Cancelled  bool      `json:"cancelled,omitempty"`
}

// Summary returns the listing view of the batch
func (b *BatchResult) Summary() *BatchSummary {
	return &BatchSummary{
		ID:         b.ID,
		StartedAt:  b.StartedAt,
		FinishedAt: b.FinishedAt,
		Documents:  b.Documents,
		Records:    len(b.Records),
		Failures:   len(b.Failures),
		Cancelled:  b.Cancelled,
	}
}
