package receipt

import (
	"encoding/json"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// synonyms maps raw extractor keys onto canonical fields. Keys are compared
// after canonicalKey; within a field the first key holding a value wins.
var synonyms = []struct {
	field string
	keys  []string
}{
	{"seller_name", []string{"seller_name", "seller", "merchant", "merchant_name", "store", "store_name", "vendor", "shop", "销方名称", "销售方", "店铺名称"}},
	{"buyer_name", []string{"buyer_name", "buyer", "purchaser", "购方名称", "购买方"}},
	{"issue_date", []string{"issue_date", "date", "tx_date", "invoice_date", "transaction_date", "开票日期", "日期"}},
	{"issue_time", []string{"issue_time", "time", "时间"}},
	{"invoice_number", []string{"invoice_number", "invoice_no", "invoice_num", "receipt_number", "receipt_no", "发票号码", "票据号码"}},
	{"total_amount", []string{"total_amount", "total_including_tax", "total", "grand_total", "amount_due", "amount", "价税合计", "合计", "总计", "合計"}},
	{"subtotal", []string{"subtotal", "sub_total", "total_excluding_tax", "小计", "金额"}},
	{"tax", []string{"tax", "total_tax", "tax_amount", "vat", "税额"}},
	{"currency", []string{"currency", "currency_code", "货币"}},
	{"payment_method", []string{"payment_method", "payment", "支付方式"}},
	{"items", []string{"items", "line_items", "商品"}},
}

var knownKeys = func() map[string]bool {
	m := map[string]bool{}
	for _, s := range synonyms {
		for _, k := range s.keys {
			m[k] = true
		}
	}
	return m
}()

var keySeparators = regexp.MustCompile(`[\s\-]+`)

func canonicalKey(k string) string {
	k = strings.ToLower(strings.TrimSpace(k))
	return keySeparators.ReplaceAllString(k, "_")
}

// Normalize maps a raw unit onto the canonical record. It is pure and
// idempotent: normalizing a record's AsMap yields the same record.
func Normalize(unit RawUnit) Record {
	switch unit.Kind {
	case UnitRecord:
		return normalizeMapping(unit.Record)
	case UnitRecordList:
		if len(unit.Records) > 0 {
			return normalizeMapping(unit.Records[0])
		}
		return Record{}
	case UnitText:
		return normalizeText(unit.Text)
	case UnitUnparsed:
		return Record{RawText: unit.Text, Unparsed: true}
	}
	return Record{}
}

func normalizeMapping(m map[string]any) Record {
	// sorted so that keys colliding after canonicalization resolve the same way every time
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lookup := make(map[string]any, len(m))
	for _, k := range keys {
		ck := canonicalKey(k)
		if _, ok := lookup[ck]; !ok || k == ck {
			lookup[ck] = m[k]
		}
	}

	var rec Record
	applyLookup(&rec, lookup)
	if raw, ok := lookup["raw_text"].(string); ok {
		rec.RawText = raw
	}
	if unparsed, ok := lookup["unparsed"].(bool); ok {
		rec.Unparsed = unparsed
	}
	return rec
}

func applyLookup(rec *Record, lookup map[string]any) {
	var peeled []string
	for _, syn := range synonyms {
		if syn.field == "items" {
			for _, k := range syn.keys {
				if items := normalizeItems(lookup[k]); items != nil {
					rec.Items = items
					break
				}
			}
			continue
		}

		value, ok := "", false
		for _, k := range syn.keys {
			if value, ok = scalarString(lookup[k]); ok {
				break
			}
		}
		if !ok {
			continue
		}

		switch syn.field {
		case "seller_name":
			rec.SellerName = Known(value)
		case "buyer_name":
			rec.BuyerName = Known(value)
		case "issue_date":
			rec.IssueDate = normalizeDate(value)
		case "issue_time":
			rec.IssueTime = Known(value)
		case "invoice_number":
			rec.InvoiceNumber = Known(value)
		case "total_amount", "subtotal", "tax":
			amount, currency, ok := normalizeAmount(value)
			if !ok {
				continue
			}
			if currency != "" {
				peeled = append(peeled, currency)
			}
			switch syn.field {
			case "total_amount":
				rec.TotalAmount = Known(amount)
			case "subtotal":
				rec.Subtotal = Known(amount)
			case "tax":
				rec.Tax = Known(amount)
			}
		case "currency":
			rec.Currency = Known(value)
		case "payment_method":
			rec.PaymentMethod = Known(value)
		}
	}
	if !rec.Currency.Known && len(peeled) > 0 {
		rec.Currency = Known(peeled[0])
	}
}

// scalarString renders a JSON scalar as trimmed text. Missing values, nulls,
// non-scalars and the unknown markers report false.
func scalarString(v any) (string, bool) {
	var s string
	switch val := v.(type) {
	case nil:
		return "", false
	case string:
		s = val
	case json.Number:
		s = val.String()
	case float64:
		s = strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		s = strconv.Itoa(val)
	case int64:
		s = strconv.FormatInt(val, 10)
	case bool:
		s = strconv.FormatBool(val)
	default:
		return "", false
	}
	s = strings.TrimSpace(s)
	if isUnknownMarker(s) {
		return "", false
	}
	return s, true
}

func isUnknownMarker(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "unknown", "null", "n/a", "none":
		return true
	}
	return false
}

// longest first so "US$" is not read as "$"
var currencyPrefixes = []string{"US$", "HK$", "NT$", "R$", "S$", "A$", "C$", "$", "¥", "￥", "€", "£", "₩", "₹", "₽", "฿"}

var currencySuffixes = []string{"元", "円", "€", "¥", "￥"}

var (
	currencyCode   = regexp.MustCompile(`^(CNY|RMB|USD|EUR|JPY|GBP|HKD|TWD|KRW|SGD|AUD|CAD|CHF|INR)\s*(.*)$`)
	currencyCodeAt = regexp.MustCompile(`^(.*?)\s*(CNY|RMB|USD|EUR|JPY|GBP|HKD|TWD|KRW|SGD|AUD|CAD|CHF|INR)$`)
	groupedNumber  = regexp.MustCompile(`^-?\d{1,3}(,\d{3})+(\.\d+)?$`)
)

// normalizeAmount peels currency symbols and codes off an amount until none
// are left, keeping the first as the currency, then drops digit-grouping
// commas. Amounts stay textual; numerals that are not Arabic pass through.
func normalizeAmount(s string) (amount, currency string, ok bool) {
	s = strings.TrimSpace(s)
	for {
		marker, rest, found := peelCurrency(s)
		if !found {
			break
		}
		if currency == "" {
			currency = marker
		}
		s = rest
	}
	if groupedNumber.MatchString(s) {
		s = strings.ReplaceAll(s, ",", "")
	}
	if isUnknownMarker(s) {
		return "", "", false
	}
	return s, currency, true
}

// peelCurrency removes one leading or trailing currency marker
func peelCurrency(s string) (marker, rest string, ok bool) {
	for _, p := range currencyPrefixes {
		if strings.HasPrefix(s, p) {
			return p, strings.TrimSpace(strings.TrimPrefix(s, p)), true
		}
	}
	for _, suf := range currencySuffixes {
		if strings.HasSuffix(s, suf) {
			return suf, strings.TrimSpace(strings.TrimSuffix(s, suf)), true
		}
	}
	if m := currencyCode.FindStringSubmatch(s); m != nil {
		return m[1], strings.TrimSpace(m[2]), true
	}
	if m := currencyCodeAt.FindStringSubmatch(s); m != nil {
		return m[2], strings.TrimSpace(m[1]), true
	}
	return "", s, false
}

var (
	cjkDate     = regexp.MustCompile(`(\d{4})\s*年\s*(\d{1,2})\s*月\s*(\d{1,2})\s*日?`)
	isoLikeDate = regexp.MustCompile(`^(\d{4})[-/.](\d{1,2})[-/.](\d{1,2})`)
	compactDate = regexp.MustCompile(`^(\d{4})(\d{2})(\d{2})$`)
)

var dateLayouts = []string{
	"01/02/2006",
	"1/2/2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"Jan 2 2006",
	"2 Jan 2006",
	"2 January 2006",
	"02-Jan-2006",
	time.RFC3339,
}

// normalizeDate returns YYYY-MM-DD when the value parses, otherwise the raw
// value tagged as low confidence
func normalizeDate(s string) Field {
	if m := cjkDate.FindStringSubmatch(s); m != nil {
		if d, ok := ymd(m[1], m[2], m[3]); ok {
			return Known(d)
		}
	}
	if m := isoLikeDate.FindStringSubmatch(s); m != nil {
		if d, ok := ymd(m[1], m[2], m[3]); ok {
			return Known(d)
		}
	}
	if m := compactDate.FindStringSubmatch(s); m != nil {
		if d, ok := ymd(m[1], m[2], m[3]); ok {
			return Known(d)
		}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Known(t.Format("2006-01-02"))
		}
	}
	return Field{Value: s, Known: true, LowConfidence: true}
}

func ymd(ys, ms, ds string) (string, bool) {
	y, _ := strconv.Atoi(ys)
	m, _ := strconv.Atoi(ms)
	d, _ := strconv.Atoi(ds)
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	if t.Year() != y || int(t.Month()) != m || t.Day() != d {
		return "", false
	}
	return t.Format("2006-01-02"), true
}

var itemKeys = struct {
	name, quantity, price, amount []string
}{
	name:     []string{"name", "item", "description", "product", "品名", "商品名称"},
	quantity: []string{"quantity", "qty", "count", "数量"},
	price:    []string{"price", "unit_price", "单价"},
	amount:   []string{"amount", "total", "line_total", "金额"},
}

// normalizeItems accepts a ";" separated string, a list of strings or a list
// of item objects. It returns nil when nothing usable is present.
func normalizeItems(v any) []Item {
	var items []Item
	switch val := v.(type) {
	case string:
		for _, part := range strings.FieldsFunc(val, func(r rune) bool { return r == ';' || r == '；' }) {
			if name, ok := scalarString(part); ok {
				items = append(items, Item{Name: name})
			}
		}
	case []any:
		for _, el := range val {
			switch e := el.(type) {
			case map[string]any:
				if it, ok := normalizeItem(e); ok {
					items = append(items, it)
				}
			default:
				if name, ok := scalarString(e); ok {
					items = append(items, Item{Name: name})
				}
			}
		}
	}
	if len(items) == 0 {
		return nil
	}
	return items
}

func normalizeItem(m map[string]any) (Item, bool) {
	lookup := make(map[string]any, len(m))
	for k, v := range m {
		lookup[canonicalKey(k)] = v
	}
	first := func(keys []string) string {
		for _, k := range keys {
			if s, ok := scalarString(lookup[k]); ok {
				return s
			}
		}
		return ""
	}
	it := Item{
		Name:     first(itemKeys.name),
		Quantity: first(itemKeys.quantity),
		Price:    first(itemKeys.price),
		Amount:   first(itemKeys.amount),
	}
	return it, it != Item{}
}

var (
	totalLine    = regexp.MustCompile(`(?i)(?:^|[^a-z])(?:grand\s*total|total|amount\s*due|balance\s*due)(?:[^a-z]|$)|合计|合計|总计|總計|お会計`)
	subtotalLine = regexp.MustCompile(`(?i)sub\s*-?\s*total|小计|小計`)
	amountToken  = regexp.MustCompile(`(?:US\$|HK\$|NT\$|[$¥￥€£₩₹])?\s*-?\d[\d,]*(?:\.\d+)?`)
	moneyLike    = regexp.MustCompile(`[$¥￥€£₩₹]|\d+[.,]\d{2}\b`)
	dateInText   = regexp.MustCompile(`\d{4}\s*年\s*\d{1,2}\s*月\s*\d{1,2}\s*日?|\d{4}[-/.]\d{1,2}[-/.]\d{1,2}|\d{1,2}/\d{1,2}/\d{4}`)
	timeInText   = regexp.MustCompile(`\b(?:[01]?\d|2[0-3]):[0-5]\d(?::[0-5]\d)?\b`)
	invoiceText  = regexp.MustCompile(`(?i)(?:invoice|receipt|bill)\s*(?:no\.?|number|num|#)\s*[:：]?\s*#?\s*([A-Za-z0-9][A-Za-z0-9-]*)|(?:发票号码|票据号码)\s*[:：]?\s*([A-Za-z0-9-]+)`)
)

// normalizeText structures OCR or text-layer output heuristically
func normalizeText(text string) Record {
	rec := Record{RawText: text}
	lines := textLines(text)

	values := map[string]any{}
	for _, ln := range lines {
		k, v, ok := keyValue(ln)
		if !ok {
			continue
		}
		if _, seen := values[k]; !seen {
			values[k] = v
		}
	}
	applyLookup(&rec, values)

	if !rec.TotalAmount.Known {
		for _, ln := range lines {
			if !totalLine.MatchString(ln) || subtotalLine.MatchString(ln) {
				continue
			}
			tokens := amountToken.FindAllString(ln, -1)
			if len(tokens) == 0 {
				continue
			}
			amount, currency, ok := normalizeAmount(strings.TrimRight(tokens[len(tokens)-1], ","))
			if !ok {
				continue
			}
			rec.TotalAmount = Known(amount)
			if !rec.Currency.Known && currency != "" {
				rec.Currency = Known(currency)
			}
			break
		}
	}
	if !rec.IssueDate.Known {
		if m := dateInText.FindString(text); m != "" {
			rec.IssueDate = normalizeDate(m)
		}
	}
	if !rec.IssueTime.Known {
		if m := timeInText.FindString(text); m != "" {
			rec.IssueTime = Known(m)
		}
	}
	if !rec.InvoiceNumber.Known {
		if m := invoiceText.FindStringSubmatch(text); m != nil {
			rec.InvoiceNumber = Known(m[1] + m[2])
		}
	}
	if !rec.SellerName.Known {
		for _, ln := range lines {
			if isSellerLine(ln) {
				rec.SellerName = Known(ln)
				break
			}
		}
	}
	return rec
}

func textLines(text string) []string {
	var lines []string
	for _, ln := range strings.FieldsFunc(text, func(r rune) bool { return r == '\n' || r == '\f' || r == '\r' }) {
		if ln = strings.TrimSpace(ln); ln != "" {
			lines = append(lines, ln)
		}
	}
	return lines
}

// keyValue splits "key: value" lines whose key is in the synonym table
func keyValue(line string) (string, string, bool) {
	i := strings.IndexAny(line, ":：")
	if i <= 0 {
		return "", "", false
	}
	key := canonicalKey(line[:i])
	_, size := utf8.DecodeRuneInString(line[i:])
	value := strings.TrimSpace(line[i+size:])
	if !knownKeys[key] || value == "" {
		return "", "", false
	}
	return key, value, true
}

func isSellerLine(line string) bool {
	if strings.ContainsAny(line, ":：") {
		return false
	}
	if moneyLike.MatchString(line) || dateInText.MatchString(line) || totalLine.MatchString(line) {
		return false
	}
	for _, r := range line {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}
