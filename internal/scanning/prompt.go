package scanning

// ReceiptPrompt instructs vision models to return one JSON object per receipt
// using the canonical field names.
const ReceiptPrompt = `You are analyzing a photo or scan that contains one or more receipts or invoices. The text may be Chinese, English or Japanese. Carefully read all text in the image.

If the image contains more than one receipt or invoice, return a JSON array with one object per receipt, in the order they appear (top to bottom, left to right): [{...}, {...}]
If it contains exactly one, return a single JSON object: {...}

Each object uses exactly these fields:
{
  "seller_name": "store or company name, in its original language (do not translate)",
  "buyer_name": "purchaser name, if printed",
  "issue_date": "YYYY-MM-DD",
  "issue_time": "HH:MM, if printed",
  "invoice_number": "invoice or receipt number, if printed",
  "total_amount": "final total, digits only",
  "subtotal": "subtotal, digits only",
  "tax": "tax amount, digits only",
  "currency": "currency symbol or code as printed, e.g. ¥, $, €, JPY",
  "payment_method": "cash, credit card, Alipay, etc.",
  "items": ["one entry per purchased line item"]
}

Important:
- If a field is not present, use null for that field
- Do not include any text before or after the JSON
- Do not use markdown code blocks`
