package scanning

// receiptScanPrompt is the shared prompt used by all providers
const receiptScanPrompt = `You are reading a photo of a restaurant or store receipt. Extract every purchased line item.

Return ONLY valid JSON in this exact shape:
{
  "merchant": "Store name",
  "date": "YYYY-MM-DD",
  "currency": "USD",
  "items": [
    {"name": "Item name", "qty": 1, "price": 0.00}
  ],
  "taxPct": 0.13,
  "tipPct": 0.18
}

Rules:
- "price" is the price of ONE unit as a number, not a string. If the receipt only shows a line total, divide it by the quantity.
- "qty" is a whole number. Use 1 when no quantity is printed.
- Do not list subtotal, tax, tip, service charge, discount or total lines as items.
- "taxPct" and "tipPct" are fractions of the item subtotal (0.13 means 13%). Compute them from the printed amounts when possible. Omit a field you cannot determine.
- "currency" is the ISO 4217 code. Use "USD" if unsure.
- "date" must be YYYY-MM-DD. Omit it if it is not printed.
- Do not include any text before or after the JSON.
- Do not use markdown code blocks.`
