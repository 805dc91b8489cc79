// Package reading defines the meter data model shared by ingestion, storage
// and broadcast: Reading, its number-or-string Value, and the Settings record.
//
// Ingestion is deliberately lenient. A batch is decoded item by item and
// every item that fails validation is dropped without failing the batch:
//
//	items, err := reading.DecodeBatch(body)   // object or array
//	accepted := reading.FilterValid(items, reading.Defaults{})
//	// len(accepted) <= len(items)
//
// Callers that need strict validation compare the two lengths.
package reading
