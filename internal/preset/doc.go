// Package preset persists named blend formulas.
//
// A preset collection is a versioned, ordered list of items:
//
//	{
//	  "version": 1,
//	  "items": [
//	    {"id": "...", "name": "Multiply", "formula": {"expr": "[rb*rs, gb*gs, bb*bs]"}, "createdAt": 1700000000000}
//	  ]
//	}
//
// Two backends implement Store. JSONStore keeps the collection in a single
// formulas.json file and is the default. SQLiteStore keeps one row per item
// and suits collections shared by several processes.
//
// Both backends seed the four built-in presets on first use and retry writes
// under the persistent-write policy from package retry: a failed write is
// retried with capped exponential backoff until it succeeds or the context
// ends, so a save is never silently dropped.
//
// Names and expressions are NFC-normalised before storage so that visually
// identical presets merge on import.
package preset
