// Package service contains the application use cases: creating rewrite
// tasks, processing and reprocessing their items, reporting task status,
// and managing owner credit accounts.
//
// Key components:
//
// 1. RewriteService:
//   - Create debits the owner's credits, persists the task with its items and
//     emits one dispatch event per item
//   - ProcessItem runs a single generation attempt and moves the item to a
//     terminal state, refunding the unit cost on failure
//   - Reprocess resets failed items and charges them again
//   - Status and List derive task progress from the item states
//
// 2. AccountService:
//   - Creates owners on first sight and applies the signup grant
//   - Exposes balance, history, manual grants and ledger audits
//
// 3. Error Handling:
//   - Store and ledger errors are translated into the sentinels defined in
//     errors.go so the API layer can map them to status codes
//
// Services receive their dependencies through constructor injection and
// depend only on the interfaces in store, credits, generation and events.
package service
