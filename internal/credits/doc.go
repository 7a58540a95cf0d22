// Package credits implements the per-owner credit ledger that funds
// rewrite tasks. Every balance change is an append-only transaction row
// written together with the new balance, so the balance always equals the
// running sum of the owner's transactions.
package credits
