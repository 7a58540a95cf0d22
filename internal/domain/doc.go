// Package domain contains the core business entities of the rewrite
// pipeline: generation Tasks, the Items submitted with them, the Version
// placeholders each Item fills, and the credit ledger rows that fund them.
// It is independent of storage and transport; state-machine rules such as
// deriving a Task's status from its Items live here.
package domain
