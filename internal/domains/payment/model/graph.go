package model

import (
	"sort"

	"github.com/shopspring/decimal"
)

// CanParent reports whether a node of type child may hang off a node of type
// parent. AUTHORIZE and CAPTURE chain from CREATE or AUTHORIZE, REFUND from CAPTURE.
func CanParent(parent, child TxnType) bool {
	switch child {
	case TxnTypeAuthorize, TxnTypeCapture:
		return parent == TxnTypeCreate || parent == TxnTypeAuthorize
	case TxnTypeRefund:
		return parent == TxnTypeCapture
	}
	return false
}

// SortTransactions orders an order's transactions parent-before-child.
// CREATE nodes come first, each node is followed by its subtree, siblings are
// ordered by creation time (txn id breaks ties). Nodes whose parent is not in
// the set are appended last with their own subtrees.
func SortTransactions(txns []Transaction) []Transaction {
	if len(txns) == 0 {
		return []Transaction{}
	}

	byID := make(map[string]int, len(txns))
	for i := range txns {
		byID[txns[i].TxnID] = i
	}

	children := make(map[string][]int)
	var roots, orphans []int
	for i := range txns {
		parent := txns[i].Parent()
		switch {
		case txns[i].TxnType == TxnTypeCreate || parent == "":
			if txns[i].TxnType == TxnTypeCreate {
				roots = append(roots, i)
			} else {
				orphans = append(orphans, i)
			}
		default:
			if _, ok := byID[parent]; ok && parent != txns[i].TxnID {
				children[parent] = append(children[parent], i)
			} else {
				orphans = append(orphans, i)
			}
		}
	}

	less := func(idx []int) func(a, b int) bool {
		return func(a, b int) bool {
			ta, tb := txns[idx[a]], txns[idx[b]]
			if !ta.CreatedAt.Equal(tb.CreatedAt) {
				return ta.CreatedAt.Before(tb.CreatedAt)
			}
			return ta.TxnID < tb.TxnID
		}
	}
	sort.SliceStable(roots, less(roots))
	sort.SliceStable(orphans, less(orphans))
	for k := range children {
		c := children[k]
		sort.SliceStable(c, less(c))
	}

	out := make([]Transaction, 0, len(txns))
	visited := make(map[int]bool, len(txns))

	var walk func(i int)
	walk = func(i int) {
		if visited[i] {
			return
		}
		visited[i] = true
		out = append(out, txns[i])
		for _, c := range children[txns[i].TxnID] {
			walk(c)
		}
	}

	for _, r := range roots {
		walk(r)
	}
	for _, o := range orphans {
		walk(o)
	}
	// cycles never reach a root; keep them rather than drop rows
	for i := range txns {
		if !visited[i] {
			walk(i)
		}
	}
	return out
}

// FilterTransactions keeps the relative order of txns whose type is in types.
// An empty filter returns txns unchanged.
func FilterTransactions(txns []Transaction, types ...TxnType) []Transaction {
	if len(types) == 0 {
		return txns
	}
	want := make(map[TxnType]bool, len(types))
	for _, t := range types {
		want[t] = true
	}
	out := make([]Transaction, 0, len(txns))
	for _, t := range txns {
		if want[t.TxnType] {
			out = append(out, t)
		}
	}
	return out
}

// ChildrenOf returns the direct children of parentID, optionally filtered by type.
func ChildrenOf(txns []Transaction, parentID string, types ...TxnType) []Transaction {
	var out []Transaction
	for _, t := range FilterTransactions(txns, types...) {
		if t.Parent() == parentID {
			out = append(out, t)
		}
	}
	return out
}

// FindTransaction returns the transaction with txnID, if present.
func FindTransaction(txns []Transaction, txnID string) (Transaction, bool) {
	for _, t := range txns {
		if t.TxnID == txnID {
			return t, true
		}
	}
	return Transaction{}, false
}

// SumGross totals gross amounts, skipping nodes the gateway rejected.
func SumGross(txns []Transaction) decimal.Decimal {
	total := decimal.Zero
	for _, t := range txns {
		switch t.PaymentStatus {
		case GatewayStatusFailed, GatewayStatusDeclined, GatewayStatusDenied, GatewayStatusCancelled:
			continue
		}
		total = total.Add(t.GrossAmount)
	}
	return total
}
