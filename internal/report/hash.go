package report

import (
	"fmt"
	"strconv"

	"saldo/internal/source"

	"github.com/cespare/xxhash/v2"
)

// fingerprint hashes every field the engines read, in input order, since
// order decides same-day replay and tie-breaks.
func fingerprint(snap source.Snapshot) uint64 {
	d := xxhash.New()
	field := func(s string) {
		_, _ = d.WriteString(s)
		_, _ = d.Write([]byte{0x1f})
	}

	field("transactions")
	for _, tx := range snap.Transactions {
		field(tx.ID)
		field(tx.Date.String())
		field(tx.Category.Primary)
		field(tx.Category.Secondary)
		field(tx.Category.Tertiary)
		field(tx.Amount.String())
		field(tx.Account)
		field(string(tx.Type))
		field(tx.Description)
	}
	field("transfers")
	for _, tr := range snap.Transfers {
		field(tr.ID)
		field(tr.Date.String())
		field(tr.Route.Source)
		field(tr.Route.Destination)
		field(tr.Inflow.String())
		field(tr.Outflow.String())
		field(tr.Note)
	}
	field("anchors")
	for _, a := range snap.Anchors {
		field(a.Account)
		field(a.Date.String())
		field(a.Balance.String())
	}
	return d.Sum64()
}

// resultKey hashes a result kind, the snapshot fingerprint and the query
// parameters into a cache key.
func resultKey(kind string, fp uint64, params ...any) string {
	d := xxhash.New()
	_, _ = d.WriteString(kind)
	_, _ = d.WriteString(strconv.FormatUint(fp, 16))
	for _, p := range params {
		_, _ = fmt.Fprintf(d, "\x1f%v", p)
	}
	return kind + ":" + strconv.FormatUint(d.Sum64(), 16)
}
