package oracle

import "strings"

// Options toggles the access patterns a verification run may use.
type Options uint16

const (
	// Skipping mixes Advance calls in with NextDoc.
	Skipping Options = 1 << iota
	// ReuseEnums hands the previous enumerator back to the format.
	ReuseEnums
	// LiveDocs filters enumerators with the corpus live docs half the time.
	LiveDocs
	// TermState positions cursors from captured seek states.
	TermState
	// PartialDocConsume abandons enumerators before exhaustion.
	PartialDocConsume
	// PartialPosConsume reads only some positions of a document.
	PartialPosConsume
	// Payloads checks payload bytes.
	Payloads
	// Threads verifies from several goroutines at once.
	Threads
)

// AllOptions enables every access pattern.
const AllOptions = Skipping | ReuseEnums | LiveDocs | TermState | PartialDocConsume | PartialPosConsume | Payloads | Threads

var optionNames = []struct {
	opt  Options
	name string
}{
	{Skipping, "skipping"},
	{ReuseEnums, "reuse"},
	{LiveDocs, "livedocs"},
	{TermState, "termstate"},
	{PartialDocConsume, "partial-docs"},
	{PartialPosConsume, "partial-positions"},
	{Payloads, "payloads"},
	{Threads, "threads"},
}

func (o Options) Has(opt Options) bool { return o&opt != 0 }

// Without returns o with opt cleared.
func (o Options) Without(opt Options) Options { return o &^ opt }

func (o Options) String() string {
	var names []string
	for _, n := range optionNames {
		if o.Has(n.opt) {
			names = append(names, n.name)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ",")
}
